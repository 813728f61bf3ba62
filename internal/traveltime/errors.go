package traveltime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRequest marks requests rejected before sending.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMalformedResponse marks a success status with an unexpected payload.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrTimeout marks a call that exceeded the configured timeout.
	ErrTimeout = errors.New("request timed out")
)

// ProviderError is a non-success status returned by the provider.
// Description and AdditionalInfo keep the provider text verbatim.
type ProviderError struct {
	StatusCode        int
	ErrorCode         int
	Description       string
	AdditionalInfo    string
	DocumentationLink string
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "provider status %d", e.StatusCode)
	if e.ErrorCode != 0 {
		fmt.Fprintf(&b, " (error code %d)", e.ErrorCode)
	}
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}
	if e.AdditionalInfo != "" {
		b.WriteString("; additional info: ")
		b.WriteString(e.AdditionalInfo)
	}
	return b.String()
}

type errorBody struct {
	HTTPStatus        int             `json:"http_status"`
	ErrorCode         int             `json:"error_code"`
	Description       string          `json:"description"`
	DocumentationLink string          `json:"documentation_link"`
	AdditionalInfo    json.RawMessage `json:"additional_info"`
}

// newProviderError parses the provider error body, falling back to the raw text.
func newProviderError(status int, body []byte) *ProviderError {
	e := &ProviderError{StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		e.Description = strings.TrimSpace(string(body))
		return e
	}

	e.ErrorCode = eb.ErrorCode
	e.Description = eb.Description
	e.DocumentationLink = eb.DocumentationLink
	if len(eb.AdditionalInfo) > 0 && string(eb.AdditionalInfo) != "null" {
		var s string
		if err := json.Unmarshal(eb.AdditionalInfo, &s); err == nil {
			e.AdditionalInfo = s
		} else {
			e.AdditionalInfo = string(eb.AdditionalInfo)
		}
	}

	return e
}
