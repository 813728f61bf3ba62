// Package cache stores provider responses and their converted GeoJSON under a request key.
//
// Presence of an artifact is the only validity signal: there is no TTL and keys
// are derived from request parameters, not from content.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/json"
)

// ErrMiss is returned by Load when no artifact exists for the key.
var ErrMiss = errors.New("cache miss")

// Error describes a failed cache backend operation.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Artifact is the cached pair for one request.
// Raw holds the provider response, GeoJSON the converted FeatureCollection.
type Artifact struct {
	Raw     []byte
	GeoJSON []byte
}

// Store is a key to artifact backend.
// Save must not replace an artifact that already exists for the key.
type Store interface {
	Load(ctx context.Context, key string) (*Artifact, error)
	Save(ctx context.Context, key string, a *Artifact) error
}

// Options selects and configures a backend.
type Options struct {
	Backend      string `yaml:"backend"`
	Dir          string `yaml:"dir"`
	ValkeyAddr   string `yaml:"valkey_addr"`
	ValkeyPrefix string `yaml:"valkey_prefix"`
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendValkey = "valkey"
)

// Open creates the backend described by opts. An empty backend means file.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		return NewFileStore(opts.Dir), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendValkey:
		return NewValkeyStore(opts.ValkeyAddr, opts.ValkeyPrefix)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

var minifier = func() *minify.M {
	m := minify.New()
	m.AddFunc("application/json", json.Minify)
	return m
}()

// Compact strips insignificant whitespace from a JSON document.
func Compact(data []byte) ([]byte, error) {
	return minifier.Bytes("application/json", data)
}
