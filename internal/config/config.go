// Package config handles configuration loading and shared data structures.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/woozymasta/catchment/internal/cache"
	"github.com/woozymasta/catchment/internal/geo"
	"github.com/woozymasta/catchment/internal/traveltime"

	"gopkg.in/yaml.v3"
)

// Config represents the root configuration file structure.
type Config struct {
	Provider    Provider      `yaml:"provider"`
	Cache       cache.Options `yaml:"cache"`
	Catchments  []Catchment   `yaml:"catchments"`
	Batches     []Batch       `yaml:"batches,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"`
}

// Provider configures access to the travel-time service.
type Provider struct {
	URL         string        `yaml:"url,omitempty"`
	Credentials string        `yaml:"credentials,omitempty"` // path to app_id / api_key file
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// Catchment is a single-origin search. Inside a batch, Name is optional.
type Catchment struct {
	Departure time.Time `yaml:"departure" json:"departure"`
	Name      string    `yaml:"name,omitempty" json:"name,omitempty"`
	ID        string    `yaml:"id,omitempty" json:"id,omitempty"`
	Mode      string    `yaml:"mode" json:"mode"`
	Lat       float64   `yaml:"lat" json:"lat"`
	Lng       float64   `yaml:"lng" json:"lng"`
	Minutes   int       `yaml:"minutes" json:"minutes"`
}

// Batch is a multi-origin search sent in one provider call.
type Batch struct {
	Name          string      `yaml:"name"`
	Origins       []Catchment `yaml:"origins"`
	Intersections [][]string  `yaml:"intersections,omitempty"`
	Unions        [][]string  `yaml:"unions,omitempty"`
}

// Credentials are the provider application id and key.
type Credentials struct {
	AppID  string `yaml:"app_id" json:"app_id"`
	APIKey string `yaml:"api_key" json:"api_key"`
}

// Origin returns the search origin.
func (c Catchment) Origin() geo.Coordinate {
	return geo.Coordinate{Lat: c.Lat, Lon: c.Lng}
}

// Request converts the entry into a provider request.
func (c Catchment) Request() traveltime.CatchmentRequest {
	id := c.ID
	if id == "" {
		id = c.Name
	}
	return traveltime.NewCatchmentRequest(id, c.Origin(), traveltime.Mode(c.Mode), c.Departure, c.Minutes)
}

// Requests converts all batch origins in order.
func (b Batch) Requests() []traveltime.CatchmentRequest {
	reqs := make([]traveltime.CatchmentRequest, len(b.Origins))
	for i, o := range b.Origins {
		reqs[i] = o.Request()
	}
	return reqs
}

// Combinations returns the configured intersections and unions.
func (b Batch) Combinations() []traveltime.Combination {
	combos := make([]traveltime.Combination, 0, len(b.Intersections)+len(b.Unions))
	for _, ids := range b.Intersections {
		combos = append(combos, traveltime.Combination{Kind: traveltime.Intersection, SearchIDs: ids})
	}
	for _, ids := range b.Unions {
		combos = append(combos, traveltime.Combination{Kind: traveltime.Union, SearchIDs: ids})
	}
	return combos
}

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes a YAML document, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Provider.URL == "" {
		c.Provider.URL = traveltime.DefaultURL
	}
	if c.Provider.Timeout <= 0 {
		c.Provider.Timeout = traveltime.DefaultTimeout
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = cache.BackendFile
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = "output"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// Validate checks names, searches and backend selection, reporting every problem at once.
func (c *Config) Validate() error {
	var errs []string
	seen := make(map[string]bool)

	checkName := func(name string) {
		if name == "" {
			errs = append(errs, "catchment and batch names are required")
			return
		}
		if seen[name] {
			errs = append(errs, fmt.Sprintf("duplicate name %q", name))
		}
		seen[name] = true
	}

	for _, ct := range c.Catchments {
		checkName(ct.Name)
		if err := ct.Request().Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("catchment %q: %v", ct.Name, err))
		}
	}

	for _, b := range c.Batches {
		checkName(b.Name)
		if n := len(b.Origins); n < 1 || n > traveltime.MaxBatchSize {
			errs = append(errs, fmt.Sprintf("batch %q: must have 1-%d origins, got %d", b.Name, traveltime.MaxBatchSize, n))
		}
		for i, o := range b.Origins {
			if err := o.Request().Validate(); err != nil {
				errs = append(errs, fmt.Sprintf("batch %q origin %d: %v", b.Name, i, err))
			}
		}
	}

	switch strings.ToLower(c.Cache.Backend) {
	case cache.BackendFile, cache.BackendMemory:
	case cache.BackendValkey:
		if c.Cache.ValkeyAddr == "" {
			errs = append(errs, "cache.valkey_addr is required for the valkey backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown cache backend %q", c.Cache.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LoadCredentials reads app_id and api_key from a YAML or JSON file.
func LoadCredentials(path string) (Credentials, error) {
	var creds Credentials

	data, err := os.ReadFile(path)
	if err != nil {
		return creds, err
	}
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("parse credentials %s: %w", path, err)
	}

	return creds, nil
}

// ResolveCredentials loads the credentials file, if configured, and lets non-empty
// appID and apiKey (flags or environment) take precedence.
func (c *Config) ResolveCredentials(appID, apiKey string) (Credentials, error) {
	var creds Credentials

	if c.Provider.Credentials != "" {
		var err error
		creds, err = LoadCredentials(c.Provider.Credentials)
		if err != nil {
			return creds, err
		}
	}

	if appID != "" {
		creds.AppID = appID
	}
	if apiKey != "" {
		creds.APIKey = apiKey
	}

	return creds, nil
}

// ClientOptions builds provider client options over the given store.
func (c *Config) ClientOptions(creds Credentials, store cache.Store) traveltime.Options {
	return traveltime.Options{
		URL:     c.Provider.URL,
		AppID:   creds.AppID,
		APIKey:  creds.APIKey,
		Timeout: c.Provider.Timeout,
		Store:   store,
	}
}
