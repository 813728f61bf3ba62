package cache

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"
)

// ValkeyStore keeps artifacts in Valkey (Redis-compatible) under
// <prefix><key>:raw and <prefix><key>:geojson.
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// NewValkeyStore connects to the Valkey server at addr.
func NewValkeyStore(addr, prefix string) (*ValkeyStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return NewValkeyStoreWithClient(client, prefix), nil
}

// NewValkeyStoreWithClient wraps an existing client.
func NewValkeyStoreWithClient(client valkey.Client, prefix string) *ValkeyStore {
	if prefix == "" {
		prefix = "catchment:"
	}
	return &ValkeyStore{client: client, prefix: prefix}
}

func (s *ValkeyStore) rawKey(key string) string     { return s.prefix + key + ":raw" }
func (s *ValkeyStore) geojsonKey(key string) string { return s.prefix + key + ":geojson" }

func (s *ValkeyStore) Load(ctx context.Context, key string) (*Artifact, error) {
	raw, err := s.get(ctx, s.rawKey(key))
	if valkey.IsValkeyNil(err) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, &Error{Op: "load", Key: key, Err: err}
	}

	a := &Artifact{Raw: raw}
	data, err := s.get(ctx, s.geojsonKey(key))
	switch {
	case err == nil:
		a.GeoJSON = data
	case valkey.IsValkeyNil(err):
	default:
		return nil, &Error{Op: "load", Key: key, Err: err}
	}

	return a, nil
}

// Save uses SET NX so an existing artifact is never replaced.
func (s *ValkeyStore) Save(ctx context.Context, key string, a *Artifact) error {
	if a.GeoJSON != nil {
		if err := s.setNX(ctx, s.geojsonKey(key), a.GeoJSON); err != nil {
			return &Error{Op: "save", Key: key, Err: err}
		}
	}
	if err := s.setNX(ctx, s.rawKey(key), a.Raw); err != nil {
		return &Error{Op: "save", Key: key, Err: err}
	}
	return nil
}

// Close releases the client.
func (s *ValkeyStore) Close() {
	s.client.Close()
}

func (s *ValkeyStore) get(ctx context.Context, key string) ([]byte, error) {
	return s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
}

func (s *ValkeyStore) setNX(ctx context.Context, key string, value []byte) error {
	err := s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Nx().Build(),
	).Error()
	// NX on an existing key replies nil
	if valkey.IsValkeyNil(err) {
		return nil
	}
	return err
}
