package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// FileStore keeps artifacts as <dir>/<key>.json (raw) and <dir>/<key>.geojson.
// The raw file is written last and its presence marks the artifact as valid.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. An empty dir means "output".
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = "output"
	}
	return &FileStore{dir: dir}
}

// Dir returns the store root.
func (s *FileStore) Dir() string { return s.dir }

// RawPath returns the path of the raw provider response for key.
func (s *FileStore) RawPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// GeoJSONPath returns the path of the converted FeatureCollection for key.
func (s *FileStore) GeoJSONPath(key string) string {
	return filepath.Join(s.dir, key+".geojson")
}

// Load reads both files. A missing GeoJSON companion leaves Artifact.GeoJSON nil.
func (s *FileStore) Load(_ context.Context, key string) (*Artifact, error) {
	raw, err := os.ReadFile(s.RawPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, &Error{Op: "load", Key: key, Err: err}
	}

	a := &Artifact{Raw: raw}
	data, err := os.ReadFile(s.GeoJSONPath(key))
	switch {
	case err == nil:
		a.GeoJSON = data
	case errors.Is(err, fs.ErrNotExist):
		log.Debug().Str("key", key).Msg("GeoJSON companion missing, raw response only")
	default:
		return nil, &Error{Op: "load", Key: key, Err: err}
	}

	return a, nil
}

// Save writes the artifact unless one already exists for key.
func (s *FileStore) Save(_ context.Context, key string, a *Artifact) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return &Error{Op: "save", Key: key, Err: err}
	}

	if a.GeoJSON != nil {
		if err := s.writeIfAbsent(s.GeoJSONPath(key), a.GeoJSON); err != nil {
			return &Error{Op: "save", Key: key, Err: err}
		}
	}
	if err := s.writeIfAbsent(s.RawPath(key), a.Raw); err != nil {
		return &Error{Op: "save", Key: key, Err: err}
	}

	return nil
}

// writeIfAbsent writes data to a temp file and links it into place.
// Link fails when the target exists, so concurrent writers never clobber each other
// and readers never observe a partial file.
func (s *FileStore) writeIfAbsent(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			log.Debug().Str("path", path).Msg("Cache file already exists, keeping it")
			return nil
		}
		return err
	}

	return nil
}
