package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileCache persists a metadata Map as JSON, keyed by a per-product
// file key. Token addresses are the JSON object keys.
type FileCache struct {
	dir string
	key string
}

// NewFileCache creates a cache rooted at dir for the given file key.
func NewFileCache(dir, key string) *FileCache {
	return &FileCache{dir: dir, key: key}
}

// Path returns the cache file location.
func (c *FileCache) Path() string {
	return filepath.Join(c.dir, c.key+".json")
}

// Load reads the cached map. The second return is false when no cache
// file exists yet.
func (c *FileCache) Load() (Map, bool, error) {
	data, err := os.ReadFile(c.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read metadata cache: %w", err)
	}

	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("decode metadata cache %s: %w", c.Path(), err)
	}
	return m, true, nil
}

// Store writes the map, creating the cache directory if needed.
func (c *FileCache) Store(m Map) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata cache: %w", err)
	}

	if err := os.WriteFile(c.Path(), data, 0o644); err != nil {
		return fmt.Errorf("write metadata cache: %w", err)
	}
	return nil
}
