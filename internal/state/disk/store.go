// Package disk implements the state store on the local filesystem, one JSON
// file per record.
package disk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/IntelliTrade-io/IntelliTrade/internal/state"
)

// Store keeps records under a root directory. Writes go through a temp file
// and rename so a crash mid-write never leaves a torn record behind.
type Store struct {
	dir string
}

// New creates a disk-backed state store rooted at dir.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) recordPath(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("state key is required")
	}
	full := filepath.Join(s.dir, filepath.FromSlash(key)+".json")
	cleanBase := filepath.Clean(s.dir)
	cleanFull := filepath.Clean(full)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("state key %q escapes store root", key)
	}
	return cleanFull, nil
}

// Read unmarshals the record under key into v.
func (s *Store) Read(_ context.Context, key string, v any) error {
	path, err := s.recordPath(key)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return state.ErrNotFound
		}
		return fmt.Errorf("read state %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode state %s: %w", key, err)
	}
	return nil
}

// Write marshals v and atomically replaces the record under key.
func (s *Store) Write(_ context.Context, key string, v any) error {
	path, err := s.recordPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create state dir for %s: %w", key, err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*")
	if err != nil {
		return fmt.Errorf("create temp record for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp record for %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp record for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state %s: %w", key, err)
	}
	return nil
}

// Delete removes the record under key. Deleting an absent record is not an
// error.
func (s *Store) Delete(_ context.Context, key string) error {
	path, err := s.recordPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete state %s: %w", key, err)
	}
	return nil
}
