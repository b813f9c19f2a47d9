package kgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("entity not found")

// ErrLocked indicates another process holds the store's writer lock.
var ErrLocked = errors.New("knowledge store is locked by another process")

// FSStore persists one JSON document per entity under a root directory.
// Paths are slash-separated relative identifiers ("customers/strategic/acme")
// mapped to <root>/<path>.json. A flock guards against concurrent writers;
// the pipeline assumes a single active writer per store.
type FSStore struct {
	root string
	lock *flock.Flock
}

// Open prepares a filesystem store rooted at dir and acquires the writer lock.
func Open(dir string) (*FSStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("store root is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}

	lock := flock.New(filepath.Join(dir, ".reckon.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return &FSStore{root: dir, lock: lock}, nil
}

// Close releases the writer lock.
func (s *FSStore) Close() error {
	if s == nil || s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}

// Root returns the store root directory.
func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) filePath(entityPath string) (string, error) {
	cleaned := filepath.Clean(strings.Trim(strings.TrimSpace(entityPath), "/"))
	if cleaned == "" || cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("invalid entity path %q", entityPath)
	}
	return filepath.Join(s.root, cleaned+".json"), nil
}

// ReadEntity loads the document at path. Returns ErrNotFound when absent.
func (s *FSStore) ReadEntity(ctx context.Context, path string) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return Fields{}, err
	}
	file, err := s.filePath(path)
	if err != nil {
		return Fields{}, err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Fields{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Fields{}, fmt.Errorf("read entity %s: %w", path, err)
	}
	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return Fields{}, fmt.Errorf("decode entity %s: %w", path, err)
	}
	return fields, nil
}

// WriteEntity persists the document at path atomically (temp file + rename).
func (s *FSStore) WriteEntity(ctx context.Context, path string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := s.filePath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("create entity directory: %w", err)
	}

	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return fmt.Errorf("encode entity %s: %w", path, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(file), ".entity-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write entity %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, file); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace entity %s: %w", path, err)
	}
	return nil
}

// ListEntities returns the entity paths under prefix ("" for all), sorted.
func (s *FSStore) ListEntities(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := s.root
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" {
		start = filepath.Join(s.root, filepath.Clean(prefix))
	}

	var paths []string
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(strings.TrimSuffix(rel, ".json")))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Exists reports whether an entity document exists at path.
func (s *FSStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	file, err := s.filePath(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat entity %s: %w", path, err)
	}
	return true, nil
}
