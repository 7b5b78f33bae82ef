package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStorage persists one JSON document per uuid under a per-type
// directory. Writes go through a temp file and rename, so a crash never
// leaves a half-written record. There are no cross-record transactions.
type FileStorage[T Entity] struct {
	dir  string
	newT func() T
}

// NewFileStorage creates a file-backed store rooted at dataDir/typeDir,
// creating the directory if needed.
func NewFileStorage[T Entity](dataDir, typeDir string, newT func() T) (*FileStorage[T], error) {
	dir := filepath.Join(dataDir, typeDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &FileStorage[T]{dir: dir, newT: newT}, nil
}

func (s *FileStorage[T]) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStorage[T]) write(item T) error {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal item %s: %w", item.EntityUUID(), err)
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(item.EntityUUID())); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (s *FileStorage[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return zero, nil
		}
		return zero, fmt.Errorf("read item %s: %w", id, err)
	}
	item := s.newT()
	if err := json.Unmarshal(data, item); err != nil {
		return zero, fmt.Errorf("decode item %s: %w", id, err)
	}
	return item, nil
}

func (s *FileStorage[T]) Create(ctx context.Context, item T) (string, error) {
	item.SetEntityUUID(uuid.NewString())
	if err := s.write(item); err != nil {
		return "", err
	}
	return item.EntityUUID(), nil
}

func (s *FileStorage[T]) Update(ctx context.Context, item T) (bool, error) {
	if _, err := os.Stat(s.path(item.EntityUUID())); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat item %s: %w", item.EntityUUID(), err)
	}
	if err := s.write(item); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStorage[T]) Delete(ctx context.Context, id string) (bool, error) {
	err := os.Remove(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete item %s: %w", id, err)
	}
	return true, nil
}

func (s *FileStorage[T]) ListAll(ctx context.Context) ([]T, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list storage dir %s: %w", s.dir, err)
	}
	items := make([]T, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue // deleted between ReadDir and ReadFile
			}
			return nil, fmt.Errorf("read item %s: %w", name, err)
		}
		item := s.newT()
		if err := json.Unmarshal(data, item); err != nil {
			return nil, fmt.Errorf("decode item %s: %w", name, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *FileStorage[T]) ListPaginated(ctx context.Context, limit int, cursor string) ([]T, string, error) {
	items, err := s.ListAll(ctx)
	if err != nil {
		return nil, "", err
	}
	page, next := paginateSlice(items, limit, cursor)
	return page, next, nil
}

var _ Storage[Entity] = (*FileStorage[Entity])(nil)
