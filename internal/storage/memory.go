package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStorage keeps items in a mutex-guarded map. Contents are lost on
// restart. Items are snapshotted on the way in and out so callers can mutate
// what they hold without leaking changes into the store.
type InMemoryStorage[T Entity] struct {
	mu    sync.Mutex
	items map[string]T
	newT  func() T
}

// NewInMemoryStorage creates an empty in-memory store. newT allocates a
// fresh zero item for deserialisation.
func NewInMemoryStorage[T Entity](newT func() T) *InMemoryStorage[T] {
	return &InMemoryStorage[T]{
		items: make(map[string]T),
		newT:  newT,
	}
}

func (s *InMemoryStorage[T]) snapshot(item T) (T, error) {
	data, err := json.Marshal(item)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("snapshot item: %w", err)
	}
	out := s.newT()
	if err := json.Unmarshal(data, out); err != nil {
		var zero T
		return zero, fmt.Errorf("snapshot item: %w", err)
	}
	return out, nil
}

func (s *InMemoryStorage[T]) Get(ctx context.Context, id string) (T, error) {
	s.mu.Lock()
	item, ok := s.items[id]
	s.mu.Unlock()
	if !ok {
		var zero T
		return zero, nil
	}
	return s.snapshot(item)
}

func (s *InMemoryStorage[T]) Create(ctx context.Context, item T) (string, error) {
	item.SetEntityUUID(uuid.NewString())
	stored, err := s.snapshot(item)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.items[item.EntityUUID()] = stored
	s.mu.Unlock()
	return item.EntityUUID(), nil
}

func (s *InMemoryStorage[T]) Update(ctx context.Context, item T) (bool, error) {
	stored, err := s.snapshot(item)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.EntityUUID()]; !ok {
		return false, nil
	}
	s.items[item.EntityUUID()] = stored
	return true, nil
}

func (s *InMemoryStorage[T]) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

func (s *InMemoryStorage[T]) ListAll(ctx context.Context) ([]T, error) {
	s.mu.Lock()
	items := make([]T, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	s.mu.Unlock()

	out := make([]T, 0, len(items))
	for _, item := range items {
		copied, err := s.snapshot(item)
		if err != nil {
			return nil, err
		}
		out = append(out, copied)
	}
	return out, nil
}

func (s *InMemoryStorage[T]) ListPaginated(ctx context.Context, limit int, cursor string) ([]T, string, error) {
	items, err := s.ListAll(ctx)
	if err != nil {
		return nil, "", err
	}
	page, next := paginateSlice(items, limit, cursor)
	return page, next, nil
}

var _ Storage[Entity] = (*InMemoryStorage[Entity])(nil)
