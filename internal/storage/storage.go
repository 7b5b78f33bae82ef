// Package storage provides a uniform persistence contract for workflow
// definitions and runs, with swappable in-memory, file, and Postgres
// backends. Absence is surfaced as a nil result, never as an error; errors
// always mean the backend itself failed.
package storage

import (
	"context"
	"sort"
)

// Entity is anything the storage layer can persist. The uuid is the primary
// key and is assigned by Create.
type Entity interface {
	EntityUUID() string
	SetEntityUUID(uuid string)
}

// Storage is the uniform contract all backends satisfy. Update replaces the
// whole record; there are no partial updates.
type Storage[T Entity] interface {
	// Get returns the item with the given uuid, or nil if absent.
	Get(ctx context.Context, uuid string) (T, error)
	// Create assigns a fresh uuid, persists the item, and returns the uuid.
	Create(ctx context.Context, item T) (string, error)
	// Update replaces the item with a matching uuid. Returns false if absent.
	Update(ctx context.Context, item T) (bool, error)
	// Delete removes the item. Returns false if absent.
	Delete(ctx context.Context, uuid string) (bool, error)
	// ListAll returns every item. May be expensive; prefer ListPaginated.
	ListAll(ctx context.Context) ([]T, error)
	// ListPaginated returns up to limit items with uuid > cursor, ordered
	// ascending by uuid. The next cursor is the last returned uuid, and is
	// empty when no further items remain.
	ListPaginated(ctx context.Context, limit int, cursor string) ([]T, string, error)
}

// paginateSlice implements cursor pagination over an unordered snapshot, for
// backends without an indexed ordering. Items are sorted ascending by uuid
// and sliced past the cursor, so concatenating pages yields every item
// exactly once.
func paginateSlice[T Entity](items []T, limit int, cursor string) ([]T, string) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].EntityUUID() < items[j].EntityUUID()
	})
	start := 0
	if cursor != "" {
		start = sort.Search(len(items), func(i int) bool {
			return items[i].EntityUUID() > cursor
		})
	}
	rest := items[start:]
	if limit < 0 {
		limit = 0
	}
	if len(rest) <= limit {
		return rest, ""
	}
	page := rest[:limit]
	return page, page[len(page)-1].EntityUUID()
}
