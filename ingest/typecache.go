package ingest

import (
	"context"
	"sync"
)

// FileTypeResolver resolves a file type name and version to its id
type FileTypeResolver interface {
	ResolveFileTypeID(ctx context.Context, typeName, typeVersion string) (int64, error)
}

// TypeCache memoizes file type ids for the lifetime of one manager.
// Entries are never invalidated. Safe for concurrent use; the lock is held
// across a miss so concurrent callers for the same key issue one lookup.
type TypeCache struct {
	mu  sync.Mutex
	ids map[string]int64
}

// NewTypeCache creates an empty cache
func NewTypeCache() *TypeCache {
	return &TypeCache{ids: make(map[string]int64)}
}

func typeKey(typeName, typeVersion string) string {
	return typeName + "<<" + typeVersion
}

// Resolve returns the cached id or asks r and caches a successful answer.
// Failed lookups are not cached.
func (c *TypeCache) Resolve(ctx context.Context, r FileTypeResolver, typeName, typeVersion string) (int64, error) {
	key := typeKey(typeName, typeVersion)

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.ids[key]; ok {
		return id, nil
	}
	id, err := r.ResolveFileTypeID(ctx, typeName, typeVersion)
	if err != nil {
		return 0, err
	}
	c.ids[key] = id
	return id, nil
}

// Len returns the number of cached types
func (c *TypeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}
