package ingest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeCache_ConcurrentResolveLooksUpOnce(t *testing.T) {
	s := newFakeStore()
	s.fileTypes["DST/1"] = 3
	cache := NewTypeCache()

	var wg sync.WaitGroup
	ids := make([]int64, 32)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := cache.Resolve(context.Background(), s, "DST", "1")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, int64(3), id)
	}
	assert.Equal(t, 1, s.count("ResolveFileTypeID"))
}

func TestTypeCache_FailuresAreNotCached(t *testing.T) {
	s := newFakeStore()
	cache := NewTypeCache()
	ctx := context.Background()

	_, err := cache.Resolve(ctx, s, "DST", "1")
	require.Error(t, err)
	assert.Zero(t, cache.Len())

	s.fileTypes["DST/1"] = 3
	id, err := cache.Resolve(ctx, s, "DST", "1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	assert.Equal(t, 2, s.count("ResolveFileTypeID"))
}

func TestTypeCache_KeysByNameAndVersion(t *testing.T) {
	s := newFakeStore()
	s.fileTypes["DST/1"] = 3
	s.fileTypes["DST/2"] = 4
	cache := NewTypeCache()
	ctx := context.Background()

	v1, err := cache.Resolve(ctx, s, "DST", "1")
	require.NoError(t, err)
	v2, err := cache.Resolve(ctx, s, "DST", "2")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, "DST<<1", typeKey("DST", "1"))
}
