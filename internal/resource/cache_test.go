package resource

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeResource struct {
	id       int
	closed   atomic.Bool
	closeErr error
}

func (r *fakeResource) Close() error {
	r.closed.Store(true)
	return r.closeErr
}

func TestCache_GetOrCreate_Idempotent(t *testing.T) {
	cache := NewCache[*fakeResource]()

	var calls int32
	factory := func() (*fakeResource, error) {
		return &fakeResource{id: int(atomic.AddInt32(&calls, 1))}, nil
	}

	first, err := cache.GetOrCreate("en-es", factory)
	require.NoError(t, err)
	second, err := cache.GetOrCreate("en-es", factory)
	require.NoError(t, err)

	require.Same(t, first, second)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.Equal(t, 1, cache.Size())
}

func TestCache_GetOrCreate_ConcurrentSingleConstruction(t *testing.T) {
	cache := NewCache[*fakeResource]()

	var calls int32
	factory := func() (*fakeResource, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return &fakeResource{}, nil
	}

	const workers = 10
	results := make([]*fakeResource, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := cache.GetOrCreate("shared", factory)
			require.NoError(t, err)
			results[i] = r
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, r := range results {
		require.Same(t, results[0], r)
	}
}

func TestCache_GetOrCreate_FailedConstructionRetries(t *testing.T) {
	cache := NewCache[*fakeResource]()

	var calls int32
	factory := func() (*fakeResource, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, fmt.Errorf("backend not ready")
		}
		return &fakeResource{}, nil
	}

	_, err := cache.GetOrCreate("k", factory)
	require.Error(t, err)
	require.Equal(t, 0, cache.Size())

	r, err := cache.GetOrCreate("k", factory)
	require.NoError(t, err)
	require.NotNil(t, r)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestCache_Cleanup_ClosesAllAndIsIdempotent(t *testing.T) {
	cache := NewCache[*fakeResource]()

	bad := &fakeResource{closeErr: fmt.Errorf("close failed")}
	good := &fakeResource{}
	_, err := cache.GetOrCreate("bad", func() (*fakeResource, error) { return bad, nil })
	require.NoError(t, err)
	_, err = cache.GetOrCreate("good", func() (*fakeResource, error) { return good, nil })
	require.NoError(t, err)

	cache.Cleanup()

	// A close failure on one resource must not prevent closing the rest.
	require.True(t, bad.closed.Load())
	require.True(t, good.closed.Load())
	require.Equal(t, 0, cache.Size())

	cache.Cleanup() // safe on empty cache
	require.Equal(t, 0, cache.Size())
}

func TestCache_Evict_MatchesKeys(t *testing.T) {
	cache := NewCache[*fakeResource]()

	resources := make(map[string]*fakeResource)
	for _, key := range []string{"en-es", "es-en", "fr-de"} {
		r := &fakeResource{}
		resources[key] = r
		_, err := cache.GetOrCreate(key, func() (*fakeResource, error) { return r, nil })
		require.NoError(t, err)
	}

	evicted := cache.Evict(func(key string) bool { return key == "en-es" || key == "es-en" })

	require.Equal(t, 2, evicted)
	require.True(t, resources["en-es"].closed.Load())
	require.True(t, resources["es-en"].closed.Load())
	require.False(t, resources["fr-de"].closed.Load())
	require.Equal(t, 1, cache.Size())
}
