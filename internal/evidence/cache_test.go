package evidence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_MissThenHit(t *testing.T) {
	c := NewCache(time.Hour)

	var calls int32
	compute := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "result", nil
	}

	v, fromCache, err := c.GetOrCompute(context.Background(), "fp-1", compute)
	require.NoError(t, err)
	assert.Equal(t, "result", v)
	assert.False(t, fromCache)

	v, fromCache, err = c.GetOrCompute(context.Background(), "fp-1", compute)
	require.NoError(t, err)
	assert.Equal(t, "result", v)
	assert.True(t, fromCache)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c := NewCache(time.Hour)

	var calls int32
	_, _, err := c.GetOrCompute(context.Background(), "fp-2", func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("upstream down")
	})
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())

	v, fromCache, err := c.GetOrCompute(context.Background(), "fp-2", func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.False(t, fromCache)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCache_ConcurrentMissesCollapse(t *testing.T) {
	c := NewCache(time.Hour)

	var calls int32
	release := make(chan struct{})
	compute := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	const workers = 10
	results := make([]bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, fromCache, err := c.GetOrCompute(context.Background(), "fp-3", compute)
			require.NoError(t, err)
			assert.Equal(t, "shared", v)
			results[i] = fromCache
		}(i)
	}

	// Let all goroutines pile onto the flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "only one computation for concurrent misses")

	misses := 0
	for _, fromCache := range results {
		if !fromCache {
			misses++
		}
	}
	assert.Equal(t, 1, misses, "exactly one caller observes the computation")
}

func TestCache_DistinctKeysComputeIndependently(t *testing.T) {
	c := NewCache(time.Hour)

	for _, key := range []string{"a", "b", "c"} {
		key := key
		v, fromCache, err := c.GetOrCompute(context.Background(), key, func(ctx context.Context) (interface{}, error) {
			return key + "-value", nil
		})
		require.NoError(t, err)
		assert.False(t, fromCache)
		assert.Equal(t, key+"-value", v)
	}
	assert.Equal(t, 3, c.Len())

	c.Invalidate("b")
	assert.Equal(t, 2, c.Len())
}
