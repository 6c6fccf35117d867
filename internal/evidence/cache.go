package evidence

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Cache stores stage results keyed by fingerprint so identical queries can
// skip repeated collaborator calls. Concurrent misses for the same key are
// collapsed into a single computation; the losers receive the winner's
// result and report a cache hit.
type Cache struct {
	store *gocache.Cache
	group singleflight.Group
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		store: gocache.New(ttl, 10*time.Minute),
	}
}

// GetOrCompute returns the cached value for key, computing and storing it
// via fn on a miss. The second return value reports whether the value came
// from the cache (or from a concurrent caller's in-flight computation).
// Errors are never cached.
func (c *Cache) GetOrCompute(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (interface{}, bool, error) {
	if v, found := c.store.Get(key); found {
		return v, true, nil
	}

	// The computed flag distinguishes the caller that ran fn from the ones
	// that joined its flight; singleflight's shared flag is true for both.
	var computed bool
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: another goroutine may have stored
		// the value between our miss and the Do call.
		if v, found := c.store.Get(key); found {
			return v, nil
		}
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		computed = true
		c.store.SetDefault(key, v)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, !computed, nil
}

// Invalidate drops a single key.
func (c *Cache) Invalidate(key string) {
	c.store.Delete(key)
}

// Len reports how many entries are currently cached.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}
