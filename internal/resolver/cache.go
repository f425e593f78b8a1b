package resolver

import (
	"context"
	"net/netip"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxEntries bounds a Cache built with a non-positive limit.
const DefaultMaxEntries = 1000

// sharedLookupTimeout bounds an upstream query once it no longer follows the
// context of the caller that started it.
const sharedLookupTimeout = 30 * time.Second

// Cache remembers answers from another Resolver for a fixed TTL. Concurrent
// lookups of the same uncached name share one upstream query. Errors are not
// cached.
type Cache struct {
	r   Resolver
	max int
	c   *cache.Cache
	sf  singleflight.Group
}

// NewCache wraps r. A ttl of 0 keeps entries until Invalidate or eviction.
// At most maxEntries names are held; when full, expired entries are dropped
// and, if that is not enough, the whole cache is flushed.
func NewCache(r Resolver, ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	cleanup := 2 * ttl
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	}
	return &Cache{r: r, max: maxEntries, c: cache.New(ttl, cleanup)}
}

func (c *Cache) LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error) {
	if v, ok := c.c.Get(host); ok {
		return clone(v.([]netip.Addr)), nil
	}

	ch := c.sf.DoChan(host, func() (any, error) {
		// The query is shared by every caller waiting on host, so it must
		// outlive whichever one started it.
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLookupTimeout)
		defer cancel()
		addrs, err := c.r.LookupNetIP(lctx, host)
		if err != nil {
			return nil, err
		}
		c.store(host, addrs)
		return addrs, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]netip.Addr)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops host so the next lookup goes upstream.
func (c *Cache) Invalidate(host string) {
	c.c.Delete(host)
}

// Len returns the number of cached names, including expired ones not yet
// cleaned up.
func (c *Cache) Len() int {
	return c.c.ItemCount()
}

func (c *Cache) store(host string, addrs []netip.Addr) {
	if len(addrs) == 0 {
		return
	}
	if c.c.ItemCount() >= c.max {
		c.c.DeleteExpired()
		if c.c.ItemCount() >= c.max {
			c.c.Flush()
		}
	}
	c.c.Set(host, clone(addrs), cache.DefaultExpiration)
}

func clone(addrs []netip.Addr) []netip.Addr {
	return append([]netip.Addr(nil), addrs...)
}
