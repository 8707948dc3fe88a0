package assembler

import (
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// ValidateFunc decides whether a name is resolvable. An error means the
// declaration is broken; such results are never cached.
type ValidateFunc func(name string) (bool, error)

// ResolutionCache memoizes resolvability per logical name for the lifetime of
// its owner. Concurrent first lookups of a name validate once.
type ResolutionCache struct {
	entries  *cache.Cache
	group    singleflight.Group
	validate ValidateFunc
}

// NewResolutionCache creates an empty cache around validate.
func NewResolutionCache(validate ValidateFunc) *ResolutionCache {
	return &ResolutionCache{
		entries:  cache.New(cache.NoExpiration, 0),
		validate: validate,
	}
}

// IsResolvable returns the cached answer for name, validating on a miss.
func (c *ResolutionCache) IsResolvable(name string) (bool, error) {
	ok, _, err := c.lookup(name)
	return ok, err
}

// lookup also reports whether the answer came from the cache.
func (c *ResolutionCache) lookup(name string) (ok bool, hit bool, err error) {
	if v, found := c.entries.Get(name); found {
		return v.(bool), true, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		if v, found := c.entries.Get(name); found {
			return v, nil
		}
		ok, err := c.validate(name)
		if err != nil {
			return false, err
		}
		c.entries.Set(name, ok, cache.NoExpiration)
		return ok, nil
	})
	if err != nil {
		return false, false, err
	}
	return v.(bool), false, nil
}

// Len returns the number of cached answers.
func (c *ResolutionCache) Len() int {
	return c.entries.ItemCount()
}
