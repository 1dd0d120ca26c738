package zippopotam

import (
	"container/list"
	"context"
	"strings"
	"sync"

	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
	"github.com/couchcryptid/hazard-advisory-service/internal/observability"
)

// PostalLookup is the geocoding contract shared by Client and CachedGeocoder.
type PostalLookup interface {
	LookupPostalCode(ctx context.Context, code string) (domain.Location, error)
}

// CachedGeocoder wraps a PostalLookup with a bounded LRU cache. Postal code
// coordinates are static, so successful lookups are kept until evicted.
// Failures are never cached.
type CachedGeocoder struct {
	inner   PostalLookup
	metrics *observability.Metrics

	mu         sync.Mutex
	maxEntries int
	order      *list.List // front = most recently used
	entries    map[string]*list.Element
}

type cacheEntry struct {
	code string
	loc  domain.Location
}

// NewCachedGeocoder creates a cache decorator holding at most maxEntries codes.
func NewCachedGeocoder(inner PostalLookup, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:      inner,
		metrics:    metrics,
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *CachedGeocoder) LookupPostalCode(ctx context.Context, code string) (domain.Location, error) {
	key := strings.ToUpper(strings.TrimSpace(code))

	if loc, ok := c.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return loc, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	loc, err := c.inner.LookupPostalCode(ctx, code)
	if err != nil {
		return loc, err
	}
	c.put(key, loc)
	return loc, nil
}

// Len reports the number of cached codes.
func (c *CachedGeocoder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *CachedGeocoder) get(key string) (domain.Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return domain.Location{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).loc, true
}

func (c *CachedGeocoder) put(key string, loc domain.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).loc = loc
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{code: key, loc: loc})

	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).code)
	}
}
