package eta

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/smartcabb-dispatch/internal/geo"
	"github.com/example/smartcabb-dispatch/internal/models"
)

// Client is the interface used when quoting a ride to get a routed
// duration. The naive estimator below is the fallback.
type Client interface {
	EstimateSeconds(from, to models.Location) (float64, error)
}

// Cache is a tiny in-memory cache for duration lookups keyed by
// coordinate pair.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  float64
	ts time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Location) string {
	return fmtLoc(a) + "->" + fmtLoc(b)
}

func fmtLoc(l models.Location) string {
	return fmt.Sprintf("%.6f,%.6f", l.Lat, l.Lng)
}

func (c *Cache) Get(a, b models.Location) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

func (c *Cache) Set(a, b models.Location, v float64) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// EstimateSeconds is the naive duration estimate: straight-line
// distance over an average city speed. Used whenever no routing
// backend is configured or it fails.
func EstimateSeconds(from, to models.Location, speedMps float64) float64 {
	if speedMps <= 0 {
		speedMps = 8.0 // ~28.8 km/h default city speed
	}
	return geo.DistanceKm(from, to) * 1000 / speedMps
}

// Fare quotes a price from the distance: base plus a per-kilometre
// rate. Quoting only; nothing here charges anyone.
func Fare(distanceKm, base, perKm float64) float64 {
	return base + perKm*distanceKm
}
