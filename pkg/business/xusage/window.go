package xusage

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// dayKey and monthKey identify fixed budget windows. Rollover is detected
// by comparing the cached key against the current one, never by clock
// arithmetic on the cached totals.
func dayKey(t time.Time) string   { return t.UTC().Format("2006-01-02") }
func monthKey(t time.Time) string { return t.UTC().Format("2006-01") }

// orgWindow holds one organization's current day and month totals.
type orgWindow struct {
	dayKey     string
	daySpend   float64
	monthKey   string
	monthSpend float64
}

// windowCache is the in-process rolling spend cache: fixed day/month
// windows per organization under single-writer (mutex) discipline, bounded
// by an LRU so a large tenant population cannot grow memory without limit.
type windowCache struct {
	mu   sync.Mutex
	orgs *lru.Cache[string, *orgWindow]
}

const defaultWindowCacheSize = 4096

func newWindowCache(size int) *windowCache {
	if size <= 0 {
		size = defaultWindowCacheSize
	}
	// lru.New only errors on size <= 0, which is guarded above.
	cache, _ := lru.New[string, *orgWindow](size)
	return &windowCache{orgs: cache}
}

// add merges cost into the organization's current windows, rolling them
// over first when the window keys have moved on.
func (c *windowCache) add(orgID string, cost float64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.windowLocked(orgID, now)
	w.daySpend += cost
	w.monthSpend += cost
}

// snapshot returns the current totals, applying rollover on read so a
// quiet organization does not report yesterday's spend.
func (c *windowCache) snapshot(orgID string, now time.Time) (daySpend, monthSpend float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.windowLocked(orgID, now)
	return w.daySpend, w.monthSpend
}

// seed replaces the organization's totals, used when warming the cache
// from a durable aggregate query.
func (c *windowCache) seed(orgID string, daySpend, monthSpend float64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.windowLocked(orgID, now)
	w.daySpend = daySpend
	w.monthSpend = monthSpend
}

// raise lifts the organization's totals to at least the given values,
// used when a shared counter reports spend this process has not seen.
// Totals never go down: the local window may hold spend whose counter
// update failed.
func (c *windowCache) raise(orgID string, daySpend, monthSpend float64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.windowLocked(orgID, now)
	if daySpend > w.daySpend {
		w.daySpend = daySpend
	}
	if monthSpend > w.monthSpend {
		w.monthSpend = monthSpend
	}
}

// known reports whether the organization has a live window for now,
// i.e. whether snapshot would return cached rather than zero data.
func (c *windowCache) known(orgID string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.orgs.Get(orgID)
	if !ok {
		return false
	}
	return w.dayKey == dayKey(now) || w.monthKey == monthKey(now)
}

func (c *windowCache) windowLocked(orgID string, now time.Time) *orgWindow {
	day, month := dayKey(now), monthKey(now)

	w, ok := c.orgs.Get(orgID)
	if !ok {
		w = &orgWindow{dayKey: day, monthKey: month}
		c.orgs.Add(orgID, w)
		return w
	}
	if w.dayKey != day {
		w.dayKey = day
		w.daySpend = 0
	}
	if w.monthKey != month {
		w.monthKey = month
		w.monthSpend = 0
	}
	return w
}
