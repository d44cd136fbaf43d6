package db

import (
	"sync"
	"time"
)

// Cache is the in-process keyed store of rows for one table. It never
// populates itself: entries arrive only through Push/SetAll after a
// successful fetch, and through the table's notification handlers. Entries
// whose expiry predicate is true at query time are treated as absent and
// opportunistically evicted. Iteration is oldest-insertion-first:
// overwriting an entry keeps its position, re-keying moves it to the end.
//
// The cache must stay correct under interleaved operations from concurrent
// goroutines; a single mutex guards the entries and the expiry sweep.
type Cache[T Row] struct {
	mu      sync.Mutex
	entries map[string]T
	order   []string
}

// NewCache creates an empty cache.
func NewCache[T Row]() *Cache[T] {
	return &Cache[T]{entries: map[string]T{}}
}

// Size returns the number of entries, including not-yet-swept expired ones.
func (c *Cache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// drop removes the given ids from the entries and the insertion order.
// Caller holds the mutex.
func (c *Cache[T]) drop(ids map[string]bool) {
	if len(ids) == 0 {
		return
	}
	kept := c.order[:0]
	for _, id := range c.order {
		if ids[id] {
			delete(c.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
}

// Values returns all live entries in insertion order.
func (c *Cache[T]) Values() []T {
	return c.Get(nil)
}

// Get returns all live entries matching the selector, in insertion order. A
// nil selector matches everything; a string selects by derived id; a
// RowData partially matches column values; a Row matches by identity.
func (c *Cache[T]) Get(selector any) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	var out []T
	var expired map[string]bool
	for _, id := range c.order {
		row := c.entries[id]
		if row.CacheExpired(now) {
			if expired == nil {
				expired = map[string]bool{}
			}
			expired[id] = true
			continue
		}
		if matches(row, id, selector) {
			out = append(out, row)
		}
	}
	c.drop(expired)
	return out
}

// Find returns the oldest live entry matching the selector.
func (c *Cache[T]) Find(selector any) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	var expired map[string]bool
	for _, id := range c.order {
		row := c.entries[id]
		if row.CacheExpired(now) {
			if expired == nil {
				expired = map[string]bool{}
			}
			expired[id] = true
			continue
		}
		if matches(row, id, selector) {
			c.drop(expired)
			return row, true
		}
	}
	c.drop(expired)
	return zero, false
}

// Push inserts or overwrites the entry under its derived id. Rows whose id
// cannot be derived (partial rows) are not cached; Push reports whether the
// row was stored.
func (c *Cache[T]) Push(row T) bool {
	id := row.ID()
	if id == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; !ok {
		c.order = append(c.order, id)
	}
	c.entries[id] = row
	return true
}

// Update applies the patch to every matching entry in place. Entries whose
// derived id changes are re-keyed. Applying the same patch twice leaves the
// cache in the same state as applying it once.
func (c *Cache[T]) Update(selector any, data RowData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range append([]string(nil), c.order...) {
		row, ok := c.entries[id]
		if !ok || !matches(row, id, selector) {
			continue
		}
		row.Update(data)
		newID := row.ID()
		if newID == id {
			continue
		}
		c.drop(map[string]bool{id: true})
		if newID != "" {
			if _, exists := c.entries[newID]; !exists {
				c.order = append(c.order, newID)
			}
			c.entries[newID] = row
		}
	}
}

// FilterOut removes and returns all matching entries, expired ones
// included. Used for deletes and for rollback compensation.
func (c *Cache[T]) FilterOut(selector any) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []T
	var removed map[string]bool
	for _, id := range c.order {
		row := c.entries[id]
		if matches(row, id, selector) {
			if removed == nil {
				removed = map[string]bool{}
			}
			removed[id] = true
			out = append(out, row)
		}
	}
	c.drop(removed)
	return out
}

// Remove evicts the entry with the given derived id.
func (c *Cache[T]) Remove(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.entries[id]
	if ok {
		c.drop(map[string]bool{id: true})
	}
	return row, ok
}

// SetAll wholesale-replaces the cache contents. Only an unfiltered
// fetch-all may use this, since only then is the result known to be the
// complete set.
func (c *Cache[T]) SetAll(rows []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]T, len(rows))
	c.order = make([]string, 0, len(rows))
	for _, row := range rows {
		id := row.ID()
		if id == "" {
			continue
		}
		if _, ok := c.entries[id]; !ok {
			c.order = append(c.order, id)
		}
		c.entries[id] = row
	}
}

func matches[T Row](row T, id string, selector any) bool {
	switch sel := selector.(type) {
	case nil:
		return true
	case string:
		return id == sel
	case RowData:
		return valuesMatch(sel, row.SQLData())
	case map[string]any:
		return valuesMatch(RowData(sel), row.SQLData())
	case Row:
		if selID := sel.ID(); selID != "" {
			return id == selID
		}
		return valuesMatch(sel.ToSelector(), row.SQLData())
	default:
		return false
	}
}
