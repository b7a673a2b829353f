package blockmap

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
	"github.com/KnightKu/kvdo/internal/waiter"
)

// PageState is a cached tree page's slot state (spec §4.4, §3
// "Lifecycles").
type PageState uint8

const (
	StateAbsent PageState = iota
	StateIncoming
	StateResident
	StateDirty
	StateOutgoing
)

// CacheEntry is one tree page's cache bookkeeping: its current state, the
// era it was last dirtied in, and the waiters blocked on it loading.
type CacheEntry struct {
	PBN     types.PBN
	State   PageState
	Era     uint64
	Page    *Page
	Waiters waiter.Queue
}

// PageCache is the bounded, per-logical-zone cache of resident tree pages
// (spec §4.4). Clean resident pages live in a bounded LRU and may be
// evicted and reloaded cheaply; pages that are loading, dirty, or being
// written back are tracked outside the LRU since they must never be
// silently dropped.
type PageCache struct {
	capacity int
	clean    *lru.Cache[types.PBN, *CacheEntry]
	other    map[types.PBN]*CacheEntry

	activeEra      uint64
	maximumAge     uint64
	dirtyByEra     map[uint64]map[types.PBN]*CacheEntry
}

// NewPageCache creates a cache holding up to capacity clean resident
// pages. The era advances by one on each AdvanceEra call; maximumAge is how
// many eras a dirty page may age before AdvanceEra reports it due for
// writeback.
func NewPageCache(capacity int, maximumAge uint64) (*PageCache, error) {
	clean, err := lru.New[types.PBN, *CacheEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("blockmap: page cache: %w", err)
	}
	return &PageCache{
		capacity:   capacity,
		clean:      clean,
		other:      make(map[types.PBN]*CacheEntry),
		maximumAge: maximumAge,
		dirtyByEra: make(map[uint64]map[types.PBN]*CacheEntry),
	}, nil
}

// Lookup returns the cache entry for pbn, wherever it currently lives.
func (c *PageCache) Lookup(pbn types.PBN) (*CacheEntry, bool) {
	if e, ok := c.other[pbn]; ok {
		return e, true
	}
	if e, ok := c.clean.Get(pbn); ok {
		return e, true
	}
	return nil, false
}

// BeginLoad transitions an absent page to incoming and returns its cache
// entry so the caller can enqueue onto e.Waiters while the load is in
// flight. It returns started=false if the page is already present in any
// state, in which case the caller should enqueue on the existing entry
// instead of starting a new load.
func (c *PageCache) BeginLoad(pbn types.PBN) (entry *CacheEntry, started bool) {
	if e, ok := c.Lookup(pbn); ok {
		return e, false
	}
	e := &CacheEntry{PBN: pbn, State: StateIncoming}
	c.other[pbn] = e
	return e, true
}

// CompleteLoad transitions an incoming page to resident-clean, attaches
// the loaded page contents, and returns the waiters to notify. The entry
// moves into the bounded clean LRU, which may evict another clean entry
// to make room; the evicted entry is simply dropped (it is clean by
// construction, so nothing is lost — it will be reloaded on next access).
func (c *PageCache) CompleteLoad(pbn types.PBN, page *Page) ([]*waiter.Waiter, error) {
	e, ok := c.other[pbn]
	if !ok || e.State != StateIncoming {
		return nil, fmt.Errorf("blockmap: page %d is not incoming: %w", pbn, vdoerr.ErrBadState)
	}
	delete(c.other, pbn)
	e.State = StateResident
	e.Page = page
	c.clean.Add(pbn, e)

	var notified []*waiter.Waiter
	for {
		w := e.Waiters.DequeueNext()
		if w == nil {
			break
		}
		notified = append(notified, w)
	}
	return notified, nil
}

// MarkDirty transitions a resident-clean page to dirty, tagging it with
// the cache's current era, and moves it out of the bounded LRU so it
// cannot be silently evicted before it is written back.
func (c *PageCache) MarkDirty(pbn types.PBN) error {
	e, ok := c.clean.Peek(pbn)
	if !ok {
		if existing, exists := c.other[pbn]; exists && existing.State == StateDirty {
			return nil // already dirty, idempotent
		}
		return fmt.Errorf("blockmap: page %d is not resident: %w", pbn, vdoerr.ErrBadState)
	}
	c.clean.Remove(pbn)
	e.State = StateDirty
	e.Era = c.activeEra
	c.other[pbn] = e
	if c.dirtyByEra[e.Era] == nil {
		c.dirtyByEra[e.Era] = make(map[types.PBN]*CacheEntry)
	}
	c.dirtyByEra[e.Era][pbn] = e
	return nil
}

// AdvanceEra moves the cache's active era forward by one and, if the new
// era has pushed any dirty page's era past maximumAge, returns the PBNs of
// pages that must now be enqueued for writeback (spec §4.4: "this bounds
// the recovery-journal head advance").
func (c *PageCache) AdvanceEra() []types.PBN {
	c.activeEra++
	if c.activeEra < c.maximumAge {
		return nil
	}
	cutoff := c.activeEra - c.maximumAge
	var due []types.PBN
	for era, pages := range c.dirtyByEra {
		if era > cutoff {
			continue
		}
		for pbn := range pages {
			due = append(due, pbn)
		}
		delete(c.dirtyByEra, era)
	}
	return due
}

// BeginWriteback transitions a dirty page to outgoing.
func (c *PageCache) BeginWriteback(pbn types.PBN) error {
	e, ok := c.other[pbn]
	if !ok || e.State != StateDirty {
		return fmt.Errorf("blockmap: page %d is not dirty: %w", pbn, vdoerr.ErrBadState)
	}
	e.State = StateOutgoing
	return nil
}

// CompleteWriteback transitions an outgoing page back to resident-clean
// once its write has landed, returning it to the bounded LRU.
func (c *PageCache) CompleteWriteback(pbn types.PBN) error {
	e, ok := c.other[pbn]
	if !ok || e.State != StateOutgoing {
		return fmt.Errorf("blockmap: page %d is not outgoing: %w", pbn, vdoerr.ErrBadState)
	}
	delete(c.other, pbn)
	e.State = StateResident
	c.clean.Add(pbn, e)
	return nil
}

// ActiveEra returns the cache's current era counter.
func (c *PageCache) ActiveEra() uint64 { return c.activeEra }
