package pbnlock

import (
	"fmt"

	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// Pool is a fixed-capacity set of Lock slots, sized at construction to the
// maximum concurrent data-vios plus compressed-write slack (spec §4.2).
// Borrow never allocates past capacity; it fails fast so the caller can
// enqueue itself as a waiter instead.
type Pool struct {
	locks     []Lock
	freeList  []int32
	byPBN     map[types.PBN]int32
}

// NewPool allocates a pool with room for capacity concurrently-held locks.
func NewPool(capacity int) *Pool {
	p := &Pool{
		locks:    make([]Lock, capacity),
		freeList: make([]int32, capacity),
		byPBN:    make(map[types.PBN]int32, capacity),
	}
	for i := range p.freeList {
		p.freeList[i] = int32(capacity - 1 - i)
	}
	return p
}

// Capacity returns the total number of lock slots in the pool.
func (p *Pool) Capacity() int { return len(p.locks) }

// Available returns the number of slots not currently borrowed.
func (p *Pool) Available() int { return len(p.freeList) }

// Borrow returns the existing lock for pbn if one is already held, else
// draws a fresh slot from the free list and initializes it. It fails with
// vdoerr.ErrPoolEmpty when the pool has no free slots and pbn is not
// already locked.
func (p *Pool) Borrow(pbn types.PBN, t LockType, incrementLimit int) (*Lock, bool, error) {
	if idx, ok := p.byPBN[pbn]; ok {
		return &p.locks[idx], false, nil
	}
	if len(p.freeList) == 0 {
		return nil, false, fmt.Errorf("pbnlock: borrow pbn %d: %w", pbn, vdoerr.ErrPoolEmpty)
	}
	idx := p.freeList[len(p.freeList)-1]
	p.freeList = p.freeList[:len(p.freeList)-1]
	lock := &p.locks[idx]
	lock.Initialize(pbn, t, incrementLimit)
	p.byPBN[pbn] = idx
	return lock, true, nil
}

// Lookup returns the lock currently held for pbn, if any.
func (p *Pool) Lookup(pbn types.PBN) (*Lock, bool) {
	idx, ok := p.byPBN[pbn]
	if !ok {
		return nil, false
	}
	return &p.locks[idx], true
}

// Return releases the lock for pbn back to the free list. It is a no-op if
// no lock is held for pbn. The caller must have already drained the lock's
// waiter queue and released any provisional reference.
func (p *Pool) Return(pbn types.PBN) {
	idx, ok := p.byPBN[pbn]
	if !ok {
		return
	}
	delete(p.byPBN, pbn)
	p.locks[idx].reset()
	p.freeList = append(p.freeList, idx)
}
