// Package pbnlock implements per-physical-block locks and a fixed-capacity
// pool they are drawn from (spec §4.2). A lock is owned for the lifetime of
// a data-vio's reference on a PBN; the pool never grows past its initial
// capacity, matching spec §9's "free-lists overlaid with live objects"
// guidance: locks live in a typed, index-based pool rather than memory
// punned with a free-list node.
package pbnlock

import (
	"fmt"
	"sync/atomic"

	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
	"github.com/KnightKu/kvdo/internal/waiter"
)

// LockType is the kind of access a PBN lock grants.
type LockType uint8

const (
	LockRead LockType = iota
	LockWrite
	LockCompressedWrite
	LockBlockMapWrite
)

func (t LockType) String() string {
	switch t {
	case LockRead:
		return "read"
	case LockWrite:
		return "write"
	case LockCompressedWrite:
		return "compressed-write"
	case LockBlockMapWrite:
		return "block-map-write"
	default:
		return "invalid"
	}
}

// isWriteType reports whether the type excludes concurrent holders of any
// other write-type lock on the same PBN (invariant 2, spec §3).
func (t LockType) isWriteType() bool {
	return t != LockRead
}

// Lock is a per-physical-block lock. A read lock may be shared by several
// data-vios claiming increments against a single reference-count bump; a
// write, compressed-write, or block-map-write lock is exclusive.
type Lock struct {
	inUse                bool
	lockType             LockType
	holderCount          int
	provisionalReference bool

	// incrementLimit is the number of reference increments known
	// available at acquisition time; only meaningful for read locks.
	incrementLimit int
	// incrementsClaimed is atomic because several data-vios sharing one
	// read lock may race to claim an increment from different zones'
	// continuations.
	incrementsClaimed atomic.Int32

	waiters waiter.Queue
	pbn     types.PBN
}

// Initialize resets and activates a pool-owned lock for pbn with the given
// type and increment limit (ignored for non-read locks).
func (l *Lock) Initialize(pbn types.PBN, t LockType, incrementLimit int) {
	l.inUse = true
	l.pbn = pbn
	l.lockType = t
	l.holderCount = 0
	l.provisionalReference = false
	l.incrementLimit = incrementLimit
	l.incrementsClaimed.Store(0)
}

// PBN returns the physical block this lock guards.
func (l *Lock) PBN() types.PBN { return l.pbn }

// Type returns the lock's type.
func (l *Lock) Type() LockType { return l.lockType }

// IsReadLock reports whether this lock is a shareable read lock.
func (l *Lock) IsReadLock() bool { return l.lockType == LockRead }

// HolderCount returns the number of data-vios currently holding this lock.
func (l *Lock) HolderCount() int { return l.holderCount }

// Acquire registers one more holder of the lock.
func (l *Lock) Acquire() { l.holderCount++ }

// Release removes one holder, returning the remaining holder count.
func (l *Lock) Release() int {
	if l.holderCount > 0 {
		l.holderCount--
	}
	return l.holderCount
}

// Waiters returns the wait queue of operations blocked on this lock.
func (l *Lock) Waiters() *waiter.Queue { return &l.waiters }

// DowngradeWriteToRead converts an exclusive write lock into a shareable
// read lock with the given increment limit, used once a new physical block
// has been fully written and only needs to hand out dedupe-advice
// references from here on.
func (l *Lock) DowngradeWriteToRead(incrementLimit int) error {
	if l.lockType != LockWrite {
		return fmt.Errorf("pbnlock: cannot downgrade %s lock to read: %w", l.lockType, vdoerr.ErrBadState)
	}
	l.lockType = LockRead
	l.incrementLimit = incrementLimit
	l.incrementsClaimed.Store(0)
	return nil
}

// ClaimIncrement atomically claims one of the reference increments known
// available to this read lock. It succeeds only while the number of claims
// so far does not exceed the limit recorded at acquisition (spec §4.2).
func (l *Lock) ClaimIncrement() bool {
	for {
		current := l.incrementsClaimed.Load()
		if int(current) >= l.incrementLimit {
			return false
		}
		if l.incrementsClaimed.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// AssignProvisionalReference marks that this lock currently backs a
// provisional reference on its PBN (spec glossary: "Provisional
// Reference").
func (l *Lock) AssignProvisionalReference() {
	l.provisionalReference = true
}

// HasProvisionalReference reports whether the lock is currently backing a
// provisional reference.
func (l *Lock) HasProvisionalReference() bool {
	return l.provisionalReference
}

// ProvisionalReleaser commits or discards the provisional reference when
// the lock is released; it is the allocator's reference-count component.
type ProvisionalReleaser interface {
	ReleaseProvisionalReference(pbn types.PBN) error
}

// ReleaseProvisionalReference clears the provisional-reference bit and asks
// allocator to release the reservation, if one was outstanding.
func (l *Lock) ReleaseProvisionalReference(allocator ProvisionalReleaser) error {
	if !l.provisionalReference {
		return nil
	}
	l.provisionalReference = false
	return allocator.ReleaseProvisionalReference(l.pbn)
}

// CompatibleWith reports whether two lock types may be held concurrently
// on the same PBN: invariant 2 of spec §3 — no two write-type locks, and no
// read/write mix, may coexist.
func CompatibleWith(a, b LockType) bool {
	return a == LockRead && b == LockRead
}

// reset clears a lock before it is returned to the pool.
func (l *Lock) reset() {
	*l = Lock{}
}
