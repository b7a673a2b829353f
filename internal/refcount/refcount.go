// Package refcount implements the per-slab reference-count array: one
// 8-bit counter per physical block a slab covers, with the four value
// classes spec §9 calls for as a sum type rather than a raw integer: free,
// provisional, count, and shared (spec §3, §4.3).
package refcount

import (
	"fmt"

	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// Status names the class a Counter value belongs to.
type Status uint8

const (
	StatusFree Status = iota
	StatusProvisional
	StatusCounted
	StatusShared
)

// Counter is the 8-bit encoding of a single block's reference state.
// 0 is free; 1..MaxCountedValue is an exact count; ProvisionalValue marks a
// reservation in flight; SharedValue ("too many to count") is terminal and
// saturating.
type Counter uint8

const (
	// MaxCountedValue is the largest exact count a Counter can hold
	// before it must saturate to shared.
	MaxCountedValue = 253
	// ProvisionalValue marks a block reserved by an allocation in
	// progress, not yet backed by a committed mapping.
	ProvisionalValue Counter = 254
	// SharedValue means "too many references to count exactly".
	SharedValue Counter = 255
)

// Status classifies c into one of the four value classes.
func (c Counter) Status() Status {
	switch {
	case c == 0:
		return StatusFree
	case c == ProvisionalValue:
		return StatusProvisional
	case c == SharedValue:
		return StatusShared
	default:
		return StatusCounted
	}
}

// Value returns the exact count for a StatusCounted counter; it is only
// meaningful when Status() == StatusCounted.
func (c Counter) Value() uint8 { return uint8(c) }

// Operation is the kind of reference-count delta recorded in a slab
// journal entry (spec §4.3).
type Operation = types.JournalOperation

// Array is the reference-count array for one slab, plus the bookkeeping
// needed for idempotent journal replay.
type Array struct {
	counters []Counter
	// slabJournalPoint is the journal point of the most recently applied
	// entry; replay skips any entry at or before this point (spec §4.3).
	slabJournalPoint types.JournalPoint
	hasAppliedAny    bool
	freeCount        int
}

// NewArray allocates a reference-count array covering blockCount data
// blocks, all initially free.
func NewArray(blockCount int) *Array {
	return &Array{
		counters:  make([]Counter, blockCount),
		freeCount: blockCount,
	}
}

// Len returns the number of blocks this array covers.
func (a *Array) Len() int { return len(a.counters) }

// FreeCount returns the number of blocks currently free (counter == 0).
func (a *Array) FreeCount() int { return a.freeCount }

// Get returns the counter for the given slab-relative block index.
func (a *Array) Get(index int) (Counter, error) {
	if index < 0 || index >= len(a.counters) {
		return 0, fmt.Errorf("refcount: index %d out of range [0,%d): %w", index, len(a.counters), vdoerr.ErrInvalidArgument)
	}
	return a.counters[index], nil
}

// SlabJournalPoint returns the journal point of the last entry applied to
// this array, used to make replay idempotent.
func (a *Array) SlabJournalPoint() types.JournalPoint { return a.slabJournalPoint }

// AssignProvisional transitions a free counter to provisional, reserving
// it for an in-flight allocation without yet committing a real reference.
func (a *Array) AssignProvisional(index int) error {
	c, err := a.Get(index)
	if err != nil {
		return err
	}
	if c.Status() != StatusFree {
		return fmt.Errorf("refcount: block %d not free (status %v): %w", index, c.Status(), vdoerr.ErrBadState)
	}
	a.counters[index] = ProvisionalValue
	a.freeCount--
	return nil
}

// ReleaseProvisional reverts a provisional reservation back to free,
// without ever having committed a real increment, because the allocation
// it was reserved for failed or was abandoned.
func (a *Array) ReleaseProvisional(index int) error {
	c, err := a.Get(index)
	if err != nil {
		return err
	}
	if c.Status() != StatusProvisional {
		return fmt.Errorf("refcount: block %d not provisional (status %v): %w", index, c.Status(), vdoerr.ErrBadState)
	}
	a.counters[index] = 0
	a.freeCount++
	return nil
}

// increment applies one reference increment to the counter at index,
// following the 0 -> provisional -> 1..253 -> shared lifecycle. A
// provisional counter being committed becomes 1 rather than 2.
func (a *Array) increment(index int) error {
	c, err := a.Get(index)
	if err != nil {
		return err
	}
	switch c.Status() {
	case StatusFree:
		a.counters[index] = 1
		a.freeCount--
	case StatusProvisional:
		a.counters[index] = 1
	case StatusCounted:
		if uint8(c) >= MaxCountedValue {
			a.counters[index] = SharedValue
		} else {
			a.counters[index] = c + 1
		}
	case StatusShared:
		// Saturating: once shared, further increments are no-ops.
	}
	return nil
}

// decrement applies one reference decrement. A shared counter never
// decreases (spec §4.3: "saturating and non-decreasing once reached").
func (a *Array) decrement(index int) error {
	c, err := a.Get(index)
	if err != nil {
		return err
	}
	switch c.Status() {
	case StatusFree:
		return fmt.Errorf("refcount: decrement of free block %d: %w", index, vdoerr.ErrBadState)
	case StatusCounted:
		if c == 1 {
			a.counters[index] = 0
			a.freeCount++
		} else {
			a.counters[index] = c - 1
		}
	case StatusShared:
		// Saturating: count is lost once shared; never decrements.
	case StatusProvisional:
		return fmt.Errorf("refcount: decrement of provisional block %d: %w", index, vdoerr.ErrBadState)
	}
	return nil
}

// ReplayReferenceCountChange applies a slab-journal entry's delta to the
// array. Replay is idempotent with respect to the array's last-applied
// journal point: an entry at or before that point is skipped (spec §4.3,
// §8 "applying the same slab-journal entry twice yields the same state").
func (a *Array) ReplayReferenceCountChange(point types.JournalPoint, index int, op Operation) error {
	if a.hasAppliedAny && types.AtOrBefore(point, a.slabJournalPoint) {
		return nil
	}
	var err error
	switch op {
	case types.JournalDataIncrement, types.JournalBlockMapIncrement:
		err = a.increment(index)
	case types.JournalDataDecrement:
		err = a.decrement(index)
	default:
		err = fmt.Errorf("refcount: unknown operation %v: %w", op, vdoerr.ErrInvalidArgument)
	}
	if err != nil {
		return err
	}
	a.slabJournalPoint = point
	a.hasAppliedAny = true
	return nil
}
