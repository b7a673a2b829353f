// Package depot implements the slab depot: the device's physical address
// space divided into fixed-size slabs, each with its own reference-count
// array and slab journal, plus the zone-partitioned block allocator and
// the scrubber that recovers dirty slabs after an unclean shutdown (spec
// §2, §4.3).
package depot

import (
	"fmt"

	"github.com/KnightKu/kvdo/internal/refcount"
	"github.com/KnightKu/kvdo/internal/slabjournal"
	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// State is a slab's position in its lifecycle: unrecovered -> scrubbing ->
// clean -> active (open journal) -> full -> released (spec §3,
// "Lifecycles").
type State uint8

const (
	StateUnrecovered State = iota
	StateScrubbing
	StateClean
	StateActive
	StateFull
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUnrecovered:
		return "unrecovered"
	case StateScrubbing:
		return "scrubbing"
	case StateClean:
		return "clean"
	case StateActive:
		return "active"
	case StateFull:
		return "full"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Slab is one fixed-size extent of physical blocks: its own reference
// counts and its own slab journal, plus the index-local metadata needed
// to place it within the depot's flat physical address space.
type Slab struct {
	Index      int
	Origin     types.PBN // PBN of the first data block this slab covers
	BlockCount uint32

	RefCounts *refcount.Array
	Journal   *slabjournal.Journal

	state State
}

// NewSlab creates a slab of blockCount data blocks starting at origin,
// with its own reference-count array and slab journal (journalSize
// blocks, capacity entries per block). It starts unrecovered: the caller
// must either load a saved reference-count image and mark it clean, or
// queue it for scrubbing.
func NewSlab(index int, origin types.PBN, blockCount uint32, nonce, journalSize uint64, capacity slabjournal.Capacity) *Slab {
	return &Slab{
		Index:      index,
		Origin:     origin,
		BlockCount: blockCount,
		RefCounts:  refcount.NewArray(int(blockCount)),
		Journal:    slabjournal.NewJournal(journalSize, nonce, capacity),
		state:      StateUnrecovered,
	}
}

// State returns the slab's current lifecycle state.
func (s *Slab) State() State { return s.state }

// MarkClean transitions an unrecovered or scrubbing slab to clean, meaning
// its reference counts are now trustworthy and it is eligible to be
// activated by the allocator.
func (s *Slab) MarkClean() error {
	switch s.state {
	case StateUnrecovered, StateScrubbing:
		s.state = StateClean
		return nil
	default:
		return fmt.Errorf("depot: slab %d: cannot mark clean from state %s: %w", s.Index, s.state, vdoerr.ErrInvalidAdminState)
	}
}

// Activate transitions a clean slab to active, opening it for ordinary
// allocation and journaling.
func (s *Slab) Activate() error {
	if s.state != StateClean {
		return fmt.Errorf("depot: slab %d: cannot activate from state %s: %w", s.Index, s.state, vdoerr.ErrInvalidAdminState)
	}
	s.state = StateActive
	return nil
}

// MarkFull transitions an active slab to full once it has no free blocks
// left to allocate.
func (s *Slab) MarkFull() error {
	if s.state != StateActive {
		return fmt.Errorf("depot: slab %d: cannot mark full from state %s: %w", s.Index, s.state, vdoerr.ErrInvalidAdminState)
	}
	s.state = StateFull
	return nil
}

// Release transitions a full slab to released, e.g. when the depot is
// being torn down and the slab will not be reused this session.
func (s *Slab) Release() error {
	if s.state != StateFull {
		return fmt.Errorf("depot: slab %d: cannot release from state %s: %w", s.Index, s.state, vdoerr.ErrInvalidAdminState)
	}
	s.state = StateReleased
	return nil
}

// Reopen transitions a full slab directly back to active, because a block
// it previously reserved was released before ever being committed (the
// provisional reservation is abandoned, not the underlying mapping), so
// the slab never actually stopped being usable for allocation.
func (s *Slab) Reopen() error {
	if s.state != StateFull {
		return fmt.Errorf("depot: slab %d: cannot reopen from state %s: %w", s.Index, s.state, vdoerr.ErrInvalidAdminState)
	}
	s.state = StateActive
	return nil
}

// BeginScrubbing transitions an unrecovered slab to scrubbing.
func (s *Slab) BeginScrubbing() error {
	if s.state != StateUnrecovered {
		return fmt.Errorf("depot: slab %d: cannot scrub from state %s: %w", s.Index, s.state, vdoerr.ErrInvalidAdminState)
	}
	s.state = StateScrubbing
	return nil
}

// FreeBlockCount returns the slab's current exact free-block count, read
// from its reference-count array.
func (s *Slab) FreeBlockCount() int { return s.RefCounts.FreeCount() }

// PBN returns the physical block number of the data block at the given
// slab-relative index.
func (s *Slab) PBN(blockIndex int) types.PBN {
	return s.Origin + types.PBN(blockIndex)
}
