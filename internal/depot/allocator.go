package depot

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/KnightKu/kvdo/internal/refcount"
	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// Allocator owns one physical zone's slabs and hands out free physical
// blocks to data-vios. Admission is gated by a weighted semaphore so that
// at most maxConcurrent allocation attempts are in flight at once; callers
// beyond that limit block in Allocate until a slot frees, rather than
// every data-vio racing the slab list unbounded (spec §2, "block-allocator
// admission control").
type Allocator struct {
	mu    sync.Mutex
	slabs []*Slab

	admission *semaphore.Weighted

	// openIndex is the index into slabs of the slab currently preferred
	// for new allocations; it stays active until it reports full.
	openIndex int
}

// NewAllocator creates an allocator over slabs (already loaded/recovered
// by the caller), admitting at most maxConcurrent simultaneous allocation
// attempts.
func NewAllocator(slabs []*Slab, maxConcurrent int64) *Allocator {
	return &Allocator{
		slabs:     slabs,
		admission: semaphore.NewWeighted(maxConcurrent),
		openIndex: -1,
	}
}

// Slabs returns the allocator's slabs in index order.
func (a *Allocator) Slabs() []*Slab { return a.slabs }

// TotalFreeBlocks sums the exact free-block count across every active or
// clean slab; released/full/unrecovered/scrubbing slabs contribute
// nothing, since they are not currently allocatable.
func (a *Allocator) TotalFreeBlocks() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total uint64
	for _, s := range a.slabs {
		if s.state == StateActive || s.state == StateClean {
			total += uint64(s.FreeBlockCount())
		}
	}
	return total
}

// Allocate reserves one free physical block, provisionally referencing it
// (status transitions free -> provisional; the caller must later commit a
// real increment via the recovery journal or release the reservation on
// failure). It blocks on ctx until an admission slot is free, then fails
// with vdoerr.ErrNoSpace if no slab currently has a free block to offer.
func (a *Allocator) Allocate(ctx context.Context) (types.PBN, error) {
	if err := a.admission.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("depot: allocate: %w", err)
	}
	defer a.admission.Release(1)

	a.mu.Lock()
	defer a.mu.Unlock()

	if slab, index, ok := a.findAllocatable(); ok {
		pbn, err := a.allocateFromSlab(slab, index)
		return pbn, err
	}
	return 0, fmt.Errorf("depot: no free blocks in any slab: %w", vdoerr.ErrNoSpace)
}

// findAllocatable returns the preferred open slab if it still has room,
// else scans for the first active or clean slab with a free block,
// preferring slabs with more free blocks first so wear spreads across the
// depot rather than draining slabs strictly in index order.
func (a *Allocator) findAllocatable() (*Slab, int, bool) {
	if a.openIndex >= 0 && a.openIndex < len(a.slabs) {
		s := a.slabs[a.openIndex]
		if (s.state == StateActive || s.state == StateClean) && s.FreeBlockCount() > 0 {
			return s, a.openIndex, true
		}
	}

	candidates := make([]int, 0, len(a.slabs))
	for i, s := range a.slabs {
		if (s.state == StateActive || s.state == StateClean) && s.FreeBlockCount() > 0 {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil, 0, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return a.slabs[candidates[i]].FreeBlockCount() > a.slabs[candidates[j]].FreeBlockCount()
	})
	best := candidates[0]
	a.openIndex = best
	return a.slabs[best], best, true
}

func (a *Allocator) allocateFromSlab(s *Slab, index int) (types.PBN, error) {
	if s.state == StateClean {
		if err := s.Activate(); err != nil {
			return 0, err
		}
	}
	blockIndex, ok := firstFreeBlock(s)
	if !ok {
		return 0, fmt.Errorf("depot: slab %d reports free blocks but none found: %w", index, vdoerr.ErrNoSpace)
	}
	if err := s.RefCounts.AssignProvisional(blockIndex); err != nil {
		return 0, err
	}
	if s.FreeBlockCount() == 0 {
		if err := s.MarkFull(); err != nil {
			return 0, err
		}
	}
	return s.PBN(blockIndex), nil
}

func firstFreeBlock(s *Slab) (int, bool) {
	for i := 0; i < s.RefCounts.Len(); i++ {
		c, err := s.RefCounts.Get(i)
		if err != nil {
			return 0, false
		}
		if c.Status() == refcount.StatusFree {
			return i, true
		}
	}
	return 0, false
}

// ReleaseProvisional abandons a provisional reservation made by Allocate,
// returning the block to the free pool without ever having committed a
// real reference, and reopens the owning slab for allocation if it had
// gone full.
func (a *Allocator) ReleaseProvisional(pbn types.PBN) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, blockIndex, err := a.locate(pbn)
	if err != nil {
		return err
	}
	if err := s.RefCounts.ReleaseProvisional(blockIndex); err != nil {
		return err
	}
	if s.state == StateFull {
		if err := s.Reopen(); err != nil {
			return err
		}
	}
	return nil
}

func (a *Allocator) locate(pbn types.PBN) (*Slab, int, error) {
	for _, s := range a.slabs {
		if pbn >= s.Origin && pbn < s.Origin+types.PBN(s.BlockCount) {
			return s, int(pbn - s.Origin), nil
		}
	}
	return nil, 0, fmt.Errorf("depot: pbn %d not covered by any slab: %w", pbn, vdoerr.ErrInvalidArgument)
}
