package depot

import (
	"context"
	"errors"
	"testing"

	"github.com/KnightKu/kvdo/internal/refcount"
	"github.com/KnightKu/kvdo/internal/slabjournal"
	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

func readySlab(index int, origin types.PBN, blocks uint32) *Slab {
	s := NewSlab(index, origin, blocks, 1, 8, slabjournal.DefaultCapacity)
	s.MarkClean()
	return s
}

func TestAllocatorAllocateReservesAProvisionalBlock(t *testing.T) {
	s := readySlab(0, 0, 4)
	a := NewAllocator([]*Slab{s}, 4)

	pbn, err := a.Allocate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != StateActive {
		t.Fatalf("expected slab activated on first allocation, got %v", s.State())
	}

	_, blockIndex, err := a.locate(pbn)
	if err != nil {
		t.Fatal(err)
	}
	c, err := s.RefCounts.Get(blockIndex)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status() != refcount.StatusProvisional {
		t.Fatalf("expected provisional status, got %v", c.Status())
	}
}

func TestAllocatorExhaustsAllBlocksThenFails(t *testing.T) {
	s := readySlab(0, 0, 2)
	a := NewAllocator([]*Slab{s}, 4)

	for i := 0; i < 2; i++ {
		if _, err := a.Allocate(context.Background()); err != nil {
			t.Fatalf("allocation %d: %v", i, err)
		}
	}
	if s.State() != StateFull {
		t.Fatalf("expected slab full, got %v", s.State())
	}
	if _, err := a.Allocate(context.Background()); !errors.Is(err, vdoerr.ErrNoSpace) {
		t.Fatalf("expected no-space, got %v", err)
	}
}

func TestAllocatorReleaseProvisionalReopensFullSlab(t *testing.T) {
	s := readySlab(0, 0, 1)
	a := NewAllocator([]*Slab{s}, 4)

	pbn, err := a.Allocate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != StateFull {
		t.Fatalf("expected full, got %v", s.State())
	}

	if err := a.ReleaseProvisional(pbn); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateActive {
		t.Fatalf("expected active after release, got %v", s.State())
	}

	// The block must be allocatable again.
	if _, err := a.Allocate(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestAllocatorPrefersSlabWithMoreFreeBlocks(t *testing.T) {
	small := NewSlab(0, 0, 1, 1, 8, slabjournal.DefaultCapacity)
	small.MarkClean()
	large := NewSlab(1, 100, 10, 1, 8, slabjournal.DefaultCapacity)
	large.MarkClean()
	a := NewAllocator([]*Slab{small, large}, 4)

	pbn, err := a.Allocate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if pbn < 100 {
		t.Errorf("expected first allocation to come from the larger slab (origin 100), got pbn %d", pbn)
	}
}

func TestAllocatorTotalFreeBlocksCountsOnlyActiveOrClean(t *testing.T) {
	active := NewSlab(0, 0, 5, 1, 8, slabjournal.DefaultCapacity)
	active.MarkClean()
	unrecovered := NewSlab(1, 100, 5, 1, 8, slabjournal.DefaultCapacity)
	a := NewAllocator([]*Slab{active, unrecovered}, 4)

	if got := a.TotalFreeBlocks(); got != 5 {
		t.Fatalf("expected 5 free blocks (unrecovered slab excluded), got %d", got)
	}
}
