package depot

import (
	"errors"
	"testing"

	"github.com/KnightKu/kvdo/internal/slabjournal"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

func newTestSlab(index int) *Slab {
	return NewSlab(index, 1000, 100, 42, 8, slabjournal.DefaultCapacity)
}

func TestSlabLifecycleHappyPath(t *testing.T) {
	s := newTestSlab(0)
	if s.State() != StateUnrecovered {
		t.Fatalf("expected unrecovered, got %v", s.State())
	}
	if err := s.MarkClean(); err != nil {
		t.Fatal(err)
	}
	if err := s.Activate(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateActive {
		t.Fatalf("expected active, got %v", s.State())
	}
}

func TestSlabActivateFailsUnlessClean(t *testing.T) {
	s := newTestSlab(0)
	if err := s.Activate(); !errors.Is(err, vdoerr.ErrInvalidAdminState) {
		t.Fatalf("expected invalid-admin-state, got %v", err)
	}
}

func TestSlabReopenOnlyFromFull(t *testing.T) {
	s := newTestSlab(0)
	if err := s.Reopen(); !errors.Is(err, vdoerr.ErrInvalidAdminState) {
		t.Fatalf("expected invalid-admin-state reopening a non-full slab, got %v", err)
	}
	s.MarkClean()
	s.Activate()
	s.state = StateFull
	if err := s.Reopen(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateActive {
		t.Fatalf("expected active after reopen, got %v", s.State())
	}
}

func TestSlabPBNIsOriginPlusOffset(t *testing.T) {
	s := newTestSlab(3)
	if got := s.PBN(5); got != 1005 {
		t.Errorf("expected pbn 1005, got %d", got)
	}
}
