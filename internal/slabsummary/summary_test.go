package slabsummary

import "testing"

func TestNewSummaryStartsAllDirty(t *testing.T) {
	s := NewSummary(5)
	dirty := s.DirtySlabs()
	if len(dirty) != 5 {
		t.Fatalf("expected all 5 slabs dirty initially, got %d", len(dirty))
	}
}

func TestUpdateMarksSlabClean(t *testing.T) {
	s := NewSummary(3)
	if err := s.Update(1, Entry{IsClean: true, FreeBlockHint: 100, LoadRefCounts: true}); err != nil {
		t.Fatal(err)
	}
	dirty := s.DirtySlabs()
	if len(dirty) != 2 {
		t.Fatalf("expected 2 dirty slabs, got %d", len(dirty))
	}
	for _, d := range dirty {
		if d == 1 {
			t.Error("slab 1 should no longer be dirty")
		}
	}
	e, err := s.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if e.FreeBlockHint != 100 {
		t.Errorf("free block hint = %d, want 100", e.FreeBlockHint)
	}
}

func TestGetUpdateOutOfRange(t *testing.T) {
	s := NewSummary(2)
	if _, err := s.Get(5); err == nil {
		t.Error("expected error for out-of-range slab index")
	}
	if err := s.Update(-1, Entry{}); err == nil {
		t.Error("expected error for negative slab index")
	}
}
