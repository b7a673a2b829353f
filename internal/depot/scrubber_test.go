package depot

import (
	"errors"
	"testing"

	"github.com/KnightKu/kvdo/internal/refcount"
	"github.com/KnightKu/kvdo/internal/slabjournal"
	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/waiter"
)

// fakeReader simulates the on-disk collaborator: LoadJournal seeds each
// slab's journal with the entries listed for it in entriesPerSlab, and
// SaveReferenceCounts just records that it was called.
type fakeReader struct {
	entriesPerSlab map[int][]slabjournal.Entry
	saved          []int
	failLoad       map[int]bool
}

func (f *fakeReader) LoadJournal(s *Slab) error {
	if f.failLoad[s.Index] {
		return errors.New("simulated read failure")
	}
	entries := f.entriesPerSlab[s.Index]
	s.Journal.SetRecoveryJournalHead(0)
	for _, e := range entries {
		s.Journal.AddEntry(e)
	}
	s.Journal.Flush()
	return nil
}

func (f *fakeReader) SaveReferenceCounts(s *Slab) error {
	f.saved = append(f.saved, s.Index)
	return nil
}

func newDirtySlab(index int) *Slab {
	return NewSlab(index, types.PBN(index*100), 10, 7, 8, slabjournal.DefaultCapacity)
}

func TestScrubSlabsAppliesEntriesAndMarksClean(t *testing.T) {
	s := newDirtySlab(0)
	reader := &fakeReader{
		entriesPerSlab: map[int][]slabjournal.Entry{
			0: {{SlabBlockNumber: 1, Operation: types.JournalDataIncrement}},
		},
	}
	scrubber := NewScrubber(nil, []*Slab{s})

	var completed []*Slab
	scrubber.ScrubSlabs(reader, func(slab *Slab) { completed = append(completed, slab) }, func(err error) {
		t.Fatalf("unexpected scrub error: %v", err)
	})

	if len(completed) != 1 || completed[0] != s {
		t.Fatalf("expected slab 0 to complete, got %v", completed)
	}
	if s.State() != StateClean {
		t.Fatalf("expected clean, got %v", s.State())
	}
	if len(reader.saved) != 1 || reader.saved[0] != 0 {
		t.Fatalf("expected reference counts saved for slab 0, got %v", reader.saved)
	}
	c, err := s.RefCounts.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status() == refcount.StatusFree {
		t.Error("expected block 1 to carry an applied reference")
	}
}

func TestScrubSlabsDrainsPriorityBeforeNormal(t *testing.T) {
	normal := newDirtySlab(0)
	priority := newDirtySlab(1)
	reader := &fakeReader{entriesPerSlab: map[int][]slabjournal.Entry{}}
	scrubber := NewScrubber([]*Slab{priority}, []*Slab{normal})

	var order []int
	scrubber.ScrubSlabs(reader, func(slab *Slab) { order = append(order, slab.Index) }, nil)

	if len(order) != 2 || order[0] != 1 || order[1] != 0 {
		t.Fatalf("expected priority slab first, got order %v", order)
	}
}

func TestScrubSlabsAbortsOnFirstError(t *testing.T) {
	bad := newDirtySlab(0)
	good := newDirtySlab(1)
	reader := &fakeReader{
		entriesPerSlab: map[int][]slabjournal.Entry{},
		failLoad:       map[int]bool{0: true},
	}
	scrubber := NewScrubber(nil, []*Slab{bad, good})

	var errCount int
	var completed []int
	scrubber.ScrubSlabs(reader, func(slab *Slab) { completed = append(completed, slab.Index) }, func(err error) {
		errCount++
	})

	if errCount != 1 {
		t.Fatalf("expected exactly 1 error callback, got %d", errCount)
	}
	if len(completed) != 0 {
		t.Fatalf("expected scrubbing to abort before completing any slab, got %v", completed)
	}
	if good.State() != StateUnrecovered {
		t.Fatalf("expected untouched slab to remain unrecovered, got %v", good.State())
	}
}

func TestHighPriorityOnlySuppressesNormalList(t *testing.T) {
	normal := newDirtySlab(0)
	priority := newDirtySlab(1)
	reader := &fakeReader{entriesPerSlab: map[int][]slabjournal.Entry{}}
	scrubber := NewScrubber([]*Slab{priority}, []*Slab{normal})
	scrubber.HighPriorityOnly(true)

	var completed []int
	scrubber.ScrubSlabs(reader, func(slab *Slab) { completed = append(completed, slab.Index) }, nil)

	if len(completed) != 1 || completed[0] != 1 {
		t.Fatalf("expected only the priority slab to be scrubbed, got %v", completed)
	}
	if scrubber.PendingCount() != 1 {
		t.Fatalf("expected the normal slab to remain pending, got %d", scrubber.PendingCount())
	}
}

func TestResumeScrubbingIsNoOpWithNoWork(t *testing.T) {
	scrubber := NewScrubber(nil, nil)
	scrubber.StopScrubbing()
	scrubber.ResumeScrubbing()
	if scrubber.state != ScrubberStopping {
		t.Errorf("expected resume to be a no-op with no pending work, state is %v", scrubber.state)
	}
}

func TestWaitForCleanSlabIsNotifiedAfterScrub(t *testing.T) {
	s := newDirtySlab(0)
	reader := &fakeReader{entriesPerSlab: map[int][]slabjournal.Entry{}}
	scrubber := NewScrubber(nil, []*Slab{s})

	var notified bool
	scrubber.WaitForCleanSlab(waiter.NewWaiter(func(w *waiter.Waiter, ctx any) { notified = true }, nil))

	scrubber.ScrubSlabs(reader, nil, nil)

	if !notified {
		t.Error("expected waiter to be notified once a slab finished scrubbing")
	}
}
