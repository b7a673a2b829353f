package slabjournal

import (
	"errors"
	"testing"

	"github.com/KnightKu/kvdo/internal/refcount"
	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

func smallCapacity() Capacity {
	return Capacity{EntriesPerBlock: 3, FullEntriesPerBlock: 2}
}

func TestAddEntryRollsOverWhenFull(t *testing.T) {
	j := NewJournal(4, 77, smallCapacity())
	var rolled []*Block
	for i := 0; i < 7; i++ {
		full, err := j.AddEntry(Entry{SlabBlockNumber: uint32(i), Operation: types.JournalDataIncrement})
		if err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
		if full != nil {
			rolled = append(rolled, full)
		}
	}
	if len(rolled) != 2 {
		t.Fatalf("expected 2 rolled-over blocks for 7 entries at capacity 3, got %d", len(rolled))
	}
	if rolled[0].Header.EntryCount != 3 {
		t.Errorf("first rolled block should be full (3), got %d", rolled[0].Header.EntryCount)
	}
}

func TestRollOverFailsWhenJournalFull(t *testing.T) {
	j := NewJournal(1, 1, smallCapacity())
	// Fill and roll the first block.
	for i := 0; i < 3; i++ {
		j.AddEntry(Entry{SlabBlockNumber: uint32(i), Operation: types.JournalDataIncrement})
	}
	// This roll-over succeeds, retaining block 0 (size=1 slot, 0 retained so far).
	_, err := j.AddEntry(Entry{SlabBlockNumber: 9, Operation: types.JournalDataIncrement})
	if err != nil {
		t.Fatalf("first roll-over should succeed: %v", err)
	}
	for i := 0; i < 3; i++ {
		j.AddEntry(Entry{SlabBlockNumber: uint32(i), Operation: types.JournalDataIncrement})
	}
	_, err = j.AddEntry(Entry{SlabBlockNumber: 9, Operation: types.JournalDataIncrement})
	if !errors.Is(err, vdoerr.ErrNoSpace) {
		t.Fatalf("expected no-space once journal's single slot is occupied, got %v", err)
	}
}

func TestReapDiscardsOldBlocks(t *testing.T) {
	j := NewJournal(10, 1, smallCapacity())
	for i := 0; i < 10; i++ {
		j.AddEntry(Entry{SlabBlockNumber: uint32(i % 5), Operation: types.JournalDataIncrement})
	}
	if len(j.CommittedBlocks()) != 3 {
		t.Fatalf("expected 3 committed blocks, got %d", len(j.CommittedBlocks()))
	}
	j.Reap(2)
	for _, b := range j.CommittedBlocks() {
		if b.Header.SequenceNumber < 2 {
			t.Errorf("block %d should have been reaped", b.Header.SequenceNumber)
		}
	}
}

func TestScrubReplaysEntriesInOrder(t *testing.T) {
	j := NewJournal(10, 42, smallCapacity())
	for i := 0; i < 3; i++ {
		j.AddEntry(Entry{SlabBlockNumber: uint32(i), Operation: types.JournalDataIncrement})
	}
	j.Flush()

	counts := refcount.NewArray(5)
	if err := j.Scrub(counts, 5); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		c, _ := counts.Get(i)
		if c != 1 {
			t.Errorf("block %d: expected count 1 after scrub, got %d", i, c)
		}
	}
}

func TestScrubRejectsOutOfRangeSlabBlockNumber(t *testing.T) {
	j := NewJournal(10, 1, smallCapacity())
	j.AddEntry(Entry{SlabBlockNumber: 100, Operation: types.JournalDataIncrement})
	j.Flush()
	counts := refcount.NewArray(5)
	if err := j.Scrub(counts, 5); !errors.Is(err, vdoerr.ErrCorruptJournal) {
		t.Fatalf("expected corrupt-journal for out-of-range sbn, got %v", err)
	}
}

func TestValidateCatchesNonceMismatch(t *testing.T) {
	h := BlockHeader{Nonce: 1, MetadataType: MetadataTypeSlabJournal, SequenceNumber: 0}
	if err := Validate(h, 2, 0, smallCapacity()); !errors.Is(err, vdoerr.ErrCorruptJournal) {
		t.Fatalf("expected corrupt-journal for nonce mismatch, got %v", err)
	}
}

func TestPackUnpackEntryRoundTrip(t *testing.T) {
	cases := []Entry{
		{SlabBlockNumber: 0, Operation: types.JournalDataIncrement, IsBlockMapIncrement: false},
		{SlabBlockNumber: 0xffffffff, Operation: types.JournalDataDecrement, IsBlockMapIncrement: true},
		{SlabBlockNumber: 12345, Operation: types.JournalBlockMapIncrement, IsBlockMapIncrement: true},
	}
	for _, e := range cases {
		got := UnpackEntry(PackEntry(e))
		if got != e {
			t.Errorf("round trip mismatch: want %+v, got %+v", e, got)
		}
	}
}

func TestLowestHeadAcrossBlocks(t *testing.T) {
	j := NewJournal(10, 1, smallCapacity())
	j.SetRecoveryJournalHead(5)
	j.AddEntry(Entry{SlabBlockNumber: 0, Operation: types.JournalDataIncrement})
	j.AddEntry(Entry{SlabBlockNumber: 1, Operation: types.JournalDataIncrement})
	j.AddEntry(Entry{SlabBlockNumber: 2, Operation: types.JournalDataIncrement})
	j.SetRecoveryJournalHead(2)
	j.AddEntry(Entry{SlabBlockNumber: 3, Operation: types.JournalDataIncrement})
	j.Flush()

	head, ok := j.LowestHead()
	if !ok {
		t.Fatal("expected a lowest head")
	}
	if head != 2 {
		t.Fatalf("expected lowest head 2, got %d", head)
	}
}
