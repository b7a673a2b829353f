package slabjournal

import (
	"fmt"

	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// Journal is a single slab's circular block sequence. Size is the number
// of block slots on disk; the journal never holds more than Size
// un-reaped blocks.
type Journal struct {
	Size     uint64
	Nonce    uint64
	Capacity Capacity

	blocks  []*Block // committed blocks, oldest first
	active  *Block
	tailSeq uint64 // next sequence number to assign

	// recoveryJournalHead is the lowest recovery-journal sequence number
	// this slab journal still depends on; it is recorded in each new
	// block's header (spec §4.3).
	recoveryJournalHead uint64
}

// NewJournal creates an empty journal of the given size (number of block
// slots) for one slab.
func NewJournal(size, nonce uint64, cap Capacity) *Journal {
	return &Journal{Size: size, Nonce: nonce, Capacity: cap}
}

// TailSequence returns the sequence number that will be assigned to the
// next block opened.
func (j *Journal) TailSequence() uint64 { return j.tailSeq }

// SetRecoveryJournalHead updates the recovery-journal head this slab
// journal will stamp into newly opened blocks.
func (j *Journal) SetRecoveryJournalHead(head uint64) {
	j.recoveryJournalHead = head
}

// AddEntry appends e to the active block, opening a new block first if
// none is active or the active block is full. It returns the block that
// became full and must be dispatched for write, or nil if no block
// rolled over.
func (j *Journal) AddEntry(e Entry) (*Block, error) {
	if j.active == nil {
		j.openNewBlock()
	} else if j.active.IsFull(j.Capacity) {
		full, err := j.rollOver()
		if err != nil {
			return nil, err
		}
		return full, j.addToActive(e)
	}
	if err := j.addToActive(e); err != nil {
		return nil, err
	}
	return nil, nil
}

func (j *Journal) addToActive(e Entry) error {
	if err := j.active.AddEntry(e, j.Capacity); err != nil {
		return err
	}
	return nil
}

func (j *Journal) openNewBlock() {
	j.active = NewBlock(j.Nonce, j.tailSeq, j.recoveryJournalHead)
	j.tailSeq++
}

// rollOver closes the active block (returning it to the caller for
// writing) and opens the next one, failing if doing so would exceed the
// journal's fixed number of slots before older blocks are reaped.
func (j *Journal) rollOver() (*Block, error) {
	if uint64(len(j.blocks)) >= j.Size {
		return nil, fmt.Errorf("slabjournal: journal full at %d blocks: %w", j.Size, vdoerr.ErrNoSpace)
	}
	full := j.active
	j.blocks = append(j.blocks, full)
	j.openNewBlock()
	return full, nil
}

// Flush forces the active block to close even if not full, for shutdown or
// a save request. It is a no-op if there is no active block or it is
// empty.
func (j *Journal) Flush() *Block {
	if j.active == nil || j.active.Header.EntryCount == 0 {
		return nil
	}
	full := j.active
	j.blocks = append(j.blocks, full)
	j.active = nil
	return full
}

// Reap discards committed blocks whose sequence number is strictly less
// than upTo, because their entries are now guaranteed durable in the
// reference-count array and are no longer needed for scrubbing replay.
func (j *Journal) Reap(upTo uint64) {
	i := 0
	for ; i < len(j.blocks); i++ {
		if j.blocks[i].Header.SequenceNumber >= upTo {
			break
		}
	}
	j.blocks = j.blocks[i:]
}

// CommittedBlocks returns the closed, written blocks still retained by the
// journal, oldest first.
func (j *Journal) CommittedBlocks() []*Block {
	return j.blocks
}

// LowestHead returns the smallest Head field among retained blocks, i.e.
// the recovery-journal sequence number that must not be reaped yet
// (invariant 3 and 4, spec §3). It returns ok=false if the journal is
// empty.
func (j *Journal) LowestHead() (head uint64, ok bool) {
	if len(j.blocks) == 0 {
		return 0, false
	}
	head = j.blocks[0].Header.Head
	for _, b := range j.blocks[1:] {
		if b.Header.Head < head {
			head = b.Header.Head
		}
	}
	return head, true
}

// ReplayTarget receives decoded entries during scrubbing replay so the
// caller (the slab's reference-count array) can apply them.
type ReplayTarget interface {
	ReplayReferenceCountChange(point types.JournalPoint, slabBlockNumber int, op types.JournalOperation) error
}

// Scrub replays every retained block, in sequence order, into target. Per
// spec §4.3, each entry's slab block number must be < slabBlockCount or
// the journal is corrupt.
func (j *Journal) Scrub(target ReplayTarget, slabBlockCount uint32) error {
	for _, b := range j.blocks {
		if err := Validate(b.Header, j.Nonce, b.Header.SequenceNumber, j.Capacity); err != nil {
			return err
		}
		for i, e := range b.Entries {
			if e.SlabBlockNumber >= slabBlockCount {
				return fmt.Errorf("slabjournal: entry sbn %d >= slab size %d: %w", e.SlabBlockNumber, slabBlockCount, vdoerr.ErrCorruptJournal)
			}
			point := types.JournalPoint{SequenceNumber: b.Header.SequenceNumber, EntryCount: uint16(i)}
			op := e.Operation
			if e.IsBlockMapIncrement {
				op = types.JournalBlockMapIncrement
			}
			if err := target.ReplayReferenceCountChange(point, int(e.SlabBlockNumber), op); err != nil {
				return err
			}
		}
	}
	return nil
}
