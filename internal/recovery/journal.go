package recovery

import (
	"context"
	"fmt"

	"github.com/KnightKu/kvdo/internal/storage"
	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// Journal is the system-wide recovery journal: a circular log sized to a
// power-of-two number of blocks (spec §4.5).
type Journal struct {
	Size          uint64 // power-of-two block count
	RecoveryCount uint8

	active  *Block
	tailSeq uint64
	// reapable is the lowest sequence number the journal still needs to
	// retain; blocks below it have been superseded by a durable
	// block-map/slab-journal checkpoint and may be overwritten.
	reapable uint64

	// blockMapHead/slabJournalHead are queried from the block map and
	// slab depot respectively and stamped into every sealed block
	// (invariant 3, spec §3).
	blockMapHeadFunc    func() uint64
	slabJournalHeadFunc func() uint64

	written []*Block // durable blocks retained in memory, oldest first, for replay/tests
}

// NewJournal creates an empty journal with the given power-of-two size.
// blockMapHead and slabJournalHead are callbacks the journal consults each
// time it seals a block, so the head field always reflects the current
// oldest-dirty-era constraint rather than a stale snapshot.
func NewJournal(size uint64, blockMapHead, slabJournalHead func() uint64) (*Journal, error) {
	if size == 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("recovery: journal size %d is not a power of two: %w", size, vdoerr.ErrInvalidArgument)
	}
	return &Journal{Size: size, blockMapHeadFunc: blockMapHead, slabJournalHeadFunc: slabJournalHead}, nil
}

// TailSequence returns the sequence number of the block currently being
// filled (or about to be opened).
func (j *Journal) TailSequence() uint64 { return j.tailSeq }

// offsetOf returns the on-disk slot a sequence number maps to within the
// circular journal.
func (j *Journal) offsetOf(sequenceNumber uint64) uint64 {
	return sequenceNumber % j.Size
}

// AddEntry enqueues e into the journal's active block, tagged to a
// data-vio by the caller outside this package. If flush requests an
// immediate dispatch (a flush/FUA entry) or the block becomes full, the
// sealed block is returned for writing along with its assigned journal
// point; otherwise the returned block is nil.
func (j *Journal) AddEntry(e types.RecoveryJournalEntry, flush bool) (*Block, types.JournalPoint, error) {
	if j.active == nil {
		if err := j.openBlock(); err != nil {
			return nil, types.JournalPoint{}, err
		}
	}
	if err := j.active.addEntry(e); err != nil {
		return nil, types.JournalPoint{}, err
	}
	point := types.JournalPoint{SequenceNumber: j.active.Header.SequenceNumber, EntryCount: j.active.Header.EntryCount - 1}

	if flush || j.active.isFull() {
		full := j.dispatchActive()
		return full, point, nil
	}
	return nil, point, nil
}

func (j *Journal) openBlock() error {
	if j.tailSeq-j.reapable >= j.Size {
		return fmt.Errorf("recovery: journal full, tail %d reapable %d: %w", j.tailSeq, j.reapable, vdoerr.ErrNoSpace)
	}
	j.active = newBlock(j.tailSeq, j.RecoveryCount)
	j.tailSeq++
	return nil
}

// dispatchActive seals and hands off the active block, leaving the
// journal ready to open the next one on the following AddEntry call.
func (j *Journal) dispatchActive() *Block {
	full := j.active
	full.seal(j.blockMapHeadFunc(), j.slabJournalHeadFunc())
	j.written = append(j.written, full)
	j.active = nil
	return full
}

// Flush forces the active block to be sealed and dispatched even if it is
// not full, for an explicit flush request with no pending entry.
func (j *Journal) Flush() *Block {
	if j.active == nil || j.active.Header.EntryCount == 0 {
		return nil
	}
	return j.dispatchActive()
}

// Head returns the journal's persisted head: the lowest sequence number
// still required, as of the last sealed block. Blocks are sealed with
// whatever the block-map/slab-journal callbacks reported at seal time, so
// this is always the value actually written to disk in the latest block,
// not a live recomputation (spec §4.5).
func (j *Journal) Head() uint64 {
	if len(j.written) == 0 {
		return 0
	}
	last := j.written[len(j.written)-1]
	h := last.Header.BlockMapHead
	if last.Header.SlabJournalHead < h {
		h = last.Header.SlabJournalHead
	}
	return h
}

// Reap advances the journal's reapable boundary to upTo, permitting slots
// below it to be overwritten by future blocks. Per invariant 3 (spec §3),
// the caller must only do this once every entry in the reaped range is
// known durable in the block map and slab journals.
func (j *Journal) Reap(upTo uint64) {
	if upTo > j.reapable {
		j.reapable = upTo
	}
	i := 0
	for ; i < len(j.written); i++ {
		if j.written[i].Header.SequenceNumber >= upTo {
			break
		}
	}
	j.written = j.written[i:]
}

// WrittenBlocks returns the retained durable blocks, oldest first. Used by
// tests and by replay.
func (j *Journal) WrittenBlocks() []*Block {
	return j.written
}

// WriteSealed persists a block AddEntry or Flush just sealed to its
// assigned slot in the on-disk journal region starting at base, making the
// entries it carries durable before any caller proceeds to update the
// block map or slab journals (invariant 2, spec §3: "recovery-journal
// entries become durable before the corresponding block-map update").
// A nil block is a no-op, matching the common case where AddEntry did not
// need to seal yet.
func (j *Journal) WriteSealed(ctx context.Context, store storage.Provider, base types.PBN, block *Block) error {
	if block == nil {
		return nil
	}
	pbn := base + types.PBN(j.offsetOf(block.Header.SequenceNumber))
	if err := store.WriteBlock(ctx, pbn, storage.PriorityMetadata, block.Encode()); err != nil {
		return fmt.Errorf("recovery: write journal block %d: %w", block.Header.SequenceNumber, err)
	}
	return nil
}
