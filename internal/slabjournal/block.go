package slabjournal

import (
	"fmt"

	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// BlockHeader is the fixed-size prefix of every slab-journal block.
type BlockHeader struct {
	Nonce                 uint64
	MetadataType          MetadataType
	SequenceNumber        uint64
	EntryCount            uint16
	HasBlockMapIncrements bool
	// Head is the oldest recovery-journal sequence number this block's
	// entries still depend on; it bounds how far recovery-journal reap
	// may proceed (spec §4.5).
	Head uint64
}

// Block is one in-memory slab-journal block: its header plus the decoded
// entries appended so far.
type Block struct {
	Header  BlockHeader
	Entries []Entry
}

// Capacity bounds how many entries a block may hold. When any entry in the
// block carries a block-map increment, the usable capacity shrinks because
// those entries need to also retain the recovery-journal point they
// depend on (spec §4.3: "entry_count <= full-entries capacity").
type Capacity struct {
	EntriesPerBlock     int
	FullEntriesPerBlock int
}

// DefaultCapacity matches a 4 KiB slab-journal block after its header: a
// plain delta is 8 bytes, one carrying a block-map increment also needs an
// 8-byte packed journal point.
var DefaultCapacity = Capacity{
	EntriesPerBlock:     leftoverSlots(types.BlockSize, 8),
	FullEntriesPerBlock: leftoverSlots(types.BlockSize, 16),
}

func leftoverSlots(blockSize, entrySize int) int {
	const headerSize = 24
	return (blockSize - headerSize) / entrySize
}

// NewBlock starts a fresh block for the given nonce and sequence number.
func NewBlock(nonce, sequenceNumber, head uint64) *Block {
	return &Block{Header: BlockHeader{
		Nonce:          nonce,
		MetadataType:   MetadataTypeSlabJournal,
		SequenceNumber: sequenceNumber,
		Head:           head,
	}}
}

// IsFull reports whether the block has reached its capacity and must be
// dispatched for write before another entry can be added.
func (b *Block) IsFull(cap Capacity) bool {
	limit := cap.EntriesPerBlock
	if b.Header.HasBlockMapIncrements {
		limit = cap.FullEntriesPerBlock
	}
	return int(b.Header.EntryCount) >= limit
}

// AddEntry appends e to the block, failing if doing so would exceed
// capacity. The caller must check IsFull first in the common path; AddEntry
// re-validates defensively.
func (b *Block) AddEntry(e Entry, cap Capacity) error {
	willHaveBlockMapIncrements := b.Header.HasBlockMapIncrements || e.IsBlockMapIncrement
	limit := cap.EntriesPerBlock
	if willHaveBlockMapIncrements {
		limit = cap.FullEntriesPerBlock
	}
	if int(b.Header.EntryCount) >= limit {
		return fmt.Errorf("slabjournal: block %d is full (%d entries): %w", b.Header.SequenceNumber, b.Header.EntryCount, vdoerr.ErrNoSpace)
	}
	b.Entries = append(b.Entries, e)
	b.Header.EntryCount++
	b.Header.HasBlockMapIncrements = willHaveBlockMapIncrements
	return nil
}

// Validate checks a loaded block's header against the journal's nonce and
// the sequence number expected at its slot, per spec §4.3:
//
//	"Validity requires: nonce matches allocator nonce; metadata type is
//	slab-journal; sequence equals expected; entry_count <= per-block
//	capacity; when block-map-increments are present, entry_count <= full-
//	entries capacity."
func Validate(h BlockHeader, allocatorNonce, expectedSequence uint64, cap Capacity) error {
	if h.Nonce != allocatorNonce {
		return fmt.Errorf("slabjournal: nonce mismatch (block %d, allocator %d): %w", h.Nonce, allocatorNonce, vdoerr.ErrCorruptJournal)
	}
	if h.MetadataType != MetadataTypeSlabJournal {
		return fmt.Errorf("slabjournal: wrong metadata type %d: %w", h.MetadataType, vdoerr.ErrCorruptJournal)
	}
	if h.SequenceNumber != expectedSequence {
		return fmt.Errorf("slabjournal: sequence %d != expected %d: %w", h.SequenceNumber, expectedSequence, vdoerr.ErrCorruptJournal)
	}
	if int(h.EntryCount) > cap.EntriesPerBlock {
		return fmt.Errorf("slabjournal: entry count %d exceeds capacity %d: %w", h.EntryCount, cap.EntriesPerBlock, vdoerr.ErrCorruptJournal)
	}
	if h.HasBlockMapIncrements && int(h.EntryCount) > cap.FullEntriesPerBlock {
		return fmt.Errorf("slabjournal: entry count %d exceeds full-entries capacity %d: %w", h.EntryCount, cap.FullEntriesPerBlock, vdoerr.ErrCorruptJournal)
	}
	return nil
}
