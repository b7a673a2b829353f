// Package slabjournal implements the per-slab circular journal of
// reference-count deltas (spec §4.3). Each journal block is a fixed-size
// record: a header followed by a sequence of packed 64-bit entries. The
// journal's tail is tied to the recovery journal: a slab-journal entry must
// be durable before the recovery-journal block covering it may be reaped
// (invariant 4, spec §3).
package slabjournal

import (
	"github.com/KnightKu/kvdo/internal/types"
)

// MetadataType identifies the kind of structure a journal block's header
// claims to be; a block whose on-disk metadata type doesn't match
// MetadataTypeSlabJournal is corrupt.
type MetadataType uint8

const MetadataTypeSlabJournal MetadataType = 1

// Entry is one decoded slab-journal record: a delta against the reference
// count of the data block at SlabBlockNumber.
type Entry struct {
	SlabBlockNumber     uint32
	Operation           types.JournalOperation
	IsBlockMapIncrement bool
}

// PackEntry encodes e into the 64-bit on-disk representation: the slab
// block number in the low 32 bits, the operation in the next 2 bits, and
// the block-map-increment flag in bit 34.
func PackEntry(e Entry) uint64 {
	packed := uint64(e.SlabBlockNumber)
	packed |= uint64(e.Operation&0x3) << 32
	if e.IsBlockMapIncrement {
		packed |= 1 << 34
	}
	return packed
}

// UnpackEntry is the inverse of PackEntry.
func UnpackEntry(packed uint64) Entry {
	return Entry{
		SlabBlockNumber:     uint32(packed & 0xffffffff),
		Operation:           types.JournalOperation((packed >> 32) & 0x3),
		IsBlockMapIncrement: (packed>>34)&1 == 1,
	}
}
