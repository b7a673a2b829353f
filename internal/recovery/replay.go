package recovery

import (
	"fmt"

	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// LoadedBlock is a block as read back from one on-disk slot during boot,
// before it is known to be valid.
type LoadedBlock struct {
	DiskOffset uint64
	Header     BlockHeader
	Entries    []types.RecoveryJournalEntry
	Present    bool // false if the slot held garbage that failed to decode at all
}

// FindHeadAndTail scans every loaded block and returns the highest valid
// tail (one past the highest valid sequence number) and the maximum
// block-map/slab-journal heads seen among valid blocks, per spec §4.5. A
// block counts as valid only when the sequence number recorded in its
// header maps back to the disk slot it was read from, and its header
// otherwise validates (check byte, metadata type). ok is false if no
// block in the journal is valid, meaning there is nothing to replay.
func FindHeadAndTail(size uint64, blocks []LoadedBlock) (highestTail, maxBlockMapHead, maxSlabJournalHead uint64, ok bool) {
	for _, b := range blocks {
		if !b.Present {
			continue
		}
		expectedOffset := b.Header.SequenceNumber % size
		if expectedOffset != b.DiskOffset {
			continue
		}
		if err := ValidateHeader(b.Header); err != nil {
			continue
		}
		ok = true
		if tail := b.Header.SequenceNumber + 1; tail > highestTail {
			highestTail = tail
		}
		if b.Header.BlockMapHead > maxBlockMapHead {
			maxBlockMapHead = b.Header.BlockMapHead
		}
		if b.Header.SlabJournalHead > maxSlabJournalHead {
			maxSlabJournalHead = b.Header.SlabJournalHead
		}
	}
	return highestTail, maxBlockMapHead, maxSlabJournalHead, ok
}

// ValidateEntry checks a decoded recovery-journal entry against the
// geometry of the device being recovered, per spec §4.5: it fails with
// corrupt-journal when the pbn is out of bounds, the slot index is beyond
// entriesPerPage, the mapping itself is malformed, or a block-map-
// increment operation targets a compressed or zero-block mapping (which
// can never be the subject of an increment, since compressed fragments
// and the zero block are never individually referenced that way).
func ValidateEntry(e types.RecoveryJournalEntry, maxPBN uint64, entriesPerPage uint16) error {
	if uint64(e.Slot.PBN) > maxPBN {
		return fmt.Errorf("recovery: entry pbn %d exceeds device size %d: %w", e.Slot.PBN, maxPBN, vdoerr.ErrCorruptJournal)
	}
	if uint64(e.Mapping.PBN) > maxPBN {
		return fmt.Errorf("recovery: entry mapping pbn %d exceeds device size %d: %w", e.Mapping.PBN, maxPBN, vdoerr.ErrCorruptJournal)
	}
	if e.Slot.SlotIndex >= entriesPerPage {
		return fmt.Errorf("recovery: entry slot index %d >= entries per page %d: %w", e.Slot.SlotIndex, entriesPerPage, vdoerr.ErrCorruptJournal)
	}
	if !e.Mapping.IsValid() {
		return fmt.Errorf("recovery: entry mapping %+v is invalid: %w", e.Mapping, vdoerr.ErrCorruptJournal)
	}
	if e.Operation == types.JournalBlockMapIncrement {
		if e.Mapping.State.IsCompressed() || e.Mapping.State == types.MappingStateZeroBlock {
			return fmt.Errorf("recovery: block-map-increment targets compressed/zero mapping: %w", vdoerr.ErrCorruptJournal)
		}
	}
	return nil
}

// Replayer receives validated entries in journal order and applies them to
// the block map and slab journals.
type Replayer interface {
	ApplyEntry(point types.JournalPoint, entry types.RecoveryJournalEntry) error
}

// Replay validates and applies every entry in blocks (already ordered by
// sequence number, e.g. the output of sorting valid LoadedBlocks from
// FindHeadAndTail) to target.
func Replay(blocks []LoadedBlock, maxPBN uint64, entriesPerPage uint16, target Replayer) error {
	for _, b := range blocks {
		for i, e := range b.Entries {
			if err := ValidateEntry(e, maxPBN, entriesPerPage); err != nil {
				return err
			}
			point := types.JournalPoint{SequenceNumber: b.Header.SequenceNumber, EntryCount: uint16(i)}
			if err := target.ApplyEntry(point, e); err != nil {
				return err
			}
		}
	}
	return nil
}
