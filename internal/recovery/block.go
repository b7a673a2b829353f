// Package recovery implements the system-wide recovery journal: a single
// circular write-ahead log that serializes every logical-to-physical
// mapping change before it reaches the block map or a slab journal (spec
// §4.5). The journal's head, persisted in every block, is the lowest
// sequence number the block map's oldest dirty era still depends on; reap
// never advances past it.
package recovery

import (
	"encoding/binary"
	"fmt"

	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// MetadataType distinguishes a recovery-journal block from any other
// on-disk structure sharing the same block size.
type MetadataType uint8

const MetadataTypeRecoveryJournal MetadataType = 2

// BlockHeader is the fixed-size packed prefix of every recovery-journal
// block. Encode writes its multi-byte fields big-endian, not little-endian.
type BlockHeader struct {
	SequenceNumber  uint64
	BlockMapHead    uint64
	SlabJournalHead uint64
	CheckByte       uint8
	RecoveryCount   uint8
	MetadataType    MetadataType
	EntryCount      uint16
}

// computeCheckByte derives the header's single-byte integrity check from
// the fields that must agree between the header and the slot it is stored
// at: the sequence number and the recovery count, which changes on every
// reboot so stale blocks left over from a previous boot are detectable.
func computeCheckByte(sequenceNumber uint64, recoveryCount uint8) uint8 {
	b := uint8(sequenceNumber) ^ uint8(sequenceNumber>>8) ^ uint8(sequenceNumber>>16) ^
		uint8(sequenceNumber>>24) ^ uint8(sequenceNumber>>32) ^ uint8(sequenceNumber>>40)
	return b ^ recoveryCount
}

// Block is one in-memory recovery-journal block: header plus the decoded
// entries appended to it so far.
type Block struct {
	Header  BlockHeader
	Entries []types.RecoveryJournalEntry
}

// EntriesPerBlock is how many packed entries fit after the header in one
// 4 KiB recovery-journal block. A packed entry is operation (1 byte) +
// slot (pbn 6 bytes + slot index 2 bytes) + mapping (pbn 6 bytes + state 1
// byte) = 16 bytes.
const entrySize = 16
const headerSize = 32

var EntriesPerBlock = (types.BlockSize - headerSize) / entrySize

// newBlock starts a fresh block at the given sequence number.
func newBlock(sequenceNumber uint64, recoveryCount uint8) *Block {
	return &Block{Header: BlockHeader{
		SequenceNumber: sequenceNumber,
		RecoveryCount:  recoveryCount,
		MetadataType:   MetadataTypeRecoveryJournal,
	}}
}

// isFull reports whether the block has reached EntriesPerBlock.
func (b *Block) isFull() bool {
	return int(b.Header.EntryCount) >= EntriesPerBlock
}

// addEntry appends e to the block.
func (b *Block) addEntry(e types.RecoveryJournalEntry) error {
	if b.isFull() {
		return fmt.Errorf("recovery: block %d is full: %w", b.Header.SequenceNumber, vdoerr.ErrNoSpace)
	}
	b.Entries = append(b.Entries, e)
	b.Header.EntryCount++
	return nil
}

// seal finalizes a block's header (check byte, head fields) immediately
// before it is handed off for writing.
func (b *Block) seal(blockMapHead, slabJournalHead uint64) {
	b.Header.BlockMapHead = blockMapHead
	b.Header.SlabJournalHead = slabJournalHead
	b.Header.CheckByte = computeCheckByte(b.Header.SequenceNumber, b.Header.RecoveryCount)
}

// ValidateHeader reports whether h's check byte and metadata type are
// internally consistent, independent of where it is stored.
func ValidateHeader(h BlockHeader) error {
	if h.MetadataType != MetadataTypeRecoveryJournal {
		return fmt.Errorf("recovery: wrong metadata type %d: %w", h.MetadataType, vdoerr.ErrCorruptJournal)
	}
	if h.CheckByte != computeCheckByte(h.SequenceNumber, h.RecoveryCount) {
		return fmt.Errorf("recovery: check byte mismatch at sequence %d: %w", h.SequenceNumber, vdoerr.ErrCorruptJournal)
	}
	return nil
}

func putPBN48(buf []byte, pbn types.PBN) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(pbn))
	copy(buf, tmp[2:])
}

func getPBN48(buf []byte) types.PBN {
	var tmp [8]byte
	copy(tmp[2:], buf[:6])
	return types.PBN(binary.BigEndian.Uint64(tmp[:]))
}

// Encode packs the block's header and entries into a single, fixed
// types.BlockSize buffer: a 32-byte header followed by up to
// EntriesPerBlock 16-byte packed entries, with every multi-byte field
// written big-endian.
func (b *Block) Encode() []byte {
	buf := make([]byte, types.BlockSize)
	binary.BigEndian.PutUint64(buf[0:], b.Header.SequenceNumber)
	binary.BigEndian.PutUint64(buf[8:], b.Header.BlockMapHead)
	binary.BigEndian.PutUint64(buf[16:], b.Header.SlabJournalHead)
	buf[24] = b.Header.CheckByte
	buf[25] = b.Header.RecoveryCount
	buf[26] = uint8(b.Header.MetadataType)
	binary.BigEndian.PutUint16(buf[27:], b.Header.EntryCount)

	for i, e := range b.Entries {
		off := headerSize + i*entrySize
		buf[off] = uint8(e.Operation)
		putPBN48(buf[off+1:], e.Slot.PBN)
		binary.BigEndian.PutUint16(buf[off+7:], e.Slot.SlotIndex)
		putPBN48(buf[off+9:], e.Mapping.PBN)
		buf[off+15] = uint8(e.Mapping.State)
	}
	return buf
}

// DecodeBlock reverses Encode, validating the header before trusting
// EntryCount to bound how many packed entries to read back.
func DecodeBlock(buf []byte) (*Block, error) {
	if len(buf) != types.BlockSize {
		return nil, fmt.Errorf("recovery: decode block: buffer length %d != block size %d: %w", len(buf), types.BlockSize, vdoerr.ErrCorruptJournal)
	}
	h := BlockHeader{
		SequenceNumber:  binary.BigEndian.Uint64(buf[0:]),
		BlockMapHead:    binary.BigEndian.Uint64(buf[8:]),
		SlabJournalHead: binary.BigEndian.Uint64(buf[16:]),
		CheckByte:       buf[24],
		RecoveryCount:   buf[25],
		MetadataType:    MetadataType(buf[26]),
		EntryCount:      binary.BigEndian.Uint16(buf[27:]),
	}
	if err := ValidateHeader(h); err != nil {
		return nil, err
	}
	if int(h.EntryCount) > EntriesPerBlock {
		return nil, fmt.Errorf("recovery: decode block %d: entry count %d exceeds %d per block: %w",
			h.SequenceNumber, h.EntryCount, EntriesPerBlock, vdoerr.ErrCorruptJournal)
	}

	block := &Block{Header: h, Entries: make([]types.RecoveryJournalEntry, h.EntryCount)}
	for i := range block.Entries {
		off := headerSize + i*entrySize
		block.Entries[i] = types.RecoveryJournalEntry{
			Operation: types.JournalOperation(buf[off]),
			Slot: types.BlockMapSlot{
				PBN:       getPBN48(buf[off+1:]),
				SlotIndex: binary.BigEndian.Uint16(buf[off+7:]),
			},
			Mapping: types.BlockMapping{
				PBN:   getPBN48(buf[off+9:]),
				State: types.MappingState(buf[off+15]),
			},
		}
	}
	return block, nil
}
