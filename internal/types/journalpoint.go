package types

import "encoding/binary"

// JournalPoint is a total-ordered position within a journal: the sequence
// number of the containing block, plus the count of entries already
// admitted to that block. EntryCount distinguishes two positions within
// the same block.
type JournalPoint struct {
	SequenceNumber uint64
	EntryCount     uint16
}

// Before reports whether p sorts strictly before q: first by sequence
// number, then by entry count. This is a strict total order over valid
// points (spec §8, "journal-point ordering").
func Before(p, q JournalPoint) bool {
	if p.SequenceNumber != q.SequenceNumber {
		return p.SequenceNumber < q.SequenceNumber
	}
	return p.EntryCount < q.EntryCount
}

// AtOrBefore reports whether p sorts at or before q.
func AtOrBefore(p, q JournalPoint) bool {
	return p == q || Before(p, q)
}

// AdvanceJournalPoint returns the next point after p within the same block,
// i.e. with the entry count incremented. It is monotone: the result always
// sorts after p.
func AdvanceJournalPoint(p JournalPoint) JournalPoint {
	return JournalPoint{SequenceNumber: p.SequenceNumber, EntryCount: p.EntryCount + 1}
}

// PackedJournalPointSize is the on-disk size in bytes of a packed journal
// point.
const PackedJournalPointSize = 8

// PackJournalPoint encodes p as a little-endian u64 with the sequence
// number in bits 16..63 and the entry count in bits 0..15, per spec §6.
func PackJournalPoint(p JournalPoint) uint64 {
	return (p.SequenceNumber << 16) | uint64(p.EntryCount&0xffff)
}

// UnpackJournalPoint is the inverse of PackJournalPoint.
func UnpackJournalPoint(packed uint64) JournalPoint {
	return JournalPoint{
		SequenceNumber: packed >> 16,
		EntryCount:     uint16(packed & 0xffff),
	}
}

// PutPackedJournalPoint writes the little-endian encoding of p into buf,
// which must be at least PackedJournalPointSize bytes.
func PutPackedJournalPoint(buf []byte, p JournalPoint) {
	binary.LittleEndian.PutUint64(buf, PackJournalPoint(p))
}

// GetPackedJournalPoint reads a packed journal point from buf, which must
// be at least PackedJournalPointSize bytes.
func GetPackedJournalPoint(buf []byte) JournalPoint {
	return UnpackJournalPoint(binary.LittleEndian.Uint64(buf))
}
