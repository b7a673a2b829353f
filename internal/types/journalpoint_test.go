package types

import "testing"

func TestPackUnpackJournalPointRoundTrip(t *testing.T) {
	cases := []JournalPoint{
		{SequenceNumber: 0, EntryCount: 0},
		{SequenceNumber: 1, EntryCount: 1},
		{SequenceNumber: 0xffffffffffff, EntryCount: 0xffff},
		{SequenceNumber: 12345, EntryCount: 7},
	}
	for _, p := range cases {
		packed := PackJournalPoint(p)
		got := UnpackJournalPoint(packed)
		if got != p {
			t.Errorf("round trip mismatch: want %+v, got %+v", p, got)
		}
	}
}

func TestPackedJournalPointBuffer(t *testing.T) {
	p := JournalPoint{SequenceNumber: 99, EntryCount: 3}
	buf := make([]byte, PackedJournalPointSize)
	PutPackedJournalPoint(buf, p)
	got := GetPackedJournalPoint(buf)
	if got != p {
		t.Errorf("buffer round trip mismatch: want %+v, got %+v", p, got)
	}
}

func TestBeforeIsStrictTotalOrder(t *testing.T) {
	a := JournalPoint{SequenceNumber: 1, EntryCount: 0}
	b := JournalPoint{SequenceNumber: 1, EntryCount: 1}
	c := JournalPoint{SequenceNumber: 2, EntryCount: 0}

	if !Before(a, b) {
		t.Error("expected a before b")
	}
	if !Before(b, c) {
		t.Error("expected b before c")
	}
	if !Before(a, c) {
		t.Error("expected transitivity: a before c")
	}
	if Before(a, a) {
		t.Error("a should not be before itself")
	}
	if !AtOrBefore(a, a) {
		t.Error("AtOrBefore should hold for equal points")
	}
}

func TestAdvanceJournalPointMonotone(t *testing.T) {
	p := JournalPoint{SequenceNumber: 5, EntryCount: 10}
	next := AdvanceJournalPoint(p)
	if !Before(p, next) {
		t.Errorf("advance must be monotone: %+v then %+v", p, next)
	}
	if next.SequenceNumber != p.SequenceNumber {
		t.Errorf("advance within a block must not change sequence number")
	}
}

func TestMappingStateCompressedSlots(t *testing.T) {
	for k := 0; k < MaxCompressedSlots; k++ {
		s := MappingStateCompressed(k)
		if !s.IsCompressed() {
			t.Errorf("slot %d: expected compressed state", k)
		}
		if got := s.CompressedSlot(); got != k {
			t.Errorf("slot %d: round trip got %d", k, got)
		}
	}
}

func TestBlockMappingValidity(t *testing.T) {
	cases := []struct {
		name string
		m    BlockMapping
		want bool
	}{
		{"unmapped zero pbn", BlockMapping{PBN: 0, State: MappingStateUnmapped}, true},
		{"unmapped nonzero pbn", BlockMapping{PBN: 1, State: MappingStateUnmapped}, false},
		{"zero block", BlockMapping{PBN: 0, State: MappingStateZeroBlock}, true},
		{"mapped", BlockMapping{PBN: 42, State: MappingStateUncompressed}, true},
		{"mapped zero pbn invalid", BlockMapping{PBN: 0, State: MappingStateUncompressed}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.m.IsValid(); got != c.want {
				t.Errorf("IsValid() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestChunkNameZoneIndexStable(t *testing.T) {
	var name ChunkName
	name[0] = 7
	idx1 := name.ZoneIndex(4)
	idx2 := name.ZoneIndex(4)
	if idx1 != idx2 {
		t.Errorf("zone routing must be deterministic: got %d and %d", idx1, idx2)
	}
	if idx1 < 0 || idx1 >= 4 {
		t.Errorf("zone index out of range: %d", idx1)
	}
}
