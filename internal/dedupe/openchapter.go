// Package dedupe implements the deduplication index (UDS): a
// content-addressable advice service that, given a 16-byte chunk
// fingerprint, returns a probable prior physical location. It is a ring
// of chapters — one open chapter buffering recent records in memory, a
// dense region of fully-resident closed chapters, and a sparse region of
// older chapters cached on demand — fed by a triage -> index -> callback
// request pipeline (spec §4.6).
package dedupe

import (
	"fmt"

	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// Advice is the metadata an index record carries: the physical block a
// fingerprint was last posted against.
type Advice struct {
	PBN          types.PBN
	MappingState types.MappingState
}

// record is one open-chapter slot. Slot 0 is never used for a real
// record; it is the hash table's empty sentinel (spec §4.6).
type record struct {
	name    types.ChunkName
	advice  Advice
	deleted bool
	used    bool
}

// OpenChapter is one zone's shard of the currently-open chapter: a hash
// table over a records array sized capacity+1, probed quadratically.
type OpenChapter struct {
	capacity  int
	loadRatio float64
	records   []record // index 0 is the sentinel, never assigned
	slots     []int    // hash table of indices into records, 0 == empty
	size      int       // number of records appended, tombstoned ones included
	deleted   int
}

// NewOpenChapter creates a shard holding up to capacity records, with a
// hash table sized to the next power of two >= capacity * loadRatio
// (spec §4.6).
func NewOpenChapter(capacity int, loadRatio float64) *OpenChapter {
	slotCount := nextPowerOfTwo(int(float64(capacity) * loadRatio))
	if slotCount < 1 {
		slotCount = 1
	}
	return &OpenChapter{
		capacity:  capacity,
		loadRatio: loadRatio,
		records:   make([]record, capacity+1),
		slots:     make([]int, slotCount),
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// probe returns the hash-table slot index for name at the given probe
// step, using the quadratic sequence 1,2,3,... modulo slot count, which
// is exact because the table size is a power of two (spec §4.6).
func (c *OpenChapter) probe(name types.ChunkName, step int) int {
	h := chunkNameHash(name)
	mask := uint64(len(c.slots) - 1)
	return int((h + uint64(step*(step+1)/2)) & mask)
}

func chunkNameHash(name types.ChunkName) uint64 {
	var h uint64 = 14695981039346656037
	for _, b := range name {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}

// findSlot locates the hash-table slot holding name, or the first
// available slot to insert it into if absent. found reports whether an
// existing live record was located.
func (c *OpenChapter) findSlot(name types.ChunkName) (slot int, recordIndex int, found bool) {
	for step := 0; step < len(c.slots); step++ {
		slot = c.probe(name, step)
		idx := c.slots[slot]
		if idx == 0 {
			return slot, 0, false
		}
		r := &c.records[idx]
		if r.deleted {
			continue // tombstone: probe chain continues past it, but it is not reused here
		}
		if r.name == name {
			return slot, idx, true
		}
	}
	return -1, 0, false
}

// Put inserts or updates the record for name. Updating an existing
// record always succeeds even at capacity; inserting a new name fails
// with volume-overflow once size == capacity (spec §4.6, §8).
func (c *OpenChapter) Put(name types.ChunkName, advice Advice) error {
	slot, idx, found := c.findSlot(name)
	if found {
		c.records[idx].advice = advice
		return nil
	}
	if c.size >= c.capacity {
		return fmt.Errorf("dedupe: open chapter at capacity %d: %w", c.capacity, vdoerr.ErrVolumeOverflow)
	}
	if slot < 0 {
		return fmt.Errorf("dedupe: open chapter hash table exhausted: %w", vdoerr.ErrVolumeOverflow)
	}
	c.size++
	newIndex := c.size
	c.records[newIndex] = record{name: name, advice: advice, used: true}
	c.slots[slot] = newIndex
	return nil
}

// Remove tombstones the record for name, if present. Probe chains
// continue through tombstones but insertion never reclaims the slot
// until the chapter closes (spec §4.6).
func (c *OpenChapter) Remove(name types.ChunkName) {
	_, idx, found := c.findSlot(name)
	if !found {
		return
	}
	c.records[idx].deleted = true
	c.deleted++
}

// Search returns the advice for name, if a live record exists.
func (c *OpenChapter) Search(name types.ChunkName) (Advice, bool) {
	_, idx, found := c.findSlot(name)
	if !found {
		return Advice{}, false
	}
	return c.records[idx].advice, true
}

// Size returns the number of records appended since the chapter opened,
// including those since tombstoned by Remove. Capacity-exhaustion in Put is
// checked against this, matching spec §4.6's "fails ... when
// size equals capacity" (tombstones do not free capacity within a
// chapter).
func (c *OpenChapter) Size() int { return c.size }

// Capacity returns the maximum number of records this shard may hold.
func (c *OpenChapter) Capacity() int { return c.capacity }

// IsFull reports whether the next Put of a brand-new name would overflow.
func (c *OpenChapter) IsFull() bool { return c.size >= c.capacity }
