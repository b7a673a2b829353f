// Package slabsummary implements the compact per-slab cleanliness and
// free-count hint persisted alongside the slab depot (spec §2, §4.3). It
// is deliberately lossy: FreeBlockHint is a coarse approximation, never an
// authoritative answer to "how many blocks are free" — only the slab's own
// reference-count array can answer that exactly. The depot's allocator
// does not read this package; it ranks slabs by their exact free counts.
package slabsummary

import "fmt"

// Entry is one slab's summary record.
type Entry struct {
	// FreeBlockHint is an approximate count of free blocks in the slab,
	// good enough to rank slabs for allocation but not authoritative.
	FreeBlockHint uint32
	// IsClean reports whether the slab's reference counts reflect all
	// journal entries durable at the last save: false means scrubbing is
	// required before the slab may be used.
	IsClean bool
	// LoadRefCounts reports whether a saved reference-count image exists
	// on disk for this slab (false for a never-yet-used slab).
	LoadRefCounts bool
	// TailBlockOffset is the slab-journal block offset the depot should
	// resume writing at.
	TailBlockOffset uint64
}

// Summary is the full array of per-slab summary entries, one per slab in
// the depot.
type Summary struct {
	entries []Entry
}

// NewSummary allocates a summary for slabCount slabs, all initially marked
// dirty (requiring scrubbing) with zero free-block hints: this matches the
// state VDO formats a fresh device into before any slab has ever been
// used, and is also the conservative default after an unclean shutdown
// where no summary information can be trusted.
func NewSummary(slabCount int) *Summary {
	entries := make([]Entry, slabCount)
	for i := range entries {
		entries[i] = Entry{IsClean: false, LoadRefCounts: false}
	}
	return &Summary{entries: entries}
}

// Len returns the number of slabs this summary covers.
func (s *Summary) Len() int { return len(s.entries) }

// Get returns the summary entry for the given slab index.
func (s *Summary) Get(slab int) (Entry, error) {
	if slab < 0 || slab >= len(s.entries) {
		return Entry{}, fmt.Errorf("slabsummary: slab %d out of range [0,%d)", slab, len(s.entries))
	}
	return s.entries[slab], nil
}

// Update overwrites the summary entry for slab. No code in the depot calls
// it when a slab's reference counts are saved.
func (s *Summary) Update(slab int, e Entry) error {
	if slab < 0 || slab >= len(s.entries) {
		return fmt.Errorf("slabsummary: slab %d out of range [0,%d)", slab, len(s.entries))
	}
	s.entries[slab] = e
	return nil
}

// DirtySlabs returns the indices of every slab whose summary entry is not
// clean, in ascending order. These are the slabs the scrubber must
// recover after an unclean shutdown (spec §7, "scrubs all slabs whose
// summary reports dirty").
func (s *Summary) DirtySlabs() []int {
	var dirty []int
	for i, e := range s.entries {
		if !e.IsClean {
			dirty = append(dirty, i)
		}
	}
	return dirty
}
