package depot

import (
	"fmt"

	"github.com/KnightKu/kvdo/internal/waiter"
)

// ScrubberAdminState is the scrubber's own small admin state machine,
// independent of the device-wide one: normal work proceeds only while
// running, and stop_scrubbing/resume_scrubbing move it between running
// and suspended (spec §4.3).
type ScrubberAdminState uint8

const (
	ScrubberRunning ScrubberAdminState = iota
	ScrubberStopping
	ScrubberSuspended
)

// ErrorHandler is invoked once, with the first error encountered, if
// scrubbing a slab fails; per spec §4.3 the read-only notifier must be
// triggered and scrubbing aborted at that point. The depot caller is
// expected to wire this to the read-only notifier.
type ErrorHandler func(err error)

// Scrubber recovers slabs left dirty by an unclean shutdown: it replays
// each slab's journal into its reference-count array, then saves the
// result, before the slab may be handed to the allocator. It maintains a
// priority list (drained first, e.g. slabs blocking recovery-journal
// reap) and a normal list, processes exactly one slab at a time, and lets
// callers wait for "a clean slab" via a FIFO waiter queue (spec §4.3).
type Scrubber struct {
	normal   []*Slab
	priority []*Slab

	current *ScrubJob
	waiters waiter.Queue

	state            ScrubberAdminState
	highPriorityOnly bool
}

// ScrubJob identifies the slab currently in flight.
type ScrubJob struct {
	Slab *Slab
}

// NewScrubber creates a scrubber over the given dirty slabs, split into
// priority (scrubbed first, e.g. slabs the recovery journal is waiting on
// to reap) and normal lists.
func NewScrubber(priority, normal []*Slab) *Scrubber {
	return &Scrubber{
		normal:   append([]*Slab(nil), normal...),
		priority: append([]*Slab(nil), priority...),
		state:    ScrubberRunning,
	}
}

// PendingCount returns the number of slabs not yet scrubbed, across both
// lists plus any slab currently in flight.
func (s *Scrubber) PendingCount() int {
	n := len(s.normal) + len(s.priority)
	if s.current != nil {
		n++
	}
	return n
}

// HighPriorityOnly suppresses draining the normal list, e.g. during
// recovery when only the slabs blocking journal reap matter yet (spec
// §4.3). It takes effect on the next slab picked up, not the one already
// in flight.
func (s *Scrubber) HighPriorityOnly(enabled bool) {
	s.highPriorityOnly = enabled
}

// StopScrubbing transitions the scrubber toward suspended: the slab
// currently in flight finishes, but no further slab is started until
// ResumeScrubbing is called.
func (s *Scrubber) StopScrubbing() {
	if s.state == ScrubberRunning {
		s.state = ScrubberStopping
	}
}

// ResumeScrubbing returns the scrubber to running. It is a no-op if no
// work remains (spec §4.3: "resume_scrubbing is a no-op if no work
// remains").
func (s *Scrubber) ResumeScrubbing() {
	if s.PendingCount() == 0 {
		return
	}
	s.state = ScrubberRunning
}

// next picks the next slab to scrub, priority list first, honoring
// highPriorityOnly, or nil if nothing is eligible right now.
func (s *Scrubber) next() *Slab {
	if len(s.priority) > 0 {
		slab := s.priority[0]
		s.priority = s.priority[1:]
		return slab
	}
	if s.highPriorityOnly {
		return nil
	}
	if len(s.normal) > 0 {
		slab := s.normal[0]
		s.normal = s.normal[1:]
		return slab
	}
	return nil
}

// SlabReader loads a slab's retained journal blocks and prior reference-
// count image from storage, so Scrub can replay and save it. This is the
// depot's collaborator into the out-of-scope on-disk page allocator (spec
// §1, "out of scope: the on-disk page allocator for raw reads and
// writes").
type SlabReader interface {
	LoadJournal(slab *Slab) error
	SaveReferenceCounts(slab *Slab) error
}

// ScrubSlabs drains the priority list, then (unless HighPriorityOnly is
// set) the normal list, one slab at a time: each slab is read, its
// journal entries applied, then its reference counts saved. cb is called
// after each slab completes successfully; errcb is called at most once,
// on the first failure, and scrubbing aborts at that point without
// starting any further slab (spec §4.3).
func (s *Scrubber) ScrubSlabs(reader SlabReader, cb func(*Slab), errcb ErrorHandler) {
	for {
		if s.state != ScrubberRunning {
			return
		}
		slab := s.next()
		if slab == nil {
			s.notifyWaitersIfDone()
			return
		}
		s.current = &ScrubJob{Slab: slab}

		if err := s.scrubOne(reader, slab); err != nil {
			s.current = nil
			if errcb != nil {
				errcb(fmt.Errorf("depot: scrub slab %d: %w", slab.Index, err))
			}
			return
		}

		s.current = nil
		if cb != nil {
			cb(slab)
		}
		s.waiters.NotifyNext(nil, slab)

		if s.state == ScrubberStopping {
			s.state = ScrubberSuspended
			return
		}
	}
}

func (s *Scrubber) scrubOne(reader SlabReader, slab *Slab) error {
	if err := slab.BeginScrubbing(); err != nil {
		return err
	}
	if err := reader.LoadJournal(slab); err != nil {
		return err
	}
	if err := slab.Journal.Scrub(slab.RefCounts, slab.BlockCount); err != nil {
		return err
	}
	if err := reader.SaveReferenceCounts(slab); err != nil {
		return err
	}
	return slab.MarkClean()
}

func (s *Scrubber) notifyWaitersIfDone() {
	if s.PendingCount() == 0 {
		s.waiters.NotifyAll(nil, nil)
	}
}

// WaitForCleanSlab enqueues w to be notified the next time any slab
// finishes scrubbing (or immediately, by the caller checking PendingCount
// == 0 first, if none are pending at all).
func (s *Scrubber) WaitForCleanSlab(w *waiter.Waiter) {
	s.waiters.Enqueue(w)
}
