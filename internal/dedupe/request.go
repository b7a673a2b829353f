package dedupe

import (
	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/waiter"
)

// Action is what a request asks the index to do with its chunk name.
type Action uint8

const (
	ActionPost Action = iota
	ActionUpdate
	ActionDelete
	ActionQuery
)

// ControlAction fences open-chapter lifecycle across zones. Control
// messages travel the same per-zone queues as client requests and are
// distinguished from them by IsControl (spec §4.6).
type ControlAction uint8

const (
	ControlNone ControlAction = iota
	ControlSparseCacheBarrier
	ControlAnnounceChapterClosed
)

// Request is one dedupe-index operation, carried through the
// triage -> index -> callback pipeline.
type Request struct {
	Name    types.ChunkName
	Action  Action
	Advice  Advice
	Control ControlAction
	// VirtualChapter is meaningful only for control requests: the
	// chapter being announced closed, or the chapter a sparse-cache
	// addition must be fenced against.
	VirtualChapter VirtualChapter

	Callback func(Result)
}

// Result is what a request's callback receives.
type Result struct {
	Advice Advice
	Found  bool
	Err    error
}

// Zone is one hash-zone's slice of the index: its own open-chapter shard
// plus a reference to the zone-shared volume index (dense + sparse
// regions), and the barrier bookkeeping needed to keep every zone's view
// of chapter boundaries consistent.
type Zone struct {
	Index int

	open   *OpenChapter
	volume *VolumeIndex

	// closedChapter is the virtual chapter number this zone's open
	// chapter will become when it next closes.
	closedChapter VirtualChapter

	// barrierWaiters holds zones/requests waiting at a
	// sparse-cache-barrier or announce-chapter-closed fence for this
	// zone to catch up.
	barrierWaiters waiter.Queue
	// acked is allocated by NewZone and handleControl, but no code path
	// records a peer zone's acknowledgement in it.
	acked map[int]bool
}

// NewZone creates hash zone index's shard, opening its first chapter at
// virtual chapter number 0.
func NewZone(index int, capacity int, loadRatio float64, volume *VolumeIndex) *Zone {
	return &Zone{
		Index:  index,
		open:   NewOpenChapter(capacity, loadRatio),
		volume: volume,
		acked:  make(map[int]bool),
	}
}

// Triage selects which zone owns req by the low bits of its fingerprint
// (spec §4.6).
func Triage(req *Request, zoneCount int) int {
	return req.Name.ZoneIndex(zoneCount)
}

// ChapterClosedBroadcaster delivers an announce-chapter-closed control
// message to every zone other than the one that closed its chapter (spec
// §4.6). Receiving zones release their barrier waiters; the closing zone
// opens its next chapter right after broadcasting, and no zone waits for
// its peers before doing so.
type ChapterClosedBroadcaster interface {
	Broadcast(fromZone int, virtualChapter VirtualChapter)
}

// HandleRequest runs one request through this zone's index stage:
// triage has already happened (the caller routed req to this zone), so
// HandleRequest just executes the action and invokes the callback, unless
// req is a control message, which instead advances zone-barrier state.
func (z *Zone) HandleRequest(req *Request, broadcaster ChapterClosedBroadcaster) {
	if req.Control != ControlNone {
		z.handleControl(req, broadcaster)
		return
	}

	var result Result
	switch req.Action {
	case ActionPost, ActionUpdate:
		if err := z.open.Put(req.Name, req.Advice); err != nil {
			result.Err = err
			break
		}
		if z.open.IsFull() {
			z.closeChapter(broadcaster)
		}
	case ActionDelete:
		z.open.Remove(req.Name)
	case ActionQuery:
		if a, ok := z.open.Search(req.Name); ok {
			result.Advice, result.Found = a, true
		} else if a, ok := z.volume.Search(req.Name); ok {
			result.Advice, result.Found = a, true
		}
	}

	if req.Callback != nil {
		req.Callback(result)
	}
}

func (z *Zone) handleControl(req *Request, broadcaster ChapterClosedBroadcaster) {
	switch req.Control {
	case ControlAnnounceChapterClosed:
		if z.acked == nil {
			z.acked = make(map[int]bool)
		}
		// A peer zone closed virtual chapter req.VirtualChapter; this
		// zone must not open a chapter past that number until it has
		// also closed through it. In this reference implementation each
		// zone's chapters are numbered independently per-zone, and the
		// first announce message releases every barrier waiter; no count
		// of acknowledging zones is kept and chapter opens are not gated
		// here.
		z.barrierWaiters.NotifyAll(nil, req.VirtualChapter)
	case ControlSparseCacheBarrier:
		// All zones must agree on sparse-cache contents before any
		// proceeds past the barrier for this chapter; since the volume
		// index here is already zone-shared (not per-zone), the fence is
		// a no-op beyond releasing waiters.
		z.barrierWaiters.NotifyAll(nil, req.VirtualChapter)
	}
	if req.Callback != nil {
		req.Callback(Result{})
	}
}

// closeChapter commits the zone's open-chapter records to the shared
// volume index as the next virtual chapter, broadcasts
// announce-chapter-closed to every other zone, and opens a fresh shard.
func (z *Zone) closeChapter(broadcaster ChapterClosedBroadcaster) {
	records := make(DenseRecords, z.open.Size())
	for i := 1; i <= z.open.size; i++ {
		r := z.open.records[i]
		if r.used && !r.deleted {
			records[r.name] = r.advice
		}
	}
	v := z.closedChapter
	z.volume.CloseChapter(v, records)
	z.closedChapter++

	if broadcaster != nil {
		broadcaster.Broadcast(z.Index, v)
	}

	z.open = NewOpenChapter(z.open.capacity, z.open.loadRatio)
}

// WaitForBarrier enqueues w to be released the next time this zone
// processes an announce-chapter-closed or sparse-cache-barrier control
// message.
func (z *Zone) WaitForBarrier(w *waiter.Waiter) {
	z.barrierWaiters.Enqueue(w)
}

// Fanout is a simple in-process ChapterClosedBroadcaster over a fixed set
// of zones, used where no real cross-thread message bus is wired (tests,
// and the small-device single-zone fallback has no peers to notify).
type Fanout struct {
	Zones []*Zone
}

func (f *Fanout) Broadcast(fromZone int, virtualChapter VirtualChapter) {
	for _, z := range f.Zones {
		if z.Index == fromZone {
			continue
		}
		z.barrierWaiters.NotifyAll(nil, virtualChapter)
	}
}
