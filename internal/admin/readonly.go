// Package admin implements the admin state machine (spec §4.8) and the
// read-only notifier (spec §4.9): the two pieces of explicitly process-wide
// mutable state spec §9 calls out ("Global mutable state"), each
// encapsulated in its own component and injected into whatever needs it.
package admin

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// notifyState is the read-only notifier's internal state word.
type notifyState int32

const (
	mayNotify notifyState = iota
	notifying
	mayNotNotify
)

// success is the error word's value while the device has not entered
// read-only mode.
const success int32 = 0

// Listener is called exactly once when the device enters read-only mode
// (spec §4.9). Implementations must not block.
type Listener func(errCode int32)

// ReadOnlyNotifier holds the two atomic cells spec §4.9 describes as the
// only lock-free state reachable cross-thread: a shared error word and a
// shared notification-state word. Any thread may race to CAS the error
// word from success to an error code; the winner walks every registered
// listener exactly once.
//
// Each zone that asks this notifier for its status gets a lagging,
// unsynchronized cached bit instead of re-reading the atomic cell every
// time (spec §9's open question: "preserve the lagging-cache semantics...
// do not tighten this without evidence" - a transient stale read can only
// cause one extra journal write that is discarded on the journal thread,
// never a correctness violation).
type ReadOnlyNotifier struct {
	errWord   atomic.Int32
	stateWord atomic.Int32
	pending   atomic.Bool

	log *zap.SugaredLogger

	mu        sync.Mutex
	listeners map[int][]Listener
}

// NewReadOnlyNotifier creates a notifier in the not-read-only state.
func NewReadOnlyNotifier(log *zap.SugaredLogger) *ReadOnlyNotifier {
	n := &ReadOnlyNotifier{log: log, listeners: make(map[int][]Listener)}
	n.stateWord.Store(int32(mayNotify))
	return n
}

// RegisterListener adds a listener for threadID, called once whenever this
// notifier transitions to read-only after registration.
func (n *ReadOnlyNotifier) RegisterListener(threadID int, l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[threadID] = append(n.listeners[threadID], l)
}

// IsReadOnly reports the authoritative read-only state, bypassing any
// per-thread cache. Safe from any goroutine.
func (n *ReadOnlyNotifier) IsReadOnly() bool {
	return n.errWord.Load() != success
}

// EnterReadOnly attempts to CAS the error word from success to errCode. The
// winner transitions may_notify -> notifying and walks every registered
// listener on the calling goroutine; losers (the device already entered
// read-only, possibly with a different code) do nothing further. Returns
// true if this call won the race and drove notification.
func (n *ReadOnlyNotifier) EnterReadOnly(errCode int32) bool {
	if !n.errWord.CompareAndSwap(success, errCode) {
		return false
	}
	if n.log != nil {
		n.log.Errorw("device entering read-only mode", "error_code", errCode)
	}
	n.notify()
	return true
}

// notify walks the listener lists if notification is currently allowed, or
// defers to pending if a suspend/drain has temporarily disallowed it
// (may_not_notify).
func (n *ReadOnlyNotifier) notify() {
	if notifyState(n.stateWord.Load()) == mayNotNotify {
		n.pending.Store(true)
		return
	}
	n.stateWord.Store(int32(notifying))
	n.runListeners()
	n.stateWord.Store(int32(mayNotify))
}

func (n *ReadOnlyNotifier) runListeners() {
	n.mu.Lock()
	errCode := n.errWord.Load()
	snapshot := make(map[int][]Listener, len(n.listeners))
	for id, ls := range n.listeners {
		snapshot[id] = append([]Listener(nil), ls...)
	}
	n.mu.Unlock()

	for _, ls := range snapshot {
		for _, l := range ls {
			l(errCode)
		}
	}
}

// DisallowNotifications moves the state word to may_not_notify, used while
// a suspend or drain phase must not re-enter listener callbacks. Any
// EnterReadOnly race that lands during this window is deferred.
func (n *ReadOnlyNotifier) DisallowNotifications() {
	n.stateWord.Store(int32(mayNotNotify))
}

// AllowNotifications moves the state word back to may_notify and, if an
// EnterReadOnly call was deferred while notifications were disallowed,
// re-schedules it now (spec §4.9: "A pending notification deferred by
// may_not_notify is re-scheduled when notifications are re-allowed").
func (n *ReadOnlyNotifier) AllowNotifications() {
	n.stateWord.Store(int32(mayNotify))
	if n.pending.CompareAndSwap(true, false) {
		n.notify()
	}
}

// ThreadCache is one zone's lagging snapshot of the read-only state,
// refreshed explicitly rather than on every query (spec §4.9: "Each thread
// caches its own is_read_only bit so queries need no synchronization").
type ThreadCache struct {
	notifier *ReadOnlyNotifier
	cached   bool
}

// NewThreadCache creates a cache seeded from the notifier's current state.
func NewThreadCache(n *ReadOnlyNotifier) *ThreadCache {
	return &ThreadCache{notifier: n, cached: n.IsReadOnly()}
}

// IsReadOnly returns the cached bit without touching the shared atomic
// cells. It may lag a concurrent EnterReadOnly call until Refresh is next
// called on this zone's thread.
func (c *ThreadCache) IsReadOnly() bool { return c.cached }

// Refresh re-reads the authoritative state into the cache. A zone calls
// this at natural checkpoints (e.g. the top of its work loop), not on
// every query.
func (c *ThreadCache) Refresh() {
	c.cached = c.notifier.IsReadOnly()
}
