package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/KnightKu/kvdo/internal/logging"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

func TestEnterReadOnlyOnlyWinnerNotifies(t *testing.T) {
	n := NewReadOnlyNotifier(logging.NewNop())
	calls := 0
	n.RegisterListener(0, func(errCode int32) { calls++ })

	if !n.EnterReadOnly(5) {
		t.Fatal("expected first call to win the race")
	}
	if n.EnterReadOnly(9) {
		t.Fatal("expected second call to lose the race")
	}
	if calls != 1 {
		t.Fatalf("expected listener called exactly once, got %d", calls)
	}
	if !n.IsReadOnly() {
		t.Fatal("expected device to report read-only")
	}
}

func TestListenerNotifiedExactlyOncePerThread(t *testing.T) {
	// Scenario S6: a registered per-thread listener is notified exactly
	// once.
	n := NewReadOnlyNotifier(logging.NewNop())
	var gotCodes []int32
	n.RegisterListener(3, func(errCode int32) { gotCodes = append(gotCodes, errCode) })

	n.EnterReadOnly(42)

	if len(gotCodes) != 1 || gotCodes[0] != 42 {
		t.Fatalf("expected exactly one notification with code 42, got %v", gotCodes)
	}
}

func TestDeferredNotificationFiresOnAllowNotifications(t *testing.T) {
	n := NewReadOnlyNotifier(logging.NewNop())
	notified := false
	n.RegisterListener(0, func(errCode int32) { notified = true })

	n.DisallowNotifications()
	n.EnterReadOnly(1)
	if notified {
		t.Fatal("expected notification deferred while notifications are disallowed")
	}

	n.AllowNotifications()
	if !notified {
		t.Fatal("expected deferred notification to fire once notifications are re-allowed")
	}
}

func TestThreadCacheLagsUntilRefreshed(t *testing.T) {
	n := NewReadOnlyNotifier(logging.NewNop())
	cache := NewThreadCache(n)
	if cache.IsReadOnly() {
		t.Fatal("expected cache to start not-read-only")
	}

	n.EnterReadOnly(1)
	if cache.IsReadOnly() {
		t.Fatal("expected cache to still lag before Refresh")
	}

	cache.Refresh()
	if !cache.IsReadOnly() {
		t.Fatal("expected cache to observe read-only after Refresh")
	}
}

func TestStateMachineRunsPhasesInOrder(t *testing.T) {
	sm := NewStateMachine(logging.NewNop(), nil)
	var order []string
	hooks := SuspendHooks{
		Start:           func(ctx context.Context) error { order = append(order, "start"); return nil },
		DrainPacker:     func(ctx context.Context) error { order = append(order, "drain-packer"); return nil },
		WriteSuperBlock: func(ctx context.Context) error { order = append(order, "write-super-block"); return nil },
		End:             func(ctx context.Context) error { order = append(order, "end"); return nil },
	}
	if err := sm.Run(context.Background(), OpSuspend, SuspendPhases(hooks)); err != nil {
		t.Fatal(err)
	}
	want := []string{"start", "drain-packer", "write-super-block", "end"}
	if len(order) != len(want) {
		t.Fatalf("got order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got order %v, want %v", order, want)
		}
	}
}

func TestStateMachineTreatsReadOnlyPhaseResultAsSuccess(t *testing.T) {
	notifier := NewReadOnlyNotifier(logging.NewNop())
	sm := NewStateMachine(logging.NewNop(), notifier)
	ranEnd := false
	hooks := SuspendHooks{
		DrainJournal: func(ctx context.Context) error { return vdoerr.ErrReadOnly },
		End:          func(ctx context.Context) error { ranEnd = true; return nil },
	}
	if err := sm.Run(context.Background(), OpSuspend, SuspendPhases(hooks)); err != nil {
		t.Fatalf("expected read-only outcome to be treated as success, got %v", err)
	}
	if ranEnd {
		t.Fatal("expected the sequence to stop at the read-only phase, not continue to end")
	}
}

func TestStateMachineEscalatesUnexpectedErrorToReadOnly(t *testing.T) {
	notifier := NewReadOnlyNotifier(logging.NewNop())
	sm := NewStateMachine(logging.NewNop(), notifier)
	boom := errors.New("boom")
	hooks := SuspendHooks{
		DrainJournal: func(ctx context.Context) error { return boom },
	}
	err := sm.Run(context.Background(), OpSuspend, SuspendPhases(hooks))
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom error, got %v", err)
	}
	if !notifier.IsReadOnly() {
		t.Fatal("expected an unexpected phase failure to escalate the device into read-only")
	}
}
