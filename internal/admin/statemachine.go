package admin

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// Operation names one of the admin state machine's top-level entries
// (spec §4.8): suspend, resume, save, grow-logical, and grow-physical each
// run as a sequence of phases on specified threads.
type Operation int

const (
	OpSuspend Operation = iota
	OpResume
	OpSave
	OpGrowLogical
	OpGrowPhysical
)

func (op Operation) String() string {
	switch op {
	case OpSuspend:
		return "suspend"
	case OpResume:
		return "resume"
	case OpSave:
		return "save"
	case OpGrowLogical:
		return "grow-logical"
	case OpGrowPhysical:
		return "grow-physical"
	default:
		return "unknown"
	}
}

// Phase is one named step of an admin operation's sequence. Run either
// completes synchronously or drives a drain and blocks until it finishes;
// the state machine itself does not care which, it only sequences them.
type Phase struct {
	Name string
	Run  func(ctx context.Context) error
}

// SuspendPhases is the phase sequence spec §4.8 names verbatim: start,
// drain every zone kind outward from the host-facing side inward to the
// depot, then wait for any in-flight read-only transition to settle,
// write the super block, and end.
func SuspendPhases(hooks SuspendHooks) []Phase {
	return []Phase{
		{"start", hooks.Start},
		{"drain-packer", hooks.DrainPacker},
		{"drain-data-vios", hooks.DrainDataVIOs},
		{"drain-flusher", hooks.DrainFlusher},
		{"drain-logical-zones", hooks.DrainLogicalZones},
		{"drain-block-map", hooks.DrainBlockMap},
		{"drain-journal", hooks.DrainJournal},
		{"drain-depot", hooks.DrainDepot},
		{"wait-read-only", hooks.WaitReadOnly},
		{"write-super-block", hooks.WriteSuperBlock},
		{"end", hooks.End},
	}
}

// SuspendHooks supplies one callback per SuspendPhases entry. A nil hook is
// treated as an immediate no-op success, so callers only need to supply the
// phases their configuration actually touches.
type SuspendHooks struct {
	Start             func(ctx context.Context) error
	DrainPacker       func(ctx context.Context) error
	DrainDataVIOs     func(ctx context.Context) error
	DrainFlusher      func(ctx context.Context) error
	DrainLogicalZones func(ctx context.Context) error
	DrainBlockMap     func(ctx context.Context) error
	DrainJournal      func(ctx context.Context) error
	DrainDepot        func(ctx context.Context) error
	WaitReadOnly      func(ctx context.Context) error
	WriteSuperBlock   func(ctx context.Context) error
	End               func(ctx context.Context) error
}

func noopOnNil(fn func(ctx context.Context) error) func(ctx context.Context) error {
	if fn != nil {
		return fn
	}
	return func(ctx context.Context) error { return nil }
}

// StateMachine sequences one admin operation's phases, stopping at the
// first phase that fails for any reason other than read-only (spec §4.8:
// "A drain fails fast into read-only if a synchronous flush fails" and
// "Treating a read-only outcome of suspend as success - the device is
// still suspended - is intentional").
type StateMachine struct {
	log      *zap.SugaredLogger
	notifier *ReadOnlyNotifier
}

// NewStateMachine creates a state machine that escalates unexpected phase
// failures into notifier's read-only state.
func NewStateMachine(log *zap.SugaredLogger, notifier *ReadOnlyNotifier) *StateMachine {
	return &StateMachine{log: log, notifier: notifier}
}

// Run executes phases in order. A phase returning vdoerr.ErrReadOnly (or
// wrapping it) stops the sequence and reports success, since the device is
// still suspended - just via the read-only path. Any other error stops the
// sequence, drives the notifier into read-only (if not already there), and
// is returned to the caller.
func (m *StateMachine) Run(ctx context.Context, op Operation, phases []Phase) error {
	for _, phase := range phases {
		run := noopOnNil(phase.Run)
		if m.log != nil {
			m.log.Debugw("admin phase starting", "operation", op.String(), "phase", phase.Name)
		}
		err := run(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, vdoerr.ErrReadOnly) {
			if m.log != nil {
				m.log.Warnw("admin phase ended in read-only, treating as success", "operation", op.String(), "phase", phase.Name)
			}
			return nil
		}
		if m.notifier != nil {
			m.notifier.EnterReadOnly(1)
		}
		return fmt.Errorf("admin: %s phase %q: %w", op, phase.Name, err)
	}
	return nil
}
