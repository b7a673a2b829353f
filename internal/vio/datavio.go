// Package vio drives one host I/O through VDO's pipeline: logical zone
// (lock + block-map lookup), hash zone (fingerprint + dedupe advice),
// physical zone (PBN lock + verify-or-allocate), and journal zone
// (recovery-journal entry, then block-map leaf update), finally
// acknowledging the host (spec §4.7).
package vio

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"

	"github.com/KnightKu/kvdo/internal/admin"
	"github.com/KnightKu/kvdo/internal/dedupe"
	"github.com/KnightKu/kvdo/internal/pbnlock"
	"github.com/KnightKu/kvdo/internal/recovery"
	"github.com/KnightKu/kvdo/internal/storage"
	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// Operation is the kind of host I/O a data-vio carries (spec §6).
type Operation uint8

const (
	OpRead Operation = iota
	OpWrite
	OpDiscard
	OpFlush
	OpFlushFUA
)

// DataVIO is the in-memory state of one host I/O: its fingerprint,
// allocated PBN (if any), current mapping, current and old advice, and the
// PBN locks it holds (spec §3, "Data-VIO").
type DataVIO struct {
	LBN         types.LBN
	Operation   Operation
	Data        []byte // exactly types.BlockSize for read/write
	Fingerprint types.ChunkName
	HasAdvice   bool
	Advice      dedupe.Advice

	OldMapping types.BlockMapping
	NewMapping types.BlockMapping

	physicalLock *pbnlock.Lock
	deduped      bool // true if the write shared an existing PBN instead of allocating
}

// Allocator is the subset of *depot.Allocator a data-vio's physical zone
// step needs.
type Allocator interface {
	Allocate(ctx context.Context) (types.PBN, error)
	ReleaseProvisional(pbn types.PBN) error
}

// DedupeIndex is the subset of the dedupe-index request pipeline a
// data-vio's hash zone step needs. Query may time out per
// dedupe_index_timeout_interval (spec §5, "Cancellation and timeouts");
// callers pass a context already carrying that deadline.
type DedupeIndex interface {
	Query(ctx context.Context, name types.ChunkName) (dedupe.Advice, bool, error)
	Post(name types.ChunkName, advice dedupe.Advice)
}

// BlockMap is the subset of the block-map forest a data-vio's logical
// zone and journal zone steps need.
type BlockMap interface {
	GetMapping(lbn types.LBN) types.BlockMapping
	SetMapping(lbn types.LBN, mapping types.BlockMapping)
}

// RefCounts is the subset of a slab's reference-count array a data-vio's
// journal zone step needs to apply the committed delta locally (the full
// path also goes through a slab journal entry; this interface covers just
// the in-memory effect a data-vio triggers directly).
type RefCounts interface {
	Increment(pbn types.PBN) error
	Decrement(pbn types.PBN) error
}

// Dependencies bundles every collaborator one data-vio's pipeline needs.
// A zone wires concrete implementations (depot.Allocator,
// dedupe request.Zone, blockmap.Forest-backed adapter, pbnlock.Pool,
// a storage.Provider) into this at startup.
type Dependencies struct {
	Locks     *pbnlock.Pool
	Allocator Allocator
	Dedupe    DedupeIndex
	Map       BlockMap
	Storage   storage.Provider
	RefCounts RefCounts
	// Packer is optional; when set, a write that misses dedupe is first
	// offered to the packer as a compressed fragment (spec §4.7,
	// "compressed-write") before falling back to an ordinary full-block
	// allocation.
	Packer *Packer
	// Journal, JournalStore, and JournalBase are optional; when Journal is
	// set, every committed mapping change is recorded as a
	// recovery-journal entry and durably written before the block map is
	// updated (invariant 2, spec §3: recovery-journal-first ordering).
	Journal      *recovery.Journal
	JournalStore storage.Provider
	JournalBase  types.PBN
	// ReadOnly is optional; when set, a recovery-journal write failure
	// drives the notifier into read-only mode (spec §5's propagation
	// policy: "Errors escalated to read-only mode: journal write
	// failure..."; spec §8, S6). An ordinary data-write failure is not
	// escalated here: spec §5 files that under "Errors recovered
	// locally: ... transient write retries at the block device", so it
	// is left to the storage provider/block device layer to retry, not
	// to this pipeline to treat as fatal.
	ReadOnly *admin.ReadOnlyNotifier
}

// readOnlyErrCode is the error code a journal-write failure reports to the
// notifier, matching admin.StateMachine.Run's convention of a fixed code
// rather than trying to preserve the underlying errno.
const readOnlyErrCode = 1

// escalateJournalFailure drives deps.ReadOnly into read-only mode for a
// recovery-journal write failure, unless err already is (or wraps)
// vdoerr.ErrReadOnly, in which case the device is already on its way there
// through some other path and a second notification would be redundant.
func escalateJournalFailure(deps Dependencies, err error) {
	if deps.ReadOnly == nil || err == nil || errors.Is(err, vdoerr.ErrReadOnly) {
		return
	}
	deps.ReadOnly.EnterReadOnly(readOnlyErrCode)
}

// isAllZero reports whether buf is entirely zero bytes, the test for zero-
// block elision (spec §4.4, S2).
func isAllZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// ComputeFingerprint hashes buf to a 16-byte dedupe fingerprint. MD5's
// 128-bit digest is exactly types.ChunkNameSize, so no truncation or
// expansion is needed; this is purely a content-addressing digest, never
// used for anything security-sensitive.
func ComputeFingerprint(buf []byte) types.ChunkName {
	return types.ChunkName(md5.Sum(buf))
}

// ProcessWrite drives dv through the write pipeline (spec §4.7) and
// returns once the new mapping is durable and acknowledged, or an error if
// any step failed irrecoverably. deps.Dedupe may be nil, in which case
// dedupe is skipped entirely (equivalent to every query missing).
func ProcessWrite(ctx context.Context, dv *DataVIO, deps Dependencies) error {
	if deps.ReadOnly != nil && deps.ReadOnly.IsReadOnly() {
		return vdoerr.ErrReadOnly
	}
	if len(dv.Data) != types.BlockSize {
		return fmt.Errorf("vio: write data length %d != block size %d: %w", len(dv.Data), types.BlockSize, vdoerr.ErrInvalidArgument)
	}

	dv.OldMapping = deps.Map.GetMapping(dv.LBN)

	if isAllZero(dv.Data) {
		return applyZeroBlockElision(ctx, dv, deps)
	}

	dv.Fingerprint = ComputeFingerprint(dv.Data)

	if deps.Dedupe != nil {
		advice, found, err := deps.Dedupe.Query(ctx, dv.Fingerprint)
		// A dedupe-index timeout is not an error: the write proceeds
		// without advice ("fast path", spec §5).
		if err == nil && found {
			dv.HasAdvice, dv.Advice = true, advice
		}
	}

	if dv.HasAdvice {
		if ok, err := verifyAdvice(ctx, dv, deps); err != nil {
			return err
		} else if ok {
			return commitDedupedWrite(ctx, dv, deps)
		}
	}

	return commitNewAllocation(ctx, dv, deps)
}

// verifyAdvice checks whether the physical block the dedupe index advised
// still holds content matching dv.Data, taking a read-type PBN lock for
// the duration of the check (spec §4.7, step 3: "verify on-disk contents
// match when advised").
func verifyAdvice(ctx context.Context, dv *DataVIO, deps Dependencies) (bool, error) {
	lock, _, err := deps.Locks.Borrow(dv.Advice.PBN, pbnlock.LockRead, 1)
	if err != nil {
		return false, nil // pool exhausted: treat as a dedupe miss, not an error
	}
	lock.Acquire()
	defer func() {
		lock.Release()
		if lock.HolderCount() == 0 {
			deps.Locks.Return(dv.Advice.PBN)
		}
	}()

	buf := make([]byte, types.BlockSize)
	if err := deps.Storage.ReadBlock(ctx, dv.Advice.PBN, storage.PriorityData, buf); err != nil {
		return false, fmt.Errorf("vio: verify advice: %w", err)
	}
	return bytes.Equal(buf, dv.Data), nil
}

// commitDedupedWrite shares the advised PBN: no data write occurs, only a
// reference-count increment and a new logical mapping (spec S1: "exactly
// one data write to the backing device was issued" across both writes of
// identical content).
func commitDedupedWrite(ctx context.Context, dv *DataVIO, deps Dependencies) error {
	dv.NewMapping = types.BlockMapping{PBN: dv.Advice.PBN, State: types.MappingStateUncompressed}
	dv.deduped = true
	if deps.RefCounts != nil {
		if err := deps.RefCounts.Increment(dv.Advice.PBN); err != nil {
			return err
		}
	}
	return applyMapping(ctx, dv, deps)
}

// commitNewAllocation is the fallback path when dedupe missed, timed out,
// or advice failed verification: try the packer first if one is wired and
// the block compresses well enough to share a slot, else allocate a full
// physical block for the uncompressed data.
func commitNewAllocation(ctx context.Context, dv *DataVIO, deps Dependencies) error {
	if deps.Packer != nil {
		if compressed, ok := Compress(dv.Data); ok {
			return commitCompressedWrite(ctx, dv, compressed, deps)
		}
	}
	return commitUncompressedAllocation(ctx, dv, deps)
}

// commitCompressedWrite offers dv's compressed data to the packer and
// blocks until that fragment's bin has been flushed to disk, then installs
// the resulting compressed-slot mapping (spec §4.7, "compressed-write").
func commitCompressedWrite(ctx context.Context, dv *DataVIO, compressed []byte, deps Dependencies) error {
	result := make(chan struct {
		mapping types.BlockMapping
		err     error
	}, 1)
	err := deps.Packer.Add(ctx, Fragment{
		LBN:  dv.LBN,
		Data: compressed,
		Done: func(mapping types.BlockMapping, err error) {
			result <- struct {
				mapping types.BlockMapping
				err     error
			}{mapping, err}
		},
	})
	if err != nil {
		return err
	}

	select {
	case r := <-result:
		if r.err != nil {
			return r.err
		}
		dv.NewMapping = r.mapping
		if deps.Dedupe != nil {
			deps.Dedupe.Post(dv.Fingerprint, dedupe.Advice{PBN: r.mapping.PBN, MappingState: r.mapping.State})
		}
		return applyMapping(ctx, dv, deps)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commitUncompressedAllocation allocates a fresh PBN, writes the full block,
// and installs it as the new mapping.
func commitUncompressedAllocation(ctx context.Context, dv *DataVIO, deps Dependencies) error {
	pbn, err := deps.Allocator.Allocate(ctx)
	if err != nil {
		return fmt.Errorf("vio: allocate for lbn %d: %w", dv.LBN, err)
	}

	lock, _, err := deps.Locks.Borrow(pbn, pbnlock.LockWrite, 1)
	if err != nil {
		_ = deps.Allocator.ReleaseProvisional(pbn)
		return fmt.Errorf("vio: borrow lock for pbn %d: %w", pbn, err)
	}
	lock.Acquire()
	lock.AssignProvisionalReference()

	if err := deps.Storage.WriteBlock(ctx, pbn, storage.PriorityData, dv.Data); err != nil {
		lock.Release()
		deps.Locks.Return(pbn)
		_ = deps.Allocator.ReleaseProvisional(pbn)
		return fmt.Errorf("vio: write data for pbn %d: %w", pbn, err)
	}

	dv.NewMapping = types.BlockMapping{PBN: pbn, State: types.MappingStateUncompressed}
	if deps.RefCounts != nil {
		if err := deps.RefCounts.Increment(pbn); err != nil {
			lock.Release()
			deps.Locks.Return(pbn)
			return err
		}
	}
	lock.Release()
	deps.Locks.Return(pbn)

	if deps.Dedupe != nil {
		deps.Dedupe.Post(dv.Fingerprint, dedupe.Advice{PBN: pbn, MappingState: dv.NewMapping.State})
	}
	return applyMapping(ctx, dv, deps)
}

// applyZeroBlockElision records the zero-block state directly with no
// slab-depot allocation (spec S2).
func applyZeroBlockElision(ctx context.Context, dv *DataVIO, deps Dependencies) error {
	dv.NewMapping = types.BlockMapping{PBN: types.ZeroBlock, State: types.MappingStateZeroBlock}
	return applyMapping(ctx, dv, deps)
}

// applyMapping records the recovery-journal entry for the mapping change
// (if a journal is wired), then installs the new mapping in the block map
// and drops the reference the old mapping held, if any, completing the
// journal-zone and acknowledge steps (spec §4.7, steps 4-5; invariant 2,
// spec §3: the journal entry must be durable before the block-map update).
func applyMapping(ctx context.Context, dv *DataVIO, deps Dependencies) error {
	if deps.Journal != nil {
		entry := types.RecoveryJournalEntry{
			Operation: types.JournalDataIncrement,
			Slot:      types.BlockMapSlot{PBN: dv.NewMapping.PBN, SlotIndex: uint16(dv.LBN % uint64(recovery.EntriesPerBlock))},
			Mapping:   dv.NewMapping,
		}
		sealed, _, err := deps.Journal.AddEntry(entry, false)
		if err != nil {
			return fmt.Errorf("vio: journal entry for lbn %d: %w", dv.LBN, err)
		}
		if err := deps.Journal.WriteSealed(ctx, deps.JournalStore, deps.JournalBase, sealed); err != nil {
			escalateJournalFailure(deps, err)
			return err
		}
	}

	if deps.RefCounts != nil && dv.OldMapping.IsValid() && dv.OldMapping.State.IsMapped() &&
		dv.OldMapping.State != types.MappingStateZeroBlock && !dv.OldMapping.State.IsCompressed() {
		if err := deps.RefCounts.Decrement(dv.OldMapping.PBN); err != nil {
			return err
		}
	}
	deps.Map.SetMapping(dv.LBN, dv.NewMapping)
	return nil
}

// Deduped reports whether the completed write shared an existing PBN
// rather than allocating a new one.
func (dv *DataVIO) Deduped() bool { return dv.deduped }
