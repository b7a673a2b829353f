package vio

import (
	"context"
	"fmt"

	"github.com/KnightKu/kvdo/internal/pbnlock"
	"github.com/KnightKu/kvdo/internal/storage"
	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// ProcessRead drives dv through the read pipeline (spec §4.7, read
// data-vio): look up the logical mapping, then resolve it to block content
// with no allocation, dedupe, or journal step. An unmapped or zero-block
// logical address reads back as all zeros with no storage access at all.
func ProcessRead(ctx context.Context, dv *DataVIO, deps Dependencies) error {
	dv.NewMapping = deps.Map.GetMapping(dv.LBN)
	mapping := dv.NewMapping

	switch {
	case mapping.State == types.MappingStateUnmapped, mapping.State == types.MappingStateZeroBlock:
		dv.Data = make([]byte, types.BlockSize)
		return nil

	case mapping.State == types.MappingStateUncompressed:
		return readUncompressed(ctx, dv, mapping.PBN, deps)

	case mapping.State.IsCompressed():
		return readCompressed(ctx, dv, mapping, deps)

	default:
		return fmt.Errorf("vio: read lbn %d: mapping state %s: %w", dv.LBN, mapping.State, vdoerr.ErrBadState)
	}
}

// readUncompressed takes a read-type PBN lock on pbn for the duration of the
// read, mirroring the physical zone step every read-type access goes
// through (spec §4.2).
func readUncompressed(ctx context.Context, dv *DataVIO, pbn types.PBN, deps Dependencies) error {
	lock, _, err := deps.Locks.Borrow(pbn, pbnlock.LockRead, 1)
	if err != nil {
		return fmt.Errorf("vio: read lbn %d pbn %d: %w", dv.LBN, pbn, err)
	}
	lock.Acquire()
	defer func() {
		lock.Release()
		if lock.HolderCount() == 0 {
			deps.Locks.Return(pbn)
		}
	}()

	buf := make([]byte, types.BlockSize)
	if err := deps.Storage.ReadBlock(ctx, pbn, storage.PriorityData, buf); err != nil {
		return fmt.Errorf("vio: read pbn %d: %w", pbn, err)
	}
	dv.Data = buf
	return nil
}

// readCompressed takes a read lock on the shared compressed block, unpacks
// this mapping's fragment, and decompresses it back to a full block.
func readCompressed(ctx context.Context, dv *DataVIO, mapping types.BlockMapping, deps Dependencies) error {
	lock, _, err := deps.Locks.Borrow(mapping.PBN, pbnlock.LockRead, 1)
	if err != nil {
		return fmt.Errorf("vio: read lbn %d compressed pbn %d: %w", dv.LBN, mapping.PBN, err)
	}
	lock.Acquire()
	defer func() {
		lock.Release()
		if lock.HolderCount() == 0 {
			deps.Locks.Return(mapping.PBN)
		}
	}()

	fragment, err := Unpack(ctx, deps.Storage, mapping.PBN, mapping.State.CompressedSlot())
	if err != nil {
		return err
	}
	data, err := Decompress(fragment)
	if err != nil {
		return err
	}
	dv.Data = data
	return nil
}
