package vio

import (
	"bytes"
	"context"
	"testing"

	"github.com/KnightKu/kvdo/internal/types"
)

func TestProcessReadOfUnmappedLBNReturnsZeros(t *testing.T) {
	deps, _, _, _, _ := newTestDeps()
	dv := &DataVIO{LBN: 42, Operation: OpRead}
	if err := ProcessRead(context.Background(), dv, deps); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(dv.Data, make([]byte, types.BlockSize)) {
		t.Fatal("expected an all-zero block for an unmapped lbn")
	}
}

func TestProcessReadOfZeroBlockMappingReturnsZerosWithoutStorageAccess(t *testing.T) {
	deps, _, _, bm, _ := newTestDeps()
	ctx := context.Background()

	zero := &DataVIO{LBN: 1, Operation: OpWrite, Data: make([]byte, types.BlockSize)}
	if err := ProcessWrite(ctx, zero, deps); err != nil {
		t.Fatalf("zero write: %v", err)
	}
	if bm.GetMapping(1).State != types.MappingStateZeroBlock {
		t.Fatal("expected the write to install a zero-block mapping")
	}

	dv := &DataVIO{LBN: 1, Operation: OpRead}
	if err := ProcessRead(ctx, dv, deps); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(dv.Data, make([]byte, types.BlockSize)) {
		t.Fatal("expected an all-zero block")
	}
}

func TestProcessReadRoundTripsWrittenData(t *testing.T) {
	deps, _, _, _, _ := newTestDeps()
	ctx := context.Background()
	data := fillBlock(0x5C)

	write := &DataVIO{LBN: 3, Operation: OpWrite, Data: data}
	if err := ProcessWrite(ctx, write, deps); err != nil {
		t.Fatalf("write: %v", err)
	}

	read := &DataVIO{LBN: 3, Operation: OpRead}
	if err := ProcessRead(ctx, read, deps); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(read.Data, data) {
		t.Fatal("expected read to return exactly what was written")
	}
}

func TestProcessReadRejectsUnknownMappingState(t *testing.T) {
	deps, _, _, bm, _ := newTestDeps()
	bm.SetMapping(4, types.BlockMapping{PBN: 0, State: types.MappingState(200)})
	dv := &DataVIO{LBN: 4, Operation: OpRead}
	if err := ProcessRead(context.Background(), dv, deps); err == nil {
		t.Fatal("expected an error for an unrecognized mapping state")
	}
}
