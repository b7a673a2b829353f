package config

import (
	"errors"
	"testing"

	"github.com/KnightKu/kvdo/internal/vdoerr"
)

func TestParseDeviceTableLineMinimalFields(t *testing.T) {
	dt, err := ParseDeviceTableLine("V3 /dev/sdb 1048576 4096 128 60 .")
	if err != nil {
		t.Fatal(err)
	}
	if dt.Version != 3 {
		t.Errorf("expected version 3, got %d", dt.Version)
	}
	if dt.ParentDevice != "/dev/sdb" {
		t.Errorf("expected parent device /dev/sdb, got %q", dt.ParentDevice)
	}
	if dt.PhysicalBlocks != 1048576 {
		t.Errorf("expected 1048576 physical blocks, got %d", dt.PhysicalBlocks)
	}
	if dt.LogicalBlockSize != 4096 {
		t.Errorf("expected logical block size 4096, got %d", dt.LogicalBlockSize)
	}
	if !dt.Deduplication {
		t.Error("expected deduplication to default on")
	}
}

func TestParseDeviceTableLineRejectsBadLogicalBlockSize(t *testing.T) {
	_, err := ParseDeviceTableLine("V3 /dev/sdb 1048576 1024 128 60 .")
	if !errors.Is(err, vdoerr.ErrBadConfiguration) {
		t.Fatalf("expected bad-configuration error, got %v", err)
	}
}

func TestParseDeviceTableLineParsesOptionalPairs(t *testing.T) {
	dt, err := ParseDeviceTableLine("V3 /dev/sdb 1048576 512 128 60 deduplication=off cpu=4 logical=9 physical=2 hash=3")
	if err != nil {
		t.Fatal(err)
	}
	if dt.Deduplication {
		t.Error("expected deduplication off")
	}
	if dt.Threads.CPUThreads != 4 {
		t.Errorf("expected 4 cpu threads, got %d", dt.Threads.CPUThreads)
	}
	if dt.Threads.LogicalZones != 9 || dt.Threads.PhysicalZones != 2 || dt.Threads.HashZones != 3 {
		t.Errorf("expected zone counts 9/2/3, got %d/%d/%d", dt.Threads.LogicalZones, dt.Threads.PhysicalZones, dt.Threads.HashZones)
	}
}

func TestParseDeviceTableLineRejectsMixedZoneCounts(t *testing.T) {
	_, err := ParseDeviceTableLine("V3 /dev/sdb 1048576 512 128 60 logical=9 physical=0 hash=3")
	if !errors.Is(err, vdoerr.ErrBadConfiguration) {
		t.Fatalf("expected bad-configuration error for mixed zone counts, got %v", err)
	}
}

func TestParseDeviceTableLineRejectsUnknownKey(t *testing.T) {
	_, err := ParseDeviceTableLine("V3 /dev/sdb 1048576 512 128 60 bogus=1")
	if !errors.Is(err, vdoerr.ErrBadConfiguration) {
		t.Fatalf("expected bad-configuration error for unknown key, got %v", err)
	}
}

func TestParseDeviceTableLineRejectsTooFewFields(t *testing.T) {
	_, err := ParseDeviceTableLine("V3 /dev/sdb 1048576")
	if !errors.Is(err, vdoerr.ErrBadConfiguration) {
		t.Fatalf("expected bad-configuration error for short line, got %v", err)
	}
}

func TestParseDeviceTableLineRejectsBioRotationOutOfRange(t *testing.T) {
	_, err := ParseDeviceTableLine("V3 /dev/sdb 1048576 512 128 60 bioRotationInterval=2000")
	if !errors.Is(err, vdoerr.ErrBadConfiguration) {
		t.Fatalf("expected bad-configuration error for out-of-range rotation interval, got %v", err)
	}
}
