// Package config parses the device-table line (spec §6) that configures a
// VDO instance: a dm-style text line with a fixed positional prefix
// followed by optional key=value pairs.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/KnightKu/kvdo/internal/vdoerr"
	"github.com/KnightKu/kvdo/internal/zone"
)

// DeviceTable is the parsed form of a device-table line: `V<n> <parent_device>
// <physical_blocks> <logical_block_size> <cache_size>
// <block_map_maximum_age> [<optional_k=v pairs>|.]` (spec §6).
type DeviceTable struct {
	Version           int
	ParentDevice      string
	PhysicalBlocks    uint64
	LogicalBlockSize  uint32
	CacheSize         uint32
	BlockMapMaxAge    uint32

	MaxDiscard          uint32
	Deduplication       bool
	Threads             zone.ThreadCountConfig
	BIORotationInterval int
}

// defaults applied before optional key=value pairs are parsed.
func defaultDeviceTable() DeviceTable {
	return DeviceTable{
		Deduplication:       true,
		BIORotationInterval: 64,
		Threads: zone.ThreadCountConfig{
			BIOThreads: 1,
			CPUThreads: 1,
		},
	}
}

// ParseDeviceTableLine parses one device-table line. Recognized optional
// keys are maxDiscard, deduplication, cpu, ack, bio, bioRotationInterval,
// logical, physical, hash; an unrecognized key or a malformed positional
// field is a bad-configuration error.
func ParseDeviceTableLine(line string) (DeviceTable, error) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return DeviceTable{}, fmt.Errorf("config: device-table line has %d fields, need at least 6: %w", len(fields), vdoerr.ErrBadConfiguration)
	}

	dt := defaultDeviceTable()

	version, err := parseVersionToken(fields[0])
	if err != nil {
		return DeviceTable{}, err
	}
	dt.Version = version
	dt.ParentDevice = fields[1]

	if dt.PhysicalBlocks, err = parseUint64(fields[2], "physical_blocks"); err != nil {
		return DeviceTable{}, err
	}
	lbs, err := parseUint32(fields[3], "logical_block_size")
	if err != nil {
		return DeviceTable{}, err
	}
	if lbs != 512 && lbs != 4096 {
		return DeviceTable{}, fmt.Errorf("config: logical_block_size must be 512 or 4096, got %d: %w", lbs, vdoerr.ErrBadConfiguration)
	}
	dt.LogicalBlockSize = lbs

	if dt.CacheSize, err = parseUint32(fields[4], "cache_size"); err != nil {
		return DeviceTable{}, err
	}
	if dt.BlockMapMaxAge, err = parseUint32(fields[5], "block_map_maximum_age"); err != nil {
		return DeviceTable{}, err
	}

	if len(fields) > 6 && fields[6] != "." {
		if err := parseOptionalPairs(&dt, fields[6:]); err != nil {
			return DeviceTable{}, err
		}
	}

	if err := dt.Threads.Validate(); err != nil {
		return DeviceTable{}, err
	}
	return dt, nil
}

func parseVersionToken(tok string) (int, error) {
	if len(tok) < 2 || tok[0] != 'V' && tok[0] != 'v' {
		return 0, fmt.Errorf("config: version field %q must start with V<n>: %w", tok, vdoerr.ErrBadConfiguration)
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil {
		return 0, fmt.Errorf("config: version field %q: %w", tok, vdoerr.ErrBadConfiguration)
	}
	return n, nil
}

func parseUint64(tok, field string) (uint64, error) {
	n, err := strconv.ParseUint(tok, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s %q: %w", field, tok, vdoerr.ErrBadConfiguration)
	}
	return n, nil
}

func parseUint32(tok, field string) (uint32, error) {
	n, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("config: %s %q: %w", field, tok, vdoerr.ErrBadConfiguration)
	}
	return uint32(n), nil
}

// parseOptionalPairs parses the trailing key=value tokens with a pflag
// FlagSet private to device-table parsing; cmd/vdo does not share these
// flag definitions.
func parseOptionalPairs(dt *DeviceTable, pairs []string) error {
	fs := pflag.NewFlagSet("device-table", pflag.ContinueOnError)
	fs.Usage = func() {}

	maxDiscard := fs.Uint32("maxDiscard", 0, "")
	dedup := fs.String("deduplication", "on", "")
	cpu := fs.Int("cpu", 1, "")
	ack := fs.Int("ack", 0, "")
	bio := fs.Int("bio", 1, "")
	rotation := fs.Int("bioRotationInterval", 64, "")
	logical := fs.Int("logical", 0, "")
	physical := fs.Int("physical", 0, "")
	hash := fs.Int("hash", 0, "")

	args := make([]string, len(pairs))
	for i, p := range pairs {
		args[i] = "--" + p
	}
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("config: optional key=value pairs %q: %w", strings.Join(pairs, " "), vdoerr.ErrBadConfiguration)
	}

	if *maxDiscard > 0 {
		const maxDiscardLimit = ^uint32(0) / 4096
		if *maxDiscard > maxDiscardLimit {
			return fmt.Errorf("config: maxDiscard %d exceeds UINT_MAX/4096: %w", *maxDiscard, vdoerr.ErrBadConfiguration)
		}
	}
	dt.MaxDiscard = *maxDiscard

	switch *dedup {
	case "on":
		dt.Deduplication = true
	case "off":
		dt.Deduplication = false
	default:
		return fmt.Errorf("config: deduplication must be on or off, got %q: %w", *dedup, vdoerr.ErrBadConfiguration)
	}

	if *cpu < 1 {
		return fmt.Errorf("config: cpu must be >= 1, got %d: %w", *cpu, vdoerr.ErrBadConfiguration)
	}
	if *ack < 0 {
		return fmt.Errorf("config: ack must be >= 0, got %d: %w", *ack, vdoerr.ErrBadConfiguration)
	}
	if *bio < 1 {
		return fmt.Errorf("config: bio must be >= 1, got %d: %w", *bio, vdoerr.ErrBadConfiguration)
	}
	if *rotation < 1 || *rotation > 1024 {
		return fmt.Errorf("config: bioRotationInterval must be 1..1024, got %d: %w", *rotation, vdoerr.ErrBadConfiguration)
	}
	if *logical < 0 || *logical > 60 {
		return fmt.Errorf("config: logical must be 0..60, got %d: %w", *logical, vdoerr.ErrBadConfiguration)
	}
	if *physical < 0 || *physical > 16 {
		return fmt.Errorf("config: physical must be 0..16, got %d: %w", *physical, vdoerr.ErrBadConfiguration)
	}
	if *hash < 0 || *hash > 100 {
		return fmt.Errorf("config: hash must be 0..100, got %d: %w", *hash, vdoerr.ErrBadConfiguration)
	}

	dt.Threads.CPUThreads = *cpu
	dt.Threads.BIOAckThreads = *ack
	dt.Threads.BIOThreads = *bio
	dt.BIORotationInterval = *rotation
	dt.Threads.LogicalZones = *logical
	dt.Threads.PhysicalZones = *physical
	dt.Threads.HashZones = *hash
	return nil
}
