// Package storage defines the injected storage-provider collaborator that
// spec §1 explicitly places out of scope ("the on-disk page allocator for
// raw reads and writes"): the VDO core never touches a disk directly, it
// calls into a Provider. Sub-packages supply two concrete
// implementations — an in-memory fake for unit tests and a bbolt-backed
// store for integration tests and the CLI — so the rest of the system is
// exercisable end to end.
package storage

import (
	"context"

	"github.com/KnightKu/kvdo/internal/types"
)

// Priority distinguishes metadata I/O (recovery journal, block map, slab
// journals) from data I/O, per spec §6, so a provider may schedule them
// differently.
type Priority uint8

const (
	PriorityMetadata Priority = iota
	PriorityData
)

// Provider performs raw block reads and writes against the backing
// device. Every method takes a PBN and a fixed types.BlockSize buffer.
type Provider interface {
	// ReadBlock fills buf (len == types.BlockSize) with the contents of
	// physical block pbn.
	ReadBlock(ctx context.Context, pbn types.PBN, priority Priority, buf []byte) error
	// WriteBlock persists buf (len == types.BlockSize) as the contents of
	// physical block pbn.
	WriteBlock(ctx context.Context, pbn types.PBN, priority Priority, buf []byte) error
	// Flush requests that all previously acknowledged writes are durable
	// before it returns, for FUA/flush handling.
	Flush(ctx context.Context) error
	// Close releases any resources the provider holds open.
	Close() error
}
