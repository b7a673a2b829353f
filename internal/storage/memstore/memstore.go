// Package memstore is an in-memory fake of storage.Provider used by unit
// tests that want a real implementation of the block-read/write interface
// without the overhead (or non-determinism) of a file-backed store.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/KnightKu/kvdo/internal/storage"
	"github.com/KnightKu/kvdo/internal/types"
)

// Store is a goroutine-safe map of PBN to block contents. The zero value
// is ready to use.
type Store struct {
	mu     sync.Mutex
	blocks map[types.PBN][]byte
	// FailNextWrite, if set, causes the next WriteBlock call to fail and
	// then clears itself — used to simulate the journal-write failure
	// scenario (spec §8, S6).
	FailNextWrite bool
}

// New creates an empty store.
func New() *Store {
	return &Store{blocks: make(map[types.PBN][]byte)}
}

func (s *Store) ReadBlock(ctx context.Context, pbn types.PBN, priority storage.Priority, buf []byte) error {
	if len(buf) != types.BlockSize {
		return fmt.Errorf("memstore: buffer size %d != block size %d", len(buf), types.BlockSize)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.blocks[pbn]; ok {
		copy(buf, data)
		return nil
	}
	for i := range buf {
		buf[i] = 0
	}
	return nil
}

func (s *Store) WriteBlock(ctx context.Context, pbn types.PBN, priority storage.Priority, buf []byte) error {
	if len(buf) != types.BlockSize {
		return fmt.Errorf("memstore: buffer size %d != block size %d", len(buf), types.BlockSize)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNextWrite {
		s.FailNextWrite = false
		return fmt.Errorf("memstore: simulated write failure at pbn %d", pbn)
	}
	data := make([]byte, types.BlockSize)
	copy(data, buf)
	s.blocks[pbn] = data
	return nil
}

func (s *Store) Flush(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

var _ storage.Provider = (*Store)(nil)
