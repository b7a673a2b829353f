package vio

import (
	"context"
	"sync"
	"testing"

	"github.com/KnightKu/kvdo/internal/pbnlock"
	"github.com/KnightKu/kvdo/internal/storage/memstore"
	"github.com/KnightKu/kvdo/internal/types"
)

func newTestPacker() (*Packer, *fakeAllocator, *fakeRefCounts, *memstore.Store) {
	alloc := newFakeAllocator()
	rc := newFakeRefCounts()
	store := memstore.New()
	return NewPacker(alloc, pbnlock.NewPool(16), store, rc), alloc, rc, store
}

// TestPackerFlushesOnFullBin is spec's "coalesce up to 14 compressible
// fragments into one physical block": the 14th Add must trigger a flush
// that lands every fragment in the same physical block at distinct slots.
func TestPackerFlushesOnFullBin(t *testing.T) {
	p, alloc, rc, _ := newTestPacker()
	ctx := context.Background()

	var mu sync.Mutex
	mappings := make([]types.BlockMapping, types.MaxCompressedSlots)
	var wg sync.WaitGroup
	wg.Add(types.MaxCompressedSlots)

	for i := 0; i < types.MaxCompressedSlots; i++ {
		i := i
		err := p.Add(ctx, Fragment{
			LBN:  types.LBN(i),
			Data: []byte{byte(i), byte(i), byte(i)},
			Done: func(m types.BlockMapping, err error) {
				if err != nil {
					t.Errorf("fragment %d: %v", i, err)
				}
				mu.Lock()
				mappings[i] = m
				mu.Unlock()
				wg.Done()
			},
		})
		if err != nil {
			t.Fatalf("Add fragment %d: %v", i, err)
		}
	}
	wg.Wait()

	pbn := mappings[0].PBN
	if pbn == 0 {
		t.Fatal("expected a real allocated pbn")
	}
	seenSlots := make(map[int]bool)
	for i, m := range mappings {
		if m.PBN != pbn {
			t.Fatalf("fragment %d landed on a different pbn %d, want %d", i, m.PBN, pbn)
		}
		if !m.State.IsCompressed() {
			t.Fatalf("fragment %d mapping state %s is not compressed", i, m.State)
		}
		seenSlots[m.State.CompressedSlot()] = true
	}
	if len(seenSlots) != types.MaxCompressedSlots {
		t.Fatalf("expected %d distinct slots, got %d", types.MaxCompressedSlots, len(seenSlots))
	}
	if alloc.next != 2 {
		t.Fatalf("expected exactly one physical block allocated, allocator at %d", alloc.next)
	}
	if rc.counts[pbn] != types.MaxCompressedSlots {
		t.Fatalf("expected ref_count %d on the packed block, got %d", types.MaxCompressedSlots, rc.counts[pbn])
	}
}

// TestPackerFlushOnDemand covers the drain-packer admin phase: a partial bin
// must still be written out when Flush is called explicitly.
func TestPackerFlushOnDemand(t *testing.T) {
	p, alloc, _, _ := newTestPacker()
	ctx := context.Background()

	results := make(chan types.BlockMapping, 2)
	onDone := func(m types.BlockMapping, err error) {
		if err != nil {
			t.Errorf("fragment: %v", err)
			return
		}
		results <- m
	}
	if err := p.Add(ctx, Fragment{LBN: 0, Data: []byte{1, 2, 3}, Done: onDone}); err != nil {
		t.Fatalf("add fragment 0: %v", err)
	}
	if err := p.Add(ctx, Fragment{LBN: 1, Data: []byte{4, 5, 6}, Done: onDone}); err != nil {
		t.Fatalf("add fragment 1: %v", err)
	}
	if alloc.next != 1 {
		t.Fatal("expected no allocation yet with only 2 of 14 slots filled")
	}

	if err := p.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	m0, m1 := <-results, <-results
	if m0.PBN != m1.PBN {
		t.Fatalf("expected both fragments in the same flushed block, got %d and %d", m0.PBN, m1.PBN)
	}
	if m0.State.CompressedSlot() == m1.State.CompressedSlot() {
		t.Fatal("expected distinct slots for the two fragments")
	}
}

func TestUnpackRoundTrip(t *testing.T) {
	p, _, _, store := newTestPacker()
	ctx := context.Background()

	data := []byte("hello compressed fragment")
	result := make(chan types.BlockMapping, 1)
	err := p.Add(ctx, Fragment{
		LBN:  0,
		Data: data,
		Done: func(m types.BlockMapping, err error) {
			if err != nil {
				t.Errorf("fragment: %v", err)
				return
			}
			result <- m
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	m := <-result
	got, err := Unpack(ctx, store, m.PBN, m.State.CompressedSlot())
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("expected %q, got %q", data, got)
	}
}

func TestPackerRejectsOversizedFragment(t *testing.T) {
	p, _, _, _ := newTestPacker()
	err := p.Add(context.Background(), Fragment{LBN: 0, Data: make([]byte, types.BlockSize)})
	if err == nil {
		t.Fatal("expected an error for a fragment exceeding the packer's slot bound")
	}
}
