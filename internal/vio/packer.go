package vio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/KnightKu/kvdo/internal/pbnlock"
	"github.com/KnightKu/kvdo/internal/storage"
	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// packedBlockHeaderSize is the fixed on-disk header a packed physical block
// carries ahead of its fragment data: one uint16 length per slot, in slot
// order. A zero length marks an unused slot.
const packedBlockHeaderSize = types.MaxCompressedSlots * 2

// maxFragmentSize is the most a single compressed fragment may occupy: the
// whole block after the slot-length header, so a fragment of this size fills
// its packed block alone. The packer itself only ever receives fragments a caller already
// ran through a compressor, so this is an acceptance bound, not a target.
const maxFragmentSize = types.BlockSize - packedBlockHeaderSize

// Fragment is one data-vio's compressed payload offered to the packer
// (spec §4.7: "Compressed writes coalesce up to 14 compressible fragments
// into one physical block via the packer thread").
type Fragment struct {
	LBN  types.LBN
	Data []byte // compressed; len(Data) <= maxFragmentSize
	Done func(mapping types.BlockMapping, err error)
}

// packBin accumulates fragments bound for one physical block.
type packBin struct {
	fragments []Fragment
	used      int
}

func newPackBin() *packBin {
	return &packBin{fragments: make([]Fragment, 0, types.MaxCompressedSlots)}
}

func (b *packBin) fits(size int) bool {
	return len(b.fragments) < types.MaxCompressedSlots && b.used+size <= maxFragmentSize
}

func (b *packBin) add(f Fragment) {
	b.fragments = append(b.fragments, f)
	b.used += len(f.Data)
}

// Packer holds the one open bin the packer thread is filling and flushes it
// to a fresh physical block, either when it fills or when Flush is called
// explicitly (a timer or an admin drain in the full system; tests call it
// directly). Every exported method is meant to be called only from the
// packer thread's work queue, but guards itself with a mutex since the read
// path (Unpack) may run concurrently from a physical zone thread.
type Packer struct {
	mu  sync.Mutex
	bin *packBin

	allocator Allocator
	locks     *pbnlock.Pool
	store     storage.Provider
	refCounts RefCounts
}

// NewPacker creates an empty packer wired to the collaborators a flush
// needs: a fresh PBN, a compressed-write lock to share across the bin's
// fragments, durable storage, and the reference-count array those
// fragments's increments land in.
func NewPacker(allocator Allocator, locks *pbnlock.Pool, store storage.Provider, refCounts RefCounts) *Packer {
	return &Packer{
		bin:       newPackBin(),
		allocator: allocator,
		locks:     locks,
		store:     store,
		refCounts: refCounts,
	}
}

// Add offers a compressed fragment to the packer. If it does not fit in the
// currently open bin, the open bin is flushed first and f starts a new one.
// Add flushes and returns once the bin holding f is full; it does not flush
// eagerly otherwise, so a caller must also call Flush at shutdown or after
// an idle period to avoid stranding a partial bin (spec §4.8's
// drain-packer phase is exactly this flush-on-drain call).
func (p *Packer) Add(ctx context.Context, f Fragment) error {
	if len(f.Data) == 0 || len(f.Data) > maxFragmentSize {
		return fmt.Errorf("vio: packer fragment size %d out of range (1..%d): %w", len(f.Data), maxFragmentSize, vdoerr.ErrInvalidArgument)
	}

	p.mu.Lock()
	if !p.bin.fits(len(f.Data)) {
		full := p.bin
		p.bin = newPackBin()
		p.mu.Unlock()
		if err := p.flushBin(ctx, full); err != nil {
			return err
		}
		p.mu.Lock()
	}
	p.bin.add(f)
	full := len(p.bin.fragments) == types.MaxCompressedSlots
	var toFlush *packBin
	if full {
		toFlush = p.bin
		p.bin = newPackBin()
	}
	p.mu.Unlock()

	if toFlush != nil {
		return p.flushBin(ctx, toFlush)
	}
	return nil
}

// Flush forces whatever is in the currently open bin out to disk now, even
// if it is not full. A no-op if the bin is empty.
func (p *Packer) Flush(ctx context.Context) error {
	p.mu.Lock()
	bin := p.bin
	p.bin = newPackBin()
	p.mu.Unlock()
	return p.flushBin(ctx, bin)
}

// flushBin allocates one physical block, lays out bin's fragments under a
// single compressed-write PBN lock, writes the packed block, and commits one
// reference-count increment per fragment via the lock's claim_increment
// mechanism (spec §4.2, §4.7) before invoking each fragment's callback with
// its new mapping.
func (p *Packer) flushBin(ctx context.Context, bin *packBin) error {
	if bin == nil || len(bin.fragments) == 0 {
		return nil
	}

	pbn, err := p.allocator.Allocate(ctx)
	if err != nil {
		err = fmt.Errorf("vio: packer allocate: %w", err)
		bin.fail(err)
		return err
	}

	lock, _, err := p.locks.Borrow(pbn, pbnlock.LockCompressedWrite, len(bin.fragments))
	if err != nil {
		_ = p.allocator.ReleaseProvisional(pbn)
		err = fmt.Errorf("vio: packer borrow lock for pbn %d: %w", pbn, err)
		bin.fail(err)
		return err
	}
	lock.Acquire()
	lock.AssignProvisionalReference()

	buf := encodePackedBlock(bin)
	if err := p.store.WriteBlock(ctx, pbn, storage.PriorityData, buf); err != nil {
		lock.Release()
		p.locks.Return(pbn)
		_ = p.allocator.ReleaseProvisional(pbn)
		err = fmt.Errorf("vio: packer write pbn %d: %w", pbn, err)
		bin.fail(err)
		return err
	}

	for slot, f := range bin.fragments {
		mapping := types.BlockMapping{PBN: pbn, State: types.MappingStateCompressed(slot)}
		if p.refCounts != nil && lock.ClaimIncrement() {
			if err := p.refCounts.Increment(pbn); err != nil {
				if f.Done != nil {
					f.Done(types.BlockMapping{}, err)
				}
				continue
			}
		}
		if f.Done != nil {
			f.Done(mapping, nil)
		}
	}

	lock.Release()
	if lock.HolderCount() == 0 {
		p.locks.Return(pbn)
	}
	return nil
}

func (b *packBin) fail(err error) {
	for _, f := range b.fragments {
		if f.Done != nil {
			f.Done(types.BlockMapping{}, err)
		}
	}
}

// encodePackedBlock lays out bin's fragments behind a fixed slot-length
// header, in slot order, leaving any slot beyond len(bin.fragments) as a
// zero-length (unused) entry.
func encodePackedBlock(bin *packBin) []byte {
	buf := make([]byte, types.BlockSize)
	offset := packedBlockHeaderSize
	for slot, f := range bin.fragments {
		binary.BigEndian.PutUint16(buf[slot*2:], uint16(len(f.Data)))
		copy(buf[offset:], f.Data)
		offset += len(f.Data)
	}
	return buf
}

// Unpack reads the physical block at pbn and extracts the fragment stored
// at slot (spec: one of 14 mapped-compressed-at-slot-k variants). It is
// called from the read path, never from the packer thread itself, so it
// takes no lock on the packer's bin.
func Unpack(ctx context.Context, store storage.Provider, pbn types.PBN, slot int) ([]byte, error) {
	if slot < 0 || slot >= types.MaxCompressedSlots {
		return nil, fmt.Errorf("vio: unpack slot %d out of range: %w", slot, vdoerr.ErrInvalidArgument)
	}
	buf := make([]byte, types.BlockSize)
	if err := store.ReadBlock(ctx, pbn, storage.PriorityData, buf); err != nil {
		return nil, fmt.Errorf("vio: unpack read pbn %d: %w", pbn, err)
	}

	offset := packedBlockHeaderSize
	for i := 0; i < types.MaxCompressedSlots; i++ {
		length := int(binary.BigEndian.Uint16(buf[i*2:]))
		if i == slot {
			if length == 0 {
				return nil, fmt.Errorf("vio: unpack pbn %d slot %d is empty: %w", pbn, slot, vdoerr.ErrBadState)
			}
			return append([]byte(nil), buf[offset:offset+length]...), nil
		}
		offset += length
	}
	return nil, fmt.Errorf("vio: unpack slot %d unreachable: %w", slot, vdoerr.ErrInvalidArgument)
}
