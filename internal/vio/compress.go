package vio

import (
	"fmt"

	"github.com/klauspost/compress/s2"

	"github.com/KnightKu/kvdo/internal/types"
	"github.com/KnightKu/kvdo/internal/vdoerr"
)

// Compress runs data (exactly one block) through the cpu zone's compressor
// (spec §5: "cpu_threads compression threads"). It reports ok=false when the
// input is not exactly one block or the result is larger than
// maxFragmentSize, the whole payload area of a packed block; the caller then
// falls back to an ordinary uncompressed write instead of offering the block
// to the packer.
func Compress(data []byte) (compressed []byte, ok bool) {
	if len(data) != types.BlockSize {
		return nil, false
	}
	out := s2.Encode(nil, data)
	if len(out) > maxFragmentSize {
		return nil, false
	}
	return out, true
}

// Decompress reverses Compress, expanding a packed fragment back to exactly
// types.BlockSize bytes.
func Decompress(compressed []byte) ([]byte, error) {
	out, err := s2.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("vio: decompress: %w", err)
	}
	if len(out) != types.BlockSize {
		return nil, fmt.Errorf("vio: decompressed length %d != block size %d: %w", len(out), types.BlockSize, vdoerr.ErrCorruptJournal)
	}
	return out, nil
}
