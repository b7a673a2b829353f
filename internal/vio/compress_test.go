package vio

import (
	"bytes"
	"testing"

	"github.com/KnightKu/kvdo/internal/types"
)

func TestCompressRoundTrip(t *testing.T) {
	data := fillBlock(0x42)
	compressed, ok := Compress(data)
	if !ok {
		t.Fatal("expected a uniform block to compress")
	}
	if len(compressed) >= types.BlockSize {
		t.Fatalf("expected compressed size below block size, got %d", len(compressed))
	}
	out, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("expected decompressed data to match original")
	}
}

func TestCompressRejectsWrongSizedInput(t *testing.T) {
	if _, ok := Compress(make([]byte, 10)); ok {
		t.Fatal("expected Compress to reject non-block-sized input")
	}
}
