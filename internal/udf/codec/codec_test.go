package codec_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/junefish/hdf5-udf/internal/udf/codec"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"single byte", []byte{0x42}},
		{"ascii text", []byte("extern \"C\" void dynamic_dataset() {}")},
		{"repetitive", bytes.Repeat([]byte{0xAB, 0xCD}, 4096)},
		{"binary spread", func() []byte {
			b := make([]byte, 1024)
			for i := range b {
				b[i] = byte(i * 7)
			}
			return b
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := codec.Compress(tt.input)
			if err != nil {
				t.Fatalf("Compress() error = %v", err)
			}
			got, err := codec.Decompress(blob)
			if err != nil {
				t.Fatalf("Decompress() error = %v", err)
			}
			if !bytes.Equal(got, tt.input) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(tt.input))
			}
		})
	}
}

func TestCompressEmptyInput(t *testing.T) {
	if _, err := codec.Compress(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestDecompressTruncatedBlob(t *testing.T) {
	if _, err := codec.Decompress([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for blob shorter than trailer")
	}
}

func TestDecompressTrailerMismatch(t *testing.T) {
	blob, err := codec.Compress([]byte("payload bytes"))
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	// Inflate the recorded length so the stream ends early.
	tampered := make([]byte, len(blob))
	copy(tampered, blob)
	binary.LittleEndian.PutUint64(tampered[len(tampered)-8:], 1<<20)

	if _, err := codec.Decompress(tampered); err == nil {
		t.Fatal("expected error for trailer larger than stream")
	}
}

func TestDecompressCorruptedStream(t *testing.T) {
	blob, err := codec.Compress(bytes.Repeat([]byte("data"), 100))
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	for i := 2; i < len(blob)-8 && i < 10; i++ {
		blob[i] ^= 0xFF
	}
	if _, err := codec.Decompress(blob); err == nil {
		t.Fatal("expected error for corrupted stream")
	}
}
