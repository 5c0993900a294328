// Package codec compresses compiled UDF artifacts into embeddable blobs.
//
// A blob is the deflate-compressed payload followed by an 8-byte
// little-endian trailer holding the uncompressed length. The trailer is
// authoritative: decompression allocates exactly that many bytes and fails
// on any mismatch.
package codec

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zlib"

	appErr "github.com/junefish/hdf5-udf/pkg/errors"
)

const trailerSize = 8

// Compress deflates data and appends the uncompressed-length trailer.
func Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, appErr.New(appErr.CodecEmptyInput)
	}

	var buf bytes.Buffer
	writer := zlib.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return nil, appErr.Wrap(err, appErr.CodecError)
	}
	if err := writer.Close(); err != nil {
		return nil, appErr.Wrap(err, appErr.CodecError)
	}

	trailer := make([]byte, trailerSize)
	binary.LittleEndian.PutUint64(trailer, uint64(len(data)))
	return append(buf.Bytes(), trailer...), nil
}

// Decompress reads the trailer, allocates exactly that many bytes and
// inflates the payload into it.
func Decompress(blob []byte) ([]byte, error) {
	if len(blob) <= trailerSize {
		return nil, appErr.New(appErr.CodecTruncatedBlob)
	}

	size := binary.LittleEndian.Uint64(blob[len(blob)-trailerSize:])
	payload := blob[:len(blob)-trailerSize]

	reader, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodecCorruptedStream)
	}
	defer reader.Close()

	out := make([]byte, size)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, appErr.Wrap(err, appErr.CodecLengthMismatch)
	}

	// The trailer is the single source of truth for the uncompressed
	// length; anything left in the stream means the blob is inconsistent.
	var extra [1]byte
	n, err := reader.Read(extra[:])
	if n != 0 {
		return nil, appErr.New(appErr.CodecLengthMismatch)
	}
	if err != nil && err != io.EOF {
		return nil, appErr.Wrap(err, appErr.CodecCorruptedStream)
	}
	return out, nil
}
