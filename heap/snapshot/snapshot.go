// Package snapshot persists arena images.
//
// A snapshot is a fixed 24-byte header followed by the zstd-compressed image:
//
//	0  magic    "ARNA"
//	4  version  uint32
//	8  origin   uint32, address of the first block
//	12 size     uint32, uncompressed image length
//	16 checksum uint64, xxhash64 of the uncompressed image
//	24 zstd frame
//
// All integers are little-endian.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/jzwood/wasm-dynamic-memory/internal/format"
)

const (
	// HeaderSize is the size of the snapshot header in bytes.
	HeaderSize = 24

	// Version is the snapshot format version written by Write.
	Version = uint32(1)
)

// Magic identifies a snapshot stream.
var Magic = [4]byte{'A', 'R', 'N', 'A'}

var (
	// ErrBadMagic indicates the stream does not start with Magic.
	ErrBadMagic = errors.New("snapshot: bad magic")

	// ErrVersion indicates an unsupported format version.
	ErrVersion = errors.New("snapshot: unsupported version")

	// ErrChecksum indicates the decoded image does not match its checksum.
	ErrChecksum = errors.New("snapshot: checksum mismatch")

	// ErrTooLarge indicates an image larger than the reader accepts.
	ErrTooLarge = errors.New("snapshot: image too large")
)

// Image is a raw arena copy plus the origin needed to re-attach it.
type Image struct {
	Origin uint32
	Data   []byte
}

// Header is the decoded snapshot header.
type Header struct {
	Version  uint32 `json:"version"`
	Origin   uint32 `json:"origin"`
	Size     uint32 `json:"size"`
	Checksum uint64 `json:"checksum"`
}

// Write encodes img to w.
func Write(w io.Writer, img Image) error {
	if uint64(len(img.Data)) > uint64(^uint32(0)) {
		return fmt.Errorf("snapshot: image of %d bytes exceeds 32-bit size", len(img.Data))
	}
	hdr := make([]byte, HeaderSize)
	copy(hdr[0:4], Magic[:])
	format.PutU32(hdr, 4, Version)
	format.PutU32(hdr, 8, img.Origin)
	format.PutU32(hdr, 12, uint32(len(img.Data)))
	format.PutU64(hdr, 16, xxhash.Sum64(img.Data))
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("snapshot: write header: %w", err)
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("snapshot: create zstd encoder: %w", err)
	}
	if _, err := enc.Write(img.Data); err != nil {
		enc.Close()
		return fmt.Errorf("snapshot: compress image: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("snapshot: compress image: %w", err)
	}
	return nil
}

// ReadHeader decodes only the header from r.
func ReadHeader(r io.Reader) (Header, error) {
	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Header{}, fmt.Errorf("snapshot: read header: %w", err)
	}
	if !bytes.Equal(raw[0:4], Magic[:]) {
		return Header{}, fmt.Errorf("%w: % X", ErrBadMagic, raw[0:4])
	}
	h := Header{
		Version:  format.ReadU32(raw, 4),
		Origin:   format.ReadU32(raw, 8),
		Size:     format.ReadU32(raw, 12),
		Checksum: format.ReadU64(raw, 16),
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	return h, nil
}

// Read decodes a snapshot from r and verifies its checksum. Images larger
// than maxSize bytes are rejected before decompression; zero means no limit.
func Read(r io.Reader, maxSize uint32) (Image, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Image{}, err
	}
	if maxSize != 0 && h.Size > maxSize {
		return Image{}, fmt.Errorf("%w: %d bytes, max %d", ErrTooLarge, h.Size, maxSize)
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return Image{}, fmt.Errorf("snapshot: create zstd decoder: %w", err)
	}
	defer dec.Close()

	// Buffer growth follows the decoded stream, not h.Size.
	data, err := io.ReadAll(io.LimitReader(dec, int64(h.Size)+1))
	if err != nil {
		return Image{}, fmt.Errorf("snapshot: decompress image: %w", err)
	}
	switch {
	case uint64(len(data)) < uint64(h.Size):
		return Image{}, fmt.Errorf("snapshot: decompress image: %d of %d bytes: %w",
			len(data), h.Size, io.ErrUnexpectedEOF)
	case uint64(len(data)) > uint64(h.Size):
		return Image{}, fmt.Errorf("%w: image longer than %d bytes", ErrChecksum, h.Size)
	}
	if sum := xxhash.Sum64(data); sum != h.Checksum {
		return Image{}, fmt.Errorf("%w: got %016x, want %016x", ErrChecksum, sum, h.Checksum)
	}
	return Image{Origin: h.Origin, Data: data}, nil
}
