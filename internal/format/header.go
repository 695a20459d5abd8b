// Package format defines the on-arena block header encoding.
//
// Every block in the arena is prefixed by a fixed 4-byte header:
//
//	Bits   Description
//	0-30   Payload size in bytes (header width excluded).
//	31     Free flag. Set => block is available for allocation.
//
// A zeroed header therefore decodes as an allocated block of size 0.
package format

import "fmt"

const (
	// HeaderSize is the width of a block header in bytes.
	HeaderSize = 4

	// FreeFlag marks a block as free.
	FreeFlag uint32 = 1 << 31

	// SizeMask selects the payload size bits of a header.
	SizeMask uint32 = FreeFlag - 1

	// MaxBlockSize is the largest payload a single header can describe.
	MaxBlockSize = SizeMask
)

// EncodeHeader packs size and free into a header word.
func EncodeHeader(size uint32, free bool) (uint32, error) {
	if size > MaxBlockSize {
		return 0, fmt.Errorf("encode header: size %d: %w", size, ErrSizeOverflow)
	}
	raw := size
	if free {
		raw |= FreeFlag
	}
	return raw, nil
}

// DecodeHeader unpacks a header word.
func DecodeHeader(raw uint32) (size uint32, free bool) {
	return raw & SizeMask, raw&FreeFlag != 0
}
