// Package arena provides the linear, grow-only memories an allocator runs on.
//
// A Memory is a single addressable byte range starting at offset 0. It can
// only grow, always at its end, in an increment chosen by the implementation.
// Three implementations are provided:
//
//   - Slice: an in-process []byte, the default for tests and tools
//   - File: a memory-mapped file, for arenas that must outlive the process
//   - Wasm: a WebAssembly linear memory hosted by wazero
//
// Slices returned by Read alias the backing memory and are invalidated by the
// next Grow, since growth may move or remap the buffer.
//
// Memories are not safe for concurrent use.
package arena

import (
	"errors"
	"fmt"
	"math"

	"github.com/jzwood/wasm-dynamic-memory/internal/format"
)

const (
	// DefaultPageSize is the default growth increment (one wasm page).
	DefaultPageSize = 64 << 10

	// DefaultMaxSize is the largest page-aligned size addressable with 32-bit offsets.
	DefaultMaxSize = math.MaxUint32 &^ (DefaultPageSize - 1)
)

var (
	// ErrCeiling indicates the memory cannot grow past its configured maximum.
	ErrCeiling = errors.New("arena: growth ceiling reached")

	// ErrClosed indicates an operation on a closed memory.
	ErrClosed = errors.New("arena: memory closed")

	// ErrBadOptions indicates inconsistent arena options.
	ErrBadOptions = errors.New("arena: invalid options")
)

// Memory is the linear byte region backing an allocator.
type Memory interface {
	// Size returns the current size in bytes.
	Size() uint32

	// Grow extends the memory at its end and returns the number of bytes added.
	// New bytes are zero. Errors wrapping ErrCeiling mean the memory is full.
	Grow() (uint32, error)

	// Read returns a view of n bytes at off, or false when out of range.
	Read(off, n uint32) ([]byte, bool)

	// ReadUint32Le reads a little-endian uint32 at off.
	ReadUint32Le(off uint32) (uint32, bool)

	// WriteUint32Le writes a little-endian uint32 at off.
	WriteUint32Le(off, v uint32) bool
}

// Options configures memory sizing.
//
// Use DefaultOptions() for the standard wasm-like geometry.
type Options struct {
	// PageSize is the growth increment in bytes. It must hold at least one
	// block header so every growth can be described as a free block.
	// Default: 65536
	PageSize uint32

	// MaxSize is the ceiling in bytes. Grow fails once Size()+PageSize would exceed it.
	// Default: DefaultMaxSize
	MaxSize uint32

	// InitialSize is the size the memory starts with. Zero means empty.
	// Default: 0
	InitialSize uint32
}

// DefaultOptions returns the default memory geometry.
func DefaultOptions() Options {
	return Options{
		PageSize: DefaultPageSize,
		MaxSize:  DefaultMaxSize,
	}
}

// normalize fills zero fields with defaults. A nil receiver yields DefaultOptions.
func (o *Options) normalize() (Options, error) {
	out := DefaultOptions()
	if o != nil {
		if o.PageSize != 0 {
			out.PageSize = o.PageSize
		}
		if o.MaxSize != 0 {
			out.MaxSize = o.MaxSize
		}
		out.InitialSize = o.InitialSize
	}
	if out.PageSize < format.HeaderSize {
		return Options{}, fmt.Errorf("%w: page size %d cannot hold a %d-byte header",
			ErrBadOptions, out.PageSize, format.HeaderSize)
	}
	if out.InitialSize > out.MaxSize {
		return Options{}, fmt.Errorf("%w: initial size %d exceeds max size %d",
			ErrBadOptions, out.InitialSize, out.MaxSize)
	}
	return out, nil
}

// nextSize returns the size after one growth step, or an ErrCeiling error.
func nextSize(cur, page, maxSize uint32) (uint32, error) {
	next := uint64(cur) + uint64(page)
	if next > uint64(maxSize) {
		return 0, fmt.Errorf("%w: size %d + page %d exceeds max %d", ErrCeiling, cur, page, maxSize)
	}
	return uint32(next), nil
}
