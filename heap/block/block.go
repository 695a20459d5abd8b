// Package block views an arena as a sequence of adjacent, header-prefixed blocks.
//
// Layout, starting at the store origin:
//
//	origin
//	  | hdr | payload (Size bytes) | hdr | payload | ... | hdr | payload |
//	                                                               arena end
//
// Each header is format.HeaderSize bytes. A block at Addr with payload Size
// is followed by the block at Addr + HeaderSize + Size, and the last block
// ends exactly at the arena end. The Store only reads and writes headers; it
// never touches payload bytes.
package block

import (
	"errors"
	"fmt"

	"github.com/jzwood/wasm-dynamic-memory/heap/arena"
	"github.com/jzwood/wasm-dynamic-memory/heap/dirty"
	"github.com/jzwood/wasm-dynamic-memory/internal/format"
)

// HeaderSize is the width of a block header.
const HeaderSize = format.HeaderSize

var (
	// ErrOutOfBounds indicates an address whose header or payload lies outside the arena.
	ErrOutOfBounds = errors.New("block: address out of bounds")

	// ErrCorrupt indicates the block chain does not cover the arena exactly.
	ErrCorrupt = errors.New("block: corrupt block chain")

	// ErrBadOrigin indicates an origin that leaves a tail too short for a header.
	ErrBadOrigin = errors.New("block: bad origin")
)

// Block is one header-prefixed byte range of the arena.
type Block struct {
	Addr uint32 `json:"addr"` // Header address
	Size uint32 `json:"size"` // Payload bytes, header excluded
	Free bool   `json:"free"`
}

// Payload returns the address of the first payload byte.
func (b Block) Payload() uint32 { return b.Addr + HeaderSize }

// End returns the address of the following block.
func (b Block) End() uint32 { return b.Addr + HeaderSize + b.Size }

func (b Block) String() string {
	state := "used"
	if b.Free {
		state = "free"
	}
	return fmt.Sprintf("0x%08X+%d %s", b.Addr, b.Size, state)
}

// Store reads and writes block headers over an arena.
//
// NOT thread-safe.
type Store struct {
	mem    arena.Memory
	origin uint32
	dt     dirty.DirtyTracker // may be nil
}

// NewStore returns a store whose first block lives at origin.
func NewStore(mem arena.Memory, origin uint32, dt dirty.DirtyTracker) (*Store, error) {
	size := mem.Size()
	if origin > size {
		return nil, fmt.Errorf("%w: origin %d beyond arena size %d", ErrBadOrigin, origin, size)
	}
	if rem := size - origin; rem > 0 && rem < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes after origin %d cannot hold a header", ErrBadOrigin, rem, origin)
	}
	return &Store{mem: mem, origin: origin, dt: dt}, nil
}

// Origin returns the address of the first block.
func (s *Store) Origin() uint32 { return s.origin }

// Limit returns the current arena size.
func (s *Store) Limit() uint32 { return s.mem.Size() }

// Memory returns the underlying arena.
func (s *Store) Memory() arena.Memory { return s.mem }

// Load reads the header at addr. The whole block must lie inside the arena.
func (s *Store) Load(addr uint32) (Block, error) {
	if addr < s.origin {
		return Block{}, fmt.Errorf("load header at 0x%X: %w", addr, ErrOutOfBounds)
	}
	raw, ok := s.mem.ReadUint32Le(addr)
	if !ok {
		return Block{}, fmt.Errorf("load header at 0x%X: %w", addr, ErrOutOfBounds)
	}
	size, free := format.DecodeHeader(raw)
	b := Block{Addr: addr, Size: size, Free: free}
	if uint64(addr)+HeaderSize+uint64(size) > uint64(s.Limit()) {
		return Block{}, fmt.Errorf("block %s overruns arena end 0x%X: %w", b, s.Limit(), ErrCorrupt)
	}
	return b, nil
}

// Store writes the header of b. The whole block must lie inside the arena.
func (s *Store) Store(b Block) error {
	if b.Addr < s.origin || uint64(b.Addr)+HeaderSize+uint64(b.Size) > uint64(s.Limit()) {
		return fmt.Errorf("store %s: %w", b, ErrOutOfBounds)
	}
	raw, err := format.EncodeHeader(b.Size, b.Free)
	if err != nil {
		return err
	}
	if !s.mem.WriteUint32Le(b.Addr, raw) {
		return fmt.Errorf("store %s: %w", b, ErrOutOfBounds)
	}
	if s.dt != nil {
		s.dt.Add(int(b.Addr), HeaderSize)
	}
	return nil
}

// Grow extends the arena once and writes a single free block spanning the
// new bytes. The returned block starts at the previous arena end.
func (s *Store) Grow() (Block, error) {
	start := s.Limit()
	added, err := s.mem.Grow()
	if err != nil {
		return Block{}, err
	}
	if added < HeaderSize {
		return Block{}, fmt.Errorf("%w: growth of %d bytes cannot hold a header", ErrCorrupt, added)
	}
	b := Block{Addr: start, Size: added - HeaderSize, Free: true}
	if err := s.Store(b); err != nil {
		return Block{}, err
	}
	return b, nil
}

// Format covers [origin, Limit) with one free block. It is a no-op on an
// empty arena.
func (s *Store) Format() error {
	limit := s.Limit()
	if limit == s.origin {
		return nil
	}
	return s.Store(Block{Addr: s.origin, Size: limit - s.origin - HeaderSize, Free: true})
}

// Walk calls fn for every block from the origin to the arena end. A non-nil
// error from fn stops the walk and is returned unchanged.
func (s *Store) Walk(fn func(Block) error) error {
	limit := s.Limit()
	for addr := s.origin; addr < limit; {
		b, err := s.Load(addr)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		addr = b.End()
	}
	return nil
}

// Blocks returns every block from the origin to the arena end.
func (s *Store) Blocks() ([]Block, error) {
	var out []Block
	err := s.Walk(func(b Block) error {
		out = append(out, b)
		return nil
	})
	return out, err
}

// Contains reports whether a block starts exactly at addr.
func (s *Store) Contains(addr uint32) (bool, error) {
	limit := s.Limit()
	for cur := s.origin; cur < limit && cur <= addr; {
		if cur == addr {
			return true, nil
		}
		b, err := s.Load(cur)
		if err != nil {
			return false, err
		}
		cur = b.End()
	}
	return false, nil
}

// Verify checks that the blocks tile [origin, Limit) with no gap or overlap.
func (s *Store) Verify() error {
	end := s.origin
	err := s.Walk(func(b Block) error {
		end = b.End()
		return nil
	})
	if err != nil {
		return err
	}
	if end != s.Limit() {
		return fmt.Errorf("%w: chain ends at 0x%X, arena ends at 0x%X", ErrCorrupt, end, s.Limit())
	}
	return nil
}
