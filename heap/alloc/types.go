package alloc

import (
	"github.com/jzwood/wasm-dynamic-memory/heap/block"
	"github.com/jzwood/wasm-dynamic-memory/heap/dirty"
)

// DirtyTracker is a type alias for the canonical interface defined in heap/dirty.
type DirtyTracker = dirty.DirtyTracker

// Block is a type alias for the block store's block.
type Block = block.Block

// Allocator defines the allocation surface shared by FirstFitAllocator and
// LockedAllocator.
type Allocator interface {
	// Allocate returns the payload address of a block of at least size bytes.
	Allocate(size uint32) (uint32, error)

	// Deallocate releases a payload address returned by Allocate.
	Deallocate(addr uint32) error
}
