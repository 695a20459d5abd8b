// Package alloc provides a first-fit block allocator for a single grow-only arena.
//
// # Overview
//
// The arena is a sequence of adjacent blocks, each prefixed by a 4-byte header
// holding the payload size and a free flag (see heap/block). There is no
// separate free list: the block chain itself is the free list, walked from the
// arena origin on every allocation.
//
// # Allocation
//
// Allocate walks the chain keeping a window of the current run ("prev") and
// the block after it ("next"):
//
//	prev    next     action
//	used    used     advance: prev = next
//	used    free     start a run: prev = next
//	free    used     write the run back as one free block, then prev = next
//	free    free     merge: prev.Size += HeaderSize + next.Size
//
// After each step, a free run of at least the requested size is taken. When
// the remainder is large enough to hold a header it is split off as a new
// free block right after the allocation. When the walk reaches the arena end
// the arena is grown by one increment, which appends a free block that the
// walk then visits like any other.
//
// Coalescing is lazy: only runs visited by an allocation are merged, and a
// run is always written back before the call returns.
//
// # Deallocation
//
// Deallocate only flips the free flag. The next walk that crosses the block
// merges it with its free neighbours.
//
// # Addresses
//
// Allocate returns payload addresses (block address + HeaderSize), and
// Deallocate expects the same addresses back.
//
// # Thread Safety
//
// FirstFitAllocator instances are not thread-safe. Wrap them in a
// LockedAllocator to serialize callers.
package alloc
