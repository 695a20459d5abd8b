// Package heap is a dynamic memory allocator over a grow-only linear arena.
//
// A Heap couples three pieces:
//
//   - an arena.Memory (in-process slice, memory-mapped file, or wasm linear memory)
//   - a first-fit allocator that keeps its bookkeeping in 4-byte block headers
//     inside the arena itself
//   - a dirty tracker that records which bytes changed since the last Flush
//
// Addresses handed out by Allocate are byte offsets into the arena and stay
// valid across growth. Nothing is moved or compacted.
//
// Basic usage:
//
//	h, err := heap.New(nil)
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	addr, err := h.Allocate(64)
//	if err != nil {
//	    return err
//	}
//	if err := h.Write(addr, []byte("hello")); err != nil {
//	    return err
//	}
//	if err := h.Deallocate(addr); err != nil {
//	    return err
//	}
//
// A Heap is not safe for concurrent use. Wrap the allocator with
// alloc.NewLocked when several goroutines share one arena.
package heap
