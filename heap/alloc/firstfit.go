package alloc

import (
	"fmt"
	"log/slog"

	"github.com/jzwood/wasm-dynamic-memory/heap/arena"
	"github.com/jzwood/wasm-dynamic-memory/heap/block"
	"github.com/jzwood/wasm-dynamic-memory/internal/format"
)

// HeaderSize is the per-block overhead in bytes.
const HeaderSize = block.HeaderSize

// FirstFitAllocator hands out the first sufficiently large free run found by
// walking the block chain from the arena origin. It keeps no state besides
// the headers in the arena and its counters, so an arena can be detached and
// re-attached (see AttachFirstFit) at any time between calls.
type FirstFitAllocator struct {
	store *block.Store
	opts  Options
	log   *slog.Logger
	stats Stats
}

// NewFirstFit creates an allocator over mem and formats everything from
// opts.Origin to the current arena end as one free block. Use it for fresh
// arenas only; existing block layouts are overwritten.
//
// Parameters:
//   - mem: the arena to allocate from
//   - dt: dirty tracker notified of every header write (can be nil)
//   - opts: allocator options (nil for defaults)
func NewFirstFit(mem arena.Memory, dt DirtyTracker, opts *Options) (*FirstFitAllocator, error) {
	o := opts.normalize()
	if err := reserveOrigin(mem, o.Origin); err != nil {
		return nil, err
	}
	fa, err := newFirstFit(mem, dt, o)
	if err != nil {
		return nil, err
	}
	if err := fa.store.Format(); err != nil {
		return nil, fmt.Errorf("alloc: format arena: %w", err)
	}
	return fa, nil
}

// AttachFirstFit creates an allocator over an arena that already holds a
// block chain (a restored snapshot or a reopened file). The chain must cover
// the arena exactly.
func AttachFirstFit(mem arena.Memory, dt DirtyTracker, opts *Options) (*FirstFitAllocator, error) {
	fa, err := newFirstFit(mem, dt, opts.normalize())
	if err != nil {
		return nil, err
	}
	if err := fa.store.Verify(); err != nil {
		return nil, fmt.Errorf("alloc: attach: %w", err)
	}
	return fa, nil
}

func newFirstFit(mem arena.Memory, dt DirtyTracker, o Options) (*FirstFitAllocator, error) {
	store, err := block.NewStore(mem, o.Origin, dt)
	if err != nil {
		return nil, fmt.Errorf("alloc: %w", err)
	}
	return &FirstFitAllocator{
		store: store,
		opts:  o,
		log:   o.Logger,
	}, nil
}

// reserveOrigin grows a fresh arena until the bytes below origin exist and
// the bytes from origin on are either empty or large enough for a header.
func reserveOrigin(mem arena.Memory, origin uint32) error {
	for {
		size := uint64(mem.Size())
		short := size < uint64(origin) || (size > uint64(origin) && size-uint64(origin) < HeaderSize)
		if !short {
			return nil
		}
		if _, err := mem.Grow(); err != nil {
			return fmt.Errorf("%w: reserve origin 0x%X: %w", ErrOutOfMemory, origin, err)
		}
	}
}

// Allocate returns the payload address of a block of at least size bytes.
//
// Errors wrap ErrInvalidArgument for size == 0 or size > format.MaxBlockSize,
// and ErrOutOfMemory when the arena cannot grow. After an error every block
// visited by the walk is still consistent and coalesced.
func (fa *FirstFitAllocator) Allocate(size uint32) (uint32, error) {
	if size == 0 || size > format.MaxBlockSize {
		return 0, fmt.Errorf("%w: allocate %d bytes", ErrInvalidArgument, size)
	}
	fa.stats.AllocCalls++

	var (
		run    Block               // prev window; zero value is the used, empty sentinel
		merged bool                // run.Size differs from the header stored at run.Addr
		cursor = fa.store.Origin() // address of next
	)
	for {
		if cursor >= fa.store.Limit() {
			if err := fa.grow(); err != nil {
				fa.stats.FailedAllocs++
				if merged {
					if flushErr := fa.store.Store(run); flushErr != nil {
						return 0, fmt.Errorf("alloc: write back run %s: %w", run, flushErr)
					}
				}
				fa.log.Debug("allocation failed", "size", size, "arena", fa.store.Limit(), "err", err)
				return 0, fmt.Errorf("%w: allocate %d bytes: %w", ErrOutOfMemory, size, err)
			}
		}

		next, err := fa.store.Load(cursor)
		if err != nil {
			return 0, fmt.Errorf("alloc: walk: %w", err)
		}
		fa.stats.WalkSteps++

		switch {
		case !run.Free && !next.Free:
			run = next
		case !run.Free && next.Free:
			run, merged = next, false
		case run.Free && !next.Free:
			if merged {
				if err := fa.store.Store(run); err != nil {
					return 0, fmt.Errorf("alloc: write back run %s: %w", run, err)
				}
			}
			run, merged = next, false
		default:
			total := uint64(run.Size) + HeaderSize + uint64(next.Size)
			if total > uint64(format.MaxBlockSize) {
				// Header cannot describe the merged run; close it and start over at next.
				if merged {
					if err := fa.store.Store(run); err != nil {
						return 0, fmt.Errorf("alloc: write back run %s: %w", run, err)
					}
				}
				run, merged = next, false
				break
			}
			run.Size = uint32(total)
			merged = true
			fa.stats.Merges++
		}

		if run.Free && run.Size >= size {
			return fa.take(run, size)
		}
		cursor = run.End()
	}
}

// take marks the free run as allocated, splitting off the remainder when it
// can hold a header plus SplitThreshold bytes.
func (fa *FirstFitAllocator) take(run Block, size uint32) (uint32, error) {
	if rem := run.Size - size; rem >= HeaderSize && rem-HeaderSize >= fa.opts.SplitThreshold {
		tail := Block{Addr: run.Addr + HeaderSize + size, Size: rem - HeaderSize, Free: true}
		if err := fa.store.Store(tail); err != nil {
			return 0, fmt.Errorf("alloc: split %s: %w", run, err)
		}
		run.Size = size
		fa.stats.Splits++
	}
	run.Free = false
	if err := fa.store.Store(run); err != nil {
		return 0, fmt.Errorf("alloc: mark %s used: %w", run, err)
	}
	fa.stats.BytesAllocated += int64(run.Size)
	return run.Payload(), nil
}

// grow extends the arena by one increment.
func (fa *FirstFitAllocator) grow() error {
	b, err := fa.store.Grow()
	if err != nil {
		return err
	}
	fa.stats.GrowCalls++
	fa.stats.GrowBytes += int64(b.Size) + HeaderSize
	fa.log.Debug("arena grown", "block", b.Addr, "payload", b.Size, "arena", fa.store.Limit())
	return nil
}

// Deallocate marks the block behind addr free. Neighbours are merged by the
// next Allocate that walks over them.
//
// Errors wrap ErrInvalidArgument when addr is not a live allocation; the
// arena is not modified in that case.
func (fa *FirstFitAllocator) Deallocate(addr uint32) error {
	b, err := fa.liveBlock(addr)
	if err != nil {
		fa.log.Debug("free rejected", "addr", addr, "err", err)
		return err
	}
	b.Free = true
	if err := fa.store.Store(b); err != nil {
		return fmt.Errorf("alloc: mark %s free: %w", b, err)
	}
	fa.stats.FreeCalls++
	fa.stats.BytesFreed += int64(b.Size)
	return nil
}

// UsableSize returns the payload size of the live allocation at addr, which
// may exceed the size originally requested.
func (fa *FirstFitAllocator) UsableSize(addr uint32) (uint32, error) {
	b, err := fa.liveBlock(addr)
	if err != nil {
		return 0, err
	}
	return b.Size, nil
}

// liveBlock resolves a payload address to its allocated block.
func (fa *FirstFitAllocator) liveBlock(addr uint32) (Block, error) {
	first := uint64(fa.store.Origin()) + HeaderSize
	if uint64(addr) < first {
		return Block{}, fmt.Errorf("%w: address 0x%X below first payload 0x%X", ErrInvalidArgument, addr, first)
	}
	hdr := addr - HeaderSize
	if fa.opts.StrictFree {
		ok, err := fa.store.Contains(hdr)
		if err != nil {
			return Block{}, fmt.Errorf("alloc: walk: %w", err)
		}
		if !ok {
			return Block{}, fmt.Errorf("%w: address 0x%X is not a block", ErrInvalidArgument, addr)
		}
	}
	b, err := fa.store.Load(hdr)
	if err != nil {
		return Block{}, fmt.Errorf("%w: address 0x%X: %w", ErrInvalidArgument, addr, err)
	}
	if b.Free {
		return Block{}, fmt.Errorf("%w: address 0x%X is already free", ErrInvalidArgument, addr)
	}
	return b, nil
}

// Store returns the underlying block store.
func (fa *FirstFitAllocator) Store() *block.Store { return fa.store }

// Blocks returns the current block chain.
func (fa *FirstFitAllocator) Blocks() ([]Block, error) { return fa.store.Blocks() }

// Verify checks that the block chain covers the arena exactly.
func (fa *FirstFitAllocator) Verify() error { return fa.store.Verify() }
