package heap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/jzwood/wasm-dynamic-memory/heap/alloc"
	"github.com/jzwood/wasm-dynamic-memory/heap/arena"
	"github.com/jzwood/wasm-dynamic-memory/heap/dirty"
	"github.com/jzwood/wasm-dynamic-memory/heap/snapshot"
	"github.com/jzwood/wasm-dynamic-memory/internal/format"
)

var (
	// ErrOutOfRange indicates a payload access past the usable size of an allocation.
	ErrOutOfRange = errors.New("heap: access outside allocation")

	// ErrClosed indicates use of a closed Heap.
	ErrClosed = errors.New("heap: closed")
)

// Heap is an allocator bound to its arena.
type Heap struct {
	mem     arena.Memory
	fa      *alloc.FirstFitAllocator
	dt      *dirty.Tracker
	syncer  dirty.Syncer                    // nil when the arena has no backing store
	release func(ctx context.Context) error // frees the arena; may be nil
	log     *slog.Logger
	closed  bool
}

// New creates a heap over a fresh in-process arena.
func New(opts *Options) (*Heap, error) {
	mem, err := arena.NewSlice(opts.arena())
	if err != nil {
		return nil, fmt.Errorf("heap: %w", err)
	}
	return create(mem, opts, nil, nil)
}

// OpenFile opens a heap persisted in the file at path. A missing or empty
// file is created and formatted; otherwise the block chain it holds is
// attached and verified, which requires the same opts.Origin it was created
// with. An opts.InitialSize past the end of an existing file extends the
// chain with one free block covering the new bytes.
func OpenFile(path string, opts *Options) (*Heap, error) {
	var prev uint32
	if st, err := os.Stat(path); err == nil && st.Size() > 0 && st.Size() <= math.MaxUint32 {
		prev = uint32(st.Size())
	}
	fresh := prev == 0
	if !fresh && opts != nil && opts.InitialSize > prev && opts.InitialSize-prev < alloc.HeaderSize {
		return nil, fmt.Errorf("heap: open %s: extending %d bytes to %d leaves no room for a block header: %w",
			path, prev, opts.InitialSize, arena.ErrBadOptions)
	}

	f, err := arena.OpenFile(path, opts.arena())
	if err != nil {
		return nil, fmt.Errorf("heap: open %s: %w", path, err)
	}
	closeFile := func(context.Context) error { return f.Close() }

	extended := !fresh && f.Size() > prev
	if extended {
		f.WriteUint32Le(prev, format.FreeFlag|(f.Size()-prev-alloc.HeaderSize))
	}

	var h *Heap
	if fresh {
		h, err = create(f, opts, f, closeFile)
	} else {
		h, err = attach(f, opts, f, closeFile)
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	h.log.Info("heap opened", "path", path, "fresh", fresh, "size", f.Size())
	if extended {
		h.dt.Add(int(prev), alloc.HeaderSize)
	}
	if fresh || extended {
		// Persist the new headers so the file reopens as a heap.
		if err := h.Flush(context.Background()); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return h, nil
}

// OpenWasm creates a heap over the linear memory of a fresh wasm module.
func OpenWasm(ctx context.Context, opts *Options) (*Heap, error) {
	w, err := arena.NewWasm(ctx, opts.arena())
	if err != nil {
		return nil, fmt.Errorf("heap: %w", err)
	}
	h, err := create(w, opts, nil, w.Close)
	if err != nil {
		_ = w.Close(ctx)
		return nil, err
	}
	return h, nil
}

// Restore creates an in-process heap from a snapshot written by Snapshot.
// The snapshot's origin overrides opts.Origin.
func Restore(r io.Reader, opts *Options) (*Heap, error) {
	limit := uint32(arena.DefaultMaxSize)
	if opts != nil && opts.MaxSize != 0 {
		limit = opts.MaxSize
	}
	img, err := snapshot.Read(r, limit)
	if err != nil {
		return nil, fmt.Errorf("heap: restore: %w", err)
	}
	mem, err := arena.NewSliceFrom(img.Data, opts.arena())
	if err != nil {
		return nil, fmt.Errorf("heap: restore: %w", err)
	}
	o := Options{}
	if opts != nil {
		o = *opts
	}
	o.Origin = img.Origin
	return attach(mem, &o, nil, nil)
}

func create(mem arena.Memory, opts *Options, s dirty.Syncer, closeFn func(context.Context) error) (*Heap, error) {
	h := newHeap(mem, opts, s, closeFn)
	fa, err := alloc.NewFirstFit(mem, h.dt, opts.alloc())
	if err != nil {
		return nil, fmt.Errorf("heap: %w", err)
	}
	h.fa = fa
	return h, nil
}

func attach(mem arena.Memory, opts *Options, s dirty.Syncer, closeFn func(context.Context) error) (*Heap, error) {
	h := newHeap(mem, opts, s, closeFn)
	fa, err := alloc.AttachFirstFit(mem, h.dt, opts.alloc())
	if err != nil {
		return nil, fmt.Errorf("heap: %w", err)
	}
	h.fa = fa
	return h, nil
}

func newHeap(mem arena.Memory, opts *Options, s dirty.Syncer, closeFn func(context.Context) error) *Heap {
	return &Heap{
		mem:     mem,
		dt:      dirty.NewTracker(),
		syncer:  s,
		release: closeFn,
		log:     opts.logger(),
	}
}

// Allocate reserves size bytes and returns the payload address.
func (h *Heap) Allocate(size uint32) (uint32, error) {
	if h.closed {
		return 0, ErrClosed
	}
	return h.fa.Allocate(size)
}

// Deallocate releases an address returned by Allocate.
func (h *Heap) Deallocate(addr uint32) error {
	if h.closed {
		return ErrClosed
	}
	return h.fa.Deallocate(addr)
}

// UsableSize returns the payload size of the allocation at addr.
func (h *Heap) UsableSize(addr uint32) (uint32, error) {
	if h.closed {
		return 0, ErrClosed
	}
	return h.fa.UsableSize(addr)
}

// Write copies p into the allocation at addr. p must fit in the usable size.
func (h *Heap) Write(addr uint32, p []byte) error {
	view, err := h.payload(addr, uint64(len(p)))
	if err != nil {
		return err
	}
	copy(view, p)
	h.dt.Add(int(addr), len(p))
	return nil
}

// Read returns a copy of the first n payload bytes of the allocation at addr.
func (h *Heap) Read(addr, n uint32) ([]byte, error) {
	view, err := h.payload(addr, uint64(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), view...), nil
}

func (h *Heap) payload(addr uint32, n uint64) ([]byte, error) {
	size, err := h.UsableSize(addr)
	if err != nil {
		return nil, err
	}
	if n > uint64(size) {
		return nil, fmt.Errorf("%w: %d bytes at 0x%X, usable %d", ErrOutOfRange, n, addr, size)
	}
	view, ok := h.mem.Read(addr, uint32(n))
	if !ok {
		return nil, fmt.Errorf("%w: %d bytes at 0x%X", ErrOutOfRange, n, addr)
	}
	return view, nil
}

// Size returns the current arena size in bytes.
func (h *Heap) Size() uint32 { return h.mem.Size() }

// Origin returns the address of the first block.
func (h *Heap) Origin() uint32 { return h.fa.Store().Origin() }

// Blocks returns the block chain from the origin to the arena end.
func (h *Heap) Blocks() ([]alloc.Block, error) { return h.fa.Blocks() }

// Usage summarizes used and free space.
func (h *Heap) Usage() (alloc.Usage, error) { return h.fa.Usage() }

// Stats returns the allocator counters.
func (h *Heap) Stats() alloc.Stats { return h.fa.Stats() }

// Verify checks that the block chain tiles the arena.
func (h *Heap) Verify() error { return h.fa.Verify() }

// Allocator returns the underlying allocator.
func (h *Heap) Allocator() *alloc.FirstFitAllocator { return h.fa }

// Snapshot writes a compressed image of the whole arena to w.
func (h *Heap) Snapshot(w io.Writer) error {
	if h.closed {
		return ErrClosed
	}
	size := h.mem.Size()
	data, ok := h.mem.Read(0, size)
	if !ok {
		return fmt.Errorf("heap: snapshot: arena of %d bytes unreadable", size)
	}
	if err := snapshot.Write(w, snapshot.Image{Origin: h.Origin(), Data: data}); err != nil {
		return fmt.Errorf("heap: %w", err)
	}
	h.log.Debug("snapshot written", "size", size, "origin", h.Origin())
	return nil
}

// Flush persists modified ranges. It only does I/O for file-backed heaps;
// for other arenas it just clears the dirty set.
func (h *Heap) Flush(ctx context.Context) error {
	if h.closed {
		return ErrClosed
	}
	if h.syncer == nil {
		h.dt.Reset()
		return nil
	}
	ranges := h.dt.Len()
	if err := h.dt.Flush(ctx, h.syncer); err != nil {
		return fmt.Errorf("heap: flush: %w", err)
	}
	h.log.Debug("flushed", "ranges", ranges)
	return nil
}

// Close flushes and releases the arena. Close is idempotent.
func (h *Heap) Close() error {
	if h.closed {
		return nil
	}
	ctx := context.Background()
	err := h.Flush(ctx)
	h.closed = true
	if h.release != nil {
		if closeErr := h.release(ctx); err == nil {
			err = closeErr
		}
	}
	return err
}
