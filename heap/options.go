package heap

import (
	"io"
	"log/slog"

	"github.com/jzwood/wasm-dynamic-memory/heap/alloc"
	"github.com/jzwood/wasm-dynamic-memory/heap/arena"
)

// Options configures a Heap. A nil *Options uses the defaults of both the
// arena and the allocator.
type Options struct {
	// PageSize is the arena growth increment in bytes.
	// Default: arena.DefaultPageSize
	PageSize uint32

	// MaxSize caps the arena size in bytes.
	// Default: arena.DefaultMaxSize
	MaxSize uint32

	// InitialSize pre-sizes a fresh arena.
	// Default: 0 (the first Allocate grows it)
	InitialSize uint32

	// Origin is the address of the first block. Bytes below it are left
	// to the caller.
	Origin uint32

	// SplitThreshold is the smallest payload a split-off remainder may have.
	SplitThreshold uint32

	// StrictFree makes Deallocate prove the address is a block boundary.
	StrictFree bool

	// Logger receives heap and allocator events. Default: discard, unless
	// ARENA_LOG_ALLOC is set.
	Logger *slog.Logger
}

func (o *Options) arena() *arena.Options {
	if o == nil {
		return nil
	}
	return &arena.Options{
		PageSize:    o.PageSize,
		MaxSize:     o.MaxSize,
		InitialSize: o.InitialSize,
	}
}

func (o *Options) alloc() *alloc.Options {
	if o == nil {
		return nil
	}
	return &alloc.Options{
		Origin:         o.Origin,
		SplitThreshold: o.SplitThreshold,
		StrictFree:     o.StrictFree,
		Logger:         o.Logger,
	}
}

func (o *Options) logger() *slog.Logger {
	if o != nil && o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
