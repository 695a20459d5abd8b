package alloc

import (
	"io"
	"log/slog"
	"os"
)

// logEnv enables allocator debug logging on stderr when set and no Logger is configured.
const logEnv = "ARENA_LOG_ALLOC"

// Options configures a FirstFitAllocator.
//
// A nil *Options means DefaultOptions().
type Options struct {
	// Origin is the address of the first block. Bytes below it are never touched.
	// Default: 0
	Origin uint32

	// SplitThreshold is the smallest payload a split-off remainder may have.
	// Runs whose remainder would be smaller are handed out whole.
	// Default: 0 (split whenever the remainder can hold a header)
	SplitThreshold uint32

	// StrictFree makes Deallocate walk the chain to prove the address is a
	// block boundary before releasing it. Costs O(blocks) per call.
	// Default: false
	StrictFree bool

	// Logger receives debug events (growth, out-of-memory, rejected frees).
	// Default: discard, or a stderr debug logger when ARENA_LOG_ALLOC is set.
	Logger *slog.Logger
}

// DefaultOptions returns the default allocator options.
func DefaultOptions() Options {
	return Options{}
}

func (o *Options) normalize() Options {
	out := DefaultOptions()
	if o != nil {
		out = *o
	}
	if out.Logger == nil {
		out.Logger = defaultLogger()
	}
	return out
}

func defaultLogger() *slog.Logger {
	if os.Getenv(logEnv) != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
