package alloc

import "errors"

var (
	// ErrOutOfMemory indicates the arena could not grow enough to satisfy a request.
	ErrOutOfMemory = errors.New("alloc: out of memory")

	// ErrInvalidArgument indicates a zero or oversized request, or an address
	// that is not a live allocation. No header is modified when it is returned.
	ErrInvalidArgument = errors.New("alloc: invalid argument")
)
