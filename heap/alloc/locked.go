package alloc

import "sync"

// LockedAllocator serializes every call into the wrapped Allocator with a
// mutex, making it safe for concurrent use.
type LockedAllocator struct {
	mu sync.Mutex
	a  Allocator
}

// NewLocked wraps a.
func NewLocked(a Allocator) *LockedAllocator {
	return &LockedAllocator{a: a}
}

func (l *LockedAllocator) Allocate(size uint32) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Allocate(size)
}

func (l *LockedAllocator) Deallocate(addr uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Deallocate(addr)
}

// Do runs fn with the lock held, so a sequence of calls on the wrapped
// allocator is not interleaved with other callers.
func (l *LockedAllocator) Do(fn func(Allocator) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.a)
}
