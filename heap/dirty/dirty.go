// Package dirty tracks byte ranges of an arena modified since the last flush.
//
// The allocator reports every header it writes; callers report payload
// writes. At flush time the ranges are page-aligned, sorted and merged, then
// handed to a Syncer (msync for a file-backed arena).
package dirty

import (
	"context"
	"os"
	"sort"
)

// defaultRangeCapacity is the pre-allocated capacity for dirty ranges.
const defaultRangeCapacity = 64

// DirtyTracker is the minimal interface for reporting modified byte ranges.
//
// Allocators and writers depend on this interface only; they never flush.
type DirtyTracker interface {
	// Add marks a byte range as dirty.
	// off is the offset from the arena origin, length is the number of bytes.
	Add(off, length int)
}

// Syncer persists a byte range of the backing store.
type Syncer interface {
	Sync(off, length int) error
}

// Range represents a dirty byte range.
type Range struct {
	Off int64
	Len int64
}

// Tracker accumulates dirty ranges and flushes them page by page.
//
// NOT thread-safe. Only one goroutine should use it at a time.
type Tracker struct {
	ranges   []Range
	pageSize int64
}

// NewTracker creates a tracker aligned to the OS page size.
func NewTracker() *Tracker {
	return NewTrackerWithPageSize(os.Getpagesize())
}

// NewTrackerWithPageSize creates a tracker aligned to pageSize bytes.
func NewTrackerWithPageSize(pageSize int) *Tracker {
	if pageSize <= 0 {
		pageSize = os.Getpagesize()
	}
	return &Tracker{
		ranges:   make([]Range, 0, defaultRangeCapacity),
		pageSize: int64(pageSize),
	}
}

// Add records a dirty range. Zero and negative lengths are ignored.
func (t *Tracker) Add(off, length int) {
	if length <= 0 || off < 0 {
		return
	}
	t.ranges = append(t.ranges, Range{
		Off: int64(off),
		Len: int64(length),
	})
}

// Len returns the number of raw, uncoalesced ranges.
func (t *Tracker) Len() int { return len(t.ranges) }

// Reset clears all tracked ranges.
func (t *Tracker) Reset() {
	t.ranges = t.ranges[:0]
}

// Ranges returns the page-aligned, sorted, merged ranges a Flush would sync.
func (t *Tracker) Ranges() []Range {
	return t.coalesce()
}

// Flush syncs every coalesced range through s and clears the tracker.
//
// The context is checked between ranges. If cancelled mid-flush, ranges
// already synced stay synced and the tracker keeps all ranges so a retry
// covers everything.
func (t *Tracker) Flush(ctx context.Context, s Syncer) error {
	if len(t.ranges) == 0 {
		return nil
	}
	for _, r := range t.coalesce() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Sync(int(r.Off), int(r.Len)); err != nil {
			return err
		}
	}
	t.ranges = t.ranges[:0]
	return nil
}

// coalesce page-aligns all ranges, sorts them, and merges overlapping/adjacent ranges.
func (t *Tracker) coalesce() []Range {
	if len(t.ranges) == 0 {
		return nil
	}

	aligned := make([]Range, len(t.ranges))
	for i, r := range t.ranges {
		start := (r.Off / t.pageSize) * t.pageSize
		end := r.Off + r.Len
		if end%t.pageSize != 0 {
			end = ((end / t.pageSize) + 1) * t.pageSize
		}
		aligned[i] = Range{Off: start, Len: end - start}
	}

	sort.Slice(aligned, func(i, j int) bool {
		return aligned[i].Off < aligned[j].Off
	})

	merged := make([]Range, 0, len(aligned))
	current := aligned[0]
	for _, next := range aligned[1:] {
		if next.Off <= current.Off+current.Len {
			end := max(current.Off+current.Len, next.Off+next.Len)
			current.Len = end - current.Off
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}
