package alloc

// Stats holds allocator counters since creation.
type Stats struct {
	AllocCalls     int   `json:"alloc_calls"`     // Allocate calls past argument validation
	FailedAllocs   int   `json:"failed_allocs"`   // Allocate calls that ended in ErrOutOfMemory
	FreeCalls      int   `json:"free_calls"`      // Successful Deallocate calls
	GrowCalls      int   `json:"grow_calls"`      // Successful arena growths
	GrowBytes      int64 `json:"grow_bytes"`      // Bytes added by growth
	BytesAllocated int64 `json:"bytes_allocated"` // Payload bytes handed out
	BytesFreed     int64 `json:"bytes_freed"`     // Payload bytes released
	Splits         int   `json:"splits"`          // Runs split on allocation
	Merges         int   `json:"merges"`          // Adjacent free blocks merged into a run
	WalkSteps      int   `json:"walk_steps"`      // Headers loaded by allocation walks
}

// Stats returns a copy of the allocator counters.
func (fa *FirstFitAllocator) Stats() Stats { return fa.stats }

// Usage summarizes the block chain at a point in time.
type Usage struct {
	ArenaBytes    uint32  `json:"arena_bytes"`
	Blocks        int     `json:"blocks"`
	UsedBlocks    int     `json:"used_blocks"`
	FreeBlocks    int     `json:"free_blocks"`
	UsedBytes     uint64  `json:"used_bytes"`   // payload bytes in used blocks
	FreeBytes     uint64  `json:"free_bytes"`   // payload bytes in free blocks
	HeaderBytes   uint64  `json:"header_bytes"` // bytes spent on headers
	LargestFree   uint32  `json:"largest_free"`
	Fragmentation float64 `json:"fragmentation"` // 1 - LargestFree/FreeBytes
}

// Usage walks the chain and tallies used and free space. Adjacent free
// blocks not yet merged by a walk count separately.
func (fa *FirstFitAllocator) Usage() (Usage, error) {
	u := Usage{ArenaBytes: fa.store.Limit()}
	err := fa.store.Walk(func(b Block) error {
		u.Blocks++
		u.HeaderBytes += HeaderSize
		if b.Free {
			u.FreeBlocks++
			u.FreeBytes += uint64(b.Size)
			u.LargestFree = max(u.LargestFree, b.Size)
		} else {
			u.UsedBlocks++
			u.UsedBytes += uint64(b.Size)
		}
		return nil
	})
	if err != nil {
		return Usage{}, err
	}
	if u.FreeBytes > 0 {
		u.Fragmentation = 1 - float64(u.LargestFree)/float64(u.FreeBytes)
	}
	return u, nil
}
