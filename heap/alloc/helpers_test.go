package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jzwood/wasm-dynamic-memory/heap/arena"
)

// newTestAllocator creates an allocator over an empty slice arena.
func newTestAllocator(t testing.TB, pageSize, maxSize uint32, opts *Options) (*FirstFitAllocator, *arena.Slice) {
	t.Helper()
	mem, err := arena.NewSlice(&arena.Options{PageSize: pageSize, MaxSize: maxSize})
	require.NoError(t, err)
	fa, err := NewFirstFit(mem, nil, opts)
	require.NoError(t, err)
	return fa, mem
}

// mustAllocate allocates size bytes or fails the test.
func mustAllocate(t testing.TB, a Allocator, size uint32) uint32 {
	t.Helper()
	addr, err := a.Allocate(size)
	require.NoError(t, err, "Allocate(%d)", size)
	return addr
}

// requireBlocks asserts the exact block chain.
func requireBlocks(t testing.TB, fa *FirstFitAllocator, want ...Block) {
	t.Helper()
	got, err := fa.Blocks()
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.NoError(t, fa.Verify())
}

func used(addr, size uint32) Block { return Block{Addr: addr, Size: size} }

func free(addr, size uint32) Block { return Block{Addr: addr, Size: size, Free: true} }

// sparseMemory is an arena.Memory that stores only the words written to it,
// so tests can model multi-gigabyte arenas.
type sparseMemory struct {
	size  uint32
	words map[uint32]uint32
}

func newSparseMemory(size uint32) *sparseMemory {
	return &sparseMemory{size: size, words: make(map[uint32]uint32)}
}

func (m *sparseMemory) Size() uint32 { return m.size }

func (m *sparseMemory) Grow() (uint32, error) { return 0, arena.ErrCeiling }

func (m *sparseMemory) Read(off, n uint32) ([]byte, bool) { return nil, false }

func (m *sparseMemory) ReadUint32Le(off uint32) (uint32, bool) {
	if uint64(off)+4 > uint64(m.size) {
		return 0, false
	}
	return m.words[off], true
}

func (m *sparseMemory) WriteUint32Le(off, v uint32) bool {
	if uint64(off)+4 > uint64(m.size) {
		return false
	}
	m.words[off] = v
	return true
}
