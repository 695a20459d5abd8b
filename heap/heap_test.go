package heap

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzwood/wasm-dynamic-memory/heap/alloc"
	"github.com/jzwood/wasm-dynamic-memory/heap/arena"
	"github.com/jzwood/wasm-dynamic-memory/heap/snapshot"
)

func smallOptions() *Options {
	return &Options{PageSize: 4096, MaxSize: 64 << 10}
}

func TestHeap_AllocateWriteRead(t *testing.T) {
	h, err := New(smallOptions())
	require.NoError(t, err)
	defer h.Close()

	addr, err := h.Allocate(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), addr)

	require.NoError(t, h.Write(addr, []byte("hello, arena")))
	got, err := h.Read(addr, 12)
	require.NoError(t, err)
	assert.Equal(t, "hello, arena", string(got))

	// Read returns a copy.
	got[0] = 'H'
	again, err := h.Read(addr, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("h"), again)

	require.NoError(t, h.Deallocate(addr))
	require.NoError(t, h.Verify())
}

func TestHeap_AccessBounds(t *testing.T) {
	h, err := New(smallOptions())
	require.NoError(t, err)
	defer h.Close()

	addr, err := h.Allocate(8)
	require.NoError(t, err)

	err = h.Write(addr, make([]byte, 9))
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = h.Read(addr, 9)
	require.ErrorIs(t, err, ErrOutOfRange)

	require.NoError(t, h.Deallocate(addr))
	err = h.Write(addr, []byte("x"))
	require.ErrorIs(t, err, alloc.ErrInvalidArgument)
}

func TestHeap_OutOfMemory(t *testing.T) {
	h, err := New(&Options{PageSize: 4096, MaxSize: 8192})
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Allocate(8192)
	require.ErrorIs(t, err, alloc.ErrOutOfMemory)
	require.ErrorIs(t, err, arena.ErrCeiling)

	addr, err := h.Allocate(8188)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), addr)
}

func TestHeap_UsageAndStats(t *testing.T) {
	h, err := New(smallOptions())
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Allocate(100)
	require.NoError(t, err)

	u, err := h.Usage()
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), u.ArenaBytes)
	assert.Equal(t, uint64(100), u.UsedBytes)
	assert.Equal(t, 1, h.Stats().AllocCalls)

	blocks, err := h.Blocks()
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
}

func TestHeap_SnapshotRestore(t *testing.T) {
	h, err := New(&Options{PageSize: 4096, MaxSize: 64 << 10, Origin: 16})
	require.NoError(t, err)

	a, err := h.Allocate(32)
	require.NoError(t, err)
	b, err := h.Allocate(64)
	require.NoError(t, err)
	require.NoError(t, h.Write(b, []byte("persisted")))
	require.NoError(t, h.Deallocate(a))

	var buf bytes.Buffer
	require.NoError(t, h.Snapshot(&buf))
	want, err := h.Blocks()
	require.NoError(t, err)
	require.NoError(t, h.Close())

	r, err := Restore(&buf, smallOptions())
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint32(16), r.Origin())
	got, err := r.Blocks()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	data, err := r.Read(b, 9)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(data))

	again, err := r.Allocate(32)
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestHeap_RestoreRejectsCorruptSnapshot(t *testing.T) {
	h, err := New(smallOptions())
	require.NoError(t, err)
	_, err = h.Allocate(10)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, h.Snapshot(&buf))
	raw := buf.Bytes()
	raw[0] ^= 0xFF

	_, err = Restore(bytes.NewReader(raw), nil)
	require.ErrorIs(t, err, snapshot.ErrBadMagic)
}

func TestHeap_OpenFileReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.heap")

	h, err := OpenFile(path, smallOptions())
	require.NoError(t, err)
	addr, err := h.Allocate(100)
	require.NoError(t, err)
	require.NoError(t, h.Write(addr, []byte("on disk")))
	other, err := h.Allocate(50)
	require.NoError(t, err)
	require.NoError(t, h.Deallocate(other))
	want, err := h.Blocks()
	require.NoError(t, err)
	require.NoError(t, h.Close())

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), st.Size())

	h, err = OpenFile(path, smallOptions())
	require.NoError(t, err)
	defer h.Close()

	got, err := h.Blocks()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	data, err := h.Read(addr, 7)
	require.NoError(t, err)
	assert.Equal(t, "on disk", string(data))
	assert.Equal(t, other, mustAllocate(t, h, 50))
}

func TestHeap_OpenFileExtends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grow.heap")

	h, err := OpenFile(path, smallOptions())
	require.NoError(t, err)
	addr := mustAllocate(t, h, 100)
	require.NoError(t, h.Close())

	opts := smallOptions()
	opts.InitialSize = 8192
	h, err = OpenFile(path, opts)
	require.NoError(t, err)

	blocks, err := h.Blocks()
	require.NoError(t, err)
	assert.Equal(t, []alloc.Block{
		{Addr: 0, Size: 100},
		{Addr: 104, Size: 3988, Free: true},
		{Addr: 4096, Size: 4092, Free: true},
	}, blocks)
	require.NoError(t, h.Verify())

	big := mustAllocate(t, h, 5000)
	assert.Equal(t, addr+100+alloc.HeaderSize, big)
	require.NoError(t, h.Close())

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8192), st.Size())

	h, err = OpenFile(path, smallOptions())
	require.NoError(t, err)
	defer h.Close()
	require.NoError(t, h.Verify())
	size, err := h.UsableSize(big)
	require.NoError(t, err)
	assert.Equal(t, uint32(5000), size)
}

func TestHeap_OpenFileRejectsHeaderlessExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tail.heap")

	h, err := OpenFile(path, smallOptions())
	require.NoError(t, err)
	require.NoError(t, h.Close())

	opts := smallOptions()
	opts.InitialSize = 4096 + 2
	_, err = OpenFile(path, opts)
	require.ErrorIs(t, err, arena.ErrBadOptions)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), st.Size())
}

func TestHeap_RejectsTinyPageSize(t *testing.T) {
	_, err := New(&Options{PageSize: 2, MaxSize: 1024})
	require.ErrorIs(t, err, arena.ErrBadOptions)
}

func TestHeap_RestoreHonoursMaxSize(t *testing.T) {
	h, err := New(smallOptions())
	require.NoError(t, err)
	mustAllocate(t, h, 5000)

	var buf bytes.Buffer
	require.NoError(t, h.Snapshot(&buf))
	require.NoError(t, h.Close())

	_, err = Restore(bytes.NewReader(buf.Bytes()), &Options{PageSize: 4096, MaxSize: 4096})
	require.ErrorIs(t, err, snapshot.ErrTooLarge)
}

func TestHeap_OpenFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.heap")
	junk := bytes.Repeat([]byte{0xFF}, 4096)
	require.NoError(t, os.WriteFile(path, junk, 0o600))

	_, err := OpenFile(path, smallOptions())
	require.Error(t, err)
}

func TestHeap_OpenWasm(t *testing.T) {
	ctx := context.Background()
	h, err := OpenWasm(ctx, &Options{MaxSize: 2 * arena.WasmPageSize})
	require.NoError(t, err)

	addr, err := h.Allocate(1000)
	require.NoError(t, err)
	require.NoError(t, h.Write(addr, []byte("wasm")))
	assert.Equal(t, uint32(arena.WasmPageSize), h.Size())

	_, err = h.Allocate(3 * arena.WasmPageSize)
	require.ErrorIs(t, err, alloc.ErrOutOfMemory)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
}

func TestHeap_Closed(t *testing.T) {
	h, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	_, err = h.Allocate(1)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, h.Deallocate(4), ErrClosed)
	require.ErrorIs(t, h.Flush(context.Background()), ErrClosed)
	require.ErrorIs(t, h.Snapshot(&bytes.Buffer{}), ErrClosed)
}

func mustAllocate(t *testing.T, h *Heap, size uint32) uint32 {
	t.Helper()
	addr, err := h.Allocate(size)
	require.NoError(t, err)
	return addr
}
