package arena

import (
	"fmt"
	"os"

	"github.com/jzwood/wasm-dynamic-memory/internal/buf"
	"github.com/jzwood/wasm-dynamic-memory/internal/format"
)

// File is a Memory backed by a file. On Linux, macOS and FreeBSD the file is
// mapped read-write with MAP_SHARED and growth truncates then remaps it; other
// platforms keep a private copy that Sync and Close write back.
//
// The arena occupies the whole file: file size == Size().
type File struct {
	f        *os.File
	path     string
	data     []byte
	pageSize uint32
	maxSize  uint32
}

// OpenFile opens or creates the file at path as a memory. A file shorter than
// opts.InitialSize is extended with zeros.
func OpenFile(path string, opts *Options) (*File, error) {
	o, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	size := st.Size()
	if size > int64(o.MaxSize) {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, max %d", ErrCeiling, path, size, o.MaxSize)
	}
	if size < int64(o.InitialSize) {
		if err := f.Truncate(int64(o.InitialSize)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("arena: extend %s: %w", path, err)
		}
		size = int64(o.InitialSize)
	}

	a := &File{
		f:        f,
		path:     path,
		pageSize: o.PageSize,
		maxSize:  o.MaxSize,
	}
	if err := a.mapData(int(size)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("arena: map %s: %w", path, err)
	}
	return a, nil
}

// Path returns the backing file path.
func (a *File) Path() string { return a.path }

func (a *File) Size() uint32 { return uint32(len(a.data)) }

func (a *File) Grow() (uint32, error) {
	if a.f == nil {
		return 0, ErrClosed
	}
	next, err := nextSize(a.Size(), a.pageSize, a.maxSize)
	if err != nil {
		return 0, err
	}
	if err := a.resize(int(next)); err != nil {
		return 0, fmt.Errorf("arena: grow %s: %w", a.path, err)
	}
	return a.pageSize, nil
}

func (a *File) Read(off, n uint32) ([]byte, bool) {
	return buf.Span(a.data, off, n)
}

func (a *File) ReadUint32Le(off uint32) (uint32, bool) {
	b, ok := buf.Span(a.data, off, 4)
	if !ok {
		return 0, false
	}
	return format.ReadU32(b, 0), true
}

func (a *File) WriteUint32Le(off, v uint32) bool {
	b, ok := buf.Span(a.data, off, 4)
	if !ok {
		return false
	}
	format.PutU32(b, 0, v)
	return true
}

// Close flushes and releases the mapping and the file. Close is idempotent.
func (a *File) Close() error {
	if a.f == nil {
		return nil
	}
	var err error
	if len(a.data) > 0 {
		err = a.Sync(0, len(a.data))
	}
	if unmapErr := a.unmap(); err == nil {
		err = unmapErr
	}
	if closeErr := a.f.Close(); err == nil {
		err = closeErr
	}
	a.f = nil
	return err
}

// clampRange limits [off, off+n) to the current data.
func (a *File) clampRange(off, n int) (int, int, bool) {
	if off < 0 || n <= 0 || off >= len(a.data) {
		return 0, 0, false
	}
	end, ok := buf.AddOverflowSafe(off, n)
	if !ok || end > len(a.data) {
		end = len(a.data)
	}
	return off, end, true
}
