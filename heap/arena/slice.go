package arena

import (
	"fmt"

	"github.com/jzwood/wasm-dynamic-memory/internal/buf"
	"github.com/jzwood/wasm-dynamic-memory/internal/format"
)

// Slice is a Memory backed by an in-process byte slice.
type Slice struct {
	data     []byte
	pageSize uint32
	maxSize  uint32
}

// NewSlice creates a zeroed slice memory of opts.InitialSize bytes.
func NewSlice(opts *Options) (*Slice, error) {
	o, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	return &Slice{
		data:     make([]byte, o.InitialSize),
		pageSize: o.PageSize,
		maxSize:  o.MaxSize,
	}, nil
}

// NewSliceFrom creates a slice memory holding a copy of image.
// opts.InitialSize is ignored; the image length must not exceed MaxSize.
func NewSliceFrom(image []byte, opts *Options) (*Slice, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.InitialSize = 0
	s, err := NewSlice(&o)
	if err != nil {
		return nil, err
	}
	if uint64(len(image)) > uint64(s.maxSize) {
		return nil, fmt.Errorf("%w: image of %d bytes exceeds max %d", ErrCeiling, len(image), s.maxSize)
	}
	s.data = append(s.data, image...)
	return s, nil
}

func (s *Slice) Size() uint32 { return uint32(len(s.data)) }

func (s *Slice) Grow() (uint32, error) {
	next, err := nextSize(s.Size(), s.pageSize, s.maxSize)
	if err != nil {
		return 0, err
	}
	s.data = append(s.data, make([]byte, next-s.Size())...)
	return s.pageSize, nil
}

func (s *Slice) Read(off, n uint32) ([]byte, bool) {
	return buf.Span(s.data, off, n)
}

func (s *Slice) ReadUint32Le(off uint32) (uint32, bool) {
	b, ok := buf.Span(s.data, off, 4)
	if !ok {
		return 0, false
	}
	return format.ReadU32(b, 0), true
}

func (s *Slice) WriteUint32Le(off, v uint32) bool {
	b, ok := buf.Span(s.data, off, 4)
	if !ok {
		return false
	}
	format.PutU32(b, 0, v)
	return true
}

// Bytes returns the whole backing slice.
func (s *Slice) Bytes() []byte { return s.data }
