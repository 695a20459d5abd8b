package arena

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

const (
	// WasmPageSize is the WebAssembly page size.
	WasmPageSize = 64 << 10

	// wasmMemoryExport is the export name of the standalone sandbox memory.
	wasmMemoryExport = "memory"
)

// Wasm is a Memory backed by a WebAssembly linear memory. Growth issues
// memory.grow for a fixed number of pages, so the ceiling is the memory's
// declared maximum.
type Wasm struct {
	mem       api.Memory
	growPages uint32
	runtime   wazero.Runtime // nil when wrapping a host memory
}

// WrapWasm adapts a memory owned by an already instantiated module.
// opts.PageSize is rounded down to whole wasm pages (minimum one);
// MaxSize and InitialSize are ignored because the module declares them.
func WrapWasm(mem api.Memory, opts *Options) (*Wasm, error) {
	o, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	return &Wasm{mem: mem, growPages: growPages(o.PageSize)}, nil
}

// NewWasm instantiates a standalone module that exports a single linear
// memory sized from opts, and returns it as an arena. Close releases the
// runtime.
func NewWasm(ctx context.Context, opts *Options) (*Wasm, error) {
	o, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	minPages := (uint64(o.InitialSize) + WasmPageSize - 1) / WasmPageSize
	maxPages := uint64(o.MaxSize) / WasmPageSize
	if minPages > maxPages {
		return nil, fmt.Errorf("%w: initial size %d rounds past max size %d",
			ErrBadOptions, o.InitialSize, o.MaxSize)
	}

	r := wazero.NewRuntime(ctx)
	mod, err := r.Instantiate(ctx, memoryModule(uint32(minPages), uint32(maxPages)))
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("arena: instantiate wasm memory: %w", err)
	}
	mem := mod.ExportedMemory(wasmMemoryExport)
	if mem == nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("arena: wasm module has no %q export", wasmMemoryExport)
	}
	return &Wasm{mem: mem, growPages: growPages(o.PageSize), runtime: r}, nil
}

func growPages(pageSize uint32) uint32 {
	if n := pageSize / WasmPageSize; n > 0 {
		return n
	}
	return 1
}

func (w *Wasm) Size() uint32 { return w.mem.Size() }

func (w *Wasm) Grow() (uint32, error) {
	if _, ok := w.mem.Grow(w.growPages); !ok {
		return 0, fmt.Errorf("%w: memory.grow(%d) refused at %d bytes", ErrCeiling, w.growPages, w.mem.Size())
	}
	return w.growPages * WasmPageSize, nil
}

func (w *Wasm) Read(off, n uint32) ([]byte, bool) { return w.mem.Read(off, n) }

func (w *Wasm) ReadUint32Le(off uint32) (uint32, bool) { return w.mem.ReadUint32Le(off) }

func (w *Wasm) WriteUint32Le(off, v uint32) bool { return w.mem.WriteUint32Le(off, v) }

// Close releases the runtime created by NewWasm. Wrapped memories are left alone.
func (w *Wasm) Close(ctx context.Context) error {
	if w.runtime == nil {
		return nil
	}
	err := w.runtime.Close(ctx)
	w.runtime = nil
	return err
}

// memoryModule encodes a wasm binary with one memory (min..max pages)
// exported as "memory". Section layout:
//
//	magic, version
//	id 5 (memory):  vec(1) { limits 0x01 min max }
//	id 7 (export):  vec(1) { name "memory", kind 0x02 (mem), index 0 }
func memoryModule(minPages, maxPages uint32) []byte {
	mem := []byte{0x01, 0x01}
	mem = binary.AppendUvarint(mem, uint64(minPages))
	mem = binary.AppendUvarint(mem, uint64(maxPages))

	exp := []byte{0x01}
	exp = binary.AppendUvarint(exp, uint64(len(wasmMemoryExport)))
	exp = append(exp, wasmMemoryExport...)
	exp = append(exp, 0x02, 0x00)

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = appendSection(out, 0x05, mem)
	out = appendSection(out, 0x07, exp)
	return out
}

func appendSection(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = binary.AppendUvarint(out, uint64(len(body)))
	return append(out, body...)
}
