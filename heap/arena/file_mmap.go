//go:build linux || darwin || freebsd

package arena

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func (a *File) mapData(size int) error {
	if size == 0 {
		a.data = nil
		return nil
	}
	data, err := unix.Mmap(int(a.f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	a.data = data
	return nil
}

func (a *File) unmap() error {
	if a.data == nil {
		return nil
	}
	err := unix.Munmap(a.data)
	a.data = nil
	return err
}

// resize grows the file to size bytes and remaps it. On failure the old
// mapping is restored so the arena stays usable.
func (a *File) resize(size int) error {
	old := len(a.data)
	if err := a.unmap(); err != nil {
		return fmt.Errorf("unmap before grow: %w", err)
	}
	if err := a.f.Truncate(int64(size)); err != nil {
		_ = a.mapData(old)
		return fmt.Errorf("truncate: %w", err)
	}
	if err := a.mapData(size); err != nil {
		_ = a.mapData(old)
		return fmt.Errorf("remap after grow: %w", err)
	}
	return nil
}

// Sync msyncs the pages covering [off, off+n).
func (a *File) Sync(off, n int) error {
	start, end, ok := a.clampRange(off, n)
	if !ok {
		return nil
	}
	page := os.Getpagesize()
	start -= start % page
	return unix.Msync(a.data[start:end], unix.MS_SYNC)
}
