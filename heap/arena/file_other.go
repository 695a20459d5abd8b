//go:build !linux && !darwin && !freebsd

package arena

import (
	"errors"
	"fmt"
	"io"
)

func (a *File) mapData(size int) error {
	data := make([]byte, size)
	if size > 0 {
		if _, err := a.f.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read: %w", err)
		}
	}
	a.data = data
	return nil
}

func (a *File) unmap() error {
	a.data = nil
	return nil
}

func (a *File) resize(size int) error {
	if err := a.f.Truncate(int64(size)); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	a.data = append(a.data, make([]byte, size-len(a.data))...)
	return nil
}

// Sync writes [off, off+n) back to the file.
func (a *File) Sync(off, n int) error {
	start, end, ok := a.clampRange(off, n)
	if !ok {
		return nil
	}
	_, err := a.f.WriteAt(a.data[start:end], int64(start))
	return err
}
