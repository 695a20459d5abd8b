package format

import "errors"

// ErrSizeOverflow indicates a block size does not fit the 31-bit header field.
var ErrSizeOverflow = errors.New("format: block size exceeds header capacity")
