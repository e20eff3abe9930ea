package decode

import "errors"

var (
	ErrUnsupportedFormat = errors.New("decode: unsupported audio format")
	ErrBadChannel        = errors.New("decode: channel out of range")
	ErrRangeOutOfBounds  = errors.New("decode: sample range past end of source")
)
