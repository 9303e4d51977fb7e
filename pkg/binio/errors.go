package binio

import "errors"

// MaxCount bounds any length prefix read from a stream.
const MaxCount = 1 << 26

var (
	// ErrTooLarge is recorded when a length prefix exceeds its limit.
	ErrTooLarge = errors.New("binio: length prefix too large")

	// ErrVersion is returned by decoders for streams newer than they know.
	ErrVersion = errors.New("binio: unsupported stream version")
)
