package audio

import "io"

// Hooks for the black-box tests.
var (
	ErrInvalidWhence  = errInvalidWhence
	ErrNegativeOffset = errNegativeOffset
)

func NewWriteSeeker() io.WriteSeeker {
	return &writeSeeker{}
}
