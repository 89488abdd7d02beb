package audio

import (
	"errors"
	"io"
)

var (
	errNegativeOffset = errors.New("negative seek offset")
	errInvalidWhence  = errors.New("invalid whence")
)

// writeSeeker is an in-memory io.WriteSeeker. The wav encoder seeks back to
// patch chunk sizes once all samples are written.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		grown := make([]byte, end)
		copy(grown, w.buf)
		w.buf = grown
	}

	copy(w.buf[w.pos:], p)
	w.pos = end

	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64

	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(len(w.buf))
	default:
		return 0, errInvalidWhence
	}

	next := base + offset
	if next < 0 {
		return 0, errNegativeOffset
	}

	w.pos = int(next)

	return next, nil
}

// Bytes returns everything written so far.
func (w *writeSeeker) Bytes() []byte {
	return w.buf
}
