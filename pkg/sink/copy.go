package sink

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/replicate/sledge/pkg/progress"
)

// BufferSize is the size of the intermediate copy buffer and therefore the upper bound
// on the bytes covered by a single progress event.
const BufferSize = 1 << 20

// copyAt copies exactly expected bytes from r into w starting at offset. Reads are
// accumulated until the buffer is full (or the body ends) so every write, and every
// event, covers up to BufferSize bytes. Reads interrupted by a signal are retried.
func copyAt(w io.WriterAt, offset int64, r io.Reader, expected int64, events chan<- progress.Event) (int64, error) {
	if expected <= 0 {
		return 0, nil
	}
	buf := make([]byte, min(int64(BufferSize), expected))
	// never read past the segment, even if the server sends more
	limited := io.LimitReader(r, expected)

	var written int64
	for written < expected {
		filled, eof, err := fill(limited, buf)
		if err != nil {
			return written, fmt.Errorf("error reading at offset %d: %w", offset+written, err)
		}
		if filled > 0 {
			if _, err := w.WriteAt(buf[:filled], offset+written); err != nil {
				return written, fmt.Errorf("error writing at offset %d: %w", offset+written, err)
			}
			written += int64(filled)
			if events != nil {
				events <- progress.Event{Offset: offset + written, Length: int64(filled)}
			}
		}
		if eof {
			break
		}
	}
	if written != expected {
		return written, fmt.Errorf("%w: expected %d bytes at offset %d, received %d", io.ErrUnexpectedEOF, expected, offset, written)
	}
	return written, nil
}

// fill reads into buf until it is full or r is exhausted.
func fill(r io.Reader, buf []byte) (n int, eof bool, err error) {
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return n, true, nil
		case errors.Is(err, syscall.EINTR):
			continue
		default:
			return n, false, err
		}
	}
	return n, false, nil
}
