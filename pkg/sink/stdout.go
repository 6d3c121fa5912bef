package sink

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/replicate/sledge/pkg/progress"
)

var _ Sink = &Stdout{}

// Stdout streams a download to a writer, os.Stdout by default. It accepts one
// sequential stream starting at offset zero.
type Stdout struct {
	Writer io.Writer

	mu   sync.Mutex
	next int64
}

func (s *Stdout) Resize(int64) error {
	return ErrNotSeekable
}

func (s *Stdout) WriteAt(offset int64, r io.Reader, expected int64, events chan<- progress.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset != s.next {
		return 0, fmt.Errorf("%w: write at offset %d, stream is at %d", ErrNotSeekable, offset, s.next)
	}
	n, err := copyAt(&streamWriter{sink: s}, offset, r, expected, events)
	if err != nil {
		return n, fmt.Errorf("error writing to stdout: %w", err)
	}
	return n, nil
}

func (s *Stdout) Seekable() bool {
	return false
}

func (s *Stdout) Name() string {
	return "stdout"
}

func (s *Stdout) Close() error {
	return nil
}

// streamWriter adapts the sequential writer to io.WriterAt, rejecting any write that
// is not at the current end of the stream.
type streamWriter struct {
	sink *Stdout
}

func (w *streamWriter) WriteAt(p []byte, off int64) (int, error) {
	if off != w.sink.next {
		return 0, ErrNotSeekable
	}
	out := w.sink.Writer
	if out == nil {
		out = os.Stdout
	}
	n, err := out.Write(p)
	w.sink.next += int64(n)
	return n, err
}
