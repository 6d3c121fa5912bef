// Package sink implements the write targets of a download: a pre-sized file that
// accepts positioned writes from many workers, and stdout, which only accepts a
// single stream starting at offset zero.
package sink

import (
	"errors"
	"io"

	"github.com/replicate/sledge/pkg/progress"
)

// ErrNotSeekable is returned when a positioned operation is attempted on a target that
// can only be streamed.
var ErrNotSeekable = errors.New("cannot seek on stdout")

type Sink interface {
	// Resize sets the target to exactly size bytes before any data is written.
	Resize(size int64) error
	// WriteAt copies exactly expected bytes from r to the target starting at offset,
	// sending one event per buffered write. It returns the number of bytes written.
	WriteAt(offset int64, r io.Reader, expected int64, events chan<- progress.Event) (int64, error)
	// Seekable reports whether the target supports Resize and writes at any offset.
	Seekable() bool
	// Name is the destination shown in logs and progress output.
	Name() string
	Close() error
}
