package sink

import (
	"fmt"
	"io"
	"os"

	"github.com/replicate/sledge/pkg/progress"
)

var _ Sink = &File{}

// File is a destination file shared by every worker. Writes go through WriteAt so
// workers never share a file offset; correctness relies on their ranges not overlapping.
type File struct {
	file *os.File
}

// CreateFile creates the destination file. An existing file is truncated when
// overwrite is set and is an error otherwise.
func CreateFile(path string, overwrite bool) (*File, error) {
	openFlags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		openFlags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, openFlags, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to open file %s for writing: %w", path, err)
	}
	return &File{file: f}, nil
}

func (f *File) Resize(size int64) error {
	if err := f.file.Truncate(size); err != nil {
		return fmt.Errorf("error resizing %s to %d bytes: %w", f.file.Name(), size, err)
	}
	return nil
}

func (f *File) WriteAt(offset int64, r io.Reader, expected int64, events chan<- progress.Event) (int64, error) {
	n, err := copyAt(f.file, offset, r, expected, events)
	if err != nil {
		return n, fmt.Errorf("%s: %w", f.file.Name(), err)
	}
	return n, nil
}

func (f *File) Seekable() bool {
	return true
}

func (f *File) Name() string {
	return f.file.Name()
}

func (f *File) Close() error {
	return f.file.Close()
}
