// Package extract unpacks a finished download next to it.
package extract

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/replicate/sledge/pkg/logging"
)

var (
	ErrZipSlip         = errors.New("archive entry resolves outside of the target directory")
	ErrEmptyHeaderName = errors.New("archive contains an entry with an empty name")
)

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// File extracts the archive at path into destDir, creating destDir if needed. Zip
// archives are read in place; anything else is treated as a tar stream, decompressed
// first when its leading bytes name a known compression format.
func File(path, destDir string, overwrite bool) error {
	logger := logging.GetLogger()
	startTime := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening archive: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("error reading archive %s: %w", path, err)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("error creating destination directory: %w", err)
	}

	reader := bufio.NewReader(f)
	// a short file yields fewer bytes and an error that the format check tolerates
	head, _ := reader.Peek(peekSize)

	kind := "zip"
	if bytes.HasPrefix(head, zipMagic) {
		err = Zip(f, info.Size(), destDir, overwrite)
	} else {
		var name string
		name, err = decompressedTar(reader, head, destDir, overwrite)
		kind = "tar+" + name
	}
	if err != nil {
		return fmt.Errorf("error extracting %s: %w", path, err)
	}

	logger.Info().
		Str("archive", path).
		Str("format", kind).
		Str("dest", destDir).
		Str("size", humanize.Bytes(uint64(info.Size()))).
		Dur("elapsed", time.Since(startTime)).
		Msg("Extracted")
	return nil
}
