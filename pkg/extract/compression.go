package extract

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"

	"github.com/pierrec/lz4"
	"github.com/ulikunitz/xz"

	"github.com/replicate/sledge/pkg/logging"
)

const peekSize = 8

type compression struct {
	name  string
	magic []byte
	open  func(r io.Reader) (io.Reader, error)
}

var compressions = []compression{
	{
		name:  "gzip",
		magic: []byte{0x1F, 0x8B},
		open: func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		},
	},
	{
		name:  "bzip2",
		magic: []byte{'B', 'Z', 'h'},
		open: func(r io.Reader) (io.Reader, error) {
			return bzip2.NewReader(r), nil
		},
	},
	{
		name:  "xz",
		magic: []byte{0xFD, '7', 'z', 'X', 'Z', 0x00},
		open: func(r io.Reader) (io.Reader, error) {
			return xz.NewReader(r)
		},
	},
	{
		// frame magic 0x184D2204, little endian on the wire
		name:  "lz4",
		magic: []byte{0x04, 0x22, 0x4D, 0x18},
		open: func(r io.Reader) (io.Reader, error) {
			return lz4.NewReader(r), nil
		},
	},
}

// detectCompression matches the leading bytes of a stream. A nil result means the
// stream is not compressed, or not in a format we read.
func detectCompression(head []byte) *compression {
	for i := range compressions {
		if bytes.HasPrefix(head, compressions[i].magic) {
			return &compressions[i]
		}
	}
	return nil
}

func decompressedTar(reader *bufio.Reader, head []byte, destDir string, overwrite bool) (string, error) {
	logger := logging.GetLogger()
	name := "none"
	var r io.Reader = reader
	if c := detectCompression(head); c != nil {
		var err error
		if r, err = c.open(reader); err != nil {
			return c.name, err
		}
		name = c.name
	}
	logger.Debug().Str("type", name).Msg("Compression Format")
	return name, Tar(r, destDir, overwrite)
}
