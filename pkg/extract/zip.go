package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
)

// Zip extracts a zip archive of the given size into destDir, with the same entry
// checks as Tar.
func Zip(r io.ReaderAt, size int64, destDir string, overwrite bool) error {
	zipReader, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("error creating zip reader: %w", err)
	}
	root, err := resolveRoot(destDir)
	if err != nil {
		return err
	}
	for _, file := range zipReader.File {
		if err := extractZipEntry(file, root, destDir, overwrite); err != nil {
			return fmt.Errorf("error extracting %s: %w", file.Name, err)
		}
	}
	return nil
}

func extractZipEntry(file *zip.File, root, destDir string, overwrite bool) error {
	path, err := entryPath(destDir, file.Name)
	if err != nil {
		return err
	}
	if err := checkParent(root, path); err != nil {
		return err
	}
	mode := cleanFileMode(file.Mode())
	switch {
	case mode.IsDir():
		return os.MkdirAll(path, mode.Perm()|0700)
	case mode.IsRegular():
		contents, err := file.Open()
		if err != nil {
			return err
		}
		defer contents.Close()
		return writeFile(path, contents, mode.Perm(), overwrite)
	default:
		return fmt.Errorf("unsupported entry type %s", mode.Type())
	}
}
