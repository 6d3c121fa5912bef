package extract

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/replicate/sledge/pkg/logging"
)

// pendingLink is created after every regular file so that hard links always have
// a target to point at. Hard links go before symlinks so that no link is ever
// created through a symlink from the same archive.
type pendingLink struct {
	typeflag byte
	target   string
	path     string
}

// Tar extracts a tar stream into destDir. Entries may not escape destDir and only
// directories, regular files, symlinks and hard links are supported.
func Tar(r io.Reader, destDir string, overwrite bool) error {
	logger := logging.GetLogger()
	root, err := resolveRoot(destDir)
	if err != nil {
		return err
	}
	tarReader := tar.NewReader(r)
	var links []pendingLink

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading tar: %w", err)
		}
		path, err := entryPath(destDir, header.Name)
		if err != nil {
			return err
		}
		if err := checkParent(root, path); err != nil {
			return err
		}
		mode := cleanFileMode(header.FileInfo().Mode())

		switch header.Typeflag {
		case tar.TypeDir:
			logger.Trace().Str("path", path).Str("perms", mode.String()).Msg("Tar: Directory")
			if err := os.MkdirAll(path, mode.Perm()|0700); err != nil {
				return err
			}
		case tar.TypeReg:
			logger.Trace().Str("path", path).Str("perms", mode.String()).Msg("Tar: File")
			if err := writeFile(path, tarReader, mode.Perm(), overwrite); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := checkSymlinkTarget(destDir, path, header.Linkname); err != nil {
				return err
			}
			links = append(links, pendingLink{typeflag: header.Typeflag, target: header.Linkname, path: path})
		case tar.TypeLink:
			links = append(links, pendingLink{typeflag: header.Typeflag, target: header.Linkname, path: path})
		default:
			return fmt.Errorf("unsupported entry type %q for %s", header.Typeflag, header.Name)
		}
	}

	sort.SliceStable(links, func(i, j int) bool {
		return links[i].typeflag == tar.TypeLink && links[j].typeflag != tar.TypeLink
	})
	for _, link := range links {
		if err := createLink(link, root, destDir, overwrite); err != nil {
			return err
		}
	}
	return nil
}

// entryPath joins name onto destDir, refusing names that would land outside it.
func entryPath(destDir, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyHeaderName
	}
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: %s", ErrZipSlip, name)
	}
	return filepath.Join(destDir, name), nil
}

// resolveRoot creates destDir if needed and returns it with symlinks resolved.
func resolveRoot(destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("error creating destination directory: %w", err)
	}
	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return "", fmt.Errorf("error resolving destination directory: %w", err)
	}
	return root, nil
}

// within reports whether the resolved path is root or lies beneath it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && filepath.IsLocal(rel)
}

// checkParent resolves the deepest existing ancestor of path and rejects it when a
// symlink on the way leads outside root.
func checkParent(root, path string) error {
	dir := filepath.Dir(path)
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			if !within(root, resolved) {
				return fmt.Errorf("%w: %s", ErrZipSlip, path)
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error resolving %s: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

// checkSymlinkTarget rejects absolute targets and targets that, read from the
// link's directory, point outside destDir.
func checkSymlinkTarget(destDir, path, target string) error {
	if target == "" || filepath.IsAbs(target) {
		return fmt.Errorf("%w: %s -> %s", ErrZipSlip, path, target)
	}
	rel, err := filepath.Rel(destDir, filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("%w: %s -> %s", ErrZipSlip, path, target)
	}
	if !filepath.IsLocal(filepath.Join(rel, filepath.FromSlash(target))) {
		return fmt.Errorf("%w: %s -> %s", ErrZipSlip, path, target)
	}
	return nil
}

func writeFile(path string, r io.Reader, perm os.FileMode, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	openFlags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		openFlags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, openFlags, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing file %s: %w", path, err)
	}
	return nil
}

func createLink(link pendingLink, root, destDir string, overwrite bool) error {
	logger := logging.GetLogger()
	// earlier links may have changed what the parent resolves to
	if err := checkParent(root, link.path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(link.path), 0755); err != nil {
		return err
	}
	if overwrite {
		if err := os.Remove(link.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error removing existing file: %w", err)
		}
	}

	if link.typeflag == tar.TypeLink {
		target, err := entryPath(destDir, link.target)
		if err != nil {
			return err
		}
		if err := checkParent(root, target); err != nil {
			return err
		}
		logger.Trace().Str("target", target).Str("path", link.path).Msg("Tar: Hard Link")
		if err := os.Link(target, link.path); err != nil {
			return fmt.Errorf("error creating hard link from %s to %s: %w", target, link.path, err)
		}
		return nil
	}
	logger.Trace().Str("target", link.target).Str("path", link.path).Msg("Tar: Symlink")
	if err := os.Symlink(link.target, link.path); err != nil {
		return fmt.Errorf("error creating symlink from %s to %s: %w", link.target, link.path, err)
	}
	return nil
}

// cleanFileMode drops setuid, setgid and sticky bits.
func cleanFileMode(mode os.FileMode) os.FileMode {
	return mode &^ (os.ModeSetuid | os.ModeSetgid | os.ModeSticky)
}
