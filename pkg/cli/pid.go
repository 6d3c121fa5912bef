//go:build !windows

package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/replicate/sledge/pkg/logging"
)

// PIDFile is an exclusive flock on a file holding the owner's pid. A second sledge
// pointed at the same file waits until the first releases it.
type PIDFile struct {
	file *os.File
	fd   int
}

func NewPIDFile(path string) (*PIDFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("error opening pid file: %w", err)
	}
	return &PIDFile{file: file, fd: int(file.Fd())}, nil
}

// Acquire blocks until the lock is held, then records our pid.
func (p *PIDFile) Acquire() error {
	logger := logging.GetLogger()
	if err := syscall.Flock(p.fd, syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		logger.Warn().
			Err(err).
			Str("pid_file", p.file.Name()).
			Str("message", "Another sledge process holds the lock, use 'sledge ids' to download several files in one run").
			Msg("Waiting on Lock")
		if err := syscall.Flock(p.fd, syscall.LOCK_EX); err != nil {
			return fmt.Errorf("error locking %s: %w", p.file.Name(), err)
		}
	}
	if err := p.file.Truncate(0); err != nil {
		return err
	}
	if _, err := p.file.WriteAt([]byte(fmt.Sprintf("%d", os.Getpid())), 0); err != nil {
		return err
	}
	return p.file.Sync()
}

// Release removes the file and drops the lock.
func (p *PIDFile) Release() error {
	if err := os.Remove(p.file.Name()); err != nil {
		return err
	}
	if err := syscall.Flock(p.fd, syscall.LOCK_UN); err != nil {
		return err
	}
	return p.file.Close()
}
