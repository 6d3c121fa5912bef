package cli

import "errors"

type PIDFile struct{}

func NewPIDFile(string) (*PIDFile, error) {
	return nil, errors.New("--pid-file is not supported on windows")
}

func (p *PIDFile) Acquire() error { return nil }

func (p *PIDFile) Release() error { return nil }
