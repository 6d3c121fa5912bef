package download

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// MaxWorkers bounds the number of segments a parallel download may be split into.
const MaxWorkers = 255

type TargetKind int

const (
	// TargetSuggested names the file after the server's Content-Disposition or the
	// last path segment of the URL.
	TargetSuggested TargetKind = iota
	TargetFile
	TargetStdout
)

// Target describes where downloaded bytes go.
type Target struct {
	kind TargetKind
	path string
}

// FileTarget writes to path, which must not be empty.
func FileTarget(path string) Target {
	return Target{kind: TargetFile, path: path}
}

func StdoutTarget() Target {
	return Target{kind: TargetStdout}
}

// SuggestedTarget writes into dir using a name resolved from the first response.
// An empty dir means the working directory.
func SuggestedTarget(dir string) Target {
	return Target{kind: TargetSuggested, path: dir}
}

func (t Target) Kind() TargetKind {
	return t.kind
}

// Path is the file path for TargetFile and the directory for TargetSuggested.
func (t Target) Path() string {
	return t.path
}

func (t Target) String() string {
	switch t.kind {
	case TargetFile:
		return t.path
	case TargetStdout:
		return "stdout"
	default:
		if t.path == "" {
			return "suggested name in working directory"
		}
		return fmt.Sprintf("suggested name in %s", t.path)
	}
}

// Mode selects between a single streamed GET and a fan-out of range requests.
type Mode struct {
	parallel bool
	workers  int
}

func Serial() Mode {
	return Mode{}
}

// Parallel splits the download into workers range requests. Parallel(1) still goes
// through the range path.
func Parallel(workers int) Mode {
	return Mode{parallel: true, workers: workers}
}

func (m Mode) IsParallel() bool {
	return m.parallel
}

// Workers is the number of concurrent requests the mode issues.
func (m Mode) Workers() int {
	if !m.parallel {
		return 1
	}
	return m.workers
}

func (m Mode) String() string {
	if !m.parallel {
		return "serial"
	}
	return fmt.Sprintf("parallel(%d)", m.workers)
}

// Request is an immutable description of one download. Build it with NewRequest.
type Request struct {
	url    string
	header http.Header
	target Target
	mode   Mode
}

type RequestOption func(*Request)

// WithHeader adds header values sent on every request of the download.
func WithHeader(header http.Header) RequestOption {
	return func(r *Request) {
		for key, values := range header {
			for _, v := range values {
				r.header.Add(key, v)
			}
		}
	}
}

func WithTarget(target Target) RequestOption {
	return func(r *Request) {
		r.target = target
	}
}

func WithMode(mode Mode) RequestOption {
	return func(r *Request) {
		r.mode = mode
	}
}

// NewRequest validates rawURL and the options. The defaults are a serial download
// named by the server into the working directory.
func NewRequest(rawURL string, opts ...RequestOption) (Request, error) {
	r := Request{
		url:    rawURL,
		header: make(http.Header),
		target: SuggestedTarget(""),
		mode:   Serial(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	if err := r.validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

func (r Request) validate() error {
	u, err := url.Parse(r.url)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", r.url, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", r.url)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", r.url)
	}
	if r.mode.parallel && (r.mode.workers < 1 || r.mode.workers > MaxWorkers) {
		return fmt.Errorf("invalid worker count %d: must be between 1 and %d", r.mode.workers, MaxWorkers)
	}
	if r.target.kind == TargetFile && r.target.path == "" {
		return errors.New("file target requires a path")
	}
	return nil
}

func (r Request) URL() string {
	return r.url
}

// Header returns a copy of the request headers.
func (r Request) Header() http.Header {
	return r.header.Clone()
}

func (r Request) Target() Target {
	return r.target
}

func (r Request) Mode() Mode {
	return r.mode
}
