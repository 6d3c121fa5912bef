package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/replicate/sledge/pkg/client"
	"github.com/replicate/sledge/pkg/logging"
	"github.com/replicate/sledge/pkg/progress"
	"github.com/replicate/sledge/pkg/sink"
)

// eventBuffer lets workers run ahead of a slow reporter by a few writes.
const eventBuffer = 64

type Result struct {
	// Size is the number of bytes written to the destination.
	Size int64
	// Dest is the path written, or "stdout".
	Dest    string
	Elapsed time.Duration
}

// ReporterFactory builds the reporter for one download, given the destination name.
type ReporterFactory func(dest string) progress.Reporter

// Downloader runs one Request at a time per call to Download. It holds no state
// between calls and is safe for concurrent use.
type Downloader struct {
	Client *client.Client
	// NewReporter defaults to progress.Discard.
	NewReporter ReporterFactory
	// Overwrite allows replacing an existing destination file.
	Overwrite bool
	// Stdout receives StdoutTarget downloads. It defaults to os.Stdout.
	Stdout io.Writer
}

func (d *Downloader) Download(ctx context.Context, req Request) (Result, error) {
	logger := logging.GetLogger().With().
		Str("download_id", uuid.NewString()).
		Str("url", req.url).
		Logger()
	logger.Debug().
		Str("mode", req.mode.String()).
		Str("target", req.target.String()).
		Msg("Starting")

	startTime := time.Now()
	var result Result
	var err error
	if req.mode.IsParallel() {
		result, err = d.parallel(ctx, req, logger)
	} else {
		result, err = d.serial(ctx, req, logger)
	}
	result.Elapsed = time.Since(startTime)
	if err != nil {
		return result, err
	}
	logger.Debug().
		Str("dest", result.Dest).
		Str("size", humanize.Bytes(uint64(result.Size))).
		Dur("elapsed", result.Elapsed).
		Msg("Finished")
	return result, nil
}

// serial streams the body of the probing GET into the sink.
func (d *Downloader) serial(ctx context.Context, req Request, logger zerolog.Logger) (Result, error) {
	resp, total, err := probe(ctx, d.Client, req, false)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	s, err := d.openSink(req, resp)
	if err != nil {
		return Result{}, err
	}
	defer s.Close()
	result := Result{Dest: s.Name()}

	if s.Seekable() {
		if err := s.Resize(total); err != nil {
			return result, err
		}
	}
	logger.Debug().Str("dest", s.Name()).Int64("size", total).Msg("Downloading")

	err = d.report(s.Name(), total, func(events chan<- progress.Event) error {
		n, err := s.WriteAt(0, resp.Body, total, events)
		result.Size = n
		return err
	})
	if err != nil {
		return result, fmt.Errorf("error downloading %s: %w", req.url, err)
	}
	return result, s.Close()
}

// parallel sizes the sink from a HEAD probe and fans out one range request per
// segment. The first worker error cancels the others and is returned.
func (d *Downloader) parallel(ctx context.Context, req Request, logger zerolog.Logger) (Result, error) {
	resp, total, err := probe(ctx, d.Client, req, true)
	if err != nil {
		return Result{}, err
	}

	s, err := d.openSink(req, resp)
	if err != nil {
		return Result{}, err
	}
	defer s.Close()
	result := Result{Dest: s.Name()}

	if err := s.Resize(total); err != nil {
		return result, fmt.Errorf("error sizing destination for %s: %w", req.url, err)
	}

	segments := Plan(total, req.mode.Workers())
	logger.Debug().
		Str("dest", s.Name()).
		Int64("size", total).
		Int("connections", len(segments)).
		Int64("chunkSize", segments[0].Len()).
		Msg("Downloading")

	var written atomic.Int64
	err = d.report(s.Name(), total, func(events chan<- progress.Event) error {
		errGroup, ctx := errgroup.WithContext(ctx)
		for i, seg := range segments {
			errGroup.Go(func() error {
				n, err := fetchSegment(ctx, logger, d.Client, req, i, seg, s, events)
				written.Add(n)
				return err
			})
		}
		return errGroup.Wait()
	})
	result.Size = written.Load()
	if err != nil {
		return result, fmt.Errorf("error downloading %s: %w", req.url, err)
	}
	return result, s.Close()
}

// report runs the reporter alongside fn and closes the event channel once fn has
// returned, which is after every writer is done with it.
func (d *Downloader) report(dest string, total int64, fn func(events chan<- progress.Event) error) error {
	var reporter progress.Reporter = progress.Discard{}
	if d.NewReporter != nil {
		reporter = d.NewReporter(dest)
	}

	events := make(chan progress.Event, eventBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		reporter.Listen(total, events)
	}()

	err := fn(events)
	close(events)
	<-done
	return err
}

func (d *Downloader) openSink(req Request, resp *http.Response) (sink.Sink, error) {
	switch req.target.kind {
	case TargetStdout:
		var out io.Writer = os.Stdout
		if d.Stdout != nil {
			out = d.Stdout
		}
		return &sink.Stdout{Writer: out}, nil
	case TargetFile:
		return sink.CreateFile(req.target.path, d.Overwrite)
	default:
		// name after the final URL when redirects were followed
		var u *url.URL
		if resp.Request != nil {
			u = resp.Request.URL
		}
		if u == nil {
			parsed, err := url.Parse(req.url)
			if err != nil {
				return nil, err
			}
			u = parsed
		}
		name, err := suggestedFilename(resp.Header, u)
		if err != nil {
			return nil, err
		}
		return sink.CreateFile(filepath.Join(req.target.path, name), d.Overwrite)
	}
}
