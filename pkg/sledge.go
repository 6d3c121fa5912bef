package sledge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/replicate/sledge/pkg/download"
	"github.com/replicate/sledge/pkg/extract"
	"github.com/replicate/sledge/pkg/logging"
)

var ErrExtractStdout = errors.New("cannot extract a download written to stdout")

// Getter downloads requests and optionally unpacks what it fetched.
type Getter struct {
	Downloader *download.Downloader
	// Extract unpacks each downloaded archive into ExtractDir, or next to the
	// downloaded file when ExtractDir is empty.
	Extract    bool
	ExtractDir string
}

// BatchError summarises a DownloadAll call in which at least one download failed.
type BatchError struct {
	Total  int
	Failed []string
	Errs   []error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("downloaded %d of %d files; failed: %s", e.Total-len(e.Failed), e.Total, strings.Join(e.Failed, ", "))
}

func (e *BatchError) Unwrap() []error {
	return e.Errs
}

func (g *Getter) DownloadFile(ctx context.Context, req download.Request) (download.Result, error) {
	if g.Extract && req.Target().Kind() == download.TargetStdout {
		return download.Result{}, ErrExtractStdout
	}
	logger := logging.GetLogger()
	result, err := g.Downloader.Download(ctx, req)
	if err != nil {
		return result, err
	}

	throughput := "n/a"
	if seconds := result.Elapsed.Seconds(); seconds > 0 {
		throughput = fmt.Sprintf("%s/s", humanize.Bytes(uint64(float64(result.Size)/seconds)))
	}
	logger.Info().
		Str("url", req.URL()).
		Str("dest", result.Dest).
		Str("mode", req.Mode().String()).
		Str("size", humanize.Bytes(uint64(result.Size))).
		Str("elapsed", fmt.Sprintf("%.3fs", result.Elapsed.Seconds())).
		Str("throughput", throughput).
		Msg("Complete")

	if g.Extract {
		dir := g.ExtractDir
		if dir == "" {
			dir = filepath.Dir(result.Dest)
		}
		if err := extract.File(result.Dest, dir, g.Downloader.Overwrite); err != nil {
			return result, err
		}
	}
	return result, nil
}

// DownloadAll runs every request, at most maxConcurrentFiles at a time (unbounded
// when it is not positive). A failure does not stop the remaining downloads; all
// failures are reported together as a *BatchError. Results line up with reqs.
func (g *Getter) DownloadAll(ctx context.Context, reqs []download.Request, maxConcurrentFiles int) ([]download.Result, error) {
	logger := logging.GetLogger()
	results := make([]download.Result, len(reqs))
	errs := make([]error, len(reqs))

	var group errgroup.Group
	if maxConcurrentFiles > 0 {
		group.SetLimit(maxConcurrentFiles)
	}
	for i, req := range reqs {
		group.Go(func() error {
			results[i], errs[i] = g.DownloadFile(ctx, req)
			if errs[i] != nil {
				logger.Error().Err(errs[i]).Str("url", req.URL()).Msg("Download failed")
			}
			return nil
		})
	}
	_ = group.Wait()

	batchErr := &BatchError{Total: len(reqs)}
	for i, err := range errs {
		if err != nil {
			batchErr.Failed = append(batchErr.Failed, reqs[i].URL())
			batchErr.Errs = append(batchErr.Errs, err)
		}
	}
	if len(batchErr.Failed) > 0 {
		return results, batchErr
	}
	return results, nil
}
