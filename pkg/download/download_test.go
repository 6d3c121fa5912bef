package download

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicate/sledge/pkg/client"
	"github.com/replicate/sledge/pkg/progress"
	"github.com/replicate/sledge/pkg/sink"
)

var (
	helloContent = []byte("hello, world!")
	largeContent = generateTestContent(3*1024*1024 + 7)

	testFS = fstest.MapFS{
		"hello.txt":       {Data: helloContent},
		"large.bin":       {Data: largeContent},
		"empty.txt":       {Data: []byte{}},
		"nested/data.bin": {Data: helloContent},
	}
)

func init() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
}

func generateTestContent(size int) []byte {
	content := make([]byte, size)
	rnd := rand.New(rand.NewSource(99))
	_, _ = rnd.Read(content)
	return content
}

func newDownloader() *Downloader {
	return &Downloader{Client: client.NewClient(client.Options{})}
}

// countingHandler counts GET requests reaching next.
func countingHandler(next http.Handler, gets *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		next.ServeHTTP(w, r)
	})
}

func newRequest(t *testing.T, url string, opts ...RequestOption) Request {
	req, err := NewRequest(url, opts...)
	require.NoError(t, err)
	return req
}

func TestDownloadRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.FileServer(http.FS(testFS)))
	defer server.Close()

	modes := []Mode{Serial(), Parallel(1), Parallel(4), Parallel(7), Parallel(64)}
	files := map[string][]byte{
		"hello.txt": helloContent,
		"large.bin": largeContent,
		"empty.txt": {},
	}
	for name, content := range files {
		for _, mode := range modes {
			t.Run(name+"/"+mode.String(), func(t *testing.T) {
				dest := filepath.Join(t.TempDir(), "out")
				req := newRequest(t, server.URL+"/"+name, WithTarget(FileTarget(dest)), WithMode(mode))

				result, err := newDownloader().Download(t.Context(), req)
				require.NoError(t, err)
				assert.Equal(t, int64(len(content)), result.Size)
				assert.Equal(t, dest, result.Dest)

				written, err := os.ReadFile(dest)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(content, written), "content mismatch")
			})
		}
	}
}

func TestDownloadNotFound(t *testing.T) {
	server := httptest.NewServer(http.FileServer(http.FS(testFS)))
	defer server.Close()

	for _, mode := range []Mode{Serial(), Parallel(4)} {
		t.Run(mode.String(), func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "out")
			req := newRequest(t, server.URL+"/missing.txt", WithTarget(FileTarget(dest)), WithMode(mode))

			_, err := newDownloader().Download(t.Context(), req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "404")
			assert.Contains(t, strings.ToLower(err.Error()), "not found")

			var statusErr *client.HTTPStatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

			_, err = os.Stat(dest)
			assert.ErrorIs(t, err, os.ErrNotExist)
		})
	}
}

func TestDownloadStdoutParallelFailsBeforeFetching(t *testing.T) {
	var gets atomic.Int32
	server := httptest.NewServer(countingHandler(http.FileServer(http.FS(testFS)), &gets))
	defer server.Close()

	var out bytes.Buffer
	d := newDownloader()
	d.Stdout = &out
	req := newRequest(t, server.URL+"/hello.txt", WithTarget(StdoutTarget()), WithMode(Parallel(4)))

	_, err := d.Download(t.Context(), req)
	require.ErrorIs(t, err, sink.ErrNotSeekable)
	assert.Contains(t, err.Error(), "cannot seek on stdout")
	assert.Equal(t, int32(0), gets.Load())
	assert.Zero(t, out.Len())
}

func TestDownloadStdoutSerial(t *testing.T) {
	server := httptest.NewServer(http.FileServer(http.FS(testFS)))
	defer server.Close()

	var out bytes.Buffer
	d := newDownloader()
	d.Stdout = &out
	req := newRequest(t, server.URL+"/large.bin", WithTarget(StdoutTarget()))

	result, err := d.Download(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, "stdout", result.Dest)
	assert.Equal(t, int64(len(largeContent)), result.Size)
	assert.True(t, bytes.Equal(largeContent, out.Bytes()), "content mismatch")
}

func TestDownloadSuggestedName(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/data/1234" {
			w.Header().Set("Content-Disposition", `attachment; filename="report.csv"`)
		}
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(helloContent))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	tests := []struct {
		path     string
		expected string
	}{
		{path: "/data/1234", expected: "report.csv"},
		{path: "/files/model.tar", expected: "model.tar"},
	}
	for _, tc := range tests {
		for _, mode := range []Mode{Serial(), Parallel(2)} {
			t.Run(tc.expected+"/"+mode.String(), func(t *testing.T) {
				dir := t.TempDir()
				req := newRequest(t, server.URL+tc.path, WithTarget(SuggestedTarget(dir)), WithMode(mode))

				result, err := newDownloader().Download(t.Context(), req)
				require.NoError(t, err)
				assert.Equal(t, filepath.Join(dir, tc.expected), result.Dest)

				written, err := os.ReadFile(filepath.Join(dir, tc.expected))
				require.NoError(t, err)
				assert.Equal(t, helloContent, written)
			})
		}
	}
}

func TestDownloadExistingDestination(t *testing.T) {
	server := httptest.NewServer(http.FileServer(http.FS(testFS)))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(dest, []byte("keep me"), 0644))
	req := newRequest(t, server.URL+"/hello.txt", WithTarget(FileTarget(dest)))

	_, err := newDownloader().Download(t.Context(), req)
	require.ErrorIs(t, err, os.ErrExist)
	written, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(written))

	d := newDownloader()
	d.Overwrite = true
	_, err = d.Download(t.Context(), req)
	require.NoError(t, err)
	written, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, helloContent, written)
}

func TestDownloadProgress(t *testing.T) {
	server := httptest.NewServer(http.FileServer(http.FS(testFS)))
	defer server.Close()

	for _, mode := range []Mode{Serial(), Parallel(5)} {
		t.Run(mode.String(), func(t *testing.T) {
			recorder := &progress.Recorder{}
			d := newDownloader()
			d.NewReporter = func(string) progress.Reporter { return recorder }
			req := newRequest(t, server.URL+"/large.bin",
				WithTarget(FileTarget(filepath.Join(t.TempDir(), "out"))),
				WithMode(mode))

			_, err := d.Download(t.Context(), req)
			require.NoError(t, err)

			total := int64(len(largeContent))
			assert.Equal(t, total, recorder.Total())
			assert.LessOrEqual(t, recorder.Bytes(), total)
			assert.Equal(t, total, recorder.Bytes())
			for _, event := range recorder.Events() {
				assert.Empty(t, event.Checksum)
				assert.Positive(t, event.Length)
				assert.LessOrEqual(t, event.Offset, total)
			}
		})
	}
}

func TestDownloadWorkerFailurePropagates(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && !strings.HasPrefix(r.Header.Get("Range"), "bytes=0-") {
			http.Error(w, "backend exploded", http.StatusInternalServerError)
			return
		}
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(largeContent))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	recorder := &progress.Recorder{}
	d := newDownloader()
	d.NewReporter = func(string) progress.Reporter { return recorder }
	req := newRequest(t, server.URL+"/large.bin",
		WithTarget(FileTarget(filepath.Join(t.TempDir(), "out"))),
		WithMode(Parallel(4)))

	result, err := d.Download(t.Context(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend exploded")

	var statusErr *client.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Less(t, result.Size, int64(len(largeContent)))
	assert.LessOrEqual(t, recorder.Bytes(), int64(len(largeContent)))
}

func TestDownloadSegmentLogsCarryDownloadFields(t *testing.T) {
	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer func() {
		log.Logger = previous
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}()

	server := httptest.NewServer(http.FileServer(http.FS(testFS)))
	defer server.Close()
	url := server.URL + "/hello.txt"
	req := newRequest(t, url,
		WithTarget(FileTarget(filepath.Join(t.TempDir(), "out"))),
		WithMode(Parallel(3)))
	_, err := newDownloader().Download(t.Context(), req)
	require.NoError(t, err)

	var fetching int
	ids := map[string]bool{}
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		if line["message"] != "Fetching" {
			continue
		}
		fetching++
		assert.Equal(t, url, line["url"])
		id, ok := line["download_id"].(string)
		require.True(t, ok, "missing download_id in %v", line)
		ids[id] = true
	}
	assert.Equal(t, 3, fetching)
	assert.Len(t, ids, 1)
}

func TestDownloadRangeIgnored(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(helloContent)))
		_, _ = w.Write(helloContent)
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	req := newRequest(t, server.URL+"/hello.txt",
		WithTarget(FileTarget(filepath.Join(t.TempDir(), "out"))),
		WithMode(Parallel(2)))

	_, err := newDownloader().Download(t.Context(), req)
	assert.ErrorIs(t, err, client.ErrRangeIgnored)
}

func TestDownloadMissingLength(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("streamed "))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("without a length"))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out")
	req := newRequest(t, server.URL+"/stream", WithTarget(FileTarget(dest)))

	_, err := newDownloader().Download(t.Context(), req)
	require.ErrorIs(t, err, ErrMissingLength)
	_, err = os.Stat(dest)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
