package client

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/replicate/sledge/pkg/config"
	"github.com/replicate/sledge/pkg/logging"
	"github.com/replicate/sledge/pkg/version"
)

const (
	retryMinWait     = 100 * time.Millisecond
	retryMaxWait     = 3000 * time.Millisecond // do not backoff further than 3 seconds
	retrySleepJitter = 500                     // (will add 0-500 additional milliseconds), multiplied by time.Millisecond in backoffFunc

	maxRedirects = 10
)

type Options struct {
	ForceHTTP2     bool
	MaxRetries     int
	ConnectTimeout time.Duration
	// Transport replaces the network transport. Intended for tests.
	Transport http.RoundTripper
}

// Client issues HEAD, GET and ranged GET requests against a single resource and turns
// every unexpected status into an *HTTPStatusError.
type Client struct {
	httpClient *http.Client
}

type UserAgentTransport struct {
	Transport http.RoundTripper
}

func (t *UserAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", version.UserAgent())
	return t.Transport.RoundTrip(req)
}

func NewClient(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		connectTimeout := opts.ConnectTimeout
		if connectTimeout == 0 {
			connectTimeout = 5 * time.Second
		}
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: transportDialContext(&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}),
			ForceAttemptHTTP2:     opts.ForceHTTP2,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			// Content-Length must describe the raw bytes on the wire
			DisableCompression: true,
		}
	}

	retryClient := &retryablehttp.Client{
		HTTPClient: &http.Client{
			Transport:     &UserAgentTransport{Transport: transport},
			CheckRedirect: checkRedirectFunc,
		},
		Logger:       nil,
		RetryWaitMin: retryMinWait,
		RetryWaitMax: retryMaxWait,
		RetryMax:     opts.MaxRetries,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      backoffFunc,
		// hand the last response back so it is classified like any other
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	return &Client{httpClient: retryClient.StandardClient()}
}

// Head issues a HEAD request. Only 200 is a success.
func (c *Client) Head(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	return c.do(ctx, http.MethodHead, url, header, "", http.StatusOK)
}

// Get issues a GET for the whole resource. Only 200 is a success. The caller owns the
// response body.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, url, header, "", http.StatusOK)
}

// GetRange issues a GET restricted to the inclusive byte range [start, end]. A 206 is
// the expected answer; a 200 is accepted only when the range starts at zero and the
// server reports a body of exactly end+1 bytes, i.e. the range was the whole resource.
func (c *Client) GetRange(ctx context.Context, url string, header http.Header, start, end int64) (*http.Response, error) {
	resp, err := c.do(ctx, http.MethodGet, url, header, fmt.Sprintf("bytes=%d-%d", start, end), http.StatusPartialContent, http.StatusOK)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK && (start != 0 || resp.ContentLength != end+1) {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: requested bytes=%d-%d of %s, got the full body", ErrRangeIgnored, start, end, url)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, url string, header http.Header, byteRange string, okCodes ...int) (*http.Response, error) {
	logger := logging.GetLogger()
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request for %s: %w", method, url, err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}

	logger.Trace().Str("method", method).Str("url", url).Str("range", byteRange).Msg("Request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing %s request for %s: %w", method, url, err)
	}
	if err := checkResponse(req, resp, okCodes...); err != nil {
		return nil, err
	}
	return resp, nil
}

// backoffFunc is a wrapper around retryablehttp.DefaultBackoff that adds a random jitter
// so concurrent segment requests do not retry in lockstep.
func backoffFunc(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	sleep := time.Duration(rand.Intn(retrySleepJitter)) * time.Millisecond
	sleep += retryablehttp.DefaultBackoff(min, max, attemptNum, resp)
	return sleep
}

// checkRedirectFunc is a wrapper around http.Client.CheckRedirect that allows for printing out redirects
func checkRedirectFunc(req *http.Request, via []*http.Request) error {
	logger := logging.GetLogger()
	logger.Debug().
		Str("redirect_url", req.URL.String()).
		Str("url", via[0].URL.String()).
		Int("status", req.Response.StatusCode).
		Msg("Redirect")
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

// transportDialContext is a wrapper around net.Dialer that allows for overriding DNS lookups via the values passed to
// `--resolve` argument.
func transportDialContext(dialer *net.Dialer) func(context.Context, string, string) (net.Conn, error) {
	// Allow for overriding DNS lookups in the dialer without impacting Host and SSL resolution
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if addrOverride := config.HostToIPResolutionMap[addr]; addrOverride != "" {
			logger := logging.GetLogger()
			logger.Debug().Str("addr", addr).Str("override", addrOverride).Msg("DNS Override")
			addr = addrOverride
		}
		return dialer.DialContext(ctx, network, addr)
	}
}
