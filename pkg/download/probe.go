package download

import (
	"context"
	"fmt"
	"net/http"

	"github.com/replicate/sledge/pkg/client"
)

// probe learns the total length of the resource. A HEAD response is closed before
// returning; a GET response is handed back open so the serial path can stream its
// body without a second request.
func probe(ctx context.Context, c *client.Client, req Request, useHead bool) (*http.Response, int64, error) {
	var resp *http.Response
	var err error
	if useHead {
		resp, err = c.Head(ctx, req.url, req.header)
	} else {
		resp, err = c.Get(ctx, req.url, req.header)
	}
	if err != nil {
		return nil, -1, err
	}
	if useHead {
		resp.Body.Close()
	}
	if resp.ContentLength < 0 {
		resp.Body.Close()
		return nil, -1, fmt.Errorf("%w: %s", ErrMissingLength, req.url)
	}
	return resp, resp.ContentLength, nil
}
