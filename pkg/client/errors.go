package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
)

// ErrRangeIgnored is returned when a server answers a partial range request with the
// whole resource.
var ErrRangeIgnored = errors.New("server ignored the range request")

// HTTPStatusError is returned for any response whose status is not one the request
// accepts. Body holds the full response body for diagnostics.
type HTTPStatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       string
}

var _ error = &HTTPStatusError{}

func (e *HTTPStatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg = fmt.Sprintf("%s: %s", msg, body)
	}
	return msg
}

// checkResponse closes the body and returns an *HTTPStatusError when the status is not
// in okCodes.
func checkResponse(req *http.Request, resp *http.Response, okCodes ...int) error {
	if slices.Contains(okCodes, resp.StatusCode) {
		return nil
	}
	defer resp.Body.Close()

	status := resp.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	statusErr := &HTTPStatusError{
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Status:     status,
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w (reading body: %v)", statusErr, err)
	}
	statusErr.Body = string(body)
	return statusErr
}
