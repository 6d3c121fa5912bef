package download

import "errors"

var (
	// ErrMissingLength is returned when the probe response carries no Content-Length.
	// Segmenting and pre-sizing both need the total up front.
	ErrMissingLength = errors.New("server did not report a content length")

	// ErrInvalidFilename is returned when no usable filename can be derived for a
	// SuggestedTarget.
	ErrInvalidFilename = errors.New("invalid filename")
)
