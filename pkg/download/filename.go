package download

import (
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/replicate/sledge/pkg/logging"
)

// suggestedFilename picks the name for a SuggestedTarget: the Content-Disposition
// filename when it is present and decodable, otherwise the last segment of the URL
// path. Directory components are always stripped.
func suggestedFilename(header http.Header, u *url.URL) (string, error) {
	logger := logging.GetLogger()
	if disposition := header.Get("Content-Disposition"); disposition != "" {
		name, err := dispositionFilename(disposition)
		if err != nil {
			logger.Warn().Err(err).Str("content_disposition", disposition).Msg("Filename")
		} else if name != "" {
			return name, nil
		}
	}
	if u != nil {
		if name := sanitizeFilename(u.Path); name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: no name in Content-Disposition or URL %s", ErrInvalidFilename, u)
}

// dispositionFilename returns the filename parameter, with RFC 2231 extended
// values already decoded by mime. An empty result means there was no usable name.
func dispositionFilename(disposition string) (string, error) {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidFilename, err)
	}
	return sanitizeFilename(params["filename"]), nil
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}
