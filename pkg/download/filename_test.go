package download

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestedFilename(t *testing.T) {
	tests := []struct {
		name        string
		disposition string
		url         string
		expected    string
	}{
		{
			name:        "disposition filename",
			disposition: `attachment; filename="report.csv"`,
			url:         "https://example.com/data/1234",
			expected:    "report.csv",
		},
		{
			name:        "extended disposition filename",
			disposition: `attachment; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`,
			url:         "https://example.com/data/1234",
			expected:    "résumé.pdf",
		},
		{
			name:        "directories are stripped",
			disposition: `attachment; filename="../../etc/passwd"`,
			url:         "https://example.com/data/1234",
			expected:    "passwd",
		},
		{
			name:        "windows separators are stripped",
			disposition: `attachment; filename="..\\evil.exe"`,
			url:         "https://example.com/data/1234",
			expected:    "evil.exe",
		},
		{
			name:     "url fallback",
			url:      "https://example.com/files/model.tar?sig=abc",
			expected: "model.tar",
		},
		{
			name:        "disposition without filename",
			disposition: "inline",
			url:         "https://example.com/files/model.tar",
			expected:    "model.tar",
		},
		{
			name:        "undecodable disposition falls back",
			disposition: `attachment; filename="unterminated`,
			url:         "https://example.com/files/model.tar",
			expected:    "model.tar",
		},
		{
			name:        "unusable disposition name falls back",
			disposition: `attachment; filename=".."`,
			url:         "https://example.com/files/model.tar",
			expected:    "model.tar",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			if tc.disposition != "" {
				header.Set("Content-Disposition", tc.disposition)
			}
			u, err := url.Parse(tc.url)
			require.NoError(t, err)

			name, err := suggestedFilename(header, u)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, name)
		})
	}
}

func TestSuggestedFilenameUnusable(t *testing.T) {
	for _, raw := range []string{"https://example.com", "https://example.com/"} {
		u, err := url.Parse(raw)
		require.NoError(t, err)

		_, err = suggestedFilename(http.Header{}, u)
		assert.ErrorIs(t, err, ErrInvalidFilename, raw)
	}
}
