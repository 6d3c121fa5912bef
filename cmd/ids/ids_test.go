package ids

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicate/sledge/pkg/config"
	"github.com/replicate/sledge/pkg/download"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
}

func TestDataURL(t *testing.T) {
	assert.Equal(t, "https://api.example.com/data/abc", dataURL("https://api.example.com", "abc"))
	assert.Equal(t, "https://api.example.com/data/abc", dataURL("https://api.example.com/", "abc"))
	assert.Equal(t, "https://api.example.com/data/a%2Fb", dataURL("https://api.example.com", "a/b"))
}

func TestBuildRequests(t *testing.T) {
	header := http.Header{}
	header.Set(config.AuthTokenHeader, "secret")

	reqs, err := buildRequests("https://api.example.com", []string{"one", "two"}, header, "/data", download.Parallel(2))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "https://api.example.com/data/two", reqs[1].URL())
	assert.Equal(t, "secret", reqs[0].Header().Get(config.AuthTokenHeader))
	assert.Equal(t, download.TargetSuggested, reqs[0].Target().Kind())
	assert.Equal(t, "/data", reqs[0].Target().Path())

	_, err = buildRequests("ftp://api.example.com", []string{"one"}, header, "", download.Serial())
	assert.ErrorContains(t, err, "id one")
}

// newCommand wires ids under a root carrying the persistent flags, as the binary does.
func newCommand(t *testing.T) *cobra.Command {
	root := &cobra.Command{
		Use: "sledge",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.PersistentStartupProcessFlags()
		},
	}
	require.NoError(t, config.AddRootPersistentFlags(root))
	root.AddCommand(GetCommand())
	return root
}

func TestIDsCommand(t *testing.T) {
	defer viper.Reset()
	var mu sync.Mutex
	var tokens []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokens = append(tokens, r.Header.Get(config.AuthTokenHeader))
		mu.Unlock()
		id := strings.TrimPrefix(r.URL.Path, "/data/")
		if id == "missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.txt"`)
		http.ServeContent(w, r, "", time.Time{}, strings.NewReader("contents of "+id))
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	dir := t.TempDir()
	manifest := filepath.Join(t.TempDir(), "manifest.tsv")
	require.NoError(t, os.WriteFile(manifest, []byte("id\tfilename\nbeta\tbeta.txt\nmissing\tmissing.txt\n"), 0644))

	cmd := newCommand(t)
	cmd.SetArgs([]string{"ids", "--no-progress", "--serial", "--host", server.URL, "-t", "secret", "-d", dir, "-m", manifest, "alpha"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, "downloaded 2 of 3 files; failed: "+server.URL+"/data/missing", err.Error())

	for _, id := range []string{"alpha", "beta"} {
		content, err := os.ReadFile(filepath.Join(dir, id+".txt"))
		require.NoError(t, err)
		assert.Equal(t, "contents of "+id, string(content))
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, tokens, 3)
	for _, token := range tokens {
		assert.Equal(t, "secret", token)
	}
}

func TestIDsCommandNoIDs(t *testing.T) {
	defer viper.Reset()
	cmd := newCommand(t)
	cmd.SetArgs([]string{"ids"})
	err := cmd.Execute()
	assert.ErrorContains(t, err, "no ids to download")
}
