package ids

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replicate/sledge/pkg/cli"
	"github.com/replicate/sledge/pkg/config"
	"github.com/replicate/sledge/pkg/download"
	"github.com/replicate/sledge/pkg/logging"
	"github.com/replicate/sledge/pkg/optname"
)

// DefaultHost is the data API queried when --host is not set.
const DefaultHost = "https://api.gdc.cancer.gov"

const longDesc = `
'ids' downloads files by id from a data API. Each id is fetched from <host>/data/<id> and saved under the
name the server suggests, inside --dir.

Ids are taken from the arguments and from --manifest, which may be '-' for stdin. A manifest is either a
tab-separated export with an 'id' column or a plain list with one id per line.

A failed download does not stop the others. When any download fails, the command exits non-zero after
reporting which ones failed.
`

const idsExamples = `
  sledge ids 1d3e5fa2-39cf-4b4e-a5fa-0a0f37c8a2b1

  sledge ids -t "$TOKEN" -m gdc_manifest.txt

  cut -f1 gdc_manifest.txt | sledge ids -m -
`

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ids [flags] [id...]",
		Short:   "download files by id from a data API",
		Long:    longDesc,
		RunE:    runIDsCMD,
		Example: idsExamples,
	}

	cmd.Flags().StringP(optname.Manifest, "m", "", "Manifest of ids to download, '-' for stdin")
	cmd.Flags().String(optname.Host, DefaultHost, "Base URL of the data API")
	cmd.Flags().Int(optname.MaxConcurrentFiles, 1, "Maximum number of files to download concurrently, 0 for no limit")
	err := viper.BindPFlags(cmd.Flags())
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	cmd.SetUsageTemplate(cli.UsageTemplate)
	return cmd
}

func runIDsCMD(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	logger := logging.GetLogger()

	ids := append([]string(nil), args...)
	if manifestPath := viper.GetString(optname.Manifest); manifestPath != "" {
		manifestIDs, err := readManifest(manifestPath)
		if err != nil {
			return err
		}
		ids = append(ids, manifestIDs...)
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return errors.New("no ids to download, pass them as arguments or with --manifest")
	}

	dir := viper.GetString(optname.Dir)
	if err := cli.ExistingDir(dir); err != nil {
		return err
	}
	header, err := config.Headers()
	if err != nil {
		return err
	}
	reqs, err := buildRequests(viper.GetString(optname.Host), ids, header, dir, cli.DownloadMode())
	if err != nil {
		return err
	}

	concurrentFileLimit := viper.GetInt(optname.MaxConcurrentFiles)
	logger.Info().
		Int("file_count", len(reqs)).
		Int("concurrent_file_limit", concurrentFileLimit).
		Msg("Initiating")

	return cli.WithLock(func() error {
		startTime := time.Now()
		results, err := cli.NewGetter().DownloadAll(cmd.Context(), reqs, concurrentFileLimit)
		logMetrics(time.Since(startTime), results)
		return err
	})
}

func readManifest(manifestPath string) ([]string, error) {
	file, err := manifestFile(manifestPath)
	if err != nil {
		return nil, err
	}
	if file != os.Stdin {
		defer file.Close()
	}
	ids, err := parseManifest(file)
	if err != nil {
		return nil, fmt.Errorf("error processing manifest file %s: %w", manifestPath, err)
	}
	return ids, nil
}

func buildRequests(host string, ids []string, header http.Header, dir string, mode download.Mode) ([]download.Request, error) {
	reqs := make([]download.Request, 0, len(ids))
	for _, id := range ids {
		req, err := download.NewRequest(dataURL(host, id),
			download.WithHeader(header),
			download.WithTarget(download.SuggestedTarget(dir)),
			download.WithMode(mode),
		)
		if err != nil {
			return nil, fmt.Errorf("id %s: %w", id, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func dataURL(host, id string) string {
	return strings.TrimRight(host, "/") + "/data/" + url.PathEscape(id)
}

func logMetrics(elapsed time.Duration, results []download.Result) {
	var totalSize int64
	for _, result := range results {
		totalSize += result.Size
	}
	throughput := "n/a"
	if elapsed.Seconds() > 0 {
		throughput = fmt.Sprintf("%s/s", humanize.Bytes(uint64(float64(totalSize)/elapsed.Seconds())))
	}
	logging.GetLogger().Info().
		Int("file_count", len(results)).
		Str("total_bytes_downloaded", humanize.Bytes(uint64(totalSize))).
		Str("throughput", throughput).
		Str("elapsed_time", fmt.Sprintf("%.3fs", elapsed.Seconds())).
		Msg("Metrics")
}
