package cli

import (
	"path/filepath"

	"github.com/spf13/viper"

	sledge "github.com/replicate/sledge/pkg"
	"github.com/replicate/sledge/pkg/client"
	"github.com/replicate/sledge/pkg/download"
	"github.com/replicate/sledge/pkg/optname"
	"github.com/replicate/sledge/pkg/progress"
)

// NewGetter builds a Getter from the command line flags. This and DownloadMode
// should be the only places the download path reads viper.
func NewGetter() *sledge.Getter {
	clientOpts := client.Options{
		ForceHTTP2:     viper.GetBool(optname.ForceHTTP2),
		MaxRetries:     viper.GetInt(optname.Retries),
		ConnectTimeout: viper.GetDuration(optname.ConnTimeout),
	}
	downloader := &download.Downloader{
		Client:    client.NewClient(clientOpts),
		Overwrite: viper.GetBool(optname.Force),
	}
	if !viper.GetBool(optname.NoProgress) {
		downloader.NewReporter = func(dest string) progress.Reporter {
			return progress.NewBar(filepath.Base(dest))
		}
	}
	return &sledge.Getter{
		Downloader: downloader,
		Extract:    viper.GetBool(optname.Extract),
		ExtractDir: viper.GetString(optname.ExtractDir),
	}
}

// DownloadMode is serial with --serial and otherwise one range request per
// --concurrency.
func DownloadMode() download.Mode {
	if viper.GetBool(optname.Serial) {
		return download.Serial()
	}
	return download.Parallel(viper.GetInt(optname.Concurrency))
}
