package root

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replicate/sledge/pkg/cli"
	"github.com/replicate/sledge/pkg/config"
	"github.com/replicate/sledge/pkg/download"
	"github.com/replicate/sledge/pkg/optname"
)

const rootLongDesc = `
sledge

Sledge is a concurrent, segmented HTTP downloader. It learns the length of a resource, splits it into
contiguous byte ranges and fetches every range over its own connection, writing each one straight to its
offset in a pre-sized file.

With --serial, or when writing to stdout with '-o -', the resource is fetched with a single GET and
streamed to the destination instead.

Unless --output is given, the file is named after the Content-Disposition header sent by the server, or the
last segment of the URL path, and written into --dir.
`

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sledge [flags] <url>",
		Short: "sledge",
		Long:  rootLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.PersistentStartupProcessFlags()
		},
		RunE: runRootCMD,
		Args: cobra.ExactArgs(1),
		Example: `  sledge https://example.com/file.tar.gz
  sledge -c 16 -o weights.bin https://example.com/weights.bin
  sledge -o - https://example.com/file.tar | tar x`,
	}
	cmd.Flags().StringP(optname.Output, "o", "", "Output path, '-' for stdout (default: the name suggested by the server)")
	cmd.SetUsageTemplate(cli.UsageTemplate)
	err := config.AddRootPersistentFlags(cmd)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := viper.BindPFlag(optname.Output, cmd.Flags().Lookup(optname.Output)); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return cmd
}

func runRootCMD(cmd *cobra.Command, args []string) error {
	// After we run through the PreRun functions we want to silence usage from being printed
	// on all errors
	cmd.SilenceUsage = true

	urlString := args[0]
	target := outputTarget(viper.GetString(optname.Output), viper.GetString(optname.Dir))
	mode := cli.DownloadMode()
	if target.Kind() == download.TargetStdout && mode.IsParallel() {
		log.Warn().Msg("stdout is not seekable, downloading serially")
		mode = download.Serial()
	}

	switch target.Kind() {
	case download.TargetFile:
		if err := cli.EnsureDestinationNotExist(target.Path()); err != nil {
			return err
		}
	case download.TargetSuggested:
		if err := cli.ExistingDir(target.Path()); err != nil {
			return err
		}
	}

	header, err := config.Headers()
	if err != nil {
		return err
	}
	req, err := download.NewRequest(urlString,
		download.WithHeader(header),
		download.WithTarget(target),
		download.WithMode(mode),
	)
	if err != nil {
		return err
	}

	log.Info().Str("url", urlString).
		Str("dest", target.String()).
		Str("mode", mode.String()).
		Msg("Initiating")

	return cli.WithLock(func() error {
		_, err := cli.NewGetter().DownloadFile(cmd.Context(), req)
		return err
	})
}

// outputTarget maps --output and --dir to a download target. A relative --output
// is placed inside --dir.
func outputTarget(output, dir string) download.Target {
	switch {
	case output == "-":
		return download.StdoutTarget()
	case output == "":
		return download.SuggestedTarget(dir)
	case dir != "" && !filepath.IsAbs(output):
		return download.FileTarget(filepath.Join(dir, output))
	default:
		return download.FileTarget(output)
	}
}
