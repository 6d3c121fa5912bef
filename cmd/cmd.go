package cmd

import (
	"github.com/spf13/cobra"

	"github.com/replicate/sledge/cmd/ids"
	"github.com/replicate/sledge/cmd/root"
	"github.com/replicate/sledge/cmd/version"
)

func GetRootCommand() *cobra.Command {
	rootCMD := root.GetCommand()
	rootCMD.AddCommand(ids.GetCommand())
	rootCMD.AddCommand(version.VersionCMD)
	return rootCMD
}
