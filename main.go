package main

import (
	"os"

	"github.com/replicate/sledge/cmd"
	"github.com/replicate/sledge/pkg/logging"
)

func main() {
	logging.SetupLogger()
	rootCMD := cmd.GetRootCommand()
	if err := rootCMD.Execute(); err != nil {
		os.Exit(1)
	}
}
