// Command ixado is IxADO's CLI entry point: init/start/status/stop/serve
// subcommands over the project state, phase runner, and web surface
// (spec.md §4.6/§4.7, SPEC_FULL.md §0/§6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var rootDir string

	root := &cobra.Command{
		Use:     "ixado",
		Short:   "Drive a software project through phases executed by coding-CLI agents",
		Version: version,
	}
	root.PersistentFlags().StringVar(&rootDir, "root-dir", ".", "project root directory")

	root.AddCommand(newInitCommand(&rootDir))
	root.AddCommand(newStartCommand(&rootDir))
	root.AddCommand(newStatusCommand(&rootDir))
	root.AddCommand(newStopCommand(&rootDir))
	root.AddCommand(newServeCommand(&rootDir))
	return root
}
