// Package cli implements the tracemock command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// BuildInfo carries the values injected into main at link time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configFile string
	jsonOutput bool
}

// NewRootCommand builds the command tree. Each call returns an independent
// tree so tests can run commands side by side.
func NewRootCommand(info BuildInfo) *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "tracemock",
		Short: "tracemock replays recorded HTTP traces for tests",
		Long: `tracemock serves HTTP responses from recorded traces so tests run without
the network. Offline it replays a trace exchange by exchange and answers
with a 400 diagnostic on the first unexpected request. Online with logging
enabled it passes traffic through to the real services and records it.

Configuration can be provided via flags, TRACEMOCK_* environment variables,
or a YAML file given with --config (default: .tracemock.yaml in the working
directory).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "Config file path")
	root.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "Output command results in JSON format")

	root.AddCommand(
		newServeCommand(g),
		newValidateCommand(g),
		newConvertCommand(),
		newCertCommand(),
		newVersionCommand(g, info),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(info BuildInfo, args []string) int {
	return execute(NewRootCommand(info), args, os.Stdout, os.Stderr)
}

func execute(root *cobra.Command, args []string, stdout, stderr io.Writer) int {
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}
