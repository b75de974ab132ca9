// tracemock serves recorded HTTP traces for tests.
package main

import (
	"os"

	"github.com/getmockd/tracemock/pkg/cli"
)

// Build-time variables set via ldflags
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	os.Exit(cli.Execute(cli.BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	}, os.Args[1:]))
}
