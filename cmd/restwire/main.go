// restwire CLI - assemble and exercise configuration-driven REST resources
package main

import (
	"os"

	"github.com/getmockd/restwire/pkg/cli"
)

// Build-time variables set via ldflags
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cli.Version = Version
	cli.Commit = Commit
	cli.BuildDate = BuildDate

	os.Exit(cli.Main(os.Args[1:], os.Stdout, os.Stderr))
}
