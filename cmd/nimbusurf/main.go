// Command nimbusurf browses GCS and S3 object storage from the terminal.
package main

import (
	"os"

	"github.com/3leaps/nimbusurf/internal/cmd"
)

// Set by -ldflags at build time.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	os.Exit(cmd.Execute())
}
