package version

import "fmt"

// Set via ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String returns the version line printed by "provswitch version".
func String() string {
	return fmt.Sprintf("provswitch %s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
}
