// Package version provides build-time version information.
package version

import "fmt"

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X github.com/javanstorm/qemumgr/internal/version.Version=1.0.0 \
//	                   -X github.com/javanstorm/qemumgr/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/javanstorm/qemumgr/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String returns the version with a short commit, e.g. "1.0.0 (3f2a9c1)".
func String() string {
	commit := Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s (%s)", Version, commit)
}
