// Package version holds build metadata, overridden at link time with
// -ldflags "-X github.com/jeanpaul/relay/pkg/version.Version=...".
package version

var (
	Version = "dev"
	Commit  = "unknown"
)
