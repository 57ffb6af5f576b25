// Package version carries the build identity stamped into the binary and
// reported by the version command and /status.
package version

// Set at build time via -ldflags "-X .../internal/version.Version=...".
var (
	Version = "0.1.0-dev"
	Commit  = ""
)

// Full returns the version with the commit suffix when one was stamped in.
func Full() string {
	if Commit == "" {
		return Version
	}
	return Version + "+" + Commit
}
