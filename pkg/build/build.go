// Package build exposes version information stamped at link time, falling
// back to the module's build info.
package build

import "runtime/debug"

// Set with -ldflags "-X github.com/earnout-labs/dealvault/pkg/build.Version=..."
var (
	Version = "(devel)"
	Commit  = "unknown"
	Date    = "unknown"
	BuiltBy = "unknown"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "(devel)" && info.Main.Version != "" {
		Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "unknown" {
				Commit = s.Value
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = s.Value
			}
		}
	}
}
