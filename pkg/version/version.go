// Package version carries build information, populated at link time via
// -ldflags.
package version

var (
	Version = "dev"
	Commit  = "unknown"
)

// Info is the build information served by the version endpoint.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// Get returns the build information
func Get() Info {
	return Info{Version: Version, Commit: Commit}
}
