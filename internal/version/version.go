package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the release tag, injected at build time:
// go build -ldflags "-X git.home.luguber.info/inful/forpostctl/internal/version.Version=v1.4.0".
var Version = "unknown"

// Build metadata, injected the same way.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Info is the version report shown by `forpostctl version` and /status.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information, filling the commit from the embedded
// VCS stamp when ldflags were not supplied.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "unknown" {
					info.GitCommit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "unknown" {
					info.BuildTime = s.Value
				}
			}
		}
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("forpostctl %s (commit %s, built %s, %s)", i.Version, i.GitCommit, i.BuildTime, i.GoVersion)
}
