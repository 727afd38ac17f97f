// Package version reports build metadata injected through ldflags:
//
//	go build -ldflags "-X github.com/goclaw/mnemo/pkg/version.Version=v0.3.0"
package version

import (
	"fmt"
	"runtime"
)

// These variables are set during build time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// BuildInfo is the build metadata of the running binary.
type BuildInfo struct {
	Version   string `json:"version" yaml:"version"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GitCommit string `json:"git_commit" yaml:"git_commit"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Get returns the build metadata.
func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the metadata on one line.
func (b BuildInfo) String() string {
	commit := b.GitCommit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("mnemo %s (commit %s, built %s, %s %s)", b.Version, commit, b.BuildTime, b.GoVersion, b.Platform)
}
