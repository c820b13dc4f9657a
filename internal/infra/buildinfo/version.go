// Package buildinfo reports what binary is running.
//
// Release builds set the variables with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/libos-go/internal/infra/buildinfo.Version=v1.0.0"
//
// Without them, the commit and build time come from the VCS stamp the Go
// toolchain embeds.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Set with -X at link time.
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Modified  bool   `json:"modified" yaml:"modified"`
}

var (
	once sync.Once
	info Info
)

// Get returns the build information, resolved once per process.
func Get() Info {
	once.Do(func() {
		bi, _ := debug.ReadBuildInfo()
		info = resolve(bi)
	})
	return info
}

// resolve fills the link-time values, falling back to the VCS settings of
// bi. Fields still unknown read "unknown".
func resolve(bi *debug.BuildInfo) Info {
	out := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	if bi != nil {
		if bi.GoVersion != "" {
			out.GoVersion = bi.GoVersion
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if out.Commit == "" {
					out.Commit = s.Value
				}
			case "vcs.time":
				if out.BuildTime == "" {
					out.BuildTime = s.Value
				}
			case "vcs.modified":
				out.Modified = s.Value == "true"
			}
		}
	}
	if len(out.Commit) > 12 {
		out.Commit = out.Commit[:12]
	}
	if out.Commit == "" {
		out.Commit = "unknown"
	}
	if out.BuildTime == "" {
		out.BuildTime = "unknown"
	}
	return out
}

// String is the one-line form printed by --version.
func String() string {
	i := Get()
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s) built at %s", i.Version, commit, i.GoVersion, i.BuildTime)
}
