package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const (
	devVersion  = "0.1.0-dev"
	devRevision = "HEAD"
	revisionLen = 7
)

// Set through -ldflags "-X github.com/lumensite/lumen/internal/version.Version=..." by release builds
var (
	AppName   = "Lumen"
	Version   = devVersion
	Revision  = devRevision
	BuildDate = ""
)

// Info is the build description reported by the server index and both CLIs
type Info struct {
	App       string `json:"app"`
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func Current() Info {
	return Info{
		App:       AppName,
		Version:   Version,
		Revision:  Revision,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// fillFromBuildInfo fills values that ldflags left at their dev defaults
func fillFromBuildInfo(info *debug.BuildInfo) {
	if info == nil {
		return
	}

	vcs := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			vcs[s.Key] = s.Value
		}
	}

	if Version == devVersion || Version == "" {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			Version = strings.TrimPrefix(v, "v")
		}
	}

	if Revision == devRevision || Revision == "" {
		if r := vcs["vcs.revision"]; r != "" {
			if len(r) > revisionLen {
				r = r[:revisionLen]
			}
			if vcs["vcs.modified"] == "true" {
				r += "-dirty"
			}
			Revision = r
		}
	}

	if BuildDate == "" {
		BuildDate = vcs["vcs.time"]
	}
}

// UserAgent is the product token sent by the sdk - `Lumen/0.1.0 (5e23a4c; linux; amd64)`
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s; %s; %s)", AppName, Version, Revision, runtime.GOOS, runtime.GOARCH)
}

// Detailed - `0.1.0 (5e23a4c; go1.23.6; linux/amd64; 2025-01-01T00:00:00Z)`
func Detailed() string {
	i := Current()
	return fmt.Sprintf("%s (%s; %s; %s; %s)", i.Version, i.Revision, i.GoVersion, i.Platform, i.BuildDate)
}

func DetailedWithApp() string {
	return AppName + " " + Detailed()
}

func init() {
	info, _ := debug.ReadBuildInfo()
	fillFromBuildInfo(info)
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}
