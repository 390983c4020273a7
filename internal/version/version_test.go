package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetVersion(t *testing.T, version, revision, date string) {
	t.Helper()
	origVersion, origRevision, origBuildDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = origVersion, origRevision, origBuildDate
	})
	Version, Revision, BuildDate = version, revision, date
}

func buildInfo(mainVersion string, settings map[string]string) *debug.BuildInfo {
	info := &debug.BuildInfo{Main: debug.Module{Version: mainVersion}}
	for k, v := range settings {
		info.Settings = append(info.Settings, debug.BuildSetting{Key: k, Value: v})
	}
	return info
}

func TestVersionStrings(t *testing.T) {
	info := Current()
	assert.Equal(t, AppName, info.App)
	assert.Contains(t, info.Platform, "/")

	detailed := Detailed()
	assert.Contains(t, detailed, Version)
	assert.Contains(t, detailed, Revision)
	assert.Contains(t, detailed, info.GoVersion)
	assert.True(t, strings.HasPrefix(DetailedWithApp(), AppName+" "))

	ua := UserAgent()
	assert.True(t, strings.HasPrefix(ua, AppName+"/"+Version+" ("))
	assert.Contains(t, ua, Revision)
}

func TestFillFromBuildInfo(t *testing.T) {
	resetVersion(t, devVersion, devRevision, "")

	fillFromBuildInfo(buildInfo("v9.9.9", map[string]string{
		"vcs.revision": "9f1c2e7a0b",
		"vcs.modified": "true",
		"vcs.time":     "2026-03-02T09:30:00Z",
		"GOARCH":       "amd64",
	}))

	assert.Equal(t, "9.9.9", Version)
	assert.Equal(t, "9f1c2e7-dirty", Revision)
	assert.Equal(t, "2026-03-02T09:30:00Z", BuildDate)
}

func TestFillFromBuildInfo_DevelModule(t *testing.T) {
	resetVersion(t, devVersion, devRevision, "")

	fillFromBuildInfo(buildInfo("(devel)", nil))
	assert.Equal(t, devVersion, Version)
	assert.Equal(t, devRevision, Revision)

	fillFromBuildInfo(nil)
	assert.Equal(t, devVersion, Version)
}

func TestFillFromBuildInfo_KeepsLdflags(t *testing.T) {
	resetVersion(t, "1.2.3", "deadbeef", "from-ldflags")

	fillFromBuildInfo(buildInfo("v9.9.9", map[string]string{
		"vcs.revision": "abcdef",
		"vcs.time":     "2026-03-02T09:30:00Z",
	}))

	assert.Equal(t, "1.2.3", Version)
	assert.Equal(t, "deadbeef", Revision)
	assert.Equal(t, "from-ldflags", BuildDate)
}
