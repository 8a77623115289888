package version

import (
	"runtime"
	"runtime/debug"
	"strconv"
	"time"
)

// ServiceName is reported by /health and /version.
const ServiceName = "persona-relay"

// Set at build time with -ldflags "-X persona-relay/version.BuildVersion=...".
// Empty values are filled from the module's VCS stamp when available.
var (
	BuildVersion = "dev"
	GitSHA       = ""
	BuildTime    = ""
)

var startedAt = time.Now().UTC()

// Info describes the running binary.
type Info struct {
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Revision  string    `json:"git_sha,omitempty"`
	Committed string    `json:"build_time,omitempty"`
	Dirty     *bool     `json:"vcs_modified,omitempty"`
	Runtime   string    `json:"go_version"`
	Platform  string    `json:"platform"`
	StartedAt time.Time `json:"started_at"`
	UptimeSec int64     `json:"uptime_seconds"`
}

// Get reports build metadata for this binary.
func Get() Info {
	var stamp map[string]string
	if bi, ok := debug.ReadBuildInfo(); ok {
		stamp = vcsStamp(bi.Settings)
	}
	return newInfo(stamp, time.Now())
}

func newInfo(stamp map[string]string, now time.Time) Info {
	info := Info{
		Service:   ServiceName,
		Version:   BuildVersion,
		Revision:  firstSet(GitSHA, stamp["vcs.revision"]),
		Committed: firstSet(BuildTime, stamp["vcs.time"]),
		Runtime:   runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		StartedAt: startedAt,
		UptimeSec: int64(now.Sub(startedAt).Seconds()),
	}
	if dirty, err := strconv.ParseBool(stamp["vcs.modified"]); err == nil {
		info.Dirty = &dirty
	}
	return info
}

// vcsStamp keeps the first value of each vcs.* build setting.
func vcsStamp(settings []debug.BuildSetting) map[string]string {
	stamp := make(map[string]string, 3)
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision", "vcs.time", "vcs.modified":
			if _, seen := stamp[s.Key]; !seen {
				stamp[s.Key] = s.Value
			}
		}
	}
	return stamp
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
