package version

import (
	"fmt"
	"runtime"
)

// Name identifies the project in build info and User-Agent headers
const Name = "ride-booking-ingest"

var (
	// Version is the semantic version of the application
	Version = "dev"
	// GitCommit is the git commit hash
	GitCommit = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Info returns version information as a map
func Info() map[string]string {
	return map[string]string{
		"name":      Name,
		"version":   Version,
		"gitCommit": GitCommit,
		"buildTime": BuildTime,
		"goVersion": runtime.Version(),
	}
}

// String returns a formatted version string
func String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", Name, Version, GitCommit, BuildTime)
}

// UserAgent is sent by the delivery client, e.g. "ride-booking-ingest/dev"
func UserAgent() string {
	return Name + "/" + Version
}
