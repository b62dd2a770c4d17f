// Package version holds build information for cdd.
package version

// Overridden at build time:
// go build -ldflags "-X cdd/internal/version.Version=1.0.0 -X cdd/internal/version.Commit=abc123"
var (
	Version   = "0.1.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info returns the version with a short commit suffix when one is known.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns version, commit and build date on separate lines.
func Full() string {
	return "cdd version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate
}
