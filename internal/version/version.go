// Package version exposes the running binary's version derived from build
// metadata. Go 1.18+ embeds VCS info (commit, dirty flag) into the binary
// via runtime/debug.BuildInfo, so no -ldflags are required at build time.
package version

import "runtime/debug"

// AppName identifies this service in version strings and log lines.
const AppName = "agenttrace"

// GitCommit is the short (8-char) git commit hash from build info, or
// "dev" when build info is unavailable (e.g. `go test`, non-VCS builds).
var GitCommit = initGitCommit()

func initGitCommit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 8 {
				return s.Value[:8]
			}
			return s.Value
		}
	}
	return "dev"
}

// Full returns "agenttrace/<commit>", used in startup logs and the health
// response.
func Full() string {
	return AppName + "/" + GitCommit
}
