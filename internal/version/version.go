// Package version compares the client build against the version a records
// server reports on /healthz.
package version

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const modulePath = "github.com/azula9713/yae-their-share"

// ServerVersionFunc fetches the version string the server reports.
type ServerVersionFunc func(ctx context.Context) (string, error)

// CheckResult holds the result of a version check.
type CheckResult struct {
	ClientVersion string
	ServerVersion string
	// ClientBehind is true when the server runs a newer release.
	ClientBehind bool
	// Compatible is false when the major versions differ.
	Compatible bool
	Error      error
}

// Check asks the server for its version and compares it with current.
// Development builds on either side are treated as compatible.
func Check(ctx context.Context, current string, fetch ServerVersionFunc) CheckResult {
	result := CheckResult{ClientVersion: current, Compatible: true}

	server, err := fetch(ctx)
	if err != nil {
		result.Error = err
		return result
	}
	result.ServerVersion = server
	if server == "" || IsDevelopmentVersion(server) || IsDevelopmentVersion(current) {
		return result
	}

	result.ClientBehind = IsNewer(server, current)
	result.Compatible = parseSemver(server)[0] == parseSemver(current)[0]
	return result
}

// IsDevelopmentVersion returns true for non-release versions.
func IsDevelopmentVersion(v string) bool {
	if v == "" || v == "unknown" || v == "dev" || v == "devel" {
		return true
	}
	return strings.HasPrefix(v, "devel+")
}

// IsNewer reports whether a is a later release than b. Prerelease and build
// suffixes are ignored.
func IsNewer(a, b string) bool {
	va, vb := parseSemver(a), parseSemver(b)
	for i := range va {
		if va[i] != vb[i] {
			return va[i] > vb[i]
		}
	}
	return false
}

// parseSemver extracts major.minor.patch, defaulting missing or
// unparsable parts to zero.
func parseSemver(v string) [3]int {
	var out [3]int
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	for i, part := range strings.SplitN(v, ".", 3) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return [3]int{}
		}
		out[i] = n
	}
	return out
}

var validVersionRegex = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[a-zA-Z0-9]+([.-][a-zA-Z0-9]+)*)?$`)

// UpdateCommand returns the go install command for the given client release,
// or "" if version is not a plain semver tag.
func UpdateCommand(version string) string {
	if !validVersionRegex.MatchString(version) {
		return ""
	}
	return fmt.Sprintf("go install -ldflags \"-X main.Version=%s\" %s@%s", version, modulePath, version)
}
