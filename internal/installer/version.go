package installer

import (
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a loosely parsed semantic version. The zero value means
// "unknown": the tool is present but its version string could not be parsed.
// Version parsing is cosmetic by policy; it never produces an error.
type Version struct {
	raw string // canonical "1.2.3" form, or "" when unknown
}

var versionPattern = regexp.MustCompile(`\d+(\.\d+)*`)

// ParseVersion extracts a version from arbitrary tool output such as
// "ripgrep 14.1.0 (rev ...)". Unparseable input yields the unknown Version,
// never an error.
func ParseVersion(s string) Version {
	m := versionPattern.FindString(s)
	if m == "" {
		return Version{}
	}
	if !semver.IsValid(canonical(m)) {
		return Version{}
	}
	return Version{raw: m}
}

// canonical pads a dotted number to the vMAJOR.MINOR.PATCH form semver wants.
func canonical(s string) string {
	parts := strings.Split(s, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return "v" + strings.Join(parts[:3], ".")
}

// Known reports whether the version was successfully parsed.
func (v Version) Known() bool { return v.raw != "" }

// String returns the version for display, or "" when unknown.
func (v Version) String() string { return v.raw }

// Compare returns -1, 0, or +1 comparing v against other. Unknown versions
// compare as equal to everything: constraints cannot be meaningfully applied,
// so they never fail a run.
func (v Version) Compare(other Version) int {
	if !v.Known() || !other.Known() {
		return 0
	}
	return semver.Compare(canonical(v.raw), canonical(other.raw))
}

// AtLeast reports whether v satisfies the given minimum. An unknown minimum
// or an unknown v is always satisfied.
func (v Version) AtLeast(min Version) bool {
	return v.Compare(min) >= 0
}
