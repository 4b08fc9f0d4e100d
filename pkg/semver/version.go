// Package semver implements the version policy for release runs: a semantic
// version triple, the channel-to-bump-rule table, and the version descriptor
// file the pipeline persists before tagging.
package semver

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a semantic version triple.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Parse parses "major.minor.patch". Leading "v" is accepted.
func Parse(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	trimmed := strings.TrimPrefix(raw, "v")
	parts := strings.Split(trimmed, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("parse version %q: want major.minor.patch", raw)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		// Atoi alone would admit sign prefixes like "+2".
		if !isDigits(p) {
			return Version{}, fmt.Errorf("parse version %q: invalid component %q", raw, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("parse version %q: invalid component %q", raw, p)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Tag returns the immutable tag name for the version.
func (v Version) Tag() string {
	return "v" + v.String()
}

// Compare returns -1, 0, or 1 ordering v against o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpInt(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpInt(v.Minor, o.Minor)
	default:
		return cmpInt(v.Patch, o.Patch)
	}
}

// Less reports whether v orders strictly before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
