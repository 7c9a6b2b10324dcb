// Package version implements lenient version parsing, declared-constraint
// classification, and affected-range checks used by vulnerability
// correlation.
//
// Versions are compared on their dotted numeric segments only; build
// metadata and pre-release suffixes are ignored. Constraints that cannot be
// parsed are treated as unresolved, which downstream code handles
// conservatively (a possible vulnerability is never dropped because the
// declared version is unknown).
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a parsed dotted version. The zero value means "unknown".
type Version struct {
	segs []int
	raw  string
}

var versionRe = regexp.MustCompile(`(\d+(?:\.\d+)*)`)

// Parse extracts the dotted numeric core of a version string.
// Leading "v" prefixes and trailing suffixes ("1.2.3-beta", "v1.2.3+incompatible")
// are tolerated. Returns an error when no numeric segment is present.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "v"))
	m := versionRe.FindString(s)
	if m == "" {
		return Version{}, fmt.Errorf("no version number in %q", s)
	}
	parts := strings.Split(m, ".")
	segs := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version segment %q in %q", p, s)
		}
		segs[i] = n
	}
	return Version{segs: segs, raw: m}, nil
}

// MustParse is Parse for tests and constants; it panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v is the unknown version.
func (v Version) IsZero() bool { return len(v.segs) == 0 }

// String returns the normalized dotted form.
func (v Version) String() string { return v.raw }

// Compare returns -1, 0, or 1 ordering v against o.
// Missing segments compare as zero, so 1.2 == 1.2.0.
func (v Version) Compare(o Version) int {
	n := max(len(v.segs), len(o.segs))
	for i := range n {
		a, b := 0, 0
		if i < len(v.segs) {
			a = v.segs[i]
		}
		if i < len(o.segs) {
			b = o.segs[i]
		}
		if a != b {
			if a < b {
				return -1
			}
			return 1
		}
	}
	return 0
}

// bumpSegment returns a copy of v with segment i incremented and all later
// segments dropped. Used to expand caret/tilde shorthand into an upper bound.
func (v Version) bumpSegment(i int) Version {
	if i >= len(v.segs) {
		i = len(v.segs) - 1
	}
	segs := make([]int, i+1)
	copy(segs, v.segs[:i+1])
	segs[i]++
	parts := make([]string, len(segs))
	for j, s := range segs {
		parts[j] = strconv.Itoa(s)
	}
	return Version{segs: segs, raw: strings.Join(parts, ".")}
}
