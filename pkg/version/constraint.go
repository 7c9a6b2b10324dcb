package version

import (
	"regexp"
	"strings"
)

// Constraint is a declared version requirement. Exact constraints resolve to
// a single version; everything else is kept as an opaque range with whatever
// comparator terms could be extracted. An empty or unparseable constraint has
// no terms and is considered to allow any version.
type Constraint struct {
	// Raw is the constraint exactly as declared in the manifest.
	Raw string

	// Exact is true when the constraint pins a single version.
	Exact bool

	// Version is the pinned version; valid only when Exact is true.
	Version Version

	terms []term
}

// term is a single comparator, e.g. ">= 2.0".
type term struct {
	op string
	v  Version
}

var (
	exactRe = regexp.MustCompile(`^v?\d+(?:\.\d+)*$`)
	termRe  = regexp.MustCompile(`(==|>=|<=|!=|~=|=|>|<|\^|~)\s*v?(\d+(?:\.\d+)*)`)
)

// ParseConstraint classifies a declared constraint string.
// Recognized exact forms: "1.2.3", "v1.2.3", "==1.2.3", "=1.2.3".
// Range operators (>=, <=, >, <, !=, ^, ~, ~=) and wildcards ("1.2.*")
// produce a range constraint; anything else is unresolved.
func ParseConstraint(raw string) Constraint {
	c := Constraint{Raw: raw}
	s := strings.TrimSpace(raw)
	if s == "" || s == "*" {
		return c
	}

	// Pinned forms resolve to a single version.
	pin := s
	for _, prefix := range []string{"==", "="} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			pin = strings.TrimSpace(rest)
			break
		}
	}
	if exactRe.MatchString(pin) && !strings.ContainsAny(s, "<>!^~,") {
		if v, err := Parse(pin); err == nil {
			c.Exact = true
			c.Version = v
			return c
		}
	}

	// Wildcards like "1.2.*" bound a range on the wildcarded segment.
	if base, ok := strings.CutSuffix(s, ".*"); ok && exactRe.MatchString(base) {
		if v, err := Parse(base); err == nil {
			c.terms = []term{
				{op: ">=", v: v},
				{op: "<", v: v.bumpSegment(len(v.segs) - 1)},
			}
			return c
		}
	}

	for _, m := range termRe.FindAllStringSubmatch(s, -1) {
		v, err := Parse(m[2])
		if err != nil {
			continue
		}
		switch m[1] {
		case "^":
			// ^1.2.3 means >=1.2.3 <2.0.0
			c.terms = append(c.terms, term{op: ">=", v: v}, term{op: "<", v: v.bumpSegment(0)})
		case "~", "~=":
			// ~1.2.3 means >=1.2.3 <1.3.0
			upper := v.bumpSegment(max(len(v.segs)-2, 0))
			c.terms = append(c.terms, term{op: ">=", v: v}, term{op: "<", v: upper})
		case "=", "==":
			c.terms = append(c.terms, term{op: ">=", v: v}, term{op: "<=", v: v})
		case "!=":
			// An exclusion doesn't bound the range; skip it.
		default:
			c.terms = append(c.terms, term{op: m[1], v: v})
		}
	}
	return c
}

// Resolved reports whether the constraint pins an exact version.
func (c Constraint) Resolved() bool { return c.Exact }

// bounds derives the interval [lo, hi) covered by the constraint terms.
// hiInclusive distinguishes "<= x" from "< x". Zero versions mean unbounded.
func (c Constraint) bounds() (lo, hi Version, hiInclusive bool) {
	for _, t := range c.terms {
		switch t.op {
		case ">", ">=":
			if lo.IsZero() || t.v.Compare(lo) > 0 {
				lo = t.v
			}
		case "<":
			if hi.IsZero() || t.v.Compare(hi) < 0 {
				hi = t.v
				hiInclusive = false
			}
		case "<=":
			if hi.IsZero() || t.v.Compare(hi) < 0 {
				hi = t.v
				hiInclusive = true
			}
		}
	}
	return lo, hi, hiInclusive
}
