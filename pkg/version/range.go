package version

// Range is a half-open interval of affected versions, matching the shape of
// advisory feeds: introduced (inclusive) up to fixed (exclusive) or
// last-affected (inclusive). A zero Introduced means "from the beginning";
// a zero Fixed and LastAffected means "no known fix".
type Range struct {
	Introduced   Version
	Fixed        Version
	LastAffected Version
}

// PointRange builds a range affecting exactly one version.
func PointRange(v Version) Range {
	return Range{Introduced: v, LastAffected: v}
}

// Contains reports whether v falls inside the affected range.
func (r Range) Contains(v Version) bool {
	if v.IsZero() {
		return false
	}
	if !r.Introduced.IsZero() && v.Compare(r.Introduced) < 0 {
		return false
	}
	if !r.Fixed.IsZero() && v.Compare(r.Fixed) >= 0 {
		return false
	}
	if !r.LastAffected.IsZero() && v.Compare(r.LastAffected) > 0 {
		return false
	}
	return true
}

// Overlaps reports whether any version allowed by the constraint could fall
// inside the affected range. Exact constraints reduce to Contains. Range
// constraints overlap unless they are provably disjoint from the affected
// interval; constraints with no usable bounds always overlap.
func (r Range) Overlaps(c Constraint) bool {
	if c.Exact {
		return r.Contains(c.Version)
	}

	lo, hi, hiInclusive := c.bounds()

	// Constraint entirely below the affected range.
	if !hi.IsZero() && !r.Introduced.IsZero() {
		cmp := hi.Compare(r.Introduced)
		if cmp < 0 || (cmp == 0 && !hiInclusive) {
			return false
		}
	}

	// Constraint entirely above the affected range.
	if !lo.IsZero() {
		if !r.Fixed.IsZero() && lo.Compare(r.Fixed) >= 0 {
			return false
		}
		if r.Fixed.IsZero() && !r.LastAffected.IsZero() && lo.Compare(r.LastAffected) > 0 {
			return false
		}
	}

	return true
}
