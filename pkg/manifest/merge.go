package manifest

import (
	"sort"
	"strings"
)

// mergeDependencies collapses duplicate (ecosystem, name) pairs into one
// record, keeping the most restrictive constraint:
//   - an exact constraint beats a range or unresolved constraint
//   - between two exact constraints, a lock file beats a manifest
//     (the lock records what is actually installed)
//   - otherwise the first-declared constraint wins
//
// First-seen order is preserved.
func mergeDependencies(deps []Dependency) []Dependency {
	type key struct {
		eco  Ecosystem
		name string
	}
	index := make(map[key]int)
	var out []Dependency

	for _, d := range deps {
		k := key{d.Ecosystem, d.Name}
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, d)
			continue
		}
		kept := &out[i]
		switch {
		case d.Constraint.Exact && !kept.Constraint.Exact:
			replaceConstraint(kept, d)
		case d.Constraint.Exact && kept.Constraint.Exact && isLockFile(d.Source) && !isLockFile(kept.Source):
			replaceConstraint(kept, d)
		}
		// Merged records keep dev/indirect only if every source agrees.
		kept.Dev = kept.Dev && d.Dev
		kept.Indirect = kept.Indirect && d.Indirect
	}
	return out
}

func replaceConstraint(dst *Dependency, src Dependency) {
	dst.Constraint = src.Constraint
	dst.ConstraintRaw = src.ConstraintRaw
	dst.Source = src.Source
}

func isLockFile(filename string) bool {
	return strings.HasSuffix(filename, ".lock")
}

// sortedKeys returns the map's keys in sorted order, for deterministic
// iteration over manifest tables.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
