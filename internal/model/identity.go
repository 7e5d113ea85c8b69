package model

import "strings"

// HasHashes reports whether any algorithm field is populated.
func HasHashes(h HashSet) bool {
	for _, a := range Algorithms {
		if h.Has(a) {
			return true
		}
	}
	return false
}

// HasZeroHash reports whether every populated field equals the hash of the
// empty input. Absent fields count as zero, so a set with no hashes at all
// reports true: there is nothing to compare.
func HasZeroHash(h HashSet) bool {
	for _, a := range Algorithms {
		if !h.Has(a) {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(h.Get(a)), a.Zero()) {
			return false
		}
	}
	return true
}

// HasCommonHash reports whether at least one algorithm is populated on both
// sides, i.e. whether the two sets can be compared at all.
func HasCommonHash(a, b HashSet) bool {
	for _, alg := range Algorithms {
		if a.Has(alg) && b.Has(alg) {
			return true
		}
	}
	return false
}

// HashMatch reports whether two hash sets denote the same content. Every
// algorithm known to both sides must agree; algorithms known to only one
// side do not block the match.
func HashMatch(a, b HashSet) bool {
	if !HasHashes(a) || !HasHashes(b) || !HasCommonHash(a, b) {
		return false
	}
	for _, alg := range Algorithms {
		if !a.Has(alg) || !b.Has(alg) {
			continue
		}
		av := strings.TrimSpace(a.Get(alg))
		bv := strings.TrimSpace(b.Get(alg))
		if alg == SpamSum {
			if av != bv {
				return false
			}
			continue
		}
		if !strings.EqualFold(av, bv) {
			return false
		}
	}
	return true
}
