// Package keyexpr implements the resource-key wildcard matcher used to
// decide whether two textual key expressions denote overlapping sets of
// concrete resource names.
//
// Wildcard grammar:
//
//	*   matches any non-empty sequence of characters that does not include '/'.
//	**  matches any (possibly empty) sequence, including '/'.
//	/   is the only segment separator.
//
// No other metacharacters are recognized.
package keyexpr

import "strings"

// sep is the key-expression segment separator.
const sep = "/"

// doubleWild is the segment that matches zero or more segments.
const doubleWild = "**"

// Intersect reports whether left and right denote overlapping sets of
// concrete resource names under the wildcard grammar above.
//
// Two concrete (wildcard-free) keys intersect iff they are byte-equal.
// The relation is symmetric: Intersect(a, b) == Intersect(b, a).
//
// Intersect has no failure mode; it only ever signals "no intersection"
// by returning false.
func Intersect(left, right string) bool {
	return intersectSegments(strings.Split(left, sep), strings.Split(right, sep))
}

// intersectSegments walks two segment slices in lockstep, branching on "**"
// in either slice. A "**" segment may consume zero or more of the opposing
// slice's remaining segments, so each occurrence forks into trying every
// possible consumption length.
func intersectSegments(a, b []string) bool {
	switch {
	case len(a) == 0 && len(b) == 0:
		return true
	case len(a) == 0:
		return allDoubleWild(b)
	case len(b) == 0:
		return allDoubleWild(a)
	}

	if a[0] == doubleWild {
		return matchDoubleWild(a[1:], b)
	}
	if b[0] == doubleWild {
		return matchDoubleWild(b[1:], a)
	}

	if !segmentsOverlap(a[0], b[0]) {
		return false
	}
	return intersectSegments(a[1:], b[1:])
}

// matchDoubleWild tries every split of other (the opposing segment slice)
// at the point where rest (the segments following a consumed "**") could
// resume matching.
func matchDoubleWild(rest, other []string) bool {
	for i := 0; i <= len(other); i++ {
		if intersectSegments(rest, other[i:]) {
			return true
		}
	}
	return false
}

// allDoubleWild reports whether every remaining segment is "**", meaning
// the pattern can still match the empty remainder.
func allDoubleWild(segs []string) bool {
	for _, s := range segs {
		if s != doubleWild {
			return false
		}
	}
	return true
}

// segmentsOverlap reports whether two single path segments (no "/", each
// possibly containing one or more "*" sub-segment wildcards anywhere in
// the segment, e.g. "ab*", "*cd", "a*b") denote overlapping sets of
// concrete segments. Each "*" matches any non-empty run of non-"/"
// characters; every other byte must match literally.
//
// Segments are compared byte by byte via memoized recursion over the pair
// of cursor positions (i into a, j into b). At each position, a literal
// byte forces the matching character of the hypothetical common segment
// and advances its cursor deterministically; a "*" accepts any character
// and branches between staying (the wildcard keeps consuming) and
// advancing past it (the wildcard ends, having matched at least one
// character). Both cursors reaching the end of their segment at the same
// time means some common segment exists; either cursor reaching the end
// while the other still has literal or wildcard bytes left to satisfy
// means no common segment can close out both segments simultaneously.
func segmentsOverlap(a, b string) bool {
	memo := make(map[[2]int]bool, len(a)*len(b))
	var rec func(i, j int) bool
	rec = func(i, j int) bool {
		if i == len(a) && j == len(b) {
			return true
		}
		if i == len(a) || j == len(b) {
			return false
		}

		key := [2]int{i, j}
		if v, ok := memo[key]; ok {
			return v
		}

		aStar := a[i] == '*'
		bStar := b[j] == '*'

		var result bool
		switch {
		case aStar && bStar:
			// Drop the "both stay" self-transition: it consumes a
			// character without advancing either cursor, so it can never
			// help reach the i==len(a) && j==len(b) accept state that the
			// other three transitions can't already reach.
			result = rec(i+1, j) || rec(i, j+1) || rec(i+1, j+1)
		case aStar:
			result = rec(i, j+1) || rec(i+1, j+1)
		case bStar:
			result = rec(i+1, j) || rec(i+1, j+1)
		default:
			result = a[i] == b[j] && rec(i+1, j+1)
		}

		memo[key] = result
		return result
	}
	return rec(0, 0)
}
