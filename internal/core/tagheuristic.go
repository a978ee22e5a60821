package core

import (
	"sort"
	"strconv"
	"strings"
)

// tagToTokens lowercases tag and splits it on `.` or `-`, producing the
// token list used both to compare a tag against a version, and to decrement
// a numeric suffix to look for an immediate predecessor release.
func tagToTokens(tag string) []string {
	return strings.FieldsFunc(strings.ToLower(tag), func(r rune) bool {
		return r == '.' || r == '-'
	})
}

// decToken parses tok as a uint32 and returns its decremented string form,
// failing if tok isn't numeric or is already zero (there is no predecessor).
func decToken(tok string) (string, bool) {
	n, err := strconv.ParseUint(tok, 10, 32)
	if err != nil || n == 0 {
		return "", false
	}
	return strconv.FormatUint(n-1, 10), true
}

// humanSortLess compares a and b the way the reference `human_sort::compare`
// does: runs of digits compare numerically, everything else compares
// byte-wise, so "il60-0-9" sorts before "il60-0-10".
func humanSortLess(a, b string) bool {
	ai, bi := 0, 0
	for ai < len(a) && bi < len(b) {
		ac, bc := a[ai], b[bi]
		if isDigit(ac) && isDigit(bc) {
			aStart, bStart := ai, bi
			for ai < len(a) && isDigit(a[ai]) {
				ai++
			}
			for bi < len(b) && isDigit(b[bi]) {
				bi++
			}
			an := strings.TrimLeft(a[aStart:ai], "0")
			bn := strings.TrimLeft(b[bStart:bi], "0")
			if len(an) != len(bn) {
				return len(an) < len(bn)
			}
			if an != bn {
				return an < bn
			}
			continue
		}
		if ac != bc {
			return ac < bc
		}
		ai++
		bi++
	}
	return len(a)-ai < len(b)-bi
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// FindTagsToPatch returns candidate source tags to build patches toward
// current, derived by decrementing successive trailing tokens of current
// (the last token is tried first, then earlier ones) and looking for the
// closest-matching known tag by shared prefix.
//
// Tags are sorted with humanSortLess before matching, so that among several
// tags sharing a prefix, the numerically-latest one is preferred (the "last"
// match in sorted order).
func FindTagsToPatch(current string, tags []string) []string {
	sorted := append([]string(nil), tags...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return humanSortLess(sorted[i], sorted[j])
	})

	parsedTags := make([][]string, len(sorted))
	for i, t := range sorted {
		parsedTags[i] = tagToTokens(t)
	}

	currentTokens := tagToTokens(current)

	var toPatch []string
	for posFromEnd := 0; posFromEnd < len(currentTokens); posFromEnd++ {
		pos := len(currentTokens) - 1 - posFromEnd
		dec, ok := decToken(currentTokens[pos])
		if !ok {
			continue
		}

		prev := append([]string(nil), currentTokens...)
		prev[pos] = dec
		prefix := prev[:pos+1]

		matchIdx := -1
		for idx, tagTokens := range parsedTags {
			if tokensHavePrefix(tagTokens, prefix) {
				matchIdx = idx
			}
		}
		if matchIdx >= 0 {
			toPatch = append(toPatch, sorted[matchIdx])
		}
	}
	return toPatch
}

func tokensHavePrefix(tokens, prefix []string) bool {
	if len(tokens) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if tokens[i] != p {
			return false
		}
	}
	return true
}
