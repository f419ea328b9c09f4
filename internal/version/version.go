// Package version implements the version algebra used to pick the latest
// upstream release among candidate strings, tags and tarball filenames.
//
// Comparison follows the Debian/RPM-style discipline: strings are segmented
// into maximal runs of digits and non-digits, digit runs compare numerically,
// and a tilde sorts before everything including the empty string, so that
// "1.0~rc1" < "1.0".
package version

import "strings"

// Compare compares two version strings and returns:
//
//	-1 if a < b
//	 0 if a == b
//	 1 if a > b
func Compare(a, b string) int {
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		// Non-digit run, compared character by character.
		for (i < len(a) && !isDigit(a[i])) || (j < len(b) && !isDigit(b[j])) {
			ac, bc := 0, 0
			if i < len(a) {
				ac = charOrder(a[i])
			}
			if j < len(b) {
				bc = charOrder(b[j])
			}
			if ac != bc {
				return sign(ac - bc)
			}
			if i < len(a) {
				i++
			}
			if j < len(b) {
				j++
			}
		}

		// Digit run, compared as non-negative integers. Skip leading
		// zeros so that "01" == "1", then compare by length and bytes.
		for i < len(a) && a[i] == '0' {
			i++
		}
		for j < len(b) && b[j] == '0' {
			j++
		}
		firstDiff := 0
		for i < len(a) && j < len(b) && isDigit(a[i]) && isDigit(b[j]) {
			if firstDiff == 0 {
				firstDiff = int(a[i]) - int(b[j])
			}
			i++
			j++
		}
		if i < len(a) && isDigit(a[i]) {
			return 1
		}
		if j < len(b) && isDigit(b[j]) {
			return -1
		}
		if firstDiff != 0 {
			return sign(firstDiff)
		}
	}
	// Equal under segment rules; tie-break byte-wise so the ordering is
	// total over distinct strings.
	return strings.Compare(a, b)
}

// charOrder assigns the sort weight of a single byte in a non-digit run.
// Tilde sorts before everything, digits before letters, letters before
// other punctuation.
func charOrder(c byte) int {
	switch {
	case c == '~':
		return -1
	case isDigit(c):
		return int(c-'0') + 1
	case isAlpha(c):
		return int(c)
	default:
		return int(c) + 256
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// Less reports whether version a sorts strictly before version b.
func Less(a, b string) bool { return Compare(a, b) < 0 }

// Max returns the largest version in vs, or "" for an empty slice.
func Max(vs []string) string {
	var best string
	for i, v := range vs {
		if i == 0 || Compare(v, best) > 0 {
			best = v
		}
	}
	return best
}
