package version

import (
	"regexp"
	"strings"
)

var (
	// prefixPattern strips the common "v1.0" / "release-1.0" style lead-in
	// when it is followed by a digit. Longest alternatives first so "ver"
	// wins over "v".
	prefixPattern = regexp.MustCompile(`^(?i:version|ver|v|releases|release|rel|r)[-._/]?(\d.*)$`)

	underscorePattern = regexp.MustCompile(`(\d)_(\d)`)
)

// Normalize canonicalizes a raw upstream version string for package pkg:
// a leading "v/ver/release/rel/r" marker is stripped, a leading
// "<pkg>[-._]" prefix is stripped, and underscore-separated numeric groups
// are collapsed to dots when the string contains no dots at all.
//
// Normalize is idempotent.
func Normalize(pkg, v string) string {
	v = strings.TrimSpace(v)
	if pkg != "" {
		lower := strings.ToLower(v)
		lpkg := strings.ToLower(pkg)
		if strings.HasPrefix(lower, lpkg) && len(v) > len(pkg) {
			switch v[len(pkg)] {
			case '-', '.', '_':
				v = v[len(pkg)+1:]
			}
		}
	}
	if m := prefixPattern.FindStringSubmatch(v); m != nil {
		v = m[1]
	}
	if !strings.Contains(v, ".") {
		for underscorePattern.MatchString(v) {
			v = underscorePattern.ReplaceAllString(v, "$1.$2")
		}
	}
	return v
}
