package version

import (
	"regexp"
	"strings"
)

// FormatRegexp builds a regular expression from a reference version that
// accepts strings of the same lexical shape: digit runs map to a digit-count
// class, letter runs to a letter class, punctuation runs to themselves.
//
// It is used as a plausibility filter so that a "1.2.3"-shaped version does
// not lose to a date-shaped "20240101" when the current version looks like
// "1.x.y".
func FormatRegexp(ref string) *regexp.Regexp {
	if ref == "" {
		return nil
	}
	var pattern strings.Builder
	pattern.WriteByte('^')
	for i := 0; i < len(ref); {
		c := ref[i]
		j := i
		switch {
		case isDigit(c):
			for j < len(ref) && isDigit(ref[j]) {
				j++
			}
			if j-i >= 3 {
				pattern.WriteString(`\d{3,}`)
			} else {
				pattern.WriteString(`\d{1,2}`)
			}
		case isAlpha(c):
			for j < len(ref) && isAlpha(ref[j]) {
				j++
			}
			pattern.WriteString(`[A-Za-z]+`)
		default:
			for j < len(ref) && !isDigit(ref[j]) && !isAlpha(ref[j]) {
				j++
			}
			pattern.WriteString(regexp.QuoteMeta(ref[i:j]))
		}
		i = j
	}
	pattern.WriteByte('$')
	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil
	}
	return re
}

// shapeMatches reports whether v has the same lexical shape as ref.
// An empty reference matches everything.
func shapeMatches(ref, v string) bool {
	re := FormatRegexp(ref)
	if re == nil {
		return true
	}
	return re.MatchString(v)
}
