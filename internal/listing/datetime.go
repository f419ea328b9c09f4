package listing

import (
	"regexp"
	"time"
)

// datetimeFormats pairs a recognizer with the layout used to parse the
// matched text. Patterns are anchored; directory indexes put the timestamp
// at a known position in the line.
var datetimeFormats = []struct {
	pattern *regexp.Regexp
	layout  string
}{
	{regexp.MustCompile(`^\d+-[A-S][a-y]{2}-\d{4} \d+:\d{2}`), "2-Jan-2006 15:04"},
	{regexp.MustCompile(`^\d{4}-\d+-\d+ \d+:\d{2}`), "2006-1-2 15:04"},
	{regexp.MustCompile(`^\d{4}-[A-S][a-y]{2}-\d+ \d+:\d{2}:\d{2}`), "2006-Jan-2 15:04:05"},
	{regexp.MustCompile(`^[F-W][a-u]{2} [A-S][a-y]{2} +\d+ \d{2}:\d{2}:\d{2} \d{4}`), "Mon Jan _2 15:04:05 2006"},
	{regexp.MustCompile(`^\d{4}-\d+-\d+`), "2006-1-2"},
	{regexp.MustCompile(`^\d+/\d+/\d{4} \d{2}:\d{2}:\d{2} [+-]\d{4}`), "2/1/2006 15:04:05 -0700"},
}

// parseDatetimePrefix matches a timestamp at the beginning of line and
// returns the parsed time together with the rest of the line. ok is false
// when no recognizer matched.
func parseDatetimePrefix(line string) (t time.Time, rest string, ok bool) {
	for _, df := range datetimeFormats {
		loc := df.pattern.FindStringIndex(line)
		if loc == nil {
			continue
		}
		parsed, err := time.Parse(df.layout, line[:loc[1]])
		if err != nil {
			continue
		}
		return parsed, line[loc[1]:], true
	}
	return time.Time{}, line, false
}

// parseDatetime parses a complete timestamp string.
func parseDatetime(s string) (time.Time, bool) {
	for _, df := range datetimeFormats {
		if !df.pattern.MatchString(s) {
			continue
		}
		parsed, err := time.Parse(df.layout, s)
		if err != nil {
			continue
		}
		return parsed, true
	}
	return time.Time{}, false
}
