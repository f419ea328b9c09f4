package probe

import (
	"html"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// unifiedDiff renders the unified diff of two entry lists without the
// file-header lines. Empty when the lists are equal.
func unifiedDiff(old, new []string) []string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:       diffLines(old),
		B:       diffLines(new),
		Context: 3,
	})
	if err != nil || text == "" {
		return nil
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) <= 2 {
		return nil
	}
	return lines[2:]
}

// diffEvent turns a change in a tracked entry list into one event. The
// title is the first added line of the diff, falling back to fallbackTitle,
// and the content is the diff in a <pre> block.
func diffEvent(old, new []string, category, fallbackTitle, url string, when int64) *Event {
	diff := unifiedDiff(old, new)
	if diff == nil {
		return nil
	}
	title := fallbackTitle
	for _, line := range diff {
		if strings.HasPrefix(line, "+") {
			title = strings.ReplaceAll(strings.TrimPrefix(line, "+"), "\r", "")
			title = strings.ReplaceAll(title, "\n", " ")
			break
		}
	}
	return &Event{
		Category: category,
		Time:     when,
		Title:    title,
		Content:  "<pre>" + html.EscapeString(strings.Join(diff, "\n")) + "</pre>",
		URL:      url,
	}
}

// diffLines prepares difflib input: every element must end in a newline.
func diffLines(entries []string) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e + "\n"
	}
	return out
}
