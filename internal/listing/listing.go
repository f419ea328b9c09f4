// Package listing parses Apache/nginx/cgit-style directory index pages into
// a normalized list of file entries. The HTML is parsed permissively and
// three page shapes are tried in order: <pre> blocks, header tables, and
// plain <ul> lists.
package listing

import (
	"errors"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// FileEntry is one row of a directory listing. Modified and Size are nil
// when the page does not carry them. Description may contain HTML.
type FileEntry struct {
	Name        string
	Modified    *time.Time
	Size        *int64
	Description string
}

var (
	reFilesize   = regexp.MustCompile(`(?i)^(\d+(\.\d+)? ?[BKMGTPEZY]|\d+|-)`)
	reAbspath    = regexp.MustCompile(`^((ht|f)tps?:/)?/`)
	reCommonHead = regexp.MustCompile(`(?i)Name|(Last )?modified|Size|Description|Type|Parent Directory`)
	reHTMLTag    = regexp.MustCompile(`</?[^>]+>`)
)

// ErrUnknownDatetime is returned when a table cell carries a timestamp in
// none of the recognized formats and no data-sort-value override.
var ErrUnknownDatetime = errors.New("can't identify date/time format")

// Parse reads an HTML directory index and returns the advertised working
// directory (from an "Index of ..." title, may be empty) and the file
// entries found. An empty listing with a nil error means the page simply
// was not a directory index.
func Parse(r io.Reader) (cwd string, entries []FileEntry, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", nil, err
	}

	if title := nodeText(findFirst(doc, "title")); strings.HasPrefix(title, "Index of ") {
		cwd = strings.TrimPrefix(title, "Index of ")
	} else if h1 := strings.TrimSpace(nodeText(findFirst(doc, "h1"))); strings.HasPrefix(h1, "Index of ") {
		cwd = strings.TrimPrefix(h1, "Index of ")
	}

	if pre := findListingPre(doc); pre != nil {
		entries, err = parsePre(pre)
		return cwd, entries, err
	}
	if table := findListingTable(doc); table != nil {
		entries, err = parseTable(table)
		return cwd, entries, err
	}
	if ul := findFirst(doc, "ul"); ul != nil {
		return cwd, parseUL(ul), nil
	}
	return cwd, nil, nil
}

// findListingPre returns the first <pre> containing an anchor with text.
func findListingPre(doc *html.Node) *html.Node {
	for _, pre := range findAll(doc, "pre") {
		for _, a := range findAll(pre, "a") {
			if strings.TrimSpace(nodeText(a)) != "" {
				return pre
			}
		}
	}
	return nil
}

// findListingTable returns the first <table> whose text mentions one of the
// common directory index headers.
func findListingTable(doc *html.Node) *html.Node {
	for _, table := range findAll(doc, "table") {
		if reCommonHead.MatchString(nodeText(table)) {
			return table
		}
	}
	return nil
}

// parsePre handles the classic Apache format: anchors are filenames, the
// interleaved text carries timestamp, size and description. The listing
// starts at the "Parent Directory" anchor (or the first anchor whose href
// is not a sort link).
func parsePre(pre *html.Node) ([]FileEntry, error) {
	var nodes []*html.Node
	if hr := findFirst(pre, "hr"); hr != nil {
		for n := hr.NextSibling; n != nil; n = n.NextSibling {
			nodes = append(nodes, n)
		}
	} else {
		for n := pre.FirstChild; n != nil; n = n.NextSibling {
			nodes = append(nodes, n)
		}
	}

	var entries []FileEntry
	var cur *FileEntry
	started := false
	flush := func() {
		if cur != nil && cur.Name != "" {
			entries = append(entries, *cur)
		}
		cur = nil
	}

	for _, n := range nodes {
		switch {
		case n.Type == html.ElementNode && n.Data == "a":
			text := strings.TrimSpace(nodeText(n))
			if text == "" {
				continue
			}
			href := attr(n, "href")
			if started {
				flush()
				cur = &FileEntry{Name: unquote(href)}
			} else if text == "Parent Directory" || text == ".." || text == "../" ||
				(href != "" && href[0] != '?' && href[0] != '/') {
				started = true
			}
		case n.Type == html.TextNode:
			line := strings.ReplaceAll(n.Data, "\r", "")
			if idx := strings.IndexByte(line, '\n'); idx >= 0 {
				line = line[:idx]
			}
			line = strings.TrimLeft(line, " \t")
			if t, rest, ok := parseDatetimePrefix(line); ok {
				if cur != nil {
					cur.Modified = &t
				}
				line = strings.TrimLeft(rest, " \t")
			}
			if loc := reFilesize.FindStringIndex(line); loc != nil {
				if cur != nil {
					cur.Size = HumanSize(strings.ReplaceAll(line[:loc[1]], " ", ""))
				}
				line = strings.TrimLeft(line[loc[1]:], " \t")
			}
			if line != "" && cur != nil {
				desc := strings.TrimRight(line, " \t")
				if desc == "/" {
					cur.Name += "/"
				} else {
					cur.Description = desc
				}
			}
		}
	}
	flush()
	return entries, nil
}

// parseTable handles listings rendered as a table with a header row. The
// header cells are normalized to a column mapping; data-sort-value
// attributes override both dates and sizes.
func parseTable(table *html.Node) ([]FileEntry, error) {
	var entries []FileEntry
	var heads []string
	started := false

	for _, tr := range findAll(table, "tr") {
		if !started {
			if findFirst(tr, "hr") != nil {
				started = true
				continue
			}
			if reCommonHead.MatchString(nodeText(tr)) {
				heads = headerColumns(tr)
				started = true
			}
			continue
		}

		if parentTag(tr) == "thead" || parentTag(tr) == "tfoot" || findFirst(tr, "th") != nil {
			continue
		}

		var entry FileEntry
		status := 0
		skipRow := false
		for _, td := range directChildren(tr, "td") {
			if skipRow || status >= len(heads) {
				break
			}
			if attr(td, "colspan") != "" {
				continue
			}
			switch heads[status] {
			case "name":
				a := findFirst(td, "a")
				if a == nil {
					continue
				}
				text := strings.TrimSpace(nodeText(a))
				href := attr(a, "href")
				if text == "" || href == "" || href[0] == '#' {
					continue
				}
				if text == "Parent Directory" || href == "../" {
					skipRow = true
					break
				}
				entry.Name = unquote(href)
				// Some indexes render the full filename but link a
				// truncated href; prefer the text when it is a suffix.
				if strings.HasSuffix(entry.Name, text) {
					entry.Name = text
				}
				status = 1
			case "modified":
				timestr := strings.TrimSpace(nodeText(td))
				if t, ok := unixTime(attr(td, "data-sort-value")); ok {
					entry.Modified = &t
				} else if timestr != "" {
					if t, ok := parseDatetime(timestr); ok {
						entry.Modified = &t
					} else {
						return entries, ErrUnknownDatetime
					}
				}
				status++
			case "size":
				sizestr := strings.TrimSpace(nodeText(td))
				if sizestr == "" || sizestr == "-" {
					// size unknown
				} else if sv := attr(td, "data-sort-value"); sv != "" {
					entry.Size = HumanSize(sv)
				} else if m := reFilesize.FindString(sizestr); m != "" {
					entry.Size = HumanSize(strings.ReplaceAll(m, " ", ""))
				}
				status++
			case "description":
				if entry.Description == "" {
					entry.Description = strings.Trim(innerHTML(td), "  \t\n")
				}
				status++
			default:
				// signature or unrecognized column
				if status > 0 {
					status++
				}
			}
		}
		if entry.Name != "" {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// headerColumns maps a header row to the canonical column names.
func headerColumns(tr *html.Node) []string {
	cells := directChildren(tr, "th")
	if len(cells) == 0 {
		cells = directChildren(tr, "td")
	}
	var heads []string
	for _, cell := range cells {
		name := strings.ToLower(strings.Trim(nodeText(cell), "  \t\n"))
		switch {
		case name == "":
			continue
		case name == "name" || name == "size" || name == "description":
			heads = append(heads, name)
		case strings.HasSuffix(name, "name") || strings.HasPrefix(name, "file") ||
			strings.HasPrefix(name, "download"):
			heads = append(heads, "name")
		case strings.Contains(name, "modifi") || strings.HasPrefix(name, "uploaded") ||
			strings.Contains(name, "date"):
			heads = append(heads, "modified")
		case strings.Contains(name, "size"):
			heads = append(heads, "size")
		case strings.HasSuffix(name, "signature"):
			heads = append(heads, "signature")
		default:
			heads = append(heads, "description")
		}
	}
	if len(heads) == 0 {
		return []string{"name", "modified", "size", "description"}
	}
	hasName := false
	for _, h := range heads {
		if h == "name" {
			hasName = true
			break
		}
	}
	if !hasName {
		heads[0] = "name"
	}
	return heads
}

// parseUL handles bare <ul> listings; absolute URLs and navigation anchors
// are rejected.
func parseUL(ul *html.Node) []FileEntry {
	var entries []FileEntry
	for _, li := range findAll(ul, "li") {
		a := findFirst(li, "a")
		if a == nil {
			continue
		}
		href := attr(a, "href")
		if href == "" {
			continue
		}
		name := unquote(href)
		switch name {
		case "Parent Directory", ".", "./", "..", "../":
			continue
		}
		if strings.HasPrefix(name, "#") || reAbspath.MatchString(name) {
			continue
		}
		entries = append(entries, FileEntry{Name: name})
	}
	return entries
}

// StripTags removes HTML markup from a description string.
func StripTags(s string) string {
	return reHTMLTag.ReplaceAllString(s, "")
}

func unixTime(s string) (time.Time, bool) {
	var sec int64
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return time.Time{}, false
		}
		sec = sec*10 + int64(s[i]-'0')
	}
	if s == "" {
		return time.Time{}, false
	}
	return time.Unix(sec, 0).UTC(), true
}

func unquote(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}
