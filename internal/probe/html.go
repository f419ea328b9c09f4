package probe

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aosc-dev/puis/internal/detect"
)

// probeHTML watches an arbitrary page through a CSS selector and reports a
// change as a unified diff of the selected entries. It never produces
// releases.
func probeHTML(ctx context.Context, c *Client, pkg string, desc *detect.Descriptor, status Status, now int64) Result {
	ext := loadExtStatus(status)
	resp, err := c.Get(ctx, desc.URL, ext.ETag)
	if err != nil {
		return Result{Status: status, Err: err}
	}
	if resp.NotModified {
		return Result{Status: ext.save(now)}
	}
	ext.ETag = resp.ETag

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return Result{Status: ext.save(now), Err: err}
	}

	sel := doc.Find(desc.Selector)
	if sel.Length() == 0 {
		return Result{Status: ext.save(now), Err: ErrNotFound}
	}

	var extractRe *regexp.Regexp
	if desc.Regex != "" {
		extractRe, err = regexp.Compile(desc.Regex)
		if err != nil {
			return Result{Status: ext.save(now), Err: err}
		}
	}

	var entries []string
	sel.Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if extractRe == nil {
			entries = append(entries, text)
			return
		}
		m := extractRe.FindStringSubmatch(text)
		if m == nil {
			return
		}
		if extractRe.NumSubexp() > 0 {
			entries = append(entries, m[1])
		} else {
			entries = append(entries, m[0])
		}
	})
	if len(entries) == 0 {
		return Result{Status: ext.save(now), Err: ErrNotFound}
	}

	oldEntries := ext.Entries
	ext.Entries = entries
	newStatus := ext.save(now)
	if len(oldEntries) == 0 {
		return Result{Status: newStatus}
	}

	evt := diffEvent(oldEntries, entries, desc.Kind, pkg+" website changed", desc.URL, now)
	if evt == nil {
		return Result{Status: newStatus}
	}
	return Result{Events: []Event{*evt}, Status: newStatus}
}
