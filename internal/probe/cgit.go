package probe

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aosc-dev/puis/internal/detect"
	"github.com/aosc-dev/puis/internal/version"
)

// cgitTagHref matches the tag anchors of both cgit and gitweb pages.
var cgitTagHref = regexp.MustCompile(`/tag/\?h=|refs/tags/`)

// probeCgit scrapes the project page of a cgit or gitweb instance. cgit
// renders the tag age in a <span title="..."> next to the anchor; gitweb
// does not, so there the fetch time is used.
func probeCgit(ctx context.Context, c *Client, pkg, currentVersion string, desc *detect.Descriptor, status Status, now int64) Result {
	resp, err := c.Get(ctx, desc.URL, status.LastResult)
	if err != nil {
		return Result{Status: status, Err: err}
	}
	if resp.NotModified {
		return Result{Status: Status{Updated: now, LastResult: status.LastResult}}
	}
	newStatus := Status{Updated: now, LastResult: resp.ETag}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return Result{Status: newStatus, Err: err}
	}

	generator, _ := doc.Find(`meta[name="generator"]`).Attr("content")
	isCgit := strings.HasPrefix(strings.ToLower(generator), "cgit")

	var tags []version.Tag
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !cgitTagHref.MatchString(href) {
			return
		}
		name := strings.TrimSpace(a.Text())
		if name == "" {
			return
		}
		updated := now
		if isCgit {
			// The sibling age cell carries the full timestamp in its
			// span title.
			if title, ok := a.Closest("tr").Find("span[title]").First().Attr("title"); ok {
				if t, ok := parseCgitDate(title); ok {
					updated = t.Unix()
				}
			}
		}
		tags = append(tags, version.Tag{Name: name, Updated: updated})
	})

	project := desc.Project
	if project == "" {
		project = pkg
	}
	ver, updated, ok := version.TagMaxVer(tags, project, currentVersion)
	if !ok {
		return Result{Status: newStatus, Err: ErrNotFound}
	}
	rel := NewRelease(pkg, detect.TypeCgit, ver, updated, desc.URL)
	return Result{Release: rel, Status: newStatus}
}

func parseCgitDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{
		"2006-01-02 15:04:05 -0700",
		"2006-01-02 15:04:05 (MST)",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
