package probe

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aosc-dev/puis/internal/detect"
	"github.com/aosc-dev/puis/internal/listing"
	"github.com/aosc-dev/puis/internal/version"
)

// probeDirListing fetches a directory index page, parses it with the
// listing parser and scores the tarball filenames. Oversized or unparsable
// pages degrade to a regex scan of the raw HTML.
func probeDirListing(ctx context.Context, c *Client, pkg, currentVersion string, desc *detect.Descriptor, status Status, now int64) Result {
	ext := loadExtStatus(status)
	resp, err := c.Get(ctx, desc.URL, ext.ETag)
	if err != nil {
		return Result{Status: status, Err: err}
	}
	if resp.NotModified {
		return Result{Status: ext.save(now)}
	}
	ext.ETag = resp.ETag

	prefix := desc.Prefix
	if prefix == "" {
		prefix = pkg
	}

	var entries []listing.FileEntry
	if len(resp.Body) <= SoftSizeLimit {
		_, entries, _ = listing.Parse(bytes.NewReader(resp.Body))
	}

	if len(entries) == 0 {
		// Regex-only extraction: find "<prefix>[-._]<ver>.<ext>" tokens.
		ver, ok := scanVersionTokens(resp.Body, prefix, currentVersion)
		newStatus := ext.save(now)
		if !ok {
			return Result{Status: newStatus, Err: ErrNotFound}
		}
		rel := NewRelease(pkg, detect.TypeDirListing, ver, now, desc.URL)
		return Result{Release: rel, Status: newStatus}
	}

	events := listingEvents(entries, &ext, desc, prefix, now)
	newStatus := ext.save(now)

	tarballs := make([]version.Tarball, 0, len(entries))
	for _, e := range entries {
		var mtime int64
		if e.Modified != nil {
			mtime = e.Modified.Unix()
		}
		tarballs = append(tarballs, version.Tarball{Name: e.Name, Updated: mtime, Desc: e.Description})
	}
	ver, updated, ok := version.TarballMaxVer(tarballs, prefix, currentVersion)
	if !ok {
		return Result{Events: events, Status: newStatus, Err: ErrNotFound}
	}
	if updated == 0 {
		updated = now
	}
	rel := NewRelease(pkg, detect.TypeDirListing, ver, updated, desc.URL)
	return Result{Release: rel, Events: events, Status: newStatus}
}

// listingEvents reports files that appeared since the previous poll as one
// aggregated event with an HTML list body.
func listingEvents(entries []listing.FileEntry, ext *extStatus, desc *detect.Descriptor, prefix string, now int64) []Event {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, listingLine(e))
	}
	oldLines := ext.Entries
	ext.Entries = lines
	if len(oldLines) == 0 {
		return nil
	}
	old := make(map[string]bool, len(oldLines))
	for _, l := range oldLines {
		old[l] = true
	}

	category := desc.Kind
	if category == "" {
		category = "file"
	}
	var title string
	var items []string
	var latest int64
	for i, e := range entries {
		if old[lines[i]] {
			continue
		}
		if title == "" {
			title = strings.TrimSuffix(e.Name, "/")
		}
		var attrs []string
		if e.Modified != nil {
			attrs = append(attrs, e.Modified.UTC().Format("2006-01-02 15:04"))
			if mt := e.Modified.Unix(); mt < now && mt > latest {
				latest = mt
			}
		}
		if e.Size != nil {
			attrs = append(attrs, listing.SizeofFmt(*e.Size))
		}
		if e.Description != "" {
			attrs = append(attrs, listing.StripTags(e.Description))
		}
		sep := ""
		if len(attrs) > 0 {
			sep = ", "
		}
		items = append(items, fmt.Sprintf(`<li><a href="%s">%s</a>%s%s</li>`,
			joinURL(desc.URL, e.Name), html.EscapeString(e.Name), sep,
			html.EscapeString(strings.Join(attrs, ", "))))
	}
	if len(items) == 0 {
		return nil
	}
	if latest == 0 {
		latest = now
	}
	return []Event{{
		Category: category,
		Time:     latest,
		Title:    title,
		Content:  "<ul>" + strings.Join(items, "") + "</ul>",
		URL:      desc.URL,
	}}
}

func listingLine(e listing.FileEntry) string {
	parts := []string{e.Name}
	if e.Modified != nil {
		parts = append(parts, e.Modified.UTC().Format(time.RFC3339))
	}
	if e.Size != nil {
		parts = append(parts, fmt.Sprint(*e.Size))
	}
	if e.Description != "" {
		parts = append(parts, listing.StripTags(e.Description))
	}
	return strings.Join(parts, "\t")
}

func joinURL(base, name string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	return u.ResolveReference(&url.URL{Path: name}).String()
}

// scanVersionTokens extracts version candidates from raw HTML when the page
// is too large or too strange to parse structurally.
func scanVersionTokens(body []byte, prefix, currentVersion string) (string, bool) {
	pattern, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(prefix) +
		`[-._]v?(\d[0-9A-Za-z._+-]*?)(?:[._-](?:orig|src))?\.(?:tar\.xz|tar\.bz2|tar\.gz|t[bgx]?z2?|zip|gem)`)
	if err != nil {
		return "", false
	}
	var tags []version.Tag
	for _, m := range pattern.FindAllSubmatch(body, -1) {
		tags = append(tags, version.Tag{Name: string(m[1])})
	}
	ver, _, ok := version.TagMaxVer(tags, "", currentVersion)
	return ver, ok
}
