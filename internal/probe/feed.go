package probe

import (
	"bytes"
	"context"
	"net/url"
	"path"
	"regexp"

	"github.com/mmcdole/gofeed"

	"github.com/aosc-dev/puis/internal/detect"
	"github.com/aosc-dev/puis/internal/version"
)

// badURLPattern repairs feed entry links of the form
// "http:///path/..." that some generators emit.
var badURLPattern = regexp.MustCompile(`^https?://(/?[^./]+/.+)$`)

// probeFeed handles any Atom/RSS upstream: events are emitted for entries
// newer than the previous poll, and SourceForge file feeds additionally
// yield a release by scoring the announced filenames.
func probeFeed(ctx context.Context, c *Client, pkg, currentVersion string, desc *detect.Descriptor, status Status, now int64) Result {
	resp, err := c.Get(ctx, desc.URL, status.LastResult)
	if err != nil {
		return Result{Status: status, Err: err}
	}
	if resp.NotModified {
		return Result{Status: Status{Updated: now, LastResult: status.LastResult}}
	}
	newStatus := Status{Updated: now, LastResult: resp.ETag}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return Result{Status: newStatus, Err: err}
	}

	var titleRe *regexp.Regexp
	if desc.Regex != "" {
		titleRe, err = regexp.Compile(desc.Regex)
		if err != nil {
			return Result{Status: newStatus, Err: err}
		}
	}

	category := desc.Kind
	if category == "" {
		category = "news"
	}

	var events []Event
	var tarballs []version.Tarball
	for _, item := range feed.Items {
		when := now
		if item.UpdatedParsed != nil {
			when = item.UpdatedParsed.Unix()
		} else if item.PublishedParsed != nil {
			when = item.PublishedParsed.Unix()
		}

		if desc.Project != "" {
			// SourceForge file feed: entry titles are file paths.
			tarballs = append(tarballs, version.Tarball{
				Name:    path.Base(item.Title),
				Updated: when,
			})
		}

		if status.Updated == 0 || when <= status.Updated {
			continue
		}
		if titleRe != nil && !titleRe.MatchString(item.Title) {
			continue
		}
		events = append(events, Event{
			Category: category,
			Time:     when,
			Title:    item.Title,
			Content:  item.Description,
			URL:      fixEntryURL(desc.URL, item.Link),
		})
	}

	result := Result{Events: events, Status: newStatus}
	if desc.Project != "" {
		prefix := desc.Prefix
		if prefix == "" {
			prefix = pkg
		}
		if ver, updated, ok := version.TarballMaxVer(tarballs, prefix, currentVersion); ok {
			result.Release = NewRelease(pkg, detect.TypeSourceForge, ver, updated,
				"https://sourceforge.net/projects/"+desc.Project+"/files"+desc.Path)
		} else {
			result.Err = ErrNotFound
		}
	}
	return result
}

// fixEntryURL resolves an entry link against the feed URL, repairing the
// malformed "scheme:///host-less" links some feeds carry.
func fixEntryURL(feedURL, link string) string {
	if m := badURLPattern.FindStringSubmatch(link); m != nil {
		link = m[1]
	}
	base, err := url.Parse(feedURL)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}
