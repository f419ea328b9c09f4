package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aosc-dev/puis/internal/detect"
	"github.com/aosc-dev/puis/internal/version"
)

var (
	bitbucketAPIBase = "https://api.bitbucket.org/2.0"
	bitbucketBase    = "https://bitbucket.org"
)

// probeBitbucket discovers releases either from the downloads API or from
// repository tags. The tags API carries no usable ordering by date for some
// repositories, so a scrape of the tag page is kept as a fallback.
func probeBitbucket(ctx context.Context, c *Client, pkg, currentVersion string, desc *detect.Descriptor, status Status, now int64) Result {
	if desc.Kind == "tag" {
		return bitbucketTags(ctx, c, pkg, currentVersion, desc, status, now)
	}
	return bitbucketDownloads(ctx, c, pkg, currentVersion, desc, status, now)
}

func bitbucketDownloads(ctx context.Context, c *Client, pkg, currentVersion string, desc *detect.Descriptor, status Status, now int64) Result {
	apiURL := bitbucketAPIBase + "/repositories/" + desc.Repo + "/downloads"
	resp, err := c.Get(ctx, apiURL, status.LastResult)
	if err != nil {
		return Result{Status: status, Err: err}
	}
	if resp.NotModified {
		return Result{Status: Status{Updated: now, LastResult: status.LastResult}}
	}
	newStatus := Status{Updated: now, LastResult: resp.ETag}

	var raw struct {
		Values []struct {
			Name      string    `json:"name"`
			CreatedOn time.Time `json:"created_on"`
		} `json:"values"`
	}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return Result{Status: newStatus, Err: err}
	}

	tarballs := make([]version.Tarball, 0, len(raw.Values))
	for _, v := range raw.Values {
		tarballs = append(tarballs, version.Tarball{Name: v.Name, Updated: v.CreatedOn.Unix()})
	}

	prefix := desc.Prefix
	if prefix == "" {
		prefix = pkg
	}
	ver, updated, ok := version.TarballMaxVer(tarballs, prefix, currentVersion)
	if !ok {
		return Result{Status: newStatus, Err: ErrNotFound}
	}
	rel := NewRelease(pkg, detect.TypeBitbucket, ver, updated,
		bitbucketBase+"/"+desc.Repo+"/downloads")
	return Result{Release: rel, Status: newStatus}
}

func bitbucketTags(ctx context.Context, c *Client, pkg, currentVersion string, desc *detect.Descriptor, status Status, now int64) Result {
	apiURL := bitbucketAPIBase + "/repositories/" + desc.Repo + "/refs/tags"
	resp, err := c.Get(ctx, apiURL, status.LastResult)
	if err != nil {
		// The tag page scrape survives API outages; its markup is the
		// fragile part and may need periodic updating.
		return bitbucketTagPage(ctx, c, pkg, currentVersion, desc, status, now)
	}
	if resp.NotModified {
		return Result{Status: Status{Updated: now, LastResult: status.LastResult}}
	}
	newStatus := Status{Updated: now, LastResult: resp.ETag}

	var raw struct {
		Values []struct {
			Name   string `json:"name"`
			Target struct {
				Date time.Time `json:"date"`
			} `json:"target"`
		} `json:"values"`
	}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return Result{Status: newStatus, Err: err}
	}

	tags := make([]version.Tag, 0, len(raw.Values))
	for _, v := range raw.Values {
		updated := now
		if !v.Target.Date.IsZero() {
			updated = v.Target.Date.Unix()
		}
		tags = append(tags, version.Tag{Name: v.Name, Updated: updated})
	}

	ver, updated, ok := version.TagMaxVer(tags, projectName(desc.Repo), currentVersion)
	if !ok {
		return Result{Status: newStatus, Err: ErrNotFound}
	}
	rel := NewRelease(pkg, detect.TypeBitbucket, ver, updated,
		bitbucketBase+"/"+desc.Repo+"/downloads/?tab=tags")
	return Result{Release: rel, Status: newStatus}
}

// bitbucketTagPage scrapes the repository's tag listing page.
func bitbucketTagPage(ctx context.Context, c *Client, pkg, currentVersion string, desc *detect.Descriptor, status Status, now int64) Result {
	pageURL := bitbucketBase + "/" + desc.Repo + "/downloads/?tab=tags"
	resp, err := c.Get(ctx, pageURL, "")
	if err != nil {
		return Result{Status: status, Err: err}
	}
	newStatus := Status{Updated: now, LastResult: status.LastResult}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return Result{Status: newStatus, Err: err}
	}

	var tags []version.Tag
	doc.Find("#tag-pjax-container tr.iterable-item").Each(func(_ int, row *goquery.Selection) {
		name := row.Find("td.name").First().Text()
		if name == "" {
			return
		}
		updated := now
		if dt, ok := row.Find("time").First().Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, dt); err == nil {
				updated = t.Unix()
			}
		}
		tags = append(tags, version.Tag{Name: strings.TrimSpace(name), Updated: updated})
	})

	ver, updated, ok := version.TagMaxVer(tags, projectName(desc.Repo), currentVersion)
	if !ok {
		return Result{Status: newStatus, Err: ErrNotFound}
	}
	rel := NewRelease(pkg, detect.TypeBitbucket, ver, updated, pageURL)
	return Result{Release: rel, Status: newStatus}
}
