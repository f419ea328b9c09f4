package probe

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/google/go-github/v60/github"
	"github.com/mmcdole/gofeed"

	"github.com/aosc-dev/puis/internal/detect"
	"github.com/aosc-dev/puis/internal/version"
)

// githubBase is swapped out by tests.
var githubBase = "https://github.com"

// probeGitHub reads the repository's releases.atom feed and picks the
// highest plausible tag from the entry links. Repositories that never cut a
// release have an empty feed; those fall back to the tags API.
func probeGitHub(ctx context.Context, c *Client, pkg, currentVersion string, desc *detect.Descriptor, status Status, now int64) Result {
	feedURL := githubBase + "/" + desc.Repo + "/releases.atom"
	resp, err := c.Get(ctx, feedURL, status.LastResult)
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

	category := desc.Kind
	if category == "" {
		category = "release"
	}

	var tags []version.Tag
	var events []Event
	for _, item := range feed.Items {
		link := item.Link
		if link == "" && len(item.Links) > 0 {
			link = item.Links[0]
		}
		name := path.Base(link)
		if name == "" || name == "." || name == "/" {
			continue
		}
		updated := now
		if item.UpdatedParsed != nil {
			updated = item.UpdatedParsed.Unix()
		}
		tags = append(tags, version.Tag{Name: name, Updated: updated})
		if status.Updated != 0 && updated > status.Updated {
			events = append(events, Event{
				Category: category,
				Time:     updated,
				Title:    item.Title,
				Content:  item.Content,
				URL:      link,
			})
		}
	}

	repoName := desc.Repo
	if idx := strings.IndexByte(repoName, '/'); idx >= 0 {
		repoName = repoName[idx+1:]
	}
	if ver, updated, ok := version.TagMaxVer(tags, repoName, currentVersion); ok {
		rel := NewRelease(pkg, detect.TypeGitHub, ver, updated,
			githubBase+"/"+desc.Repo+"/releases")
		return Result{Release: rel, Events: events, Status: newStatus}
	}

	// No releases; the tags API still knows plain tags.
	ver, ok, err := githubTagsFallback(ctx, c, desc.Repo, repoName, currentVersion)
	if err != nil {
		return Result{Events: events, Status: newStatus, Err: err}
	}
	if !ok {
		return Result{Events: events, Status: newStatus, Err: ErrNotFound}
	}
	rel := NewRelease(pkg, detect.TypeGitHub, ver, now, githubBase+"/"+desc.Repo+"/tags")
	return Result{Release: rel, Events: events, Status: newStatus}
}

func githubTagsFallback(ctx context.Context, c *Client, repo, repoName, currentVersion string) (string, bool, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok {
		return "", false, nil
	}
	gh := github.NewClient(c.HTTP())
	ghTags, _, err := gh.Repositories.ListTags(ctx, owner, name, nil)
	if err != nil {
		return "", false, err
	}
	var tags []version.Tag
	for _, t := range ghTags {
		tags = append(tags, version.Tag{Name: t.GetName()})
	}
	ver, _, ok := version.TagMaxVer(tags, repoName, currentVersion)
	return ver, ok, nil
}
