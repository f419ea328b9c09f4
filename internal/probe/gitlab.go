package probe

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/aosc-dev/puis/internal/detect"
	"github.com/aosc-dev/puis/internal/version"
)

var gitlabBase = "https://gitlab.com"

// probeGitLab lists repository tags through the GitLab v4 API.
func probeGitLab(ctx context.Context, c *Client, pkg, currentVersion string, desc *detect.Descriptor, status Status, now int64) Result {
	apiURL := gitlabBase + "/api/v4/projects/" + url.PathEscape(desc.Repo) + "/repository/tags"
	resp, err := c.Get(ctx, apiURL, status.LastResult)
	if err != nil {
		return Result{Status: status, Err: err}
	}
	if resp.NotModified {
		return Result{Status: Status{Updated: now, LastResult: status.LastResult}}
	}
	newStatus := Status{Updated: now, LastResult: resp.ETag}

	var raw []struct {
		Name   string `json:"name"`
		Commit struct {
			CommittedDate time.Time `json:"committed_date"`
		} `json:"commit"`
	}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return Result{Status: newStatus, Err: err}
	}

	tags := make([]version.Tag, 0, len(raw))
	for _, t := range raw {
		updated := now
		if !t.Commit.CommittedDate.IsZero() {
			updated = t.Commit.CommittedDate.Unix()
		}
		tags = append(tags, version.Tag{Name: t.Name, Updated: updated})
	}

	ver, updated, ok := version.TagMaxVer(tags, projectName(desc.Repo), currentVersion)
	if !ok {
		return Result{Status: newStatus, Err: ErrNotFound}
	}
	rel := NewRelease(pkg, detect.TypeGitLab, ver, updated,
		gitlabBase+"/"+desc.Repo+"/-/tags")
	return Result{Release: rel, Status: newStatus}
}

// projectName returns the repository part of an "owner/repo" slug.
func projectName(repo string) string {
	for i := len(repo) - 1; i >= 0; i-- {
		if repo[i] == '/' {
			return repo[i+1:]
		}
	}
	return repo
}
