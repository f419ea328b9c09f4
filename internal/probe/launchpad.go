package probe

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aosc-dev/puis/internal/detect"
	"github.com/aosc-dev/puis/internal/version"
)

var launchpadBase = "https://api.launchpad.net/1.0"

// probeLaunchpad lists project releases through the Launchpad API.
func probeLaunchpad(ctx context.Context, c *Client, pkg, currentVersion string, desc *detect.Descriptor, status Status, now int64) Result {
	apiURL := launchpadBase + "/" + desc.Name + "/releases"
	resp, err := c.Get(ctx, apiURL, status.LastResult)
	if err != nil {
		return Result{Status: status, Err: err}
	}
	if resp.NotModified {
		return Result{Status: Status{Updated: now, LastResult: status.LastResult}}
	}
	newStatus := Status{Updated: now, LastResult: resp.ETag}

	var raw struct {
		Entries []struct {
			Version      string    `json:"version"`
			DateReleased time.Time `json:"date_released"`
			WebLink      string    `json:"web_link"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return Result{Status: newStatus, Err: err}
	}

	tags := make([]version.Tag, 0, len(raw.Entries))
	links := make(map[string]string, len(raw.Entries))
	for _, e := range raw.Entries {
		updated := now
		if !e.DateReleased.IsZero() {
			updated = e.DateReleased.Unix()
		}
		tags = append(tags, version.Tag{Name: e.Version, Updated: updated})
		links[e.Version] = e.WebLink
	}

	ver, updated, ok := version.TagMaxVer(tags, desc.Name, currentVersion)
	if !ok {
		return Result{Status: newStatus, Err: ErrNotFound}
	}
	link := links[ver]
	if link == "" {
		link = "https://launchpad.net/" + desc.Name
	}
	rel := NewRelease(pkg, detect.TypeLaunchpad, ver, updated, link)
	return Result{Release: rel, Status: newStatus}
}
