package probe

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aosc-dev/puis/internal/detect"
)

var rubygemsBase = "https://rubygems.org"

// probeRubyGems reads the single-record gem metadata.
func probeRubyGems(ctx context.Context, c *Client, pkg string, desc *detect.Descriptor, status Status, now int64) Result {
	apiURL := rubygemsBase + "/api/v1/gems/" + desc.Name + ".json"
	resp, err := c.Get(ctx, apiURL, status.LastResult)
	if err != nil {
		return Result{Status: status, Err: err}
	}
	if resp.NotModified {
		return Result{Status: Status{Updated: now, LastResult: status.LastResult}}
	}
	newStatus := Status{Updated: now, LastResult: resp.ETag}

	var raw struct {
		Version          string    `json:"version"`
		VersionCreatedAt time.Time `json:"version_created_at"`
		ProjectURI       string    `json:"project_uri"`
	}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return Result{Status: newStatus, Err: err}
	}
	if raw.Version == "" {
		return Result{Status: newStatus, Err: ErrNotFound}
	}

	updated := now
	if !raw.VersionCreatedAt.IsZero() {
		updated = raw.VersionCreatedAt.Unix()
	}
	pageURL := raw.ProjectURI
	if pageURL == "" {
		pageURL = rubygemsBase + "/gems/" + desc.Name
	}
	rel := NewRelease(pkg, detect.TypeRubyGems, raw.Version, updated, pageURL)
	return Result{Release: rel, Status: newStatus}
}
