package probe

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aosc-dev/puis/internal/detect"
)

var npmBase = "https://registry.npmjs.org"

// probeNPM resolves the "latest" dist-tag and its publish time.
func probeNPM(ctx context.Context, c *Client, pkg string, desc *detect.Descriptor, status Status, now int64) Result {
	apiURL := npmBase + "/" + desc.Name + "/"
	resp, err := c.Get(ctx, apiURL, status.LastResult)
	if err != nil {
		return Result{Status: status, Err: err}
	}
	if resp.NotModified {
		return Result{Status: Status{Updated: now, LastResult: status.LastResult}}
	}
	newStatus := Status{Updated: now, LastResult: resp.ETag}

	var raw struct {
		DistTags map[string]string    `json:"dist-tags"`
		Time     map[string]time.Time `json:"time"`
	}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return Result{Status: newStatus, Err: err}
	}
	latest := raw.DistTags["latest"]
	if latest == "" {
		return Result{Status: newStatus, Err: ErrNotFound}
	}

	updated := now
	if t, ok := raw.Time[latest]; ok {
		updated = t.Unix()
	}
	rel := NewRelease(pkg, detect.TypeNPM, latest, updated,
		"https://www.npmjs.com/package/"+desc.Name)
	return Result{Release: rel, Status: newStatus}
}
