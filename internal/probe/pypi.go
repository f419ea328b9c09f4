package probe

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aosc-dev/puis/internal/detect"
)

var pypiBase = "https://pypi.org"

// probePyPI reads the package's JSON metadata; the index already knows the
// latest version, so no candidate scoring is needed.
func probePyPI(ctx context.Context, c *Client, pkg string, desc *detect.Descriptor, status Status, now int64) Result {
	apiURL := pypiBase + "/pypi/" + desc.Name + "/json"
	resp, err := c.Get(ctx, apiURL, status.LastResult)
	if err != nil {
		return Result{Status: status, Err: err}
	}
	if resp.NotModified {
		return Result{Status: Status{Updated: now, LastResult: status.LastResult}}
	}
	newStatus := Status{Updated: now, LastResult: resp.ETag}

	var raw struct {
		Info struct {
			Version    string `json:"version"`
			PackageURL string `json:"package_url"`
		} `json:"info"`
		Releases map[string][]struct {
			UploadTime string `json:"upload_time"`
		} `json:"releases"`
	}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return Result{Status: newStatus, Err: err}
	}
	if raw.Info.Version == "" {
		return Result{Status: newStatus, Err: ErrNotFound}
	}

	updated := now
	if files := raw.Releases[raw.Info.Version]; len(files) > 0 {
		if t, err := time.Parse("2006-01-02T15:04:05", files[0].UploadTime); err == nil {
			updated = t.Unix()
		}
	}

	pageURL := raw.Info.PackageURL
	if pageURL == "" {
		pageURL = pypiBase + "/project/" + desc.Name + "/"
	}
	rel := NewRelease(pkg, detect.TypePyPI, raw.Info.Version, updated, pageURL)
	return Result{Release: rel, Status: newStatus}
}
