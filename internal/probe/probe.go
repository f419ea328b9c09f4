package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aosc-dev/puis/internal/detect"
	"github.com/aosc-dev/puis/internal/version"
)

// Release is one discovered upstream release.
type Release struct {
	Package      string
	UpstreamType string
	Version      string
	Updated      int64
	URL          string
}

// NewRelease builds a Release with the version normalized: leading
// "v/release" markers and a leading package-name prefix are stripped, and
// underscore-only numeric groups collapse to dots.
func NewRelease(pkg string, typ detect.Type, rawVersion string, updated int64, url string) *Release {
	return &Release{
		Package:      pkg,
		UpstreamType: string(typ),
		Version:      version.Normalize(pkg, rawVersion),
		Updated:      updated,
		URL:          url,
	}
}

// Event is a human-readable happening at an upstream, suitable for Atom or
// text rendering. Content may be HTML.
type Event struct {
	Category string
	Time     int64
	Title    string
	Content  string
	URL      string
}

// Status mirrors a chore_status row: when the probe last produced a result
// and an opaque carry-over (often an ETag, sometimes a JSON blob).
type Status struct {
	Updated    int64
	LastResult string
}

// extStatus is the JSON shape some probes keep in Status.LastResult.
type extStatus struct {
	ETag    string   `json:"etag,omitempty"`
	Entries []string `json:"entries,omitempty"`
	Mtime   int64    `json:"mtime,omitempty"`
}

func loadExtStatus(s Status) extStatus {
	var ext extStatus
	if s.LastResult != "" {
		// A plain ETag from an earlier run is carried over.
		if err := json.Unmarshal([]byte(s.LastResult), &ext); err != nil {
			ext = extStatus{ETag: s.LastResult}
		}
	}
	return ext
}

func (e extStatus) save(updated int64) Status {
	blob, err := json.Marshal(e)
	if err != nil {
		return Status{Updated: updated}
	}
	return Status{Updated: updated, LastResult: string(blob)}
}

// Result is everything one probe run produced. Err carries the captured
// failure; the scheduler converts it to a status string and never aborts.
type Result struct {
	Release *Release
	Events  []Event
	Status  Status
	Err     error
}

// Run dispatches a probe descriptor to its adapter. The previous chore
// status is passed in and the updated status is returned inside the Result;
// probes never write anywhere themselves.
func Run(ctx context.Context, c *Client, pkg, currentVersion string, desc *detect.Descriptor, status Status) Result {
	now := time.Now().Unix()
	switch desc.Type {
	case detect.TypeGitHub:
		return probeGitHub(ctx, c, pkg, currentVersion, desc, status, now)
	case detect.TypeGitLab:
		return probeGitLab(ctx, c, pkg, currentVersion, desc, status, now)
	case detect.TypeBitbucket:
		return probeBitbucket(ctx, c, pkg, currentVersion, desc, status, now)
	case detect.TypePyPI:
		return probePyPI(ctx, c, pkg, desc, status, now)
	case detect.TypeRubyGems:
		return probeRubyGems(ctx, c, pkg, desc, status, now)
	case detect.TypeNPM:
		return probeNPM(ctx, c, pkg, desc, status, now)
	case detect.TypeLaunchpad:
		return probeLaunchpad(ctx, c, pkg, currentVersion, desc, status, now)
	case detect.TypeCgit:
		return probeCgit(ctx, c, pkg, currentVersion, desc, status, now)
	case detect.TypeDirListing:
		return probeDirListing(ctx, c, pkg, currentVersion, desc, status, now)
	case detect.TypeFeed, detect.TypeSourceForge:
		return probeFeed(ctx, c, pkg, currentVersion, desc, status, now)
	case detect.TypeHTML:
		return probeHTML(ctx, c, pkg, desc, status, now)
	case detect.TypeFTP:
		return probeFTP(ctx, pkg, currentVersion, desc, status, now)
	}
	return Result{Status: status, Err: fmt.Errorf("unsupported probe type %q", desc.Type)}
}
