// Package anitya mirrors the release-monitoring.org project index and
// matches mirrored projects to distribution packages by collapsed name.
package anitya

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aosc-dev/puis/internal/probe"
)

const (
	// DefaultEndpoint is the v2 API base; API_ENDPOINT overrides it.
	DefaultEndpoint = "https://release-monitoring.org/api/v2/"

	pageSize    = 250
	maxRetries  = 5
	retryDelay  = 2 * time.Second
)

// Project is one mirrored release-monitoring project.
type Project struct {
	ID            int64
	Name          string
	Homepage      string
	Ecosystem     string
	Backend       string
	VersionURL    string
	Regex         string
	LatestVersion string
	UpdatedOn     int64
	CreatedOn     int64
}

// Endpoint resolves the API base URL from the environment.
func Endpoint() string {
	if ep := os.Getenv("API_ENDPOINT"); ep != "" {
		return ep
	}
	return DefaultEndpoint
}

var versionPrefixPattern = regexp.MustCompile(`^(?i:version|ver|v|releases|release|rel|r)[-._/]?`)

var underscoreGroupPattern = regexp.MustCompile(`(\d+)_(\d+)`)

// NormalizeVersion strips the common version lead-in and repeatedly
// collapses underscore-separated numeric groups.
func NormalizeVersion(v string) string {
	v = versionPrefixPattern.ReplaceAllString(v, "")
	for underscoreGroupPattern.MatchString(v) {
		v = underscoreGroupPattern.ReplaceAllString(v, "$1.$2")
	}
	return v
}

// Client pulls paginated project pages from an Anitya-compatible API.
type Client struct {
	endpoint string
	http     *probe.Client
}

// NewClient creates a mirror client against the given endpoint (the
// Endpoint() default when empty).
func NewClient(endpoint string, hc *probe.Client) *Client {
	if endpoint == "" {
		endpoint = Endpoint()
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return &Client{endpoint: endpoint, http: hc}
}

// v2Page is the paginated v2 shape; v1 payloads carry "projects" instead.
type v2Page struct {
	Items      []json.RawMessage `json:"items"`
	Projects   []json.RawMessage `json:"projects"`
	TotalItems int64             `json:"total_items"`
}

// rawProject tolerates the field drift between API revisions: timestamps
// arrive as either epoch numbers or ISO strings.
type rawProject struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Homepage      string          `json:"homepage"`
	Ecosystem     string          `json:"ecosystem"`
	Backend       string          `json:"backend"`
	VersionURL    string          `json:"version_url"`
	Regex         string          `json:"regex"`
	Version       string          `json:"version"`
	LatestVersion string          `json:"latest_version"`
	UpdatedOn     json.RawMessage `json:"updated_on"`
	CreatedOn     json.RawMessage `json:"created_on"`
}

// FetchProjects pulls the complete project index. Pages are retried up to
// five times before the sync is abandoned.
func (c *Client) FetchProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	for page := int64(1); ; page++ {
		body, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}

		var parsed v2Page
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("parse projects page %d: %w", page, err)
		}
		items := parsed.Items
		if items == nil {
			// v1 payload shape
			items = parsed.Projects
		}
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			var raw rawProject
			if err := json.Unmarshal(item, &raw); err != nil {
				log.Printf("Skipping malformed project entry: %v", err)
				continue
			}
			projects = append(projects, raw.toProject())
		}

		if parsed.Items == nil {
			// v1 responses are not paginated.
			break
		}
		if parsed.TotalItems > 0 && int64(len(projects)) < parsed.TotalItems {
			continue
		}
		break
	}
	log.Printf("Fetched %d projects from %s", len(projects), c.endpoint)
	return projects, nil
}

func (c *Client) fetchPage(ctx context.Context, page int64) ([]byte, error) {
	q := url.Values{}
	q.Set("items_per_page", strconv.Itoa(pageSize))
	q.Set("page", strconv.FormatInt(page, 10))
	pageURL := c.endpoint + "projects/?" + q.Encode()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
		resp, err := c.http.Get(ctx, pageURL, "")
		if err != nil {
			lastErr = err
			continue
		}
		return resp.Body, nil
	}
	return nil, fmt.Errorf("page %d failed after %d retries: %w", page, maxRetries, lastErr)
}

func (r rawProject) toProject() Project {
	latest := r.LatestVersion
	if latest == "" {
		latest = r.Version
	}
	return Project{
		ID:            r.ID,
		Name:          r.Name,
		Homepage:      r.Homepage,
		Ecosystem:     r.Ecosystem,
		Backend:       r.Backend,
		VersionURL:    r.VersionURL,
		Regex:         r.Regex,
		LatestVersion: NormalizeVersion(latest),
		UpdatedOn:     flexibleTime(r.UpdatedOn),
		CreatedOn:     flexibleTime(r.CreatedOn),
	}
}

// flexibleTime decodes a timestamp that may be an epoch number, an epoch
// string or an RFC3339-ish string.
func flexibleTime(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return int64(num)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(n)
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}
