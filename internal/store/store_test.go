package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aosc-dev/puis/internal/anitya"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "puis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpstreamStatusRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	st := UpstreamStatus{Package: "foo", Updated: 100, LastTry: 200, Err: "not found"}
	require.NoError(t, s.SaveUpstreamStatus(ctx, st))

	got, found, err := s.GetUpstreamStatus(ctx, "foo")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, st, got)

	// Upsert replaces in place.
	st.Err = ""
	st.LastTry = 300
	require.NoError(t, s.SaveUpstreamStatus(ctx, st))
	got, _, err = s.GetUpstreamStatus(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.LastTry)
	assert.Empty(t, got.Err)

	_, found, err = s.GetUpstreamStatus(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelayedPackages(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	entries := []UpstreamStatus{
		// Fresh success: inside the 2 h window.
		{Package: "fresh", Updated: now, LastTry: now - 100},
		// Stale success: outside the window, due again.
		{Package: "stale", Updated: now - 10000, LastTry: now - 10000},
		// "not found" two days ago: still inside the 3 d failure window.
		{Package: "failing-recent", LastTry: now - 2*86400, Err: "not found"},
		// "not found" four days ago: due again.
		{Package: "failing-old", LastTry: now - 4*86400, Err: "not found"},
		// HTTP error yesterday: still delayed.
		{Package: "http-error", LastTry: now - 86400, Err: "HTTPError: 503 Service Unavailable"},
		// Network error three hours ago: only the success window applies.
		{Package: "net-error", LastTry: now - 3*3600, Err: "NetworkError: connection refused"},
	}
	for _, st := range entries {
		require.NoError(t, s.SaveUpstreamStatus(ctx, st))
	}

	delayed, err := s.DelayedPackages(ctx, now)
	require.NoError(t, err)

	assert.True(t, delayed["fresh"])
	assert.False(t, delayed["stale"])
	assert.True(t, delayed["failing-recent"])
	assert.False(t, delayed["failing-old"])
	assert.True(t, delayed["http-error"])
	assert.False(t, delayed["net-error"])
}

func TestPackageUpstreamView(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceAnityaProjects(ctx, []anitya.Project{
		{ID: 42, Name: "bar", Ecosystem: "pypi", LatestVersion: "2.0", UpdatedOn: 500},
	}))
	require.NoError(t, s.ReplaceAnityaLinks(ctx, map[string]int64{"bar": 42, "foo": 42}))

	// foo has its own discovered release; bar only has the mirror.
	require.NoError(t, s.SavePackageUpstream(ctx, PackageUpstream{
		Package: "foo", Type: "github", Version: "1.1", Time: 1000, URL: "https://github.com/o/foo/releases",
	}))

	foo, found, err := s.GetPackageUpstream(ctx, "foo")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "github", foo.Type)
	assert.Equal(t, "1.1", foo.Version)

	bar, found, err := s.GetPackageUpstream(ctx, "bar")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "anitya", bar.Type)
	assert.Equal(t, "2.0", bar.Version)
	assert.Equal(t, "https://release-monitoring.org/project/42/", bar.URL)
}

func TestEventsAppendAndQuery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	events := []Event{
		{Chore: "foo", Category: "release", Time: 100, Title: "v1.0", URL: "https://example.org/1"},
		{Chore: "foo", Category: "release", Time: 200, Title: "v1.1", URL: "https://example.org/2"},
		{Chore: "bar", Category: "news", Time: 150, Title: "news", Content: "<p>hi</p>"},
	}
	require.NoError(t, s.AddEvents(ctx, events))

	recent, err := s.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// Descending time order.
	assert.Equal(t, "v1.1", recent[0].Title)
	assert.Equal(t, "news", recent[1].Title)
	assert.NotZero(t, recent[0].ID)

	byChore, err := s.EventsByChore(ctx, "foo", 0)
	require.NoError(t, err)
	assert.Len(t, byChore, 2)
}

func TestChoreStatusRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	st := ChoreStatus{Name: "foo", Updated: 123, LastResult: `"etag-value"`}
	require.NoError(t, s.SaveChoreStatus(ctx, st))

	got, found, err := s.GetChoreStatus(ctx, "foo")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, st, got)

	_, found, err = s.GetChoreStatus(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}
