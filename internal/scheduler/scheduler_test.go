package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aosc-dev/puis/internal/probe"
	"github.com/aosc-dev/puis/internal/store"
)

const listingPage = `<html><head><title>Index of /download</title></head><body><pre>
<a href="?C=N;O=D">Name</a> <a href="?C=M;O=A">Last modified</a> <a href="?C=S;O=A">Size</a><hr><a href="/pub/">Parent Directory</a>              -
<a href="foo-1.0.tar.gz">foo-1.0.tar.gz</a>   01-Jan-2023 10:00  1.0M
<a href="foo-1.1.tar.gz">foo-1.1.tar.gz</a>   01-Jun-2023 10:00  1.1M
</pre></body></html>`

func testSetup(t *testing.T) (*store.Store, *Scheduler) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "puis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	client := probe.NewClientWithHTTP(&http.Client{Timeout: 5 * time.Second})
	return st, New(st, client)
}

func TestRunCycleStoresRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage)
	}))
	defer srv.Close()

	st, sched := testSetup(t)
	ctx := context.Background()

	packages := []store.Package{
		{Name: "foo", SrcType: "SRCTBL", SrcURL: srv.URL + "/download/foo-1.0.tar.gz", Version: "1.0"},
	}
	require.NoError(t, sched.RunCycle(ctx, packages))

	rel, found, err := st.GetPackageUpstream(ctx, "foo")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "dirlist", rel.Type)
	assert.Equal(t, "1.1", rel.Version)

	status, found, err := st.GetUpstreamStatus(ctx, "foo")
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, status.Err)
	assert.NotZero(t, status.Updated)
	assert.NotZero(t, status.LastTry)
}

func TestRunCycleRecordsClassifierMiss(t *testing.T) {
	st, sched := testSetup(t)
	ctx := context.Background()

	packages := []store.Package{
		{Name: "mystery", SrcType: "GITSRC", SrcURL: "https://example.com/mystery.git"},
	}
	require.NoError(t, sched.RunCycle(ctx, packages))

	status, found, err := st.GetUpstreamStatus(ctx, "mystery")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "can't detect upstream", status.Err)

	// No release row appears for an unclassified package.
	_, found, err = st.GetPackageUpstream(ctx, "mystery")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRunCycleSkipsDelayed(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, listingPage)
	}))
	defer srv.Close()

	st, sched := testSetup(t)
	ctx := context.Background()
	now := time.Now().Unix()

	// A fresh successful poll puts the package inside the backoff window.
	require.NoError(t, st.SaveUpstreamStatus(ctx, store.UpstreamStatus{
		Package: "foo", Updated: now - 60, LastTry: now - 60,
	}))

	packages := []store.Package{
		{Name: "foo", SrcType: "SRCTBL", SrcURL: srv.URL + "/download/foo-1.0.tar.gz", Version: "1.0"},
	}
	require.NoError(t, sched.RunCycle(ctx, packages))
	assert.Zero(t, hits)

	// The same package four days stale is polled again.
	require.NoError(t, st.SaveUpstreamStatus(ctx, store.UpstreamStatus{
		Package: "foo", LastTry: now - 4*86400, Err: "not found",
	}))
	require.NoError(t, sched.RunCycle(ctx, packages))
	assert.Equal(t, 1, hits)
}

func TestRunCycleFailureKeepsPreviousRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	st, sched := testSetup(t)
	ctx := context.Background()

	// A release from an earlier, healthier run.
	require.NoError(t, st.SavePackageUpstream(ctx, store.PackageUpstream{
		Package: "foo", Type: "dirlist", Version: "1.0", Time: 1000, URL: srv.URL,
	}))

	packages := []store.Package{
		{Name: "foo", SrcType: "SRCTBL", SrcURL: srv.URL + "/download/foo-1.0.tar.gz", Version: "1.0"},
	}
	require.NoError(t, sched.RunCycle(ctx, packages))

	status, found, err := st.GetUpstreamStatus(ctx, "foo")
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, status.Err, "HTTPError")

	rel, found, err := st.GetPackageUpstream(ctx, "foo")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1.0", rel.Version)
}

func TestRunCycleCancellation(t *testing.T) {
	st, sched := testSetup(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	packages := []store.Package{
		{Name: "foo", SrcType: "SRCTBL", SrcURL: "https://192.0.2.1/download/foo-1.0.tar.gz", Version: "1.0"},
	}
	// A canceled context drains without error.
	require.NoError(t, sched.RunCycle(ctx, packages))
	_ = st
}
