package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aosc-dev/puis/internal/detect"
)

func testClient() *Client {
	return NewClientWithHTTP(&http.Client{Timeout: 5 * time.Second})
}

const githubAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <id>tag:github.com,2008:/org/foo/releases</id>
  <title>Release notes from foo</title>
  <entry>
    <id>tag:github.com,2008:Repository/1/v1.2</id>
    <updated>2023-01-10T10:00:00Z</updated>
    <link rel="alternate" type="text/html" href="%s/org/foo/releases/tag/v1.2"/>
    <title>v1.2</title>
  </entry>
  <entry>
    <id>tag:github.com,2008:Repository/1/v1.10</id>
    <updated>2023-05-01T09:30:00Z</updated>
    <link rel="alternate" type="text/html" href="%s/org/foo/releases/tag/v1.10"/>
    <title>v1.10</title>
  </entry>
</feed>`

func TestProbeGitHub(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/org/foo/releases.atom", r.URL.Path)
		w.Header().Set("ETag", `"abc"`)
		fmt.Fprintf(w, githubAtom, "https://github.com", "https://github.com")
	}))
	defer srv.Close()
	defer func(old string) { githubBase = old }(githubBase)
	githubBase = srv.URL

	res := Run(context.Background(), testClient(), "foo", "1.0",
		&detect.Descriptor{Type: detect.TypeGitHub, Repo: "org/foo"}, Status{})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Release)
	assert.Equal(t, "1.10", res.Release.Version)
	assert.Equal(t, "github", res.Release.UpstreamType)
	assert.Equal(t, time.Date(2023, 5, 1, 9, 30, 0, 0, time.UTC).Unix(), res.Release.Updated)
	assert.Equal(t, `"abc"`, res.Status.LastResult)
	assert.NotZero(t, res.Status.Updated)
}

func TestConditionalGet(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprintf(w, githubAtom, "https://github.com", "https://github.com")
	}))
	defer srv.Close()
	defer func(old string) { githubBase = old }(githubBase)
	githubBase = srv.URL

	desc := &detect.Descriptor{Type: detect.TypeGitHub, Repo: "org/foo"}
	c := testClient()

	first := Run(context.Background(), c, "foo", "1.0", desc, Status{})
	require.NoError(t, first.Err)
	require.NotNil(t, first.Release)

	second := Run(context.Background(), c, "foo", "1.0", desc, first.Status)
	require.NoError(t, second.Err)
	assert.Nil(t, second.Release)
	assert.Empty(t, second.Events)
	// The poll still counts as a successful check.
	assert.GreaterOrEqual(t, second.Status.Updated, first.Status.Updated)
	assert.Equal(t, `"v1"`, second.Status.LastResult)
	assert.Equal(t, 2, hits)
}

func TestProbeGitLab(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v4/projects/group%2Fbar/repository/tags", r.URL.EscapedPath())
		fmt.Fprint(w, `[
			{"name": "v2.1", "commit": {"committed_date": "2023-03-03T12:00:00Z"}},
			{"name": "v2.0", "commit": {"committed_date": "2022-12-01T08:00:00Z"}}
		]`)
	}))
	defer srv.Close()
	defer func(old string) { gitlabBase = old }(gitlabBase)
	gitlabBase = srv.URL

	res := Run(context.Background(), testClient(), "bar", "2.0",
		&detect.Descriptor{Type: detect.TypeGitLab, Repo: "group/bar"}, Status{})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Release)
	assert.Equal(t, "2.1", res.Release.Version)
	assert.Equal(t, time.Date(2023, 3, 3, 12, 0, 0, 0, time.UTC).Unix(), res.Release.Updated)
}

func TestProbePyPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pypi/requests/json", r.URL.Path)
		fmt.Fprint(w, `{
			"info": {"version": "2.28.1", "package_url": "https://pypi.org/project/requests/"},
			"releases": {"2.28.1": [{"upload_time": "2022-06-29T14:40:00"}]}
		}`)
	}))
	defer srv.Close()
	defer func(old string) { pypiBase = old }(pypiBase)
	pypiBase = srv.URL

	res := Run(context.Background(), testClient(), "requests", "2.27.0",
		&detect.Descriptor{Type: detect.TypePyPI, Name: "requests"}, Status{})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Release)
	assert.Equal(t, "2.28.1", res.Release.Version)
	assert.Equal(t, time.Date(2022, 6, 29, 14, 40, 0, 0, time.UTC).Unix(), res.Release.Updated)
}

func TestProbeRubyGems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/gems/rake.json", r.URL.Path)
		fmt.Fprint(w, `{"version": "13.0.6", "version_created_at": "2021-07-09T00:00:00Z",
			"project_uri": "https://rubygems.org/gems/rake"}`)
	}))
	defer srv.Close()
	defer func(old string) { rubygemsBase = old }(rubygemsBase)
	rubygemsBase = srv.URL

	res := Run(context.Background(), testClient(), "rake", "13.0.1",
		&detect.Descriptor{Type: detect.TypeRubyGems, Name: "rake"}, Status{})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Release)
	assert.Equal(t, "13.0.6", res.Release.Version)
}

func TestProbeNPM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"dist-tags": {"latest": "1.3.0"},
			"time": {"1.3.0": "2018-04-10T21:00:00.000Z"}}`)
	}))
	defer srv.Close()
	defer func(old string) { npmBase = old }(npmBase)
	npmBase = srv.URL

	res := Run(context.Background(), testClient(), "left-pad", "1.2.0",
		&detect.Descriptor{Type: detect.TypeNPM, Name: "left-pad"}, Status{})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Release)
	assert.Equal(t, "1.3.0", res.Release.Version)
}

func TestProbeLaunchpad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/lightdm/releases", r.URL.Path)
		fmt.Fprint(w, `{"entries": [
			{"version": "1.30.0", "date_released": "2019-10-10T00:00:00Z", "web_link": "https://launchpad.net/lightdm/+milestone/1.30.0"},
			{"version": "1.28.0", "date_released": "2018-08-01T00:00:00Z", "web_link": "https://launchpad.net/lightdm/+milestone/1.28.0"}
		]}`)
	}))
	defer srv.Close()
	defer func(old string) { launchpadBase = old }(launchpadBase)
	launchpadBase = srv.URL

	res := Run(context.Background(), testClient(), "lightdm", "1.28.0",
		&detect.Descriptor{Type: detect.TypeLaunchpad, Name: "lightdm"}, Status{})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Release)
	assert.Equal(t, "1.30.0", res.Release.Version)
}

const dirlistPage = `<html><head><title>Index of /download</title></head><body><pre>
<a href="?C=N;O=D">Name</a> <a href="?C=M;O=A">Last modified</a> <a href="?C=S;O=A">Size</a><hr><a href="/pub/">Parent Directory</a>                        -
<a href="curl-7.87.0.tar.xz">curl-7.87.0.tar.xz</a>   21-Dec-2022 07:57  2.5M
<a href="curl-7.88.1.tar.xz">curl-7.88.1.tar.xz</a>   20-Feb-2023 08:02  2.5M
</pre></body></html>`

func TestProbeDirListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, dirlistPage)
	}))
	defer srv.Close()

	res := Run(context.Background(), testClient(), "curl", "7.87.0",
		&detect.Descriptor{Type: detect.TypeDirListing, URL: srv.URL + "/download/", Prefix: "curl"},
		Status{})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Release)
	assert.Equal(t, "7.88.1", res.Release.Version)
}

func TestProbeDirListingNewFileEvent(t *testing.T) {
	page := dirlistPage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	desc := &detect.Descriptor{Type: detect.TypeDirListing, URL: srv.URL + "/download/", Prefix: "curl"}
	first := Run(context.Background(), testClient(), "curl", "7.87.0", desc, Status{})
	require.NoError(t, first.Err)
	assert.Empty(t, first.Events) // first poll only seeds the entry list

	page = `<html><head><title>Index of /download</title></head><body><pre>
<a href="?C=N;O=D">Name</a> <a href="?C=M;O=A">Last modified</a> <a href="?C=S;O=A">Size</a><hr><a href="/pub/">Parent Directory</a>                        -
<a href="curl-7.87.0.tar.xz">curl-7.87.0.tar.xz</a>   21-Dec-2022 07:57  2.5M
<a href="curl-7.88.1.tar.xz">curl-7.88.1.tar.xz</a>   20-Feb-2023 08:02  2.5M
<a href="curl-8.0.0.tar.xz">curl-8.0.0.tar.xz</a>    20-Mar-2023 06:30  2.6M
</pre></body></html>`

	second := Run(context.Background(), testClient(), "curl", "7.87.0", desc, first.Status)
	require.NoError(t, second.Err)
	require.NotNil(t, second.Release)
	assert.Equal(t, "8.0.0", second.Release.Version)
	require.Len(t, second.Events, 1)
	assert.Equal(t, "curl-8.0.0.tar.xz", second.Events[0].Title)
	assert.Contains(t, second.Events[0].Content, "curl-8.0.0.tar.xz")
}

func TestProbeDirListingRegexFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Not a recognizable listing shape, but carries tarball tokens.
		fmt.Fprint(w, `<html><body><div>get <b>foo-1.4.tar.gz</b> or <b>foo-1.5.tar.gz</b> here</div></body></html>`)
	}))
	defer srv.Close()

	res := Run(context.Background(), testClient(), "foo", "1.4",
		&detect.Descriptor{Type: detect.TypeDirListing, URL: srv.URL + "/", Prefix: "foo"},
		Status{})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Release)
	assert.Equal(t, "1.5", res.Release.Version)
}

const newsFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>news</title>
<item><title>release 2.0</title><link>https://example.org/news/2</link>
<pubDate>Mon, 01 May 2023 10:00:00 GMT</pubDate><description>big</description></item>
<item><title>release 1.0</title><link>https://example.org/news/1</link>
<pubDate>Sat, 01 Jan 2022 10:00:00 GMT</pubDate><description>old</description></item>
</channel></rss>`

func TestProbeFeedEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, newsFeed)
	}))
	defer srv.Close()

	desc := &detect.Descriptor{Type: detect.TypeFeed, URL: srv.URL + "/feed.xml", Kind: "news"}

	// First poll: no baseline yet, nothing emitted.
	first := Run(context.Background(), testClient(), "foo", "", desc, Status{})
	require.NoError(t, first.Err)
	assert.Empty(t, first.Events)

	// Only entries newer than the previous poll come through.
	cutoff := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	second := Run(context.Background(), testClient(), "foo", "", desc, Status{Updated: cutoff})
	require.NoError(t, second.Err)
	require.Len(t, second.Events, 1)
	assert.Equal(t, "release 2.0", second.Events[0].Title)
	assert.Equal(t, "news", second.Events[0].Category)
}

func TestProbeHTMLSelectorDiff(t *testing.T) {
	body := `<html><body><div id="ver">version 1.0</div></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	desc := &detect.Descriptor{Type: detect.TypeHTML, URL: srv.URL + "/", Selector: "#ver", Kind: "news"}

	first := Run(context.Background(), testClient(), "foo", "", desc, Status{})
	require.NoError(t, first.Err)
	assert.Nil(t, first.Release)
	assert.Empty(t, first.Events)

	body = `<html><body><div id="ver">version 2.0</div></body></html>`
	second := Run(context.Background(), testClient(), "foo", "", desc, first.Status)
	require.NoError(t, second.Err)
	require.Len(t, second.Events, 1)
	assert.Equal(t, "version 2.0", second.Events[0].Title)
	assert.Contains(t, second.Events[0].Content, "<pre>")

	// Unchanged page: no further events.
	third := Run(context.Background(), testClient(), "foo", "", desc, second.Status)
	require.NoError(t, third.Err)
	assert.Empty(t, third.Events)
}

type fakeFTP struct {
	entries []*ftp.Entry
}

func (f *fakeFTP) Login(user, password string) error { return nil }
func (f *fakeFTP) List(path string) ([]*ftp.Entry, error) {
	return f.entries, nil
}
func (f *fakeFTP) Quit() error { return nil }

func TestProbeFTP(t *testing.T) {
	mtime := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	fake := &fakeFTP{entries: []*ftp.Entry{
		{Name: "zlib-1.2.12.tar.gz", Type: ftp.EntryTypeFile, Time: mtime.Add(-24 * time.Hour)},
		{Name: "zlib-1.2.13.tar.gz", Type: ftp.EntryTypeFile, Time: mtime},
		{Name: "old", Type: ftp.EntryTypeFolder, Time: mtime.Add(-48 * time.Hour)},
	}}
	defer func(old func(context.Context, string) (ftpConn, error)) { ftpDial = old }(ftpDial)
	ftpDial = func(ctx context.Context, addr string) (ftpConn, error) { return fake, nil }

	desc := &detect.Descriptor{Type: detect.TypeFTP, URL: "ftp://ftp.example.org/pub/zlib/", Prefix: "zlib"}
	res := Run(context.Background(), testClient(), "zlib", "1.2.12", desc, Status{})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Release)
	assert.Equal(t, "1.2.13", res.Release.Version)
	assert.Equal(t, mtime.Unix(), res.Release.Updated)

	// Unchanged directory mtime short-circuits the second poll.
	second := Run(context.Background(), testClient(), "zlib", "1.2.12", desc, res.Status)
	require.NoError(t, second.Err)
	assert.Nil(t, second.Release)
	assert.Empty(t, second.Events)
}

func TestErrString(t *testing.T) {
	assert.Equal(t, "", ErrString(nil))
	assert.Equal(t, "not found", ErrString(ErrNotFound))
	assert.Equal(t, "HTTPError: 404 Not Found",
		ErrString(&StatusError{Code: 404, Status: "404 Not Found"}))
}

func TestStatusErrorFromServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	defer func(old string) { pypiBase = old }(pypiBase)
	pypiBase = srv.URL

	res := Run(context.Background(), testClient(), "ghost", "1.0",
		&detect.Descriptor{Type: detect.TypePyPI, Name: "ghost"}, Status{})
	require.Error(t, res.Err)
	assert.Contains(t, ErrString(res.Err), "HTTPError")
}
