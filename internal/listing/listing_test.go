package listing

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apacheListing = `<html><head><title>Index of /pub/foo</title></head><body>
<h1>Index of /pub/foo</h1>
<pre><img src="/icons/blank.gif" alt="Icon "> <a href="?C=N;O=D">Name</a>                    <a href="?C=M;O=A">Last modified</a>      <a href="?C=S;O=A">Size</a>  <a href="?C=D;O=A">Description</a><hr><img src="/icons/back.gif" alt="[PARENTDIR]"> <a href="/pub/">Parent Directory</a>                             -
<img src="/icons/compressed.gif" alt="[   ]"> <a href="foo-1.2.tar.gz">foo-1.2.tar.gz</a>          23-Apr-2020 10:11  1.2M  source release
<img src="/icons/compressed.gif" alt="[   ]"> <a href="foo-1.10.tar.gz">foo-1.10.tar.gz</a>         02-May-2021 08:30  1.3M
<img src="/icons/folder.gif" alt="[DIR]"> <a href="old/">old/</a>                    01-Jan-2019 00:00    -
</pre></body></html>`

func TestParseApacheListing(t *testing.T) {
	cwd, entries, err := Parse(strings.NewReader(apacheListing))
	require.NoError(t, err)
	assert.Equal(t, "/pub/foo", cwd)
	require.Len(t, entries, 3)

	assert.Equal(t, "foo-1.2.tar.gz", entries[0].Name)
	require.NotNil(t, entries[0].Modified)
	assert.Equal(t, time.Date(2020, 4, 23, 10, 11, 0, 0, time.UTC), *entries[0].Modified)
	require.NotNil(t, entries[0].Size)
	assert.Equal(t, int64(1258291), *entries[0].Size)
	assert.Equal(t, "source release", entries[0].Description)

	assert.Equal(t, "foo-1.10.tar.gz", entries[1].Name)
	assert.Equal(t, "old/", entries[2].Name)
	assert.Nil(t, entries[2].Size)

	// Every entry of a well-formed listing has a non-empty name.
	for _, e := range entries {
		assert.NotEmpty(t, e.Name)
	}
}

const tableListing = `<html><head><title>Downloads</title></head><body>
<table>
<tr><th>Name</th><th>Last modified</th><th>Size</th><th>Description</th></tr>
<tr><td><a href="../">Parent Directory</a></td><td></td><td>-</td><td></td></tr>
<tr><td><a href="bar%2D2.0.zip">bar-2.0.zip</a></td><td>2021-06-01 12:00</td><td>512K</td><td>stable</td></tr>
<tr><td><a href="bar-2.1.zip">bar-2.1.zip</a></td><td data-sort-value="1650000000">whenever</td><td data-sort-value="1024">1K</td><td></td></tr>
</table></body></html>`

func TestParseTableListing(t *testing.T) {
	cwd, entries, err := Parse(strings.NewReader(tableListing))
	require.NoError(t, err)
	assert.Empty(t, cwd)
	require.Len(t, entries, 2)

	assert.Equal(t, "bar-2.0.zip", entries[0].Name)
	require.NotNil(t, entries[0].Modified)
	assert.Equal(t, time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC), *entries[0].Modified)
	require.NotNil(t, entries[0].Size)
	assert.Equal(t, int64(512*1024), *entries[0].Size)
	assert.Equal(t, "stable", entries[0].Description)

	// data-sort-value is authoritative for both columns.
	require.NotNil(t, entries[1].Modified)
	assert.Equal(t, int64(1650000000), entries[1].Modified.Unix())
	require.NotNil(t, entries[1].Size)
	assert.Equal(t, int64(1024), *entries[1].Size)
}

const ulListing = `<html><body><ul>
<li><a href="../">../</a></li>
<li><a href="https://example.com/external">external</a></li>
<li><a href="#top">top</a></li>
<li><a href="baz-0.1.tar.xz">baz-0.1.tar.xz</a></li>
<li><a href="baz-0.2.tar.xz">baz-0.2.tar.xz</a></li>
</ul></body></html>`

func TestParseULListing(t *testing.T) {
	_, entries, err := Parse(strings.NewReader(ulListing))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "baz-0.1.tar.xz", entries[0].Name)
	assert.Equal(t, "baz-0.2.tar.xz", entries[1].Name)
}

func TestParseNotAListing(t *testing.T) {
	_, entries, err := Parse(strings.NewReader("<html><body><p>hello</p></body></html>"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		nilP bool
	}{
		{"1M", 1048576, false},
		{"1G", 1073741824, false},
		{"512", 512, false},
		{"2.5K", 2560, false},
		{"-", 0, true},
		{"", 0, true},
		{"huge", 0, true},
	}
	for _, tt := range tests {
		got := HumanSize(tt.in)
		if tt.nilP {
			assert.Nil(t, got, "HumanSize(%q)", tt.in)
			continue
		}
		require.NotNil(t, got, "HumanSize(%q)", tt.in)
		assert.Equal(t, tt.want, *got, "HumanSize(%q)", tt.in)
	}
}

func TestSizeofFmt(t *testing.T) {
	assert.Equal(t, "1.0KiB", SizeofFmt(1024))
	assert.Equal(t, "3.4MiB", SizeofFmt(3565158))
	assert.Equal(t, "512.0B", SizeofFmt(512))
}
