package urlutil

import "testing"

func TestRemovePackageVersion(t *testing.T) {
	tests := []struct {
		name    string
		pkg     string
		path    string
		version string
		want    string
	}{
		{
			name: "version-bearing directory dropped",
			pkg:  "foo", path: "/project/downloads/foo-1.2.3/", version: "1.2.3",
			want: "/project/downloads/",
		},
		{
			name: "no version in path",
			pkg:  "foo", path: "/project/downloads/", version: "1.2.3",
			want: "/project/downloads/",
		},
		{
			name: "proper version prefix truncates",
			pkg:  "foo", path: "/pub/foo/1.2.3.4/extra/", version: "1.2.3.4.5",
			want: "/pub/foo/",
		},
		{
			name: "bare minor pair is not a version prefix",
			pkg:  "foo", path: "/pub/1.2/", version: "1.2.3",
			want: "/pub/1.2/",
		},
		{
			name: "url-encoded segment decoded",
			pkg:  "foo", path: "/dl/foo%2D1.2.3/", version: "1.2.3",
			want: "/dl/",
		},
		{
			name: "root stays root",
			pkg:  "foo", path: "/", version: "1.0",
			want: "/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RemovePackageVersion(tt.pkg, tt.path, tt.version)
			if got != tt.want {
				t.Errorf("RemovePackageVersion(%q, %q, %q) = %q, want %q",
					tt.pkg, tt.path, tt.version, got, tt.want)
			}
			if got[0] != '/' || got[len(got)-1] != '/' {
				t.Errorf("result %q must keep leading and trailing slash", got)
			}
		})
	}
}

func TestStripFilename(t *testing.T) {
	tests := []struct {
		path, dir, file string
	}{
		{"/download/foo-1.0.tar.gz", "/download/", "foo-1.0.tar.gz"},
		{"/download/", "/download/", ""},
		{"foo.tar.gz", "/", "foo.tar.gz"},
		{"", "", ""},
	}
	for _, tt := range tests {
		dir, file := StripFilename(tt.path)
		if dir != tt.dir || file != tt.file {
			t.Errorf("StripFilename(%q) = (%q, %q), want (%q, %q)",
				tt.path, dir, file, tt.dir, tt.file)
		}
	}
}

func TestTarballPrefix(t *testing.T) {
	tests := []struct {
		filename, want string
	}{
		{"curl-7.88.1.tar.xz", "curl"},
		{"foo_1.0.tar.gz", "foo"},
		{"foo-v2.0.zip", "foo"},
		{"foo-bar-1.0.tar.gz", "foo-bar"},
		{"README", ""},
	}
	for _, tt := range tests {
		if got := TarballPrefix(tt.filename); got != tt.want {
			t.Errorf("TarballPrefix(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
