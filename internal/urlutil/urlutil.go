// Package urlutil normalizes source URL paths before upstream detection.
package urlutil

import (
	"net/url"
	"regexp"
	"strings"
)

// minorPattern recognizes a bare two-component "N.N" remainder, which is
// too ambiguous to treat as a version prefix.
var minorPattern = regexp.MustCompile(`^\d+\.\d+$`)

// RemovePackageVersion walks the path segments of urlPath left to right and
// truncates the path at the first segment that appears to carry the current
// version: the URL-decoded segment, with the package name and surrounding
// separators stripped, either contains version as a substring or is a proper
// prefix of it (unless it looks like a bare "N.N"). The truncated segment
// itself is dropped.
//
// The result always starts and ends with a slash, so
// "/project/downloads/foo-1.2.3/" maps to "/project/downloads/".
func RemovePackageVersion(name, urlPath, version string) string {
	segs := []string{""}
	for _, s := range strings.Split(strings.Trim(urlPath, "/"), "/") {
		decoded := s
		if u, err := url.PathUnescape(s); err == nil {
			decoded = u
		}
		check := strings.Trim(strings.ReplaceAll(decoded, name, ""), " -_.")
		if len(check) > 1 && (strings.Contains(check, version) ||
			(!minorPattern.MatchString(check) && strings.HasPrefix(version, check))) {
			break
		}
		if s != "" {
			segs = append(segs, s)
		}
	}
	return strings.Join(segs, "/") + "/"
}

// StripFilename removes the final path component of urlPath, keeping the
// trailing slash on the remaining directory. The removed component is
// returned separately. A path already ending in "/" is returned unchanged.
func StripFilename(urlPath string) (dir, file string) {
	if urlPath == "" || strings.HasSuffix(urlPath, "/") {
		return urlPath, ""
	}
	idx := strings.LastIndexByte(urlPath, '/')
	if idx < 0 {
		return "/", urlPath
	}
	return urlPath[:idx+1], urlPath[idx+1:]
}

// TarballPrefix extracts the "<name>" part of a "<name>[-._]<ver><ext>"
// tarball filename: everything before the first separator that is followed
// by a digit (an optional "v" marker allowed in between). The empty string
// is returned when the filename does not follow that form.
func TarballPrefix(filename string) string {
	for i := 0; i < len(filename); i++ {
		switch filename[i] {
		case '-', '_', '.':
			rest := filename[i+1:]
			if strings.HasPrefix(rest, "v") {
				rest = rest[1:]
			}
			if rest != "" && rest[0] >= '0' && rest[0] <= '9' {
				return filename[:i]
			}
		}
	}
	return ""
}
