// Package detect classifies package source URLs into typed probe
// descriptors. Classification is pure: it only inspects the URL and the
// package metadata, never the network. A nil descriptor is a legitimate
// outcome meaning the upstream could not be identified.
package detect

import (
	"net/url"
	"path"
	"strings"

	"github.com/aosc-dev/puis/internal/urlutil"
)

// SourceKind describes how the distribution fetches the package source.
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceTarball
	SourceGit
	SourceSVN
	SourceBzr
)

// ParseSourceKind maps an abbs spec key (SRCTBL, GITSRC, SVNSRC, BZRSRC) to
// a SourceKind.
func ParseSourceKind(key string) SourceKind {
	switch key {
	case "SRCTBL":
		return SourceTarball
	case "GITSRC":
		return SourceGit
	case "SVNSRC":
		return SourceSVN
	case "BZRSRC":
		return SourceBzr
	}
	return SourceNone
}

func (k SourceKind) String() string {
	switch k {
	case SourceTarball:
		return "tarball"
	case SourceGit:
		return "git"
	case SourceSVN:
		return "svn"
	case SourceBzr:
		return "bzr"
	}
	return "none"
}

// Type tags a probe descriptor variant.
type Type string

const (
	TypeGitHub      Type = "github"
	TypeGitLab      Type = "gitlab"
	TypeBitbucket   Type = "bitbucket"
	TypePyPI        Type = "pypi"
	TypeRubyGems    Type = "rubygems"
	TypeNPM         Type = "npm"
	TypeLaunchpad   Type = "launchpad"
	TypeSourceForge Type = "sourceforge"
	TypeCgit        Type = "cgit"
	TypeDirListing  Type = "dirlist"
	TypeFTP         Type = "ftp"
	TypeHTML        Type = "html"
	TypeFeed        Type = "feed"
)

// Descriptor is the typed result of upstream classification. Only the
// fields relevant to the variant are set.
type Descriptor struct {
	Type     Type
	Repo     string // github/gitlab/bitbucket "owner/repo"
	Name     string // pypi/rubygems/npm/launchpad project name
	URL      string // dirlist/ftp/cgit/html/feed target
	Prefix   string // tarball filename prefix
	Branch   string
	Kind     string // bitbucket: "downloads" or "tag"; feed/html: category
	Selector string // html: CSS selector
	Regex    string // html: extraction regex
	Project  string // sourceforge/cgit project
	Path     string // sourceforge file path
}

// commonExts are archive extensions recognized when deciding whether the
// final path component is a downloadable file.
var commonExts = map[string]bool{
	".gz": true, ".bz2": true, ".xz": true, ".tar": true,
	".7z": true, ".rar": true, ".zip": true, ".tgz": true, ".txz": true, ".tbz2": true,
}

// cgitHosts are well-known cgit/gitweb installations.
var cgitHosts = map[string]bool{
	"git.kernel.org":          true,
	"git.gnome.org":           true,
	"git.zx2c4.com":           true,
	"anongit.freedesktop.org": true,
	"git.savannah.gnu.org":    true,
	"git.savannah.nongnu.org": true,
	"repo.or.cz":              true,
}

// Detect maps (name, source kind, URL, current version) to a probe
// descriptor. Rules are tried in order; the first match wins. nil means no
// rule matched: for GIT/SVN/BZR sources this is the "can't detect upstream"
// outcome, not an error.
func Detect(name string, kind SourceKind, rawURL, currentVersion string) *Descriptor {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" && u.Scheme != "ftp" {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	segs := splitPath(u.Path)

	switch host {
	case "github.com":
		return detectGitHub(segs)
	case "gitlab.com":
		return detectGitLab(segs)
	case "bitbucket.org":
		return detectBitbucket(segs)
	case "pypi.io", "pypi.python.org":
		return detectPyPI(segs)
	case "rubygems.org", "gems.rubyforge.org":
		return detectRubyGems(segs)
	case "registry.npmjs.org":
		return detectNPM(segs)
	case "launchpad.net":
		return detectLaunchpad(name, segs)
	}

	if u.Scheme == "ftp" {
		return detectFTP(name, u, currentVersion)
	}

	if d := detectCgit(kind, u, rawURL); d != nil {
		return d
	}

	if d := detectSourceForge(host, segs); d != nil {
		return d
	}

	if (u.Scheme == "http" || u.Scheme == "https") && kind == SourceTarball {
		return detectDirListing(name, u, currentVersion)
	}

	return nil
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func detectGitHub(segs []string) *Descriptor {
	if len(segs) > 0 && segs[0] == "downloads" {
		segs = segs[1:]
	}
	if len(segs) < 2 {
		return nil
	}
	repo := segs[0] + "/" + strings.TrimSuffix(segs[1], ".git")
	return &Descriptor{Type: TypeGitHub, Repo: repo}
}

func detectGitLab(segs []string) *Descriptor {
	if len(segs) < 2 {
		return nil
	}
	repo := segs[0] + "/" + strings.TrimSuffix(segs[1], ".git")
	return &Descriptor{Type: TypeGitLab, Repo: repo}
}

func detectBitbucket(segs []string) *Descriptor {
	if len(segs) < 2 {
		return nil
	}
	d := &Descriptor{
		Type: TypeBitbucket,
		Repo: segs[0] + "/" + strings.TrimSuffix(segs[1], ".git"),
		Kind: "downloads",
	}
	if len(segs) > 2 {
		switch segs[2] {
		case "downloads":
			d.Kind = "downloads"
		case "get":
			d.Kind = "tag"
		}
		if prefix := urlutil.TarballPrefix(segs[len(segs)-1]); prefix != "" {
			d.Prefix = prefix
		}
	}
	return d
}

func detectPyPI(segs []string) *Descriptor {
	// /packages/source/<c>/<name>/<file> carries the canonical name.
	if len(segs) >= 4 && segs[0] == "packages" && segs[1] == "source" {
		return &Descriptor{Type: TypePyPI, Name: segs[3]}
	}
	if len(segs) == 0 {
		return nil
	}
	base := segs[len(segs)-1]
	base = strings.TrimSuffix(base, path.Ext(base))
	if idx := strings.LastIndexByte(base, '-'); idx > 0 {
		base = base[:idx]
	}
	if base == "" {
		return nil
	}
	return &Descriptor{Type: TypePyPI, Name: base}
}

func detectRubyGems(segs []string) *Descriptor {
	if len(segs) == 0 {
		return nil
	}
	base := segs[len(segs)-1]
	gem := urlutil.TarballPrefix(base)
	if gem == "" {
		gem = strings.TrimSuffix(base, path.Ext(base))
	}
	if gem == "" {
		return nil
	}
	return &Descriptor{Type: TypeRubyGems, Name: gem}
}

func detectNPM(segs []string) *Descriptor {
	// /<pkg>/-/<pkg>-<ver>.tgz; scoped packages keep their "@scope/" part.
	var pkg []string
	for _, s := range segs {
		if s == "-" {
			break
		}
		pkg = append(pkg, s)
	}
	if len(pkg) == 0 {
		return nil
	}
	return &Descriptor{Type: TypeNPM, Name: strings.Join(pkg, "/")}
}

func detectLaunchpad(name string, segs []string) *Descriptor {
	if len(segs) == 0 {
		return nil
	}
	proj := strings.ToLower(segs[0])
	lname := strings.ToLower(name)
	// Unrelated Ubuntu redirects frequently land on launchpad.net; only
	// trust the project when its name overlaps the package name.
	if !strings.Contains(proj, lname) && !strings.Contains(lname, proj) {
		return nil
	}
	return &Descriptor{Type: TypeLaunchpad, Name: proj}
}

func detectFTP(name string, u *url.URL, currentVersion string) *Descriptor {
	dir, file := urlutil.StripFilename(u.Path)
	if currentVersion != "" {
		dir = urlutil.RemovePackageVersion(name, dir, currentVersion)
	}
	prefix := urlutil.TarballPrefix(file)
	if prefix == "" {
		prefix = name
	}
	clean := *u
	clean.Path = dir
	clean.RawQuery = ""
	clean.Fragment = ""
	return &Descriptor{Type: TypeFTP, URL: clean.String(), Prefix: prefix}
}

func detectCgit(kind SourceKind, u *url.URL, rawURL string) *Descriptor {
	lower := strings.ToLower(rawURL)
	host := strings.ToLower(u.Hostname())
	gitish := kind == SourceGit || strings.Contains(lower, "git")
	snapshot := strings.Contains(u.Path, "/snapshot/")
	if !strings.Contains(lower, "cgit") && !(gitish && (cgitHosts[host] || snapshot)) {
		return nil
	}

	clean := *u
	if idx := strings.Index(clean.Path, "/snapshot/"); idx >= 0 {
		clean.Path = clean.Path[:idx]
	}
	if clean.Scheme == "git" {
		clean.Scheme = "http"
	}
	clean.RawQuery = ""
	clean.Fragment = ""

	project := ""
	if segs := splitPath(clean.Path); len(segs) > 0 {
		project = strings.TrimSuffix(segs[len(segs)-1], ".git")
	}
	return &Descriptor{Type: TypeCgit, URL: clean.String(), Project: project}
}

func detectSourceForge(host string, segs []string) *Descriptor {
	// The RSS path points at the containing directory, not the tarball.
	if len(segs) > 0 {
		if ext := strings.ToLower(path.Ext(segs[len(segs)-1])); commonExts[ext] {
			segs = segs[:len(segs)-1]
		}
	}
	feed := func(project, filePath string) *Descriptor {
		return &Descriptor{
			Type:    TypeFeed,
			Kind:    "file",
			Project: project,
			Path:    filePath,
			URL:     "https://sourceforge.net/projects/" + project + "/rss?path=" + filePath,
		}
	}

	switch host {
	case "sourceforge.net":
		if len(segs) >= 2 && segs[0] == "projects" {
			return feed(segs[1], "/"+strings.Join(sliceFrom(segs, 3), "/"))
		}
		if len(segs) >= 5 && segs[0] == "code-snapshots" {
			return feed(segs[4], "/")
		}
	case "downloads.sourceforge.net", "prdownloads.sourceforge.net", "download.sourceforge.net":
		if len(segs) == 0 {
			return nil
		}
		switch segs[0] {
		case "project":
			if len(segs) < 2 {
				return nil
			}
			return feed(segs[1], "/"+strings.Join(sliceFrom(segs, 2), "/"))
		case "sourceforge":
			if len(segs) < 2 {
				return nil
			}
			return feed(segs[1], "/")
		default:
			return feed(segs[0], "/")
		}
	}
	if strings.HasSuffix(host, ".sourceforge.net") {
		return feed(strings.SplitN(host, ".", 2)[0], "/")
	}
	return nil
}

func sliceFrom(segs []string, idx int) []string {
	if idx >= len(segs) {
		return nil
	}
	return segs[idx:]
}

func detectDirListing(name string, u *url.URL, currentVersion string) *Descriptor {
	dir, file := u.Path, ""
	if ext := strings.ToLower(path.Ext(u.Path)); commonExts[ext] {
		dir, file = urlutil.StripFilename(u.Path)
	}
	if currentVersion != "" {
		dir = urlutil.RemovePackageVersion(name, dir, currentVersion)
	}
	prefix := urlutil.TarballPrefix(file)
	if prefix == "" {
		prefix = name
	}
	clean := *u
	clean.Path = dir
	clean.RawQuery = ""
	clean.Fragment = ""
	return &Descriptor{Type: TypeDirListing, URL: clean.String(), Prefix: prefix}
}
