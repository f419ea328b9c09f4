package anitya

import (
	"regexp"
	"sort"
	"strings"
)

// projectCollapse strips a leading "<host>/" part and all name separators
// from an Anitya project name before matching.
var projectCollapse = regexp.MustCompile(`^[^/]+/|[. _-]`)

// ecosystemRank orders ecosystems by how trustworthy their project naming
// is; everything unlisted sorts after these, alphabetically. The ordering
// lives here in the application instead of a SQL collation.
var ecosystemRank = map[string]int{
	"pypi":      0,
	"npm":       1,
	"rubygems":  2,
	"maven":     3,
	"crates.io": 4,
}

// collapseName lowercases a package name and removes dots, spaces, dashes
// and underscores.
func collapseName(name string) string {
	name = strings.ToLower(name)
	for _, cut := range []string{".", " ", "-", "_"} {
		name = strings.ReplaceAll(name, cut, "")
	}
	return name
}

// betterProject reports whether a should be preferred over b when both
// collapse to the same name: higher ecosystem priority first, then the
// smaller id for determinism.
func betterProject(a, b Project) bool {
	ra, aOK := ecosystemRank[strings.ToLower(a.Ecosystem)]
	rb, bOK := ecosystemRank[strings.ToLower(b.Ecosystem)]
	switch {
	case aOK && bOK:
		if ra != rb {
			return ra < rb
		}
	case aOK:
		return true
	case bOK:
		return false
	default:
		ea, eb := strings.ToLower(a.Ecosystem), strings.ToLower(b.Ecosystem)
		if ea != eb {
			return ea < eb
		}
	}
	return a.ID < b.ID
}

// DetectLinks matches packages to mirrored projects by collapsed name and
// returns a package → project id map. When several projects collapse to
// the same name the ecosystem priority decides, ties broken by id.
func DetectLinks(packages []string, projects []Project) map[string]int64 {
	index := make(map[string]Project, len(projects))
	// Deterministic iteration keeps the winner stable across syncs.
	ordered := make([]Project, len(projects))
	copy(ordered, projects)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for _, p := range ordered {
		key := projectCollapse.ReplaceAllString(strings.ToLower(p.Name), "")
		if key == "" {
			continue
		}
		if cur, ok := index[key]; !ok || betterProject(p, cur) {
			index[key] = p
		}
	}

	links := make(map[string]int64)
	for _, pkg := range packages {
		if p, ok := index[collapseName(pkg)]; ok {
			links[pkg] = p.ID
		}
	}
	return links
}
