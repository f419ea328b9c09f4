package probe

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/jlaffaye/ftp"

	"github.com/aosc-dev/puis/internal/detect"
	"github.com/aosc-dev/puis/internal/version"
)

// ftpDial is replaced by tests.
var ftpDial = func(ctx context.Context, addr string) (ftpConn, error) {
	return ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(requestTimeout))
}

// ftpConn is the slice of the FTP client the probe needs.
type ftpConn interface {
	Login(user, password string) error
	List(path string) ([]*ftp.Entry, error)
	Quit() error
}

// probeFTP lists an FTP directory and scores the tarball filenames. The
// most recent entry mtime is kept in the status blob: an unchanged
// directory short-circuits before any diffing.
func probeFTP(ctx context.Context, pkg, currentVersion string, desc *detect.Descriptor, status Status, now int64) Result {
	u, err := url.Parse(desc.URL)
	if err != nil {
		return Result{Status: status, Err: err}
	}
	addr := u.Host
	if u.Port() == "" {
		addr += ":21"
	}

	conn, err := ftpDial(ctx, addr)
	if err != nil {
		return Result{Status: status, Err: err}
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		if name := u.User.Username(); name != "" {
			user = name
		}
		if pw, ok := u.User.Password(); ok {
			pass = pw
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return Result{Status: status, Err: err}
	}

	ftpEntries, err := conn.List(u.Path)
	if err != nil {
		return Result{Status: status, Err: err}
	}

	ext := loadExtStatus(status)
	var names []string
	var tarballs []version.Tarball
	var mtime int64
	for _, e := range ftpEntries {
		name := e.Name
		if name == "." || name == ".." {
			continue
		}
		if e.Type == ftp.EntryTypeFolder {
			name += "/"
		}
		when := e.Time.Unix()
		if when > mtime {
			mtime = when
		}
		names = append(names, name)
		tarballs = append(tarballs, version.Tarball{Name: name, Updated: when})
	}
	sort.Strings(names)

	if mtime != 0 && mtime == ext.Mtime {
		// Directory unchanged since the last poll.
		return Result{Status: ext.save(now)}
	}

	oldNames := ext.Entries
	ext.Entries = names
	ext.Mtime = mtime
	newStatus := ext.save(now)

	var events []Event
	if len(oldNames) > 0 {
		category := desc.Kind
		if category == "" {
			category = "file"
		}
		when := mtime
		if when == 0 {
			when = now
		}
		if evt := diffEvent(oldNames, names, category, pkg+" FTP directory changed", desc.URL, when); evt != nil {
			events = append(events, *evt)
		}
	}

	prefix := desc.Prefix
	if prefix == "" {
		prefix = pkg
	}
	ver, updated, ok := version.TarballMaxVer(tarballs, prefix, currentVersion)
	if !ok {
		return Result{Events: events, Status: newStatus, Err: ErrNotFound}
	}
	fileURL := desc.URL
	if !strings.HasSuffix(fileURL, "/") {
		fileURL += "/"
	}
	rel := NewRelease(pkg, detect.TypeFTP, ver, updated, fileURL)
	return Result{Release: rel, Events: events, Status: newStatus}
}
