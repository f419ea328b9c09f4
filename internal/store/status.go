package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Poll backoff windows, in seconds.
const (
	// SuccessBackoff delays re-polling a package whose last attempt
	// succeeded.
	SuccessBackoff = 7200
	// FailureBackoff delays packages that came back "not found" or with
	// an HTTP error.
	FailureBackoff = 3 * 86400
)

// UpstreamStatus is the per-package poll bookkeeping row.
type UpstreamStatus struct {
	Package string
	Updated int64 // last successful check
	LastTry int64
	Err     string
}

// PackageUpstream is the per-package discovered release row.
type PackageUpstream struct {
	Package string
	Type    string
	Version string
	Time    int64
	URL     string
}

// SaveUpstreamStatus upserts the poll status of one package.
func (s *Store) SaveUpstreamStatus(ctx context.Context, st UpstreamStatus) error {
	return s.retryWithBackoff(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO upstream_status (package, updated, last_try, err)
			VALUES (?, ?, ?, ?)
		`, st.Package, nullableInt(st.Updated), st.LastTry, nullableString(st.Err))
		if err != nil {
			return fmt.Errorf("failed to save upstream status: %w", err)
		}
		return nil
	})
}

// GetUpstreamStatus retrieves the poll status of one package.
func (s *Store) GetUpstreamStatus(ctx context.Context, pkg string) (UpstreamStatus, bool, error) {
	var st UpstreamStatus
	var updated sql.NullInt64
	var errStr sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT package, updated, last_try, err FROM upstream_status WHERE package = ?
	`, pkg).Scan(&st.Package, &updated, &st.LastTry, &errStr)
	if err == sql.ErrNoRows {
		return UpstreamStatus{}, false, nil
	}
	if err != nil {
		return UpstreamStatus{}, false, fmt.Errorf("failed to query upstream status: %w", err)
	}
	if updated.Valid {
		st.Updated = updated.Int64
	}
	if errStr.Valid {
		st.Err = errStr.String
	}
	return st, true, nil
}

// DelayedPackages computes the set of packages still inside their backoff
// window at the given time. Both backoff rules live in one predicate so
// the set is consistent within a run.
func (s *Store) DelayedPackages(ctx context.Context, now int64) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package FROM upstream_status
		WHERE last_try + ? > ?
		   OR ((err = 'not found' OR err LIKE 'HTTPError%') AND last_try + ? > ?)
	`, SuccessBackoff, now, FailureBackoff, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query delayed packages: %w", err)
	}
	defer rows.Close()

	delayed := make(map[string]bool)
	for rows.Next() {
		var pkg string
		if err := rows.Scan(&pkg); err != nil {
			return nil, fmt.Errorf("failed to scan delayed package: %w", err)
		}
		delayed[pkg] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating delayed packages: %w", err)
	}
	return delayed, nil
}

// SavePackageUpstream upserts the discovered release of one package.
func (s *Store) SavePackageUpstream(ctx context.Context, pu PackageUpstream) error {
	return s.retryWithBackoff(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO package_upstream (package, type, version, time, url)
			VALUES (?, ?, ?, ?, ?)
		`, pu.Package, pu.Type, pu.Version, pu.Time, pu.URL)
		if err != nil {
			return fmt.Errorf("failed to save package upstream: %w", err)
		}
		return nil
	})
}

// GetPackageUpstream retrieves the stored release of one package, read
// through the view so Anitya results fill the gaps.
func (s *Store) GetPackageUpstream(ctx context.Context, pkg string) (PackageUpstream, bool, error) {
	var pu PackageUpstream
	err := s.db.QueryRowContext(ctx, `
		SELECT package, type, version, time, url FROM v_package_upstream WHERE package = ?
	`, pkg).Scan(&pu.Package, &pu.Type, &pu.Version, &pu.Time, &pu.URL)
	if err == sql.ErrNoRows {
		return PackageUpstream{}, false, nil
	}
	if err != nil {
		return PackageUpstream{}, false, fmt.Errorf("failed to query package upstream: %w", err)
	}
	return pu, true, nil
}

// ListPackageUpstreams returns all known releases through the merged view.
func (s *Store) ListPackageUpstreams(ctx context.Context) ([]PackageUpstream, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package, type, version, time, url FROM v_package_upstream ORDER BY package
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query package upstreams: %w", err)
	}
	defer rows.Close()

	var out []PackageUpstream
	for rows.Next() {
		var pu PackageUpstream
		if err := rows.Scan(&pu.Package, &pu.Type, &pu.Version, &pu.Time, &pu.URL); err != nil {
			return nil, fmt.Errorf("failed to scan package upstream: %w", err)
		}
		out = append(out, pu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating package upstreams: %w", err)
	}
	return out, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int64) interface{} {
	if n == 0 {
		return nil
	}
	return n
}
