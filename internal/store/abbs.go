package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Package is one row of the read-only abbs catalog.
type Package struct {
	Name    string
	SrcType string // SRCTBL, GITSRC, SVNSRC or BZRSRC; empty when unset
	SrcURL  string
	Version string
}

// AbbsDB reads the external abbs package catalog. The catalog is never
// written to.
type AbbsDB struct {
	db *sql.DB
}

// OpenAbbs opens an abbs database read-only.
func OpenAbbs(dbPath string) (*AbbsDB, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open abbs database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping abbs database: %w", err)
	}
	return &AbbsDB{db: db}, nil
}

// Close closes the catalog connection.
func (a *AbbsDB) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// ListPackages returns the catalog in random order, so repeated runs
// sample packages uniformly and failures spread across runs.
func (a *AbbsDB) ListPackages(ctx context.Context) ([]Package, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT name, spsrc.key AS srctype, spsrc.value AS srcurl, version
		FROM v_packages
		LEFT JOIN package_spec spsrc
		  ON spsrc.package = v_packages.name
		 AND spsrc.key IN ('SRCTBL','GITSRC','SVNSRC','BZRSRC')
		ORDER BY random()
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query abbs packages: %w", err)
	}
	defer rows.Close()

	var packages []Package
	for rows.Next() {
		var p Package
		var srcType, srcURL, version sql.NullString
		if err := rows.Scan(&p.Name, &srcType, &srcURL, &version); err != nil {
			return nil, fmt.Errorf("failed to scan abbs package: %w", err)
		}
		if srcType.Valid {
			p.SrcType = srcType.String
		}
		if srcURL.Valid {
			p.SrcURL = srcURL.String
		}
		if version.Valid {
			p.Version = version.String
		}
		packages = append(packages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating abbs packages: %w", err)
	}
	return packages, nil
}
