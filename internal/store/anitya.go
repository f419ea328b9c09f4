package store

import (
	"context"
	"fmt"
	"log"

	"github.com/aosc-dev/puis/internal/anitya"
)

// ReplaceAnityaProjects upserts the mirrored project index in one
// transaction.
func (s *Store) ReplaceAnityaProjects(ctx context.Context, projects []anitya.Project) error {
	return s.retryWithBackoff(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO anitya_projects
			(id, name, homepage, ecosystem, backend, version_url, regex,
			 latest_version, updated_on, created_on)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range projects {
			_, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Homepage, p.Ecosystem,
				p.Backend, p.VersionURL, p.Regex, p.LatestVersion, p.UpdatedOn, p.CreatedOn)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to insert anitya project %d: %w", p.ID, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		log.Printf("Stored %d anitya projects", len(projects))
		return nil
	})
}

// ReplaceAnityaLinks upserts the package → project matches.
func (s *Store) ReplaceAnityaLinks(ctx context.Context, links map[string]int64) error {
	return s.retryWithBackoff(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO anitya_link (package, projectid) VALUES (?, ?)
		`)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for pkg, projectID := range links {
			if _, err := stmt.ExecContext(ctx, pkg, projectID); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to insert anitya link for %s: %w", pkg, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		log.Printf("Stored %d anitya links", len(links))
		return nil
	})
}

// ListAnityaProjects returns the whole mirrored index.
func (s *Store) ListAnityaProjects(ctx context.Context) ([]anitya.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, homepage, ecosystem, backend, version_url, regex,
		       latest_version, updated_on, created_on
		FROM anitya_projects ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query anitya projects: %w", err)
	}
	defer rows.Close()

	var projects []anitya.Project
	for rows.Next() {
		var p anitya.Project
		err := rows.Scan(&p.ID, &p.Name, &p.Homepage, &p.Ecosystem, &p.Backend,
			&p.VersionURL, &p.Regex, &p.LatestVersion, &p.UpdatedOn, &p.CreatedOn)
		if err != nil {
			return nil, fmt.Errorf("failed to scan anitya project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anitya projects: %w", err)
	}
	return projects, nil
}
