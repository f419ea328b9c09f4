package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Event is one append-only upstream happening.
type Event struct {
	ID       int64
	Chore    string
	Category string
	Time     int64
	Title    string
	Content  string
	URL      string
}

// ChoreStatus is the incremental-poll bookkeeping of one chore.
type ChoreStatus struct {
	Name       string
	Updated    int64
	LastResult string
}

// AddEvents appends events atomically. Events are never mutated afterwards.
func (s *Store) AddEvents(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	return s.retryWithBackoff(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO events (chore, category, time, title, content, url)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, e := range events {
			_, err := stmt.ExecContext(ctx, e.Chore, nullableString(e.Category),
				e.Time, e.Title, e.Content, e.URL)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to insert event: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// RecentEvents returns the newest events, most recent first. limit <= 0
// returns everything.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, chore, category, time, title, content, url
		FROM events ORDER BY time DESC, id DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEventRows(rows)
}

// EventsByChore returns the newest events of one chore, most recent first.
func (s *Store) EventsByChore(ctx context.Context, chore string, limit int) ([]Event, error) {
	query := `
		SELECT id, chore, category, time, title, content, url
		FROM events WHERE chore = ? ORDER BY time DESC, id DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, chore)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEventRows(rows)
}

func scanEventRows(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var category, content, url sql.NullString
		if err := rows.Scan(&e.ID, &e.Chore, &category, &e.Time, &e.Title, &content, &url); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if category.Valid {
			e.Category = category.String
		}
		if content.Valid {
			e.Content = content.String
		}
		if url.Valid {
			e.URL = url.String
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// SaveChoreStatus upserts the status of one chore.
func (s *Store) SaveChoreStatus(ctx context.Context, st ChoreStatus) error {
	return s.retryWithBackoff(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO chore_status (name, updated, last_result)
			VALUES (?, ?, ?)
		`, st.Name, st.Updated, nullableString(st.LastResult))
		if err != nil {
			return fmt.Errorf("failed to save chore status: %w", err)
		}
		return nil
	})
}

// GetChoreStatus retrieves the status of one chore.
func (s *Store) GetChoreStatus(ctx context.Context, name string) (ChoreStatus, bool, error) {
	var st ChoreStatus
	var lastResult sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT name, updated, last_result FROM chore_status WHERE name = ?
	`, name).Scan(&st.Name, &st.Updated, &lastResult)
	if err == sql.ErrNoRows {
		return ChoreStatus{}, false, nil
	}
	if err != nil {
		return ChoreStatus{}, false, fmt.Errorf("failed to query chore status: %w", err)
	}
	if lastResult.Valid {
		st.LastResult = lastResult.String
	}
	return st, true, nil
}
