package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetDatalist returns the named value and whether it is set.
func (s *Store) GetDatalist(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM datalists WHERE name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get datalist %q: %w", name, err)
	}
	return value, true, nil
}

// SetDatalist stores value under name, replacing any previous value.
func (s *Store) SetDatalist(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO datalists (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`, name, value)
	if err != nil {
		return fmt.Errorf("set datalist %q: %w", name, err)
	}
	return nil
}
