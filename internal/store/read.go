package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetRow returns the base row for id without any access filtering.
// Returns nil (no error) when the row does not exist.
func (s *Store) GetRow(ctx context.Context, id int64) (*Row, error) {
	r, err := scanRow(s.db.QueryRowContext(ctx,
		"SELECT "+baseColumns+" FROM entities WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get row %d: %w", id, err)
	}
	return &r, nil
}

// Exists reports whether a base row with id is present, enabled or not.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check exists %d: %w", id, err)
	}
	return n > 0, nil
}

// GetObjectRow returns the objects row for id, or nil when absent.
func (s *Store) GetObjectRow(ctx context.Context, id int64) (*ObjectRow, error) {
	var r ObjectRow
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, description FROM objects WHERE id = ?", id,
	).Scan(&r.ID, &r.Title, &r.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get object row %d: %w", id, err)
	}
	return &r, nil
}

// GetUserRow returns the users row for id, or nil when absent.
func (s *Store) GetUserRow(ctx context.Context, id int64) (*UserRow, error) {
	var r UserRow
	var banned, admin string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, username, email, language, banned, admin, last_login FROM users WHERE id = ?", id,
	).Scan(&r.ID, &r.Name, &r.Username, &r.Email, &r.Language, &banned, &admin, &r.LastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user row %d: %w", id, err)
	}
	if r.Banned, err = parseYesNo(banned); err != nil {
		return nil, fmt.Errorf("get user row %d: banned: %w", id, err)
	}
	if r.Admin, err = parseYesNo(admin); err != nil {
		return nil, fmt.Errorf("get user row %d: admin: %w", id, err)
	}
	return &r, nil
}

// GetGroupRow returns the groups row for id, or nil when absent.
func (s *Store) GetGroupRow(ctx context.Context, id int64) (*GroupRow, error) {
	var r GroupRow
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description FROM groups WHERE id = ?", id,
	).Scan(&r.ID, &r.Name, &r.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group row %d: %w", id, err)
	}
	return &r, nil
}

// GetSiteRow returns the sites row for id, or nil when absent.
func (s *Store) GetSiteRow(ctx context.Context, id int64) (*SiteRow, error) {
	var r SiteRow
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, description, url FROM sites WHERE id = ?", id,
	).Scan(&r.ID, &r.Name, &r.Description, &r.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get site row %d: %w", id, err)
	}
	return &r, nil
}

// childIDs returns the ids of entities directly contained by id.
// Rows are fully read before returning so the caller may write on the same
// connection.
func childIDs(ctx context.Context, tx *sql.Tx, id int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM entities WHERE container_id = ? AND id != ? ORDER BY id ASC", id, id)
	if err != nil {
		return nil, fmt.Errorf("query children of %d: %w", id, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var child int64
		if err := rows.Scan(&child); err != nil {
			return nil, fmt.Errorf("scan child of %d: %w", id, err)
		}
		ids = append(ids, child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children of %d: %w", id, err)
	}
	return ids, nil
}
