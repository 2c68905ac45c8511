package store

import (
	"context"
	"fmt"
)

// SubtypeRows returns every subtype registration ordered by id.
func (s *Store) SubtypeRows(ctx context.Context) ([]SubtypeRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, type, subtype, class FROM entity_subtypes ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("query subtypes: %w", err)
	}
	defer rows.Close()

	result := []SubtypeRow{}
	for rows.Next() {
		var r SubtypeRow
		if err := rows.Scan(&r.ID, &r.Type, &r.Subtype, &r.Class); err != nil {
			return nil, fmt.Errorf("scan subtype: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subtypes: %w", err)
	}
	return result, nil
}

// InsertSubtype registers (type, subtype) with class.
// Uses ON CONFLICT(type, subtype) DO NOTHING: if the pair already exists the
// existing id is returned with inserted=false and the stored class is left
// untouched.
func (s *Store) InsertSubtype(ctx context.Context, typ, subtype, class string) (id int64, inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("insert subtype: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO entity_subtypes (type, subtype, class)
		VALUES (?, ?, ?)
		ON CONFLICT(type, subtype) DO NOTHING
	`, typ, subtype, class)
	if err != nil {
		return 0, false, fmt.Errorf("insert subtype: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("insert subtype: rows affected: %w", err)
	}

	if rowsAffected > 0 {
		id, err = result.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("insert subtype: last insert id: %w", err)
		}
		inserted = true
	} else {
		err = tx.QueryRowContext(ctx,
			"SELECT id FROM entity_subtypes WHERE type = ? AND subtype = ?", typ, subtype,
		).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("insert subtype: select existing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("insert subtype: commit: %w", err)
	}

	return id, inserted, nil
}

// UpdateSubtypeClass rebinds the class of an existing registration.
// Returns false when the pair is not registered.
func (s *Store) UpdateSubtypeClass(ctx context.Context, typ, subtype, class string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE entity_subtypes SET class = ? WHERE type = ? AND subtype = ?", class, typ, subtype)
	if err != nil {
		return false, fmt.Errorf("update subtype: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update subtype: rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteSubtype removes a registration. Entities referencing the id are not
// touched.
func (s *Store) DeleteSubtype(ctx context.Context, typ, subtype string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM entity_subtypes WHERE type = ? AND subtype = ?", typ, subtype)
	if err != nil {
		return false, fmt.Errorf("delete subtype: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete subtype: rows affected: %w", err)
	}
	return affected > 0, nil
}
