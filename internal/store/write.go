package store

import (
	"context"
	"database/sql"
	"fmt"
)

// MaxRecursionDepth bounds the container walk of a recursive Enable or
// Disable. The visited set already guarantees termination on cycles; the
// depth bound caps the work done on very deep containment chains.
const MaxRecursionDepth = 256

// ExtensionRow is one of ObjectRow, UserRow, GroupRow or SiteRow.
//
// This is a sealed interface - only types in this package implement it.
type ExtensionRow interface {
	upsert(ctx context.Context, tx *sql.Tx, id int64) error
}

func (r ObjectRow) upsert(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO objects (id, title, description)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, description = excluded.description
	`, id, r.Title, r.Description)
	return err
}

func (r UserRow) upsert(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, name, username, email, language, banned, admin, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			username = excluded.username,
			email = excluded.email,
			language = excluded.language,
			banned = excluded.banned,
			admin = excluded.admin,
			last_login = excluded.last_login
	`, id, r.Name, r.Username, r.Email, r.Language, yesNo(r.Banned), yesNo(r.Admin), r.LastLogin)
	return err
}

func (r GroupRow) upsert(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO groups (id, name, description)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description
	`, id, r.Name, r.Description)
	return err
}

func (r SiteRow) upsert(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sites (id, name, description, url)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description, url = excluded.url
	`, id, r.Name, r.Description, r.URL)
	return err
}

// Insert writes a new base row and its extension row in one transaction and
// returns the assigned id. A non-zero row.ID is used as-is (the site row is
// installed with the reserved id 1); otherwise the id is allocated.
//
// ext may be nil for a base-only write.
func (s *Store) Insert(ctx context.Context, row Row, ext ExtensionRow) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert entity: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var idArg any
	if row.ID != 0 {
		idArg = row.ID
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO entities
		(id, type, subtype_id, owner_id, container_id, access_level, created_time, updated_time, last_action_time, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		idArg,
		row.Type,
		row.SubtypeID,
		row.OwnerID,
		row.ContainerID,
		row.AccessLevel,
		row.CreatedTime,
		row.UpdatedTime,
		row.LastActionTime,
		yesNo(row.Enabled),
	)
	if err != nil {
		return 0, fmt.Errorf("insert entity: base row: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert entity: last insert id: %w", err)
	}

	if ext != nil {
		if err := ext.upsert(ctx, tx, id); err != nil {
			return 0, fmt.Errorf("insert entity %d: extension row: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert entity: commit: %w", err)
	}

	return id, nil
}

// Update rewrites the mutable base attributes of row.ID and upserts its
// extension row in one transaction. Type and subtype are immutable and are
// not written. Returns false when no base row with that id exists.
func (s *Store) Update(ctx context.Context, row Row, ext ExtensionRow) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("update entity %d: begin tx: %w", row.ID, err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE entities
		SET owner_id = ?, container_id = ?, access_level = ?, updated_time = ?, last_action_time = ?, enabled = ?
		WHERE id = ?
	`,
		row.OwnerID,
		row.ContainerID,
		row.AccessLevel,
		row.UpdatedTime,
		row.LastActionTime,
		yesNo(row.Enabled),
		row.ID,
	)
	if err != nil {
		return false, fmt.Errorf("update entity %d: base row: %w", row.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update entity %d: rows affected: %w", row.ID, err)
	}
	if affected == 0 {
		return false, nil
	}

	if ext != nil {
		if err := ext.upsert(ctx, tx, row.ID); err != nil {
			return false, fmt.Errorf("update entity %d: extension row: %w", row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("update entity %d: commit: %w", row.ID, err)
	}

	return true, nil
}

// UpdateLastAction sets last_action_time only. Returns false when the row
// does not exist.
func (s *Store) UpdateLastAction(ctx context.Context, id, ts int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE entities SET last_action_time = ? WHERE id = ?", ts, id)
	if err != nil {
		return false, fmt.Errorf("update last action %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update last action %d: rows affected: %w", id, err)
	}
	return affected > 0, nil
}

// Enable sets enabled='yes' on id. When recursive, every entity reachable
// through container_id is enabled as well.
//
// Returns the ids whose state actually changed, in visit order, and whether
// id exists at all.
func (s *Store) Enable(ctx context.Context, id int64, recursive bool) ([]int64, bool, error) {
	return s.setEnabled(ctx, id, true, recursive)
}

// Disable sets enabled='no' on id, optionally cascading to contained
// entities. Rows are never deleted. See Enable for the return values.
func (s *Store) Disable(ctx context.Context, id int64, recursive bool) ([]int64, bool, error) {
	return s.setEnabled(ctx, id, false, recursive)
}

// setEnabled walks the containment graph breadth-first. Each id is visited
// at most once, so container cycles terminate.
func (s *Store) setEnabled(ctx context.Context, id int64, enabled, recursive bool) ([]int64, bool, error) {
	op := "disable"
	if enabled {
		op = "enable"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%s %d: begin tx: %w", op, id, err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities WHERE id = ?", id).Scan(&n); err != nil {
		return nil, false, fmt.Errorf("%s %d: check exists: %w", op, id, err)
	}
	if n == 0 {
		return nil, false, nil
	}

	type visit struct {
		id    int64
		depth int
	}

	changed := []int64{}
	visited := map[int64]bool{}
	queue := []visit{{id: id}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true

		result, err := tx.ExecContext(ctx,
			"UPDATE entities SET enabled = ? WHERE id = ? AND enabled = ?",
			yesNo(enabled), cur.id, yesNo(!enabled))
		if err != nil {
			return nil, false, fmt.Errorf("%s %d: update: %w", op, cur.id, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, false, fmt.Errorf("%s %d: rows affected: %w", op, cur.id, err)
		}
		if affected > 0 {
			changed = append(changed, cur.id)
		}

		if !recursive || cur.depth >= MaxRecursionDepth {
			continue
		}
		children, err := childIDs(ctx, tx, cur.id)
		if err != nil {
			return nil, false, fmt.Errorf("%s %d: %w", op, cur.id, err)
		}
		for _, child := range children {
			if !visited[child] {
				queue = append(queue, visit{id: child, depth: cur.depth + 1})
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%s %d: commit: %w", op, id, err)
	}

	return changed, true, nil
}
