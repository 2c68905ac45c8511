package store

import (
	"database/sql"
	"fmt"
)

// Row is a raw entities-table row.
type Row struct {
	ID             int64
	Type           string
	SubtypeID      int64
	OwnerID        int64
	ContainerID    int64
	AccessLevel    int
	CreatedTime    int64
	UpdatedTime    int64
	LastActionTime int64
	Enabled        bool
}

// ObjectRow is a raw objects-table row.
type ObjectRow struct {
	ID          int64
	Title       string
	Description string
}

// UserRow is a raw users-table row.
type UserRow struct {
	ID        int64
	Name      string
	Username  string
	Email     string
	Language  string
	Banned    bool
	Admin     bool
	LastLogin int64
}

// GroupRow is a raw groups-table row.
type GroupRow struct {
	ID          int64
	Name        string
	Description string
}

// SiteRow is a raw sites-table row.
type SiteRow struct {
	ID          int64
	Name        string
	Description string
	URL         string
}

// SubtypeRow is a raw entity_subtypes-table row.
type SubtypeRow struct {
	ID      int64
	Type    string
	Subtype string
	Class   string
}

// baseColumns is the SELECT list matching scanRow.
const baseColumns = "id, type, subtype_id, owner_id, container_id, access_level, created_time, updated_time, last_action_time, enabled"

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRow reads the base columns in schema order.
func scanRow(sc scanner) (Row, error) {
	var r Row
	var enabled string
	err := sc.Scan(
		&r.ID,
		&r.Type,
		&r.SubtypeID,
		&r.OwnerID,
		&r.ContainerID,
		&r.AccessLevel,
		&r.CreatedTime,
		&r.UpdatedTime,
		&r.LastActionTime,
		&enabled,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return Row{}, err
		}
		return Row{}, fmt.Errorf("scan row: %w", err)
	}
	r.Enabled, err = parseYesNo(enabled)
	if err != nil {
		return Row{}, fmt.Errorf("scan row %d: %w", r.ID, err)
	}
	return r, nil
}

// yesNo encodes a flag the way the schema stores it.
func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// parseYesNo decodes a stored flag.
func parseYesNo(s string) (bool, error) {
	switch s {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid flag value %q", s)
}
