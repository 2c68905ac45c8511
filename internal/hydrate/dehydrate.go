package hydrate

import (
	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/store"
)

// ToRows splits e into its base row and extension row. The extension row is
// nil for the generic variant.
func ToRows(e entity.Entity) (store.Row, store.ExtensionRow) {
	b := e.Attributes()
	row := store.Row{
		ID:             b.ID,
		Type:           string(b.Type),
		SubtypeID:      b.SubtypeID,
		OwnerID:        b.OwnerID,
		ContainerID:    b.ContainerID,
		AccessLevel:    b.AccessLevel,
		CreatedTime:    entity.ToUnix(b.CreatedTime),
		UpdatedTime:    entity.ToUnix(b.UpdatedTime),
		LastActionTime: entity.ToUnix(b.LastActionTime),
		Enabled:        b.Enabled,
	}

	switch v := e.(type) {
	case entity.ObjectEntity:
		o := v.AsObject()
		return row, store.ObjectRow{ID: b.ID, Title: o.Title, Description: o.Description}
	case entity.UserEntity:
		u := v.AsUser()
		return row, store.UserRow{
			ID:        b.ID,
			Name:      u.Name,
			Username:  u.Username,
			Email:     u.Email,
			Language:  u.Language,
			Banned:    u.Banned,
			Admin:     u.Admin,
			LastLogin: entity.ToUnix(u.LastLogin),
		}
	case entity.GroupEntity:
		g := v.AsGroup()
		return row, store.GroupRow{ID: b.ID, Name: g.Name, Description: g.Description}
	case entity.SiteEntity:
		s := v.AsSite()
		return row, store.SiteRow{ID: b.ID, Name: s.Name, Description: s.Description, URL: s.URL}
	}
	return row, nil
}
