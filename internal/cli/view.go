package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/roach88/polystore/internal/entity"
)

// EntityView is the output shape of one entity.
type EntityView struct {
	ID          int64           `json:"id"`
	Type        entity.Type     `json:"type"`
	Subtype     string          `json:"subtype,omitempty"`
	OwnerID     int64           `json:"owner_id"`
	ContainerID int64           `json:"container_id"`
	AccessLevel int             `json:"access_level"`
	Enabled     bool            `json:"enabled"`
	Created     strfmt.DateTime `json:"created"`
	Updated     strfmt.DateTime `json:"updated"`
	LastAction  strfmt.DateTime `json:"last_action"`
	Attributes  map[string]any  `json:"attributes,omitempty"`
}

func newEntityView(e entity.Entity) EntityView {
	b := e.Attributes()
	return EntityView{
		ID:          b.ID,
		Type:        b.Type,
		Subtype:     b.Subtype,
		OwnerID:     b.OwnerID,
		ContainerID: b.ContainerID,
		AccessLevel: b.AccessLevel,
		Enabled:     b.Enabled,
		Created:     strfmt.DateTime(b.CreatedTime),
		Updated:     strfmt.DateTime(b.UpdatedTime),
		LastAction:  strfmt.DateTime(b.LastActionTime),
		Attributes:  extensionAttributes(e),
	}
}

func (v EntityView) String() string {
	var sb strings.Builder
	name := string(v.Type)
	if v.Subtype != "" {
		name += ":" + v.Subtype
	}
	state := "enabled"
	if !v.Enabled {
		state = "disabled"
	}
	fmt.Fprintf(&sb, "%s #%d (%s)\n", name, v.ID, state)
	fmt.Fprintf(&sb, "  owner=%d container=%d access=%d\n", v.OwnerID, v.ContainerID, v.AccessLevel)
	fmt.Fprintf(&sb, "  created=%s updated=%s last_action=%s", v.Created, v.Updated, v.LastAction)

	keys := make([]string, 0, len(v.Attributes))
	for k := range v.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "\n  %s=%v", k, v.Attributes[k])
	}
	return sb.String()
}

// EntityList is the output shape of a query.
type EntityList struct {
	Count    int64        `json:"count"`
	Entities []EntityView `json:"entities"`
}

func newEntityList(count int64, list []entity.Entity) EntityList {
	out := EntityList{Count: count, Entities: make([]EntityView, 0, len(list))}
	for _, e := range list {
		out.Entities = append(out.Entities, newEntityView(e))
	}
	return out
}

func (l EntityList) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d matching", l.Count)
	for _, v := range l.Entities {
		name := string(v.Type)
		if v.Subtype != "" {
			name += ":" + v.Subtype
		}
		fmt.Fprintf(&sb, "\n  #%d %s owner=%d created=%s", v.ID, name, v.OwnerID, v.Created)
	}
	return sb.String()
}

// extensionAttributes returns the type-specific columns of e, or nil for
// the generic variant and for extensions that were never loaded.
func extensionAttributes(e entity.Entity) map[string]any {
	if !entity.ExtensionLoaded(e) {
		return nil
	}
	switch v := e.(type) {
	case entity.ObjectEntity:
		o := v.AsObject()
		return map[string]any{"title": o.Title, "description": o.Description}
	case entity.UserEntity:
		u := v.AsUser()
		m := map[string]any{
			"name": u.Name, "username": u.Username, "email": u.Email,
			"language": u.Language, "banned": u.Banned, "admin": u.Admin,
		}
		if !u.LastLogin.IsZero() {
			m["last_login"] = strfmt.DateTime(u.LastLogin).String()
		}
		return m
	case entity.GroupEntity:
		g := v.AsGroup()
		return map[string]any{"name": g.Name, "description": g.Description}
	case entity.SiteEntity:
		s := v.AsSite()
		return map[string]any{"name": s.Name, "description": s.Description, "url": s.URL}
	}
	return nil
}

// setAttributes writes extension attributes parsed from --attr flags.
func setAttributes(e entity.Entity, attrs map[string]string) error {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		val := attrs[k]
		var ok bool
		var err error
		switch v := e.(type) {
		case entity.ObjectEntity:
			ok = setString(k, val, map[string]*string{
				"title": &v.AsObject().Title, "description": &v.AsObject().Description,
			})
		case entity.UserEntity:
			ok, err = setUser(v.AsUser(), k, val)
		case entity.GroupEntity:
			ok = setString(k, val, map[string]*string{
				"name": &v.AsGroup().Name, "description": &v.AsGroup().Description,
			})
		case entity.SiteEntity:
			ok = setString(k, val, map[string]*string{
				"name": &v.AsSite().Name, "description": &v.AsSite().Description, "url": &v.AsSite().URL,
			})
		}
		if err != nil {
			return entity.NewUsageError("attribute %s: %v", k, err)
		}
		if !ok {
			return entity.NewUsageError("unknown %s attribute %q", e.Kind(), k)
		}
	}
	return nil
}

func setString(key, val string, fields map[string]*string) bool {
	p, ok := fields[key]
	if ok {
		*p = val
	}
	return ok
}

func setUser(u *entity.User, key, val string) (bool, error) {
	switch key {
	case "banned", "admin":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return true, err
		}
		if key == "banned" {
			u.Banned = b
		} else {
			u.Admin = b
		}
		return true, nil
	case "last_login":
		t, err := parseTime(val)
		if err != nil {
			return true, err
		}
		u.LastLogin = t
		return true, nil
	}
	return setString(key, val, map[string]*string{
		"name": &u.Name, "username": &u.Username, "email": &u.Email, "language": &u.Language,
	}), nil
}

// parseTime accepts RFC 3339 and the other layouts strfmt.DateTime reads.
func parseTime(s string) (time.Time, error) {
	dt, err := strfmt.ParseDateTime(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Time(dt).UTC(), nil
}
