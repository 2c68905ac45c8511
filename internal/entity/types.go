package entity

import (
	"fmt"
	"time"
)

// Type is the coarse entity category. It is fixed at creation.
type Type string

const (
	TypeObject Type = "object"
	TypeUser   Type = "user"
	TypeGroup  Type = "group"
	TypeSite   Type = "site"
)

// SiteID is the reserved id of the singleton site entity.
const SiteID int64 = 1

// Types lists every base type in schema order.
var Types = []Type{TypeObject, TypeUser, TypeGroup, TypeSite}

// Valid reports whether t is one of the base types.
func (t Type) Valid() bool {
	switch t {
	case TypeObject, TypeUser, TypeGroup, TypeSite:
		return true
	}
	return false
}

// ParseType converts a string into a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", NewUsageError("unknown entity type %q", s)
	}
	return t, nil
}

// Entity is the capability shared by every variant.
type Entity interface {
	// Attributes returns the shared base attributes. The pointer aliases
	// the entity, so writes through it mutate the entity.
	Attributes() *Base
	// Kind returns the base type.
	Kind() Type
}

// Base holds the attributes stored in the entities table.
//
// A *Base on its own is the generic variant: base attributes without any
// extension data.
type Base struct {
	ID             int64     `json:"id"`
	Type           Type      `json:"type"`
	Subtype        string    `json:"subtype"`
	SubtypeID      int64     `json:"subtype_id"`
	OwnerID        int64     `json:"owner_id"`
	ContainerID    int64     `json:"container_id"`
	AccessLevel    int       `json:"access_level"`
	CreatedTime    time.Time `json:"created_time"`
	UpdatedTime    time.Time `json:"updated_time"`
	LastActionTime time.Time `json:"last_action_time"`
	Enabled        bool      `json:"enabled"`
}

func (b *Base) Attributes() *Base { return b }

func (b *Base) Kind() Type { return b.Type }

// IsSite reports whether b is the reserved site row.
func (b *Base) IsSite() bool { return b.ID == SiteID }

func (b *Base) String() string {
	if b.Subtype == "" {
		return fmt.Sprintf("%s#%d", b.Type, b.ID)
	}
	return fmt.Sprintf("%s:%s#%d", b.Type, b.Subtype, b.ID)
}

// Object is the default container for TypeObject.
type Object struct {
	Base
	Title       string `json:"title"`
	Description string `json:"description"`

	ExtensionLoaded bool `json:"-"`
}

func (o *Object) AsObject() *Object { return o }

// User is the default container for TypeUser.
type User struct {
	Base
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Language  string    `json:"language"`
	Banned    bool      `json:"banned"`
	Admin     bool      `json:"admin"`
	LastLogin time.Time `json:"last_login"`

	ExtensionLoaded bool `json:"-"`
}

func (u *User) AsUser() *User { return u }

// Group is the default container for TypeGroup.
type Group struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description"`

	ExtensionLoaded bool `json:"-"`
}

func (g *Group) AsGroup() *Group { return g }

// Site is the default container for TypeSite.
type Site struct {
	Base
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`

	ExtensionLoaded bool `json:"-"`
}

func (s *Site) AsSite() *Site { return s }

// ObjectEntity is implemented by *Object and by classes embedding it.
type ObjectEntity interface {
	Entity
	AsObject() *Object
}

// UserEntity is implemented by *User and by classes embedding it.
type UserEntity interface {
	Entity
	AsUser() *User
}

// GroupEntity is implemented by *Group and by classes embedding it.
type GroupEntity interface {
	Entity
	AsGroup() *Group
}

// SiteEntity is implemented by *Site and by classes embedding it.
type SiteEntity interface {
	Entity
	AsSite() *Site
}

// New returns the default variant for t populated with base.
func New(t Type, base Base) (Entity, error) {
	base.Type = t
	switch t {
	case TypeObject:
		return &Object{Base: base}, nil
	case TypeUser:
		return &User{Base: base}, nil
	case TypeGroup:
		return &Group{Base: base}, nil
	case TypeSite:
		return &Site{Base: base}, nil
	}
	return nil, NewConfigurationError("unrecognised entity type %q", t)
}

// ExtensionLoaded reports whether e carries its extension row. The generic
// variant has none and always reports true.
func ExtensionLoaded(e Entity) bool {
	switch v := e.(type) {
	case ObjectEntity:
		return v.AsObject().ExtensionLoaded
	case UserEntity:
		return v.AsUser().ExtensionLoaded
	case GroupEntity:
		return v.AsGroup().ExtensionLoaded
	case SiteEntity:
		return v.AsSite().ExtensionLoaded
	}
	return true
}
