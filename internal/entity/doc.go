// Package entity defines the typed records stored by polystore.
//
// Every record shares a set of base attributes (Base) and carries optional
// type-specific extension data. The variant set is closed:
//
//   - Object, User, Group, Site: default containers for each base type
//   - Base: the generic variant, base attributes only
//
// Implementation classes bound to a subtype embed one of the four defaults
// and are recognised through the ObjectEntity, UserEntity, GroupEntity and
// SiteEntity capability interfaces.
//
// This package contains type definitions only and imports nothing internal.
package entity
