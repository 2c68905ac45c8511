package entities

import (
	"context"

	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/hydrate"
	"github.com/roach88/polystore/internal/subtype"
)

// RegisterClass binds a class name to a factory used when hydrating
// entities whose subtype is bound to that name.
func (s *Service) RegisterClass(name string, f hydrate.Factory) error {
	return s.hydrator.RegisterClass(name, f)
}

// AddSubtype registers (t, name) bound to class and returns its id. An
// existing pair keeps its id and its class.
func (s *Service) AddSubtype(ctx context.Context, t entity.Type, name, class string) (int64, error) {
	return s.subtypes.Add(ctx, t, name, class)
}

// UpdateSubtype rebinds the class of a registered pair. Cached entities are
// dropped so the next read uses the new class.
func (s *Service) UpdateSubtype(ctx context.Context, t entity.Type, name, class string) (bool, error) {
	ok, err := s.subtypes.Update(ctx, t, name, class)
	if ok {
		s.cache.Clear()
	}
	return ok, err
}

// RemoveSubtype deletes a registration. Entities stored with it hydrate as
// the default variant of their type from then on.
func (s *Service) RemoveSubtype(ctx context.Context, t entity.Type, name string) (bool, error) {
	ok, err := s.subtypes.Remove(ctx, t, name)
	if ok {
		s.cache.Clear()
	}
	return ok, err
}

// SubtypeID returns the id registered for (t, name).
func (s *Service) SubtypeID(ctx context.Context, t entity.Type, name string) (int64, bool, error) {
	return s.subtypes.GetID(ctx, t, name)
}

// Subtype returns the subtype name for id.
func (s *Service) Subtype(ctx context.Context, id int64) (string, bool, error) {
	return s.subtypes.GetSubtype(ctx, id)
}

// SubtypeClass returns the class bound to (t, name).
func (s *Service) SubtypeClass(ctx context.Context, t entity.Type, name string) (string, error) {
	return s.subtypes.GetClass(ctx, t, name)
}

// SubtypeClassFromID returns the class bound to a subtype id.
func (s *Service) SubtypeClassFromID(ctx context.Context, id int64) (string, error) {
	return s.subtypes.GetClassFromID(ctx, id)
}

// Subtypes lists every subtype registration.
func (s *Service) Subtypes(ctx context.Context) ([]subtype.Registration, error) {
	return s.subtypes.List(ctx)
}

// RegisterType marks (t, name) public in the registered-type directory.
// Reports whether the directory changed.
func (s *Service) RegisterType(ctx context.Context, t entity.Type, name string) (bool, error) {
	return s.directory.Register(ctx, t, name)
}

// UnregisterType removes (t, name) from the directory. A blank name removes
// the whole type, so unregister individual subtypes first.
func (s *Service) UnregisterType(ctx context.Context, t entity.Type, name string) (bool, error) {
	return s.directory.Unregister(ctx, t, name)
}

// RegisteredTypes lists the directory, restricted to t when non-empty.
// The bool is false when nothing is registered.
func (s *Service) RegisteredTypes(ctx context.Context, t entity.Type) (map[entity.Type][]string, bool, error) {
	return s.directory.List(ctx, t)
}

// IsRegisteredType reports whether (t, name) is public. Everything is
// public while the directory is empty.
func (s *Service) IsRegisteredType(ctx context.Context, t entity.Type, name string) (bool, error) {
	return s.directory.IsRegistered(ctx, t, name)
}
