// Package hydrate turns raw rows into typed entities and back.
//
// Class resolution goes through the subtype registry: a subtype bound to a
// class name is instantiated through the Factory registered under that
// name; an unbound (or orphaned) subtype gets the default variant for its
// base type. An unrecognised base type, or a bound class with no factory,
// is a configuration error and aborts hydration.
package hydrate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/store"
	"github.com/roach88/polystore/internal/subtype"
)

// Factory builds an instance of a bound class from base attributes.
// The returned entity must report the same Kind as base.Type.
type Factory func(base entity.Base) (entity.Entity, error)

// Mode selects when extension rows are read.
type Mode int

const (
	// Eager reads the extension row during hydration.
	Eager Mode = iota
	// Lazy leaves the extension row for an explicit LoadExtension call.
	Lazy
)

// ParseMode converts "eager" or "lazy" into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "eager":
		return Eager, nil
	case "lazy":
		return Lazy, nil
	}
	return Eager, fmt.Errorf("unknown hydration mode %q", s)
}

// Backend reads extension rows. *store.Store implements it.
type Backend interface {
	GetObjectRow(ctx context.Context, id int64) (*store.ObjectRow, error)
	GetUserRow(ctx context.Context, id int64) (*store.UserRow, error)
	GetGroupRow(ctx context.Context, id int64) (*store.GroupRow, error)
	GetSiteRow(ctx context.Context, id int64) (*store.SiteRow, error)
}

// Subtypes resolves subtype ids. *subtype.Registry implements it.
type Subtypes interface {
	Get(ctx context.Context, id int64) (subtype.Registration, bool, error)
}

// Hydrator converts rows to entities.
//
// Thread-safety: RegisterClass and RowToEntity are safe for concurrent use.
type Hydrator struct {
	backend  Backend
	subtypes Subtypes
	mode     Mode
	logger   *slog.Logger

	mu      sync.RWMutex
	classes map[string]Factory
}

// Option configures a Hydrator.
type Option func(*Hydrator)

// WithMode sets the extension loading strategy. Default: Eager.
func WithMode(m Mode) Option {
	return func(h *Hydrator) { h.mode = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Hydrator) { h.logger = l }
}

// New creates a Hydrator.
func New(backend Backend, subtypes Subtypes, opts ...Option) *Hydrator {
	h := &Hydrator{
		backend:  backend,
		subtypes: subtypes,
		mode:     Eager,
		logger:   slog.Default(),
		classes:  make(map[string]Factory),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mode returns the configured extension loading strategy.
func (h *Hydrator) Mode() Mode { return h.mode }

// RegisterClass binds a class name to a factory. Registering the same name
// twice is an error.
func (h *Hydrator) RegisterClass(name string, f Factory) error {
	if name == "" || f == nil {
		return entity.NewUsageError("class registration needs a name and a factory")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.classes[name]; exists {
		return entity.NewValidationError("class %q already registered", name)
	}
	h.classes[name] = f
	return nil
}

// HasClass reports whether a factory is registered under name.
func (h *Hydrator) HasClass(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.classes[name]
	return ok
}

// BaseFromRow resolves the subtype of row and returns its base attributes
// together with the bound class name ("" when none).
func (h *Hydrator) BaseFromRow(ctx context.Context, row store.Row) (entity.Base, string, error) {
	t := entity.Type(row.Type)
	if !t.Valid() {
		return entity.Base{}, "", entity.NewConfigurationError("entity %d has unrecognised type %q", row.ID, row.Type)
	}

	base := entity.Base{
		ID:             row.ID,
		Type:           t,
		SubtypeID:      row.SubtypeID,
		OwnerID:        row.OwnerID,
		ContainerID:    row.ContainerID,
		AccessLevel:    row.AccessLevel,
		CreatedTime:    entity.FromUnix(row.CreatedTime),
		UpdatedTime:    entity.FromUnix(row.UpdatedTime),
		LastActionTime: entity.FromUnix(row.LastActionTime),
		Enabled:        row.Enabled,
	}

	if row.SubtypeID == 0 {
		return base, "", nil
	}

	reg, ok, err := h.subtypes.Get(ctx, row.SubtypeID)
	if err != nil {
		return entity.Base{}, "", fmt.Errorf("hydrate %d: %w", row.ID, err)
	}
	if !ok || reg.Type != t {
		h.logger.Warn("orphaned subtype id; using default class",
			"id", row.ID, "type", row.Type, "subtype_id", row.SubtypeID)
		return base, "", nil
	}

	base.Subtype = reg.Subtype
	return base, reg.Class, nil
}

// RowToEntity hydrates row into its bound class or the default variant for
// its type.
func (h *Hydrator) RowToEntity(ctx context.Context, row store.Row) (entity.Entity, error) {
	base, class, err := h.BaseFromRow(ctx, row)
	if err != nil {
		return nil, err
	}

	var e entity.Entity
	if class != "" {
		e, err = h.instantiate(class, base)
	} else {
		e, err = entity.New(base.Type, base)
	}
	if err != nil {
		return nil, err
	}

	if h.mode == Eager {
		if err := h.LoadExtension(ctx, e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (h *Hydrator) instantiate(class string, base entity.Base) (entity.Entity, error) {
	h.mu.RLock()
	f, ok := h.classes[class]
	h.mu.RUnlock()
	if !ok {
		return nil, entity.NewConfigurationError("class %q bound to %s is not registered", class, base.String())
	}

	e, err := f(base)
	if err != nil {
		return nil, entity.NewConfigurationError("class %q cannot be instantiated for %s: %v", class, base.String(), err)
	}
	if e == nil || e.Kind() != base.Type {
		return nil, entity.NewConfigurationError("class %q does not extend the %s type", class, base.Type)
	}
	return e, nil
}

// LoadExtension reads the extension row of e if it has not been read yet.
// A missing extension row leaves the extension fields at their zero values.
func (h *Hydrator) LoadExtension(ctx context.Context, e entity.Entity) error {
	id := e.Attributes().ID
	if id == 0 || entity.ExtensionLoaded(e) {
		return nil
	}

	var missing bool
	switch v := e.(type) {
	case entity.ObjectEntity:
		o := v.AsObject()
		row, err := h.backend.GetObjectRow(ctx, id)
		if err != nil {
			return fmt.Errorf("load extension %d: %w", id, err)
		}
		if row != nil {
			o.Title, o.Description = row.Title, row.Description
		}
		o.ExtensionLoaded, missing = true, row == nil
	case entity.UserEntity:
		u := v.AsUser()
		row, err := h.backend.GetUserRow(ctx, id)
		if err != nil {
			return fmt.Errorf("load extension %d: %w", id, err)
		}
		if row != nil {
			u.Name, u.Username, u.Email, u.Language = row.Name, row.Username, row.Email, row.Language
			u.Banned, u.Admin = row.Banned, row.Admin
			u.LastLogin = entity.FromUnix(row.LastLogin)
		}
		u.ExtensionLoaded, missing = true, row == nil
	case entity.GroupEntity:
		g := v.AsGroup()
		row, err := h.backend.GetGroupRow(ctx, id)
		if err != nil {
			return fmt.Errorf("load extension %d: %w", id, err)
		}
		if row != nil {
			g.Name, g.Description = row.Name, row.Description
		}
		g.ExtensionLoaded, missing = true, row == nil
	case entity.SiteEntity:
		s := v.AsSite()
		row, err := h.backend.GetSiteRow(ctx, id)
		if err != nil {
			return fmt.Errorf("load extension %d: %w", id, err)
		}
		if row != nil {
			s.Name, s.Description, s.URL = row.Name, row.Description, row.URL
		}
		s.ExtensionLoaded, missing = true, row == nil
	}

	if missing {
		h.logger.Warn("extension row missing", "id", id, "type", e.Kind())
	}
	return nil
}
