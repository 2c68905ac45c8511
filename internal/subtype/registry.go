// Package subtype maps (type, subtype) pairs to stable numeric ids and
// optional implementation-class names.
//
// Lookups run on every row hydration, so the whole entity_subtypes table is
// cached in-process on first use. Add, Update and Remove drop the cache;
// the next lookup reloads it.
package subtype

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/store"
)

// Backend is the subset of the row store the registry needs.
// *store.Store implements it.
type Backend interface {
	SubtypeRows(ctx context.Context) ([]store.SubtypeRow, error)
	InsertSubtype(ctx context.Context, typ, subtype, class string) (int64, bool, error)
	UpdateSubtypeClass(ctx context.Context, typ, subtype, class string) (bool, error)
	DeleteSubtype(ctx context.Context, typ, subtype string) (bool, error)
}

// Registration is one (type, subtype) binding.
type Registration struct {
	ID      int64       `json:"id"`
	Type    entity.Type `json:"type"`
	Subtype string      `json:"subtype"`
	Class   string      `json:"class,omitempty"`
}

type key struct {
	typ     entity.Type
	subtype string
}

// Registry is the process-wide subtype cache.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	backend Backend
	logger  *slog.Logger

	mu     sync.RWMutex
	loaded bool
	gen    uint64 // bumped by invalidate
	byKey  map[key]Registration
	byID   map[int64]Registration
}

// New creates a Registry over backend. A nil logger uses slog.Default().
func New(backend Backend, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{backend: backend, logger: logger}
}

// Normalize returns the canonical (NFC) form of a subtype name. Names that
// differ only in Unicode composition resolve to the same registration.
func Normalize(subtype string) string {
	return norm.NFC.String(subtype)
}

// GetID returns the id registered for (typ, subtype).
// The empty subtype always resolves to 0 without a registration.
func (r *Registry) GetID(ctx context.Context, typ entity.Type, subtype string) (int64, bool, error) {
	if subtype == "" {
		return 0, true, nil
	}
	reg, ok, err := r.lookup(ctx, typ, subtype)
	return reg.ID, ok, err
}

// GetSubtype returns the subtype name for id. Id 0 is the empty subtype.
func (r *Registry) GetSubtype(ctx context.Context, id int64) (string, bool, error) {
	if id == 0 {
		return "", true, nil
	}
	reg, ok, err := r.lookupID(ctx, id)
	return reg.Subtype, ok, err
}

// GetClass returns the class bound to (typ, subtype), or "" when none is
// bound or the pair is unregistered.
func (r *Registry) GetClass(ctx context.Context, typ entity.Type, subtype string) (string, error) {
	reg, _, err := r.lookup(ctx, typ, subtype)
	return reg.Class, err
}

// GetClassFromID returns the class bound to a subtype id.
func (r *Registry) GetClassFromID(ctx context.Context, id int64) (string, error) {
	reg, _, err := r.lookupID(ctx, id)
	return reg.Class, err
}

// Get returns the registration for id.
func (r *Registry) Get(ctx context.Context, id int64) (Registration, bool, error) {
	return r.lookupID(ctx, id)
}

// Add registers (typ, subtype) bound to class and returns its id.
//
// Adding an existing pair returns the existing id and leaves its class
// binding unchanged; use Update to rebind.
func (r *Registry) Add(ctx context.Context, typ entity.Type, subtype, class string) (int64, error) {
	if !typ.Valid() {
		return 0, entity.NewUsageError("cannot register subtype for unknown type %q", typ)
	}
	subtype = Normalize(subtype)
	if subtype == "" {
		return 0, entity.NewUsageError("cannot register an empty subtype")
	}

	id, inserted, err := r.backend.InsertSubtype(ctx, string(typ), subtype, class)
	if err != nil {
		return 0, fmt.Errorf("add subtype %s:%s: %w", typ, subtype, err)
	}
	r.invalidate()

	if inserted {
		r.logger.Info("subtype registered", "type", typ, "subtype", subtype, "id", id, "class", class)
	} else {
		r.logger.Debug("subtype already registered", "type", typ, "subtype", subtype, "id", id)
	}
	return id, nil
}

// Update rebinds the class of a registered pair. Returns false when the
// pair is not registered.
func (r *Registry) Update(ctx context.Context, typ entity.Type, subtype, class string) (bool, error) {
	subtype = Normalize(subtype)
	ok, err := r.backend.UpdateSubtypeClass(ctx, string(typ), subtype, class)
	if err != nil {
		return false, fmt.Errorf("update subtype %s:%s: %w", typ, subtype, err)
	}
	r.invalidate()
	return ok, nil
}

// Remove deletes a registration. Entities already stored with its id are
// left as they are and hydrate as the default variant of their type.
func (r *Registry) Remove(ctx context.Context, typ entity.Type, subtype string) (bool, error) {
	subtype = Normalize(subtype)
	ok, err := r.backend.DeleteSubtype(ctx, string(typ), subtype)
	if err != nil {
		return false, fmt.Errorf("remove subtype %s:%s: %w", typ, subtype, err)
	}
	r.invalidate()
	if ok {
		r.logger.Warn("subtype removed; existing entities fall back to the default class",
			"type", typ, "subtype", subtype)
	}
	return ok, nil
}

// List returns every registration ordered by id.
func (r *Registry) List(ctx context.Context) ([]Registration, error) {
	rows, err := r.backend.SubtypeRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subtypes: %w", err)
	}
	out := make([]Registration, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRegistration(row))
	}
	return out, nil
}

func (r *Registry) lookup(ctx context.Context, typ entity.Type, subtype string) (Registration, bool, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return Registration{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byKey[key{typ: typ, subtype: Normalize(subtype)}]
	return reg, ok, nil
}

func (r *Registry) lookupID(ctx context.Context, id int64) (Registration, bool, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return Registration{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[id]
	return reg, ok, nil
}

// ensureLoaded populates the cache from the backend if it was invalidated.
// A load that races an invalidation is discarded and retried, so a
// snapshot read before a write is never installed after it.
func (r *Registry) ensureLoaded(ctx context.Context) error {
	for {
		r.mu.RLock()
		loaded, gen := r.loaded, r.gen
		r.mu.RUnlock()
		if loaded {
			return nil
		}
		installed, err := r.load(ctx, gen)
		if err != nil || installed {
			return err
		}
	}
}

func (r *Registry) load(ctx context.Context, gen uint64) (bool, error) {
	rows, err := r.backend.SubtypeRows(ctx)
	if err != nil {
		return false, fmt.Errorf("load subtypes: %w", err)
	}

	byKey := make(map[key]Registration, len(rows))
	byID := make(map[int64]Registration, len(rows))
	for _, row := range rows {
		reg := toRegistration(row)
		byKey[key{typ: reg.Type, subtype: reg.Subtype}] = reg
		byID[reg.ID] = reg
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return false, nil
	}
	r.byKey, r.byID, r.loaded = byKey, byID, true
	return true, nil
}

func (r *Registry) invalidate() {
	r.mu.Lock()
	r.loaded = false
	r.gen++
	r.byKey, r.byID = nil, nil
	r.mu.Unlock()
}

func toRegistration(row store.SubtypeRow) Registration {
	return Registration{
		ID:      row.ID,
		Type:    entity.Type(row.Type),
		Subtype: row.Subtype,
		Class:   row.Class,
	}
}
