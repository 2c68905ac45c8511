// Package directory records which (type, subtype) pairs are public, meaning
// eligible for discovery and listing. It is independent of the subtype
// registry: a pair can be registered here without a subtype id, and the
// reverse.
//
// An empty directory allows everything.
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/polystore/internal/entity"
)

// DatalistName is the datalist row holding the persisted directory.
const DatalistName = "registered_entities"

// Backend stores the encoded directory. *store.Store implements it.
type Backend interface {
	GetDatalist(ctx context.Context, name string) (string, bool, error)
	SetDatalist(ctx context.Context, name, value string) error
}

// Directory is the process-wide registered-type directory. It is loaded
// from the backend on first use and written back on every change.
//
// Thread-safety: all methods are safe for concurrent use.
type Directory struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	loaded  bool
	entries map[entity.Type][]string
}

// New creates a Directory over backend. A nil logger uses slog.Default().
func New(backend Backend, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{backend: backend, logger: logger}
}

// Register marks (typ, subtype) public. An empty subtype registers the
// type with no subtypes enumerated. Registering an existing pair is a no-op.
// Reports whether the directory changed.
func (d *Directory) Register(ctx context.Context, typ entity.Type, subtype string) (bool, error) {
	if !typ.Valid() {
		return false, entity.NewUsageError("register type: unknown type %q", typ)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureLoaded(ctx); err != nil {
		return false, err
	}

	subtypes, ok := d.entries[typ]
	if ok && (subtype == "" || slices.Contains(subtypes, subtype)) {
		return false, nil
	}
	subtypes = slices.Clone(subtypes)
	if subtypes == nil {
		subtypes = []string{}
	}
	if subtype != "" {
		subtypes = append(subtypes, subtype)
	}

	next := maps.Clone(d.entries)
	next[typ] = subtypes
	return true, d.commit(ctx, next)
}

// Unregister removes (typ, subtype). An empty subtype removes the type and
// every subtype listed under it, so callers drop individual subtypes first.
// Reports whether anything was removed.
func (d *Directory) Unregister(ctx context.Context, typ entity.Type, subtype string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureLoaded(ctx); err != nil {
		return false, err
	}

	subtypes, ok := d.entries[typ]
	if !ok {
		return false, nil
	}
	next := maps.Clone(d.entries)
	if subtype == "" {
		delete(next, typ)
		return true, d.commit(ctx, next)
	}

	i := slices.Index(subtypes, subtype)
	if i < 0 {
		return false, nil
	}
	next[typ] = slices.Delete(slices.Clone(subtypes), i, i+1)
	return true, d.commit(ctx, next)
}

// List returns the registered pairs, restricted to typ when it is
// non-empty. The bool is false when there is nothing to return.
func (d *Directory) List(ctx context.Context, typ entity.Type) (map[entity.Type][]string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureLoaded(ctx); err != nil {
		return nil, false, err
	}

	out := make(map[entity.Type][]string)
	for t, subtypes := range d.entries {
		if typ != "" && t != typ {
			continue
		}
		out[t] = slices.Clone(subtypes)
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}

// IsRegistered reports whether (typ, subtype) is public. An empty subtype
// checks the type only. When nothing at all is registered every pair is
// considered registered.
func (d *Directory) IsRegistered(ctx context.Context, typ entity.Type, subtype string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureLoaded(ctx); err != nil {
		return false, err
	}

	if len(d.entries) == 0 {
		return true, nil
	}
	subtypes, ok := d.entries[typ]
	if !ok {
		return false, nil
	}
	if subtype == "" {
		return true, nil
	}
	return slices.Contains(subtypes, subtype), nil
}

// Reload discards the in-process copy; the next call reads the backend.
func (d *Directory) Reload() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = false
	d.entries = nil
}

func (d *Directory) ensureLoaded(ctx context.Context) error {
	if d.loaded {
		return nil
	}

	raw, ok, err := d.backend.GetDatalist(ctx, DatalistName)
	if err != nil {
		return fmt.Errorf("load registered types: %w", err)
	}

	entries := make(map[entity.Type][]string)
	if ok && raw != "" {
		var decoded map[string][]string
		if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
			return fmt.Errorf("decode registered types: %w", err)
		}
		for name, subtypes := range decoded {
			t, err := entity.ParseType(name)
			if err != nil {
				d.logger.Warn("skipping unknown type in registered types", "type", name)
				continue
			}
			if subtypes == nil {
				subtypes = []string{}
			}
			entries[t] = subtypes
		}
	}

	d.entries = entries
	d.loaded = true
	return nil
}

// commit writes entries to the backend and installs them only once the
// write succeeded.
func (d *Directory) commit(ctx context.Context, entries map[entity.Type][]string) error {
	encoded := make(map[string][]string, len(entries))
	for t, subtypes := range entries {
		encoded[string(t)] = subtypes
	}
	raw, err := yaml.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("encode registered types: %w", err)
	}
	if err := d.backend.SetDatalist(ctx, DatalistName, string(raw)); err != nil {
		return fmt.Errorf("save registered types: %w", err)
	}
	d.entries = entries
	d.logger.Debug("registered types saved", "types", len(entries))
	return nil
}
