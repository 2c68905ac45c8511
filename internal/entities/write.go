package entities

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/events"
	"github.com/roach88/polystore/internal/hydrate"
	"github.com/roach88/polystore/internal/store"
)

// Save persists e. An entity without an id is created: it is assigned an
// id, its subtype id (registering the subtype without a class if needed)
// and its timestamps, and it is stored enabled. An entity with an id is
// updated; its type and subtype are immutable and are not rewritten, and
// its extension row is only rewritten when it was loaded.
//
// Returns the entity id. Publishes create or update on success.
func (s *Service) Save(ctx context.Context, e entity.Entity) (int64, error) {
	if e == nil {
		return 0, entity.NewUsageError("save: nil entity")
	}
	b := e.Attributes()
	kind := kindOf(e)
	if b.Type == "" {
		b.Type = kind
	}
	if !b.Type.Valid() {
		return 0, entity.NewUsageError("save: unknown entity type %q", b.Type)
	}
	if kind != b.Type {
		return 0, entity.NewUsageError("save: %T cannot hold a %s", e, b.Type)
	}

	if b.ID == 0 {
		return s.create(ctx, e)
	}
	return b.ID, s.update(ctx, e)
}

func (s *Service) create(ctx context.Context, e entity.Entity) (int64, error) {
	b := e.Attributes()

	if b.Subtype != "" {
		id, err := s.subtypeIDForSave(ctx, b.Type, b.Subtype)
		if err != nil {
			return 0, fmt.Errorf("save %s: %w", b.String(), err)
		}
		b.SubtypeID = id
	} else {
		b.SubtypeID = 0
	}

	now := entity.StoredTime(s.clock.Now())
	if b.CreatedTime.IsZero() {
		b.CreatedTime = now
	}
	b.CreatedTime = entity.StoredTime(b.CreatedTime)
	b.UpdatedTime = now
	if b.LastActionTime.IsZero() {
		b.LastActionTime = b.CreatedTime
	}
	b.LastActionTime = entity.StoredTime(b.LastActionTime)
	b.Enabled = true

	row, ext := hydrate.ToRows(e)
	id, err := s.backend.Insert(ctx, row, ext)
	if err != nil {
		return 0, fmt.Errorf("save %s: %w", b.String(), err)
	}
	b.ID = id
	markLoaded(e)

	s.cache.Invalidate(id)
	s.logger.Debug("entity created", "id", id, "type", b.Type, "subtype", b.Subtype)
	s.events.Trigger(ctx, events.EventCreate, string(b.Type), e)
	return id, nil
}

func (s *Service) update(ctx context.Context, e entity.Entity) error {
	b := e.Attributes()

	current, err := s.backend.GetRow(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("save %s: %w", b.String(), err)
	}
	if current == nil {
		return entity.NewUsageError("save: entity %d does not exist", b.ID)
	}
	if current.Type != string(b.Type) {
		return entity.NewUsageError("save: entity %d is a %s and cannot become a %s", b.ID, current.Type, b.Type)
	}

	name, ok, err := s.subtypes.GetSubtype(ctx, current.SubtypeID)
	if err != nil {
		return fmt.Errorf("save %s: %w", b.String(), err)
	}
	if !ok {
		name = ""
	}
	b.Subtype, b.SubtypeID = name, current.SubtypeID

	b.CreatedTime = entity.StoredTime(b.CreatedTime)
	b.LastActionTime = entity.StoredTime(b.LastActionTime)
	b.UpdatedTime = entity.StoredTime(s.clock.Now())

	// An entity whose extension row was never read carries zero values
	// there; writing them back would wipe the stored row.
	row, ext := hydrate.ToRows(e)
	if !entity.ExtensionLoaded(e) {
		ext = nil
	}
	if _, err := s.backend.Update(ctx, row, ext); err != nil {
		return fmt.Errorf("save %s: %w", b.String(), err)
	}

	s.cache.Invalidate(b.ID)
	if b.ID == entity.SiteID {
		if err := s.loadSite(ctx); err != nil {
			return err
		}
	}
	s.logger.Debug("entity updated", "id", b.ID)
	s.events.Trigger(ctx, events.EventUpdate, string(b.Type), e)
	return nil
}

// subtypeIDForSave resolves the subtype of a new entity, registering it
// without a class when it is unknown.
func (s *Service) subtypeIDForSave(ctx context.Context, t entity.Type, name string) (int64, error) {
	id, ok, err := s.subtypes.GetID(ctx, t, name)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}
	s.logger.Info("registering subtype on first save", "type", t, "subtype", name)
	return s.subtypes.Add(ctx, t, name, "")
}

// Enable marks id enabled. When recursive, every entity reachable through
// container_id is enabled too; container cycles terminate and each entity
// is changed at most once. Returns false when id does not exist.
func (s *Service) Enable(ctx context.Context, id int64, recursive bool) (bool, error) {
	return s.setEnabled(ctx, id, true, recursive)
}

// Disable marks id disabled, optionally cascading to contained entities.
// Rows are never deleted; Exists still reports them. Returns false when id
// does not exist.
func (s *Service) Disable(ctx context.Context, id int64, recursive bool) (bool, error) {
	return s.setEnabled(ctx, id, false, recursive)
}

func (s *Service) setEnabled(ctx context.Context, id int64, enabled, recursive bool) (bool, error) {
	op, event := s.backend.Disable, events.EventDisable
	if enabled {
		op, event = s.backend.Enable, events.EventEnable
	}

	changed, found, err := op(ctx, id, recursive)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	s.cache.Invalidate(id)
	s.cache.Invalidate(changed...)
	if slices.Contains(changed, entity.SiteID) && s.Site() != nil {
		if err := s.loadSite(ctx); err != nil {
			return true, err
		}
	}

	s.logger.Debug("entity state changed", "op", event, "id", id, "changed", len(changed))
	for _, cid := range changed {
		row, err := s.backend.GetRow(ctx, cid)
		if err != nil || row == nil {
			continue
		}
		e, err := s.hydrator.RowToEntity(ctx, *row)
		if err != nil {
			s.logger.Warn("skipping state event", "op", event, "id", cid, "error", err)
			continue
		}
		s.events.Trigger(ctx, event, row.Type, e)
	}
	return true, nil
}

// UpdateLastAction sets last_action_time of id to t, or to now when t is
// zero. No other attribute changes. Returns false when id does not exist.
func (s *Service) UpdateLastAction(ctx context.Context, id int64, t time.Time) (bool, error) {
	if t.IsZero() {
		t = s.clock.Now()
	}
	ok, err := s.backend.UpdateLastAction(ctx, id, entity.ToUnix(t))
	if err != nil {
		return false, err
	}
	if ok {
		s.cache.Invalidate(id)
		if id == entity.SiteID && s.Site() != nil {
			if err := s.loadSite(ctx); err != nil {
				return true, err
			}
		}
	}
	return ok, nil
}

// kindOf returns the base type a variant can hold.
func kindOf(e entity.Entity) entity.Type {
	switch e.(type) {
	case entity.ObjectEntity:
		return entity.TypeObject
	case entity.UserEntity:
		return entity.TypeUser
	case entity.GroupEntity:
		return entity.TypeGroup
	case entity.SiteEntity:
		return entity.TypeSite
	}
	return e.Attributes().Type
}

func markLoaded(e entity.Entity) {
	switch v := e.(type) {
	case entity.ObjectEntity:
		v.AsObject().ExtensionLoaded = true
	case entity.UserEntity:
		v.AsUser().ExtensionLoaded = true
	case entity.GroupEntity:
		v.AsGroup().ExtensionLoaded = true
	case entity.SiteEntity:
		v.AsSite().ExtensionLoaded = true
	}
}

var _ Backend = (*store.Store)(nil)
