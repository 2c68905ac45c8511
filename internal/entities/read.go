package entities

import (
	"context"
	"fmt"

	"github.com/roach88/polystore/internal/access"
	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/query"
	"github.com/roach88/polystore/internal/querysql"
	"github.com/roach88/polystore/internal/store"
)

// Get returns the entity with id as seen by the actor on ctx, or nil when
// it is absent or hidden from that actor.
//
// Id 1 resolves to the site singleton without a row lookup once Init has
// run. A cached entity is returned without re-reading its rows; unless the
// actor bypasses access entirely, a visibility check still runs.
func (s *Service) Get(ctx context.Context, id int64) (entity.Entity, error) {
	if id <= 0 {
		return nil, nil
	}
	if id == entity.SiteID {
		if site := s.Site(); site != nil {
			return site, nil
		}
	}

	actor := access.ActorFrom(ctx)
	frag := s.access.Fragment(actor, querysql.Alias)

	if cached, ok := s.cache.Get(id); ok {
		if frag.SQL == "" {
			return cached, nil
		}
		visible, err := s.visible(ctx, id, frag)
		if err != nil {
			return nil, err
		}
		if !visible {
			return nil, nil
		}
		return cached, nil
	}

	opts := query.Options{IDs: query.IDs(id), Limit: 1}.Normalize()
	st, err := s.compiler.Fetch(opts, querysql.Resolved{}, frag)
	if err != nil {
		return nil, err
	}
	rows, err := s.backend.QueryRows(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("get entity %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	e, err := s.hydrator.RowToEntity(ctx, rows[0])
	if err != nil {
		return nil, err
	}
	s.cache.Put(e)
	return e, nil
}

func (s *Service) visible(ctx context.Context, id int64, frag access.Fragment) (bool, error) {
	opts := query.Options{IDs: query.IDs(id), NoDistinct: true}.Normalize()
	st, err := s.compiler.Count(opts, querysql.Resolved{}, frag)
	if err != nil {
		return false, err
	}
	n, err := s.backend.QueryCount(ctx, st.SQL, st.Args...)
	if err != nil {
		return false, fmt.Errorf("check visibility of %d: %w", id, err)
	}
	return n > 0, nil
}

// GetRow returns the raw base row for id, bypassing access control and the
// cache. Returns nil when the row does not exist.
func (s *Service) GetRow(ctx context.Context, id int64) (*store.Row, error) {
	return s.backend.GetRow(ctx, id)
}

// Exists reports whether a row with id exists, regardless of access
// control or the enabled flag.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	return s.backend.Exists(ctx, id)
}
