package entities

import (
	"context"

	"github.com/roach88/polystore/internal/access"
	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/query"
	"github.com/roach88/polystore/internal/querysql"
	"github.com/roach88/polystore/internal/store"
)

// Result is the outcome of GetEntities. Exactly one field is meaningful,
// chosen by the Count and Batch options.
type Result struct {
	Count    int64
	Entities []entity.Entity
	Cursor   *Cursor
}

// Page is a count plus one page of entities.
type Page struct {
	Count    int64
	Entities []entity.Entity
}

// prepared is a validated query ready to compile.
type prepared struct {
	opts     query.Options
	resolved querysql.Resolved
	acl      access.Fragment
}

func (s *Service) prepare(ctx context.Context, opts query.Options) (prepared, error) {
	n := opts.Normalize()
	if err := n.Validate(); err != nil {
		return prepared{}, err
	}
	resolved, err := querysql.Resolve(ctx, n, s.subtypes)
	if err != nil {
		return prepared{}, err
	}
	return prepared{
		opts:     n,
		resolved: resolved,
		acl:      s.access.Fragment(access.ActorFrom(ctx), querysql.Alias),
	}, nil
}

// GetEntities runs opts as a count, a materialized fetch or a batched
// cursor.
func (s *Service) GetEntities(ctx context.Context, opts query.Options) (Result, error) {
	p, err := s.prepare(ctx, opts)
	if err != nil {
		return Result{}, err
	}

	switch {
	case p.opts.Count:
		n, err := s.count(ctx, p)
		return Result{Count: n}, err
	case p.opts.Batch:
		return Result{Cursor: newCursor(ctx, s, p)}, nil
	default:
		list, err := s.fetch(ctx, p)
		return Result{Entities: list}, err
	}
}

// GetEntitiesFromAttributes is GetEntities for queries filtering on
// extension attributes. At least one attribute predicate is required.
func (s *Service) GetEntitiesFromAttributes(ctx context.Context, opts query.Options) (Result, error) {
	if len(opts.Attributes) == 0 {
		return Result{}, entity.NewUsageError("attribute query without attribute filters")
	}
	return s.GetEntities(ctx, opts)
}

// Count returns the number of entities matching opts, ignoring Limit and
// Offset.
func (s *Service) Count(ctx context.Context, opts query.Options) (int64, error) {
	opts.Count, opts.Batch = true, false
	res, err := s.GetEntities(ctx, opts)
	return res.Count, err
}

// List returns the entities matching opts.
func (s *Service) List(ctx context.Context, opts query.Options) ([]entity.Entity, error) {
	opts.Count, opts.Batch = false, false
	res, err := s.GetEntities(ctx, opts)
	return res.Entities, err
}

// Page counts the matches of opts and fetches one page. When the count is
// zero no fetch query is issued.
func (s *Service) Page(ctx context.Context, opts query.Options) (Page, error) {
	opts.Count, opts.Batch = false, false
	p, err := s.prepare(ctx, opts)
	if err != nil {
		return Page{}, err
	}

	n, err := s.count(ctx, p)
	if err != nil || n == 0 {
		return Page{Count: n, Entities: []entity.Entity{}}, err
	}
	list, err := s.fetch(ctx, p)
	return Page{Count: n, Entities: list}, err
}

// Batch returns a lazy cursor over the entities matching opts.
func (s *Service) Batch(ctx context.Context, opts query.Options) (*Cursor, error) {
	opts.Count, opts.Batch = false, true
	res, err := s.GetEntities(ctx, opts)
	return res.Cursor, err
}

func (s *Service) count(ctx context.Context, p prepared) (int64, error) {
	st, err := s.compiler.Count(p.opts, p.resolved, p.acl)
	if err != nil {
		return 0, err
	}
	if st.Empty {
		return 0, nil
	}
	s.logger.Debug("count query", "sql", st.SQL, "args", st.Args)
	n, err := s.backend.QueryCount(ctx, st.SQL, st.Args...)
	if err != nil {
		s.logger.Error("count query failed", "error", err)
		return 0, nil
	}
	return n, nil
}

func (s *Service) fetch(ctx context.Context, p prepared) ([]entity.Entity, error) {
	st, err := s.compiler.Fetch(p.opts, p.resolved, p.acl)
	if err != nil {
		return nil, err
	}
	if st.Empty {
		return []entity.Entity{}, nil
	}
	s.logger.Debug("fetch query", "sql", st.SQL, "args", st.Args)
	rows, err := s.backend.QueryRows(ctx, st.SQL, st.Args...)
	if err != nil {
		s.logger.Error("fetch query failed", "error", err)
		return []entity.Entity{}, nil
	}
	return s.rowsToEntities(ctx, rows, p.opts.RawRows)
}

// rowsToEntities hydrates rows in order, preferring the site singleton and
// cached entities. Raw rows are never cached.
func (s *Service) rowsToEntities(ctx context.Context, rows []store.Row, raw bool) ([]entity.Entity, error) {
	out := make([]entity.Entity, 0, len(rows))
	for _, row := range rows {
		if raw {
			base, _, err := s.hydrator.BaseFromRow(ctx, row)
			if err != nil {
				return nil, err
			}
			out = append(out, &base)
			continue
		}

		if row.ID == entity.SiteID {
			if site := s.Site(); site != nil {
				out = append(out, site)
				continue
			}
		}
		if cached, ok := s.cache.Get(row.ID); ok {
			out = append(out, cached)
			continue
		}

		e, err := s.hydrator.RowToEntity(ctx, row)
		if err != nil {
			return nil, err
		}
		s.cache.Put(e)
		out = append(out, e)
	}
	return out, nil
}
