package querysql

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/query"
)

// Resolver maps subtype names to ids. *subtype.Registry implements it.
type Resolver interface {
	GetID(ctx context.Context, typ entity.Type, subtype string) (int64, bool, error)
}

// TypeFilter is one (type, subtype ids) disjunct of the type clause.
type TypeFilter struct {
	Type entity.Type
	// SubtypeIDs is nil when any subtype matches.
	SubtypeIDs []int64
}

// Resolved is the type/subtype restriction after subtype names have been
// mapped to ids.
type Resolved struct {
	Filters []TypeFilter
	// Empty is set when a restriction was requested but no (type, subtype)
	// combination exists, so the query cannot match anything.
	Empty bool
}

// Resolve maps the subtype names of normalized opts to ids. Names that are
// not registered for a type are dropped for that type; a type left with no
// subtype ids is dropped entirely. Subtypes without types apply to every
// base type.
func Resolve(ctx context.Context, opts query.Options, r Resolver) (Resolved, error) {
	if len(opts.TypeSubtypePairs) > 0 {
		types := opts.EffectiveTypes()
		pairs := make([]typeSubtypes, 0, len(types))
		for _, t := range types {
			pairs = append(pairs, typeSubtypes{typ: t, subtypes: opts.TypeSubtypePairs[t]})
		}
		return resolvePairs(ctx, pairs, r)
	}

	if len(opts.Types) == 0 && len(opts.Subtypes) == 0 {
		return Resolved{}, nil
	}

	types := opts.Types
	if len(types) == 0 {
		types = entity.Types
	}
	pairs := make([]typeSubtypes, 0, len(types))
	for _, t := range types {
		pairs = append(pairs, typeSubtypes{typ: t, subtypes: opts.Subtypes})
	}
	return resolvePairs(ctx, pairs, r)
}

type typeSubtypes struct {
	typ      entity.Type
	subtypes []string
}

func resolvePairs(ctx context.Context, pairs []typeSubtypes, r Resolver) (Resolved, error) {
	var res Resolved
	for _, p := range pairs {
		if len(p.subtypes) == 0 {
			res.Filters = append(res.Filters, TypeFilter{Type: p.typ})
			continue
		}

		var ids []int64
		for _, name := range p.subtypes {
			id, ok, err := r.GetID(ctx, p.typ, name)
			if err != nil {
				return Resolved{}, fmt.Errorf("resolve subtype %s:%s: %w", p.typ, name, err)
			}
			if ok {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		res.Filters = append(res.Filters, TypeFilter{Type: p.typ, SubtypeIDs: dedupe(ids)})
	}
	res.Empty = len(res.Filters) == 0
	return res, nil
}

func dedupe(sorted []int64) []int64 {
	out := sorted[:0]
	for i, id := range sorted {
		if i == 0 || id != sorted[i-1] {
			out = append(out, id)
		}
	}
	return out
}
