package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/polystore/internal/entity"
)

// Validate reports invalid option combinations as a single usage error
// listing every problem found. It normalizes a copy of o first.
func (o Options) Validate() error {
	n := o.Normalize()
	v := &validator{}

	for _, t := range n.Types {
		if !t.Valid() {
			v.addProblem("unknown type %q", t)
		}
	}
	for t := range n.TypeSubtypePairs {
		if !t.Valid() {
			v.addProblem("unknown type %q in type/subtype pairs", t)
		}
	}
	if len(n.TypeSubtypePairs) > 0 && (len(n.Types) > 0 || len(n.Subtypes) > 0) {
		v.addProblem("type/subtype pairs cannot be combined with types or subtypes")
	}

	v.validateIDs("id", n.IDs)
	v.validateIDs("owner id", n.OwnerIDs)
	v.validateIDs("container id", n.ContainerIDs)

	if !n.CreatedLower.IsZero() && !n.CreatedUpper.IsZero() && n.CreatedLower.After(n.CreatedUpper) {
		v.addProblem("created time lower bound is after upper bound")
	}
	if !n.UpdatedLower.IsZero() && !n.UpdatedUpper.IsZero() && n.UpdatedLower.After(n.UpdatedUpper) {
		v.addProblem("updated time lower bound is after upper bound")
	}

	ext, hasExt := n.Extension()
	if len(n.Attributes) > 0 && !hasExt {
		v.addProblem("attribute filters require exactly one type, got %d", len(n.EffectiveTypes()))
	}
	for _, p := range n.Attributes {
		v.validatePredicate(p, ext, hasExt)
	}
	if n.AttributeJoin != And && n.AttributeJoin != Or {
		v.addProblem("unknown attribute join %q", n.AttributeJoin)
	}

	for _, ord := range n.Order {
		switch {
		case entity.IsBaseColumn(ord.Column):
		case hasExt && ext.HasColumn(ord.Column):
		default:
			v.addProblem("cannot order by %q", ord.Column)
		}
	}

	if n.Limit < NoLimit {
		v.addProblem("limit must be positive or NoLimit, got %d", n.Limit)
	}
	if n.Offset < 0 {
		v.addProblem("offset must not be negative, got %d", n.Offset)
	}
	if n.BatchSize < 0 {
		v.addProblem("batch size must not be negative, got %d", n.BatchSize)
	}
	if n.Count && n.Batch {
		v.addProblem("count and batch are mutually exclusive")
	}

	v.validateClauses("join", n.Joins)
	v.validateClauses("where", n.Wheres)

	return v.err()
}

// EffectiveTypes lists the types the query is restricted to, drawn from
// TypeSubtypePairs when set. Callers pass normalized options.
func (o Options) EffectiveTypes() []entity.Type {
	if len(o.TypeSubtypePairs) > 0 {
		types := make([]entity.Type, 0, len(o.TypeSubtypePairs))
		for t := range o.TypeSubtypePairs {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
		return types
	}
	return o.Types
}

// Extension returns the extension schema of the single type the query is
// restricted to. It reports false unless exactly one valid type is set.
func (o Options) Extension() (entity.ExtensionSchema, bool) {
	types := o.EffectiveTypes()
	if len(types) != 1 {
		return entity.ExtensionSchema{}, false
	}
	return entity.Extension(types[0])
}

type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateIDs(name string, s IDSet) {
	for _, id := range s.IDs {
		if id < 0 {
			v.addProblem("%s must not be negative, got %d", name, id)
		}
	}
}

func (v *validator) validatePredicate(p AttributePredicate, ext entity.ExtensionSchema, hasExt bool) {
	if p.Name == "" {
		v.addProblem("attribute filter without a name")
		return
	}
	if hasExt && !ext.HasColumn(p.Name) {
		v.addProblem("%s has no attribute %q", ext.Table, p.Name)
	}
	if !p.Operator.Valid() {
		v.addProblem("unknown operator %q for attribute %q", p.Operator, p.Name)
		return
	}
	if p.Operator == OpIn {
		if len(p.Values) == 0 {
			v.addProblem("attribute %q: IN requires at least one value", p.Name)
		}
		return
	}
	if p.Value == nil {
		v.addProblem("attribute %q: missing value", p.Name)
	}
}

func (v *validator) validateClauses(kind string, clauses []Clause) {
	for i, c := range clauses {
		if strings.TrimSpace(c.SQL) == "" {
			v.addProblem("%s %d is empty", kind, i)
			continue
		}
		if n := strings.Count(c.SQL, "?"); n != len(c.Args) {
			v.addProblem("%s %d has %d placeholders but %d args", kind, i, n, len(c.Args))
		}
	}
}

func (v *validator) err() error {
	if len(v.problems) == 0 {
		return nil
	}
	return entity.NewUsageError("invalid query options: %s", strings.Join(v.problems, "; "))
}
