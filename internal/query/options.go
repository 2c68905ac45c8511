package query

import (
	"reflect"
	"time"

	"github.com/roach88/polystore/internal/entity"
)

const (
	// DefaultLimit applies when Limit is zero.
	DefaultLimit = 10

	// NoLimit disables the LIMIT clause.
	NoLimit = -1

	// DefaultBatchSize applies to batched fetches when BatchSize is zero.
	DefaultBatchSize = 25
)

// NoSubtype matches entities stored without a subtype.
const NoSubtype = ""

// AnySubtype places no constraint on the subtype.
var AnySubtype []string

// IDSet is an optional set of entity ids. The zero value is unset and does
// not filter; a set IDSet with no ids matches nothing.
type IDSet struct {
	IDs []int64
	Set bool
}

// IDs builds a set IDSet.
func IDs(ids ...int64) IDSet {
	if ids == nil {
		ids = []int64{}
	}
	return IDSet{IDs: ids, Set: true}
}

// IsEmpty reports whether the set is required but holds no ids.
func (s IDSet) IsEmpty() bool {
	return s.Set && len(s.IDs) == 0
}

func (s IDSet) with(id int64) IDSet {
	if id == 0 {
		return s
	}
	out := IDSet{IDs: make([]int64, 0, len(s.IDs)+1), Set: true}
	out.IDs = append(out.IDs, s.IDs...)
	for _, existing := range out.IDs {
		if existing == id {
			return out
		}
	}
	out.IDs = append(out.IDs, id)
	return out
}

// Operator is a comparison between an extension column and a value.
type Operator string

const (
	OpEq   Operator = "="
	OpNe   Operator = "!="
	OpLt   Operator = "<"
	OpLe   Operator = "<="
	OpGt   Operator = ">"
	OpGe   Operator = ">="
	OpLike Operator = "LIKE"
	OpIn   Operator = "IN"
)

// Valid reports whether op is a recognised operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpLike, OpIn:
		return true
	}
	return false
}

// Conjunction joins attribute predicates.
type Conjunction string

const (
	And Conjunction = "AND"
	Or  Conjunction = "OR"
)

// AttributePredicate filters on a type-specific extension column.
type AttributePredicate struct {
	Name string

	// Value is a single comparison value. A slice value is treated as
	// Values.
	Value any

	// Values forces the IN operator.
	Values []any

	// Operator defaults to OpEq.
	Operator Operator

	CaseInsensitive bool
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Clause is a caller-supplied SQL fragment with positional arguments.
type Clause struct {
	SQL  string
	Args []any
}

// Options describes one entity query.
type Options struct {
	Type  entity.Type
	Types []entity.Type

	Subtype  string
	Subtypes []string

	// TypeSubtypePairs, when non-empty, replaces Types and Subtypes. A nil
	// subtype list for a type matches any subtype.
	TypeSubtypePairs map[entity.Type][]string

	ID           int64
	IDs          IDSet
	OwnerID      int64
	OwnerIDs     IDSet
	ContainerID  int64
	ContainerIDs IDSet

	// Inclusive time bounds; the zero time is unset.
	CreatedLower time.Time
	CreatedUpper time.Time
	UpdatedLower time.Time
	UpdatedUpper time.Time

	Attributes    []AttributePredicate
	AttributeJoin Conjunction

	// Order defaults to created_time descending.
	Order        []Order
	ReverseOrder bool

	// Limit defaults to DefaultLimit; NoLimit removes it.
	Limit  int
	Offset int

	Count      bool
	NoDistinct bool

	Joins  []Clause
	Wheres []Clause

	// RawRows returns base attributes only, without class hydration.
	RawRows bool

	// Batch returns a lazy cursor instead of a materialized list.
	Batch     bool
	BatchSize int
	// KeepOffset stops the cursor advancing Offset between pages, for
	// callers that disable or remove fetched entities while iterating.
	KeepOffset bool
}

// Normalize returns a copy of o with singular options merged into plural
// ones and attribute predicates in canonical form.
func (o Options) Normalize() Options {
	n := o

	n.Types = nil
	for _, t := range o.Types {
		n.Types = appendUniqueType(n.Types, t)
	}
	if o.Type != "" {
		n.Types = appendUniqueType(n.Types, o.Type)
	}
	n.Type = ""

	if o.Subtypes != nil || o.Subtype != "" {
		n.Subtypes = make([]string, 0, len(o.Subtypes)+1)
		for _, s := range o.Subtypes {
			n.Subtypes = appendUniqueString(n.Subtypes, s)
		}
		if o.Subtype != "" {
			n.Subtypes = appendUniqueString(n.Subtypes, o.Subtype)
		}
	}
	n.Subtype = ""

	n.IDs = o.IDs.with(o.ID)
	n.ID = 0
	n.OwnerIDs = o.OwnerIDs.with(o.OwnerID)
	n.OwnerID = 0
	n.ContainerIDs = o.ContainerIDs.with(o.ContainerID)
	n.ContainerID = 0

	if len(o.Attributes) > 0 {
		n.Attributes = make([]AttributePredicate, len(o.Attributes))
		for i, p := range o.Attributes {
			n.Attributes[i] = p.normalize()
		}
	}
	if n.AttributeJoin == "" {
		n.AttributeJoin = And
	}

	if n.Limit == 0 {
		n.Limit = DefaultLimit
	}
	if n.Batch && n.BatchSize == 0 {
		n.BatchSize = DefaultBatchSize
	}
	return n
}

// PageSize is the number of rows the cursor requests per query.
func (o Options) PageSize() int {
	if o.BatchSize > 0 {
		return o.BatchSize
	}
	return DefaultBatchSize
}

func (p AttributePredicate) normalize() AttributePredicate {
	n := p
	n.Values = nil

	if p.Value != nil {
		if seq, ok := sequence(p.Value); ok {
			n.Values = append(n.Values, seq...)
		} else {
			n.Values = append(n.Values, p.Value)
		}
	}
	n.Values = append(n.Values, p.Values...)
	n.Value = nil

	switch {
	case len(p.Values) > 0 || isSequence(p.Value):
		n.Operator = OpIn
	case n.Operator == "":
		n.Operator = OpEq
	}
	if n.Operator != OpIn && len(n.Values) == 1 {
		n.Value = n.Values[0]
		n.Values = nil
	}
	return n
}

func isSequence(v any) bool {
	_, ok := sequence(v)
	return ok
}

// sequence expands slices and arrays other than []byte.
func sequence(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func appendUniqueType(list []entity.Type, t entity.Type) []entity.Type {
	for _, existing := range list {
		if existing == t {
			return list
		}
	}
	return append(list, t)
}

func appendUniqueString(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
