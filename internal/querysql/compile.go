package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/polystore/internal/access"
	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/query"
)

const (
	// Alias is the entities table alias used in every statement and
	// passed to the access provider.
	Alias = "e"

	extAlias = "x"
)

// Statement is a compiled query.
type Statement struct {
	SQL  string
	Args []any
	// Empty means the query can match nothing and must not be executed.
	Empty bool
}

// SQLCompiler compiles query options to parameterised SQL for SQLite.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Count compiles the count form of opts. opts must be normalized and
// validated.
func (c *SQLCompiler) Count(opts query.Options, resolved Resolved, acl access.Fragment) (Statement, error) {
	return c.compile(opts, resolved, acl, true)
}

// Fetch compiles the fetch form of opts, selecting the base columns in
// schema order. opts must be normalized and validated.
func (c *SQLCompiler) Fetch(opts query.Options, resolved Resolved, acl access.Fragment) (Statement, error) {
	return c.compile(opts, resolved, acl, false)
}

func (c *SQLCompiler) compile(opts query.Options, resolved Resolved, acl access.Fragment, count bool) (Statement, error) {
	if resolved.Empty || opts.IDs.IsEmpty() || opts.OwnerIDs.IsEmpty() || opts.ContainerIDs.IsEmpty() {
		return Statement{Empty: true}, nil
	}

	b := &builder{}

	switch {
	case count && opts.NoDistinct:
		b.write("SELECT COUNT(*)")
	case count:
		b.write("SELECT COUNT(DISTINCT %s.id)", Alias)
	case opts.NoDistinct:
		b.write("SELECT %s", selectList())
	default:
		b.write("SELECT DISTINCT %s", selectList())
	}
	b.write(" FROM entities %s", Alias)

	ext, joinExt, err := extensionJoin(opts)
	if err != nil {
		return Statement{}, err
	}
	if joinExt {
		b.write(" JOIN %s %s ON %s.id = %s.id", ext.Table, extAlias, extAlias, Alias)
	}
	for _, j := range opts.Joins {
		b.write(" %s", strings.TrimSpace(j.SQL))
		b.args = append(b.args, j.Args...)
	}

	var where []string
	if tc, args := typeClause(resolved.Filters); tc != "" {
		where = append(where, tc)
		b.args = append(b.args, args...)
	}
	where = b.idClause(where, "id", opts.IDs)
	where = b.idClause(where, "owner_id", opts.OwnerIDs)
	where = b.idClause(where, "container_id", opts.ContainerIDs)
	where = b.timeClause(where, "created_time", ">=", opts.CreatedLower)
	where = b.timeClause(where, "created_time", "<=", opts.CreatedUpper)
	where = b.timeClause(where, "updated_time", ">=", opts.UpdatedLower)
	where = b.timeClause(where, "updated_time", "<=", opts.UpdatedUpper)

	if len(opts.Attributes) > 0 {
		where = append(where, b.attributeClause(opts.Attributes, opts.AttributeJoin))
	}
	if acl.SQL != "" {
		where = append(where, "("+acl.SQL+")")
		b.args = append(b.args, acl.Args...)
	}
	for _, w := range opts.Wheres {
		where = append(where, "("+strings.TrimSpace(w.SQL)+")")
		b.args = append(b.args, w.Args...)
	}

	if len(where) > 0 {
		b.write(" WHERE %s", strings.Join(where, " AND "))
	}

	if !count {
		b.write(" ORDER BY %s", orderClause(opts, ext))
		switch {
		case opts.Limit > 0:
			b.write(" LIMIT ? OFFSET ?")
			b.args = append(b.args, opts.Limit, opts.Offset)
		case opts.Offset > 0:
			b.write(" LIMIT -1 OFFSET ?")
			b.args = append(b.args, opts.Offset)
		}
	}

	return Statement{SQL: b.sql.String(), Args: b.args}, nil
}

type builder struct {
	sql  strings.Builder
	args []any
}

func (b *builder) write(format string, args ...any) {
	fmt.Fprintf(&b.sql, format, args...)
}

func (b *builder) idClause(where []string, column string, set query.IDSet) []string {
	if !set.Set {
		return where
	}
	where = append(where, fmt.Sprintf("%s.%s IN (%s)", Alias, column, placeholders(len(set.IDs))))
	for _, id := range set.IDs {
		b.args = append(b.args, id)
	}
	return where
}

func (b *builder) timeClause(where []string, column, op string, t time.Time) []string {
	if t.IsZero() {
		return where
	}
	b.args = append(b.args, entity.ToUnix(t))
	return append(where, fmt.Sprintf("%s.%s %s ?", Alias, column, op))
}

func (b *builder) attributeClause(preds []query.AttributePredicate, join query.Conjunction) string {
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		col := extAlias + "." + p.Name
		if p.CaseInsensitive {
			col += " COLLATE NOCASE"
		}
		if p.Operator == query.OpIn {
			parts = append(parts, fmt.Sprintf("%s IN (%s)", col, placeholders(len(p.Values))))
			for _, v := range p.Values {
				b.args = append(b.args, param(v))
			}
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s ?", col, p.Operator))
		b.args = append(b.args, param(p.Value))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " "+string(join)+" ") + ")"
}

// typeClause renders (e.type = ?) or (e.type = ? AND e.subtype_id IN (...))
// per filter, OR'd together.
func typeClause(filters []TypeFilter) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	var args []any
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		args = append(args, string(f.Type))
		if f.SubtypeIDs == nil {
			parts = append(parts, fmt.Sprintf("(%s.type = ?)", Alias))
			continue
		}
		parts = append(parts, fmt.Sprintf("(%s.type = ? AND %s.subtype_id IN (%s))", Alias, Alias, placeholders(len(f.SubtypeIDs))))
		for _, id := range f.SubtypeIDs {
			args = append(args, id)
		}
	}
	if len(parts) == 1 {
		return parts[0], args
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// extensionJoin reports whether the extension table of the single query
// type must be joined, for attribute filters or extension-column ordering.
func extensionJoin(opts query.Options) (entity.ExtensionSchema, bool, error) {
	ext, ok := opts.Extension()
	need := len(opts.Attributes) > 0
	for _, o := range opts.Order {
		if !entity.IsBaseColumn(o.Column) {
			need = true
		}
	}
	if need && !ok {
		return entity.ExtensionSchema{}, false, entity.NewUsageError("extension columns require exactly one type")
	}
	return ext, need, nil
}

func orderClause(opts query.Options, ext entity.ExtensionSchema) string {
	terms := opts.Order
	if len(terms) == 0 {
		terms = []query.Order{{Column: "created_time", Desc: true}}
	}

	parts := make([]string, 0, len(terms)+1)
	hasID := false
	for _, t := range terms {
		desc := t.Desc != opts.ReverseOrder
		alias := Alias
		if !entity.IsBaseColumn(t.Column) && ext.HasColumn(t.Column) {
			alias = extAlias
		}
		if alias == Alias && t.Column == "id" {
			hasID = true
		}
		parts = append(parts, alias+"."+t.Column+" "+direction(desc))
	}
	if !hasID {
		desc := terms[0].Desc != opts.ReverseOrder
		parts = append(parts, Alias+".id "+direction(desc))
	}
	return strings.Join(parts, ", ")
}

func direction(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}

func selectList() string {
	cols := make([]string, len(entity.BaseColumns))
	for i, c := range entity.BaseColumns {
		cols[i] = Alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// param converts attribute values to their stored representation.
func param(v any) any {
	switch val := v.(type) {
	case bool:
		if val {
			return "yes"
		}
		return "no"
	case time.Time:
		return entity.ToUnix(val)
	default:
		return v
	}
}
