package cli

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/query"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions

	Types      []string
	Subtypes   []string
	NoSubtype  bool
	IDs        []string
	Owners     []string
	Containers []string

	CreatedAfter  string
	CreatedBefore string
	UpdatedAfter  string
	UpdatedBefore string

	Attrs     map[string]string
	MatchAny  bool
	NoCase    bool
	Order     []string
	Reverse   bool
	Limit     int
	Offset    int
	Count     bool
	Raw       bool
	Batch     bool
	BatchSize int
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Find entities",
		Long: `Find entities visible to the acting user.

Filters combine with AND. Repeated values of one filter match any of them.
Attribute filters need exactly one --type and compare type-specific columns.
Orders are column names with an optional ":desc" suffix.

Example:
  polystore query --type object --subtype blog --order created_time:desc --limit 5
  polystore query --type user --attr username=ada --count
  polystore query --type object --batch --batch-size 100 --limit -1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&opts.Types, "type", "t", nil, "base type (repeatable)")
	f.StringSliceVarP(&opts.Subtypes, "subtype", "s", nil, "subtype (repeatable)")
	f.BoolVar(&opts.NoSubtype, "no-subtype", false, "match entities stored without a subtype")
	f.StringSliceVar(&opts.IDs, "id", nil, "entity id (repeatable)")
	f.StringSliceVar(&opts.Owners, "owner", nil, "owner id (repeatable)")
	f.StringSliceVar(&opts.Containers, "container", nil, "container id (repeatable)")
	f.StringVar(&opts.CreatedAfter, "created-after", "", "inclusive lower bound on created time (RFC 3339)")
	f.StringVar(&opts.CreatedBefore, "created-before", "", "inclusive upper bound on created time (RFC 3339)")
	f.StringVar(&opts.UpdatedAfter, "updated-after", "", "inclusive lower bound on updated time (RFC 3339)")
	f.StringVar(&opts.UpdatedBefore, "updated-before", "", "inclusive upper bound on updated time (RFC 3339)")
	f.StringToStringVar(&opts.Attrs, "attr", nil, "attribute equality as name=value (repeatable)")
	f.BoolVar(&opts.MatchAny, "match-any", false, "join attribute filters with OR")
	f.BoolVar(&opts.NoCase, "nocase", false, "compare attribute values case-insensitively")
	f.StringSliceVar(&opts.Order, "order", nil, "order term column[:desc] (repeatable)")
	f.BoolVar(&opts.Reverse, "reverse", false, "reverse every order term")
	f.IntVar(&opts.Limit, "limit", query.DefaultLimit, "maximum entities to return (-1 for no limit)")
	f.IntVar(&opts.Offset, "offset", 0, "entities to skip")
	f.BoolVar(&opts.Count, "count", false, "only count matches")
	f.BoolVar(&opts.Raw, "raw", false, "return base attributes without class hydration")
	f.BoolVar(&opts.Batch, "batch", false, "fetch in pages through a cursor")
	f.IntVar(&opts.BatchSize, "batch-size", query.DefaultBatchSize, "page size for --batch")

	return cmd
}

// Options converts the flags into query options.
func (o *QueryOptions) Options(cmd *cobra.Command) (query.Options, error) {
	q := query.Options{
		Limit:        o.Limit,
		Offset:       o.Offset,
		Count:        o.Count,
		RawRows:      o.Raw,
		BatchSize:    o.BatchSize,
		ReverseOrder: o.Reverse,
	}

	for _, s := range o.Types {
		t, err := entity.ParseType(s)
		if err != nil {
			return q, err
		}
		q.Types = append(q.Types, t)
	}

	if cmd.Flags().Changed("subtype") || o.NoSubtype {
		q.Subtypes = append([]string{}, o.Subtypes...)
		if o.NoSubtype {
			q.Subtypes = append(q.Subtypes, query.NoSubtype)
		}
	}

	sets := []struct {
		flag string
		vals []string
		dst  *query.IDSet
	}{
		{"id", o.IDs, &q.IDs},
		{"owner", o.Owners, &q.OwnerIDs},
		{"container", o.Containers, &q.ContainerIDs},
	}
	for _, set := range sets {
		if !cmd.Flags().Changed(set.flag) {
			continue
		}
		ids := make([]int64, 0, len(set.vals))
		for _, v := range set.vals {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return q, entity.NewUsageError("--%s %q: not an id", set.flag, v)
			}
			ids = append(ids, id)
		}
		*set.dst = query.IDs(ids...)
	}

	bounds := []struct {
		flag string
		val  string
		dst  *time.Time
	}{
		{"created-after", o.CreatedAfter, &q.CreatedLower},
		{"created-before", o.CreatedBefore, &q.CreatedUpper},
		{"updated-after", o.UpdatedAfter, &q.UpdatedLower},
		{"updated-before", o.UpdatedBefore, &q.UpdatedUpper},
	}
	for _, b := range bounds {
		if b.val == "" {
			continue
		}
		t, err := parseTime(b.val)
		if err != nil {
			return q, entity.NewUsageError("--%s: %v", b.flag, err)
		}
		*b.dst = t
	}

	for name, val := range o.Attrs {
		q.Attributes = append(q.Attributes, query.AttributePredicate{
			Name:            name,
			Value:           val,
			CaseInsensitive: o.NoCase,
		})
	}
	sortPredicates(q.Attributes)
	if o.MatchAny {
		q.AttributeJoin = query.Or
	}

	for _, term := range o.Order {
		col, dir, _ := strings.Cut(term, ":")
		switch strings.ToLower(dir) {
		case "", "asc":
			q.Order = append(q.Order, query.Order{Column: col})
		case "desc":
			q.Order = append(q.Order, query.Order{Column: col, Desc: true})
		default:
			return q, entity.NewUsageError("--order %q: direction must be asc or desc", term)
		}
	}

	return q, nil
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	q, err := opts.Options(cmd)
	if err != nil {
		return a.out.Fail("invalid query", err)
	}
	a.out.VerboseLog("Query options: %+v", q)

	switch {
	case q.Count:
		n, err := a.svc.Count(a.ctx, q)
		if err != nil {
			return a.out.Fail("query failed", err)
		}
		return a.out.Success(newEntityList(n, nil))

	case opts.Batch:
		cur, err := a.svc.Batch(a.ctx, q)
		if err != nil {
			return a.out.Fail("query failed", err)
		}
		all, err := cur.All()
		if err != nil {
			return a.out.Fail("query failed", err)
		}
		return a.out.Success(newEntityList(int64(len(all)), all))
	}

	page, err := a.svc.Page(a.ctx, q)
	if err != nil {
		return a.out.Fail("query failed", err)
	}
	return a.out.Success(newEntityList(page.Count, page.Entities))
}

func sortPredicates(ps []query.AttributePredicate) {
	slices.SortFunc(ps, func(a, b query.AttributePredicate) int {
		return strings.Compare(a.Name, b.Name)
	})
}
