package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/polystore/internal/entity"
)

// TypeDirectory is the output of types list.
type TypeDirectory map[entity.Type][]string

func (d TypeDirectory) String() string {
	if len(d) == 0 {
		return "No types registered (every type is public)"
	}
	types := make([]string, 0, len(d))
	for t := range d {
		types = append(types, string(t))
	}
	sort.Strings(types)

	lines := make([]string, 0, len(types))
	for _, t := range types {
		subtypes := d[entity.Type(t)]
		if len(subtypes) == 0 {
			lines = append(lines, t)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", t, strings.Join(subtypes, ", ")))
	}
	return strings.Join(lines, "\n")
}

// TypeChange is the output of types register and unregister.
type TypeChange struct {
	Action  string      `json:"action"`
	Type    entity.Type `json:"type"`
	Subtype string      `json:"subtype,omitempty"`
	Changed bool        `json:"changed"`
}

func (c TypeChange) String() string {
	name := string(c.Type)
	if c.Subtype != "" {
		name += ":" + c.Subtype
	}
	if !c.Changed {
		return name + " was not registered"
	}
	return fmt.Sprintf("%s %s", c.Action, name)
}

// NewTypesCommand creates the types command group over the registered-type
// directory.
func NewTypesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "Manage the registered-type directory",
		Long: `The registered-type directory lists the (type, subtype) pairs exposed to
search and listings. While it is empty every pair counts as registered.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "list [type]",
		Short:         "List registered types",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypes(rootOpts, cmd, args, func(a *app, t entity.Type, _ string) (any, error) {
				d, _, err := a.svc.RegisteredTypes(a.ctx, t)
				return TypeDirectory(d), err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "register <type> [subtype]",
		Short:         "Add a type or subtype to the directory",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypes(rootOpts, cmd, args, func(a *app, t entity.Type, name string) (any, error) {
				ok, err := a.svc.RegisterType(a.ctx, t, name)
				return TypeChange{Action: "registered", Type: t, Subtype: name, Changed: ok}, err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unregister <type> [subtype]",
		Short: "Remove a type or subtype from the directory",
		Long: `Remove a subtype from the directory, or a whole type with every subtype
listed under it when no subtype is given.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypes(rootOpts, cmd, args, func(a *app, t entity.Type, name string) (any, error) {
				ok, err := a.svc.UnregisterType(a.ctx, t, name)
				return TypeChange{Action: "unregistered", Type: t, Subtype: name, Changed: ok}, err
			})
		},
	})

	return cmd
}

func runTypes(rootOpts *RootOptions, cmd *cobra.Command, args []string,
	do func(a *app, t entity.Type, name string) (any, error)) error {
	a, err := openApp(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	var t entity.Type
	var name string
	if len(args) > 0 {
		if t, err = entity.ParseType(args[0]); err != nil {
			return a.out.Fail("invalid type", err)
		}
	}
	if len(args) > 1 {
		name = args[1]
	}

	result, err := do(a, t, name)
	if err != nil {
		return a.out.Fail(cmd.Name()+" failed", err)
	}
	return a.out.Success(result)
}
