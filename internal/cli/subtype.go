package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/subtype"
)

// SubtypeResult is the output of subtype add, update and remove.
type SubtypeResult struct {
	Action  string      `json:"action"`
	Type    entity.Type `json:"type"`
	Subtype string      `json:"subtype"`
	ID      int64       `json:"id,omitempty"`
	Class   string      `json:"class,omitempty"`
	Changed bool        `json:"changed"`
}

var pastTense = map[string]string{"add": "Added", "update": "Updated", "remove": "Removed"}

func (r SubtypeResult) String() string {
	if !r.Changed {
		return fmt.Sprintf("%s:%s not registered, nothing to %s", r.Type, r.Subtype, r.Action)
	}
	s := fmt.Sprintf("%s %s:%s", pastTense[r.Action], r.Type, r.Subtype)
	if r.ID != 0 {
		s += fmt.Sprintf(" (id %d)", r.ID)
	}
	if r.Class != "" {
		s += " class=" + r.Class
	}
	return s
}

// SubtypeList is the output of subtype list.
type SubtypeList []subtype.Registration

func (l SubtypeList) String() string {
	if len(l) == 0 {
		return "No subtypes registered"
	}
	lines := make([]string, 0, len(l))
	for _, r := range l {
		line := fmt.Sprintf("%4d  %s:%s", r.ID, r.Type, r.Subtype)
		if r.Class != "" {
			line += "  class=" + r.Class
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// NewSubtypeCommand creates the subtype command group.
func NewSubtypeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtype",
		Short: "Manage subtype registrations",
	}

	cmd.AddCommand(newSubtypeAddCommand(rootOpts))
	cmd.AddCommand(newSubtypeUpdateCommand(rootOpts))
	cmd.AddCommand(newSubtypeRemoveCommand(rootOpts))
	cmd.AddCommand(newSubtypeListCommand(rootOpts))

	return cmd
}

func newSubtypeAddCommand(rootOpts *RootOptions) *cobra.Command {
	var class string

	cmd := &cobra.Command{
		Use:   "add <type> <subtype>",
		Short: "Register a subtype",
		Long: `Register a subtype, optionally bound to a class. Adding an existing
subtype reports its id and leaves its class unchanged.

Example:
  polystore subtype add object blog --class blog_post`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubtype(rootOpts, cmd, args, "add", func(a *app, t entity.Type, name string) (SubtypeResult, error) {
				id, err := a.svc.AddSubtype(a.ctx, t, name, class)
				if err != nil {
					return SubtypeResult{}, err
				}
				bound, err := a.svc.SubtypeClass(a.ctx, t, name)
				return SubtypeResult{ID: id, Class: bound, Changed: true}, err
			})
		},
	}

	cmd.Flags().StringVar(&class, "class", "", "class bound to the subtype")

	return cmd
}

func newSubtypeUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var class string

	cmd := &cobra.Command{
		Use:           "update <type> <subtype> --class <class>",
		Short:         "Rebind the class of a registered subtype",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubtype(rootOpts, cmd, args, "update", func(a *app, t entity.Type, name string) (SubtypeResult, error) {
				ok, err := a.svc.UpdateSubtype(a.ctx, t, name, class)
				return SubtypeResult{Class: class, Changed: ok}, err
			})
		},
	}

	cmd.Flags().StringVar(&class, "class", "", "class bound to the subtype")
	_ = cmd.MarkFlagRequired("class")

	return cmd
}

func newSubtypeRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <type> <subtype>",
		Short: "Delete a subtype registration",
		Long: `Delete a subtype registration. Entities stored with it are kept and
read back as the default variant of their type.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubtype(rootOpts, cmd, args, "remove", func(a *app, t entity.Type, name string) (SubtypeResult, error) {
				ok, err := a.svc.RemoveSubtype(a.ctx, t, name)
				return SubtypeResult{Changed: ok}, err
			})
		},
	}
}

func newSubtypeListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List subtype registrations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			regs, err := a.svc.Subtypes(a.ctx)
			if err != nil {
				return a.out.Fail("failed to list subtypes", err)
			}
			return a.out.Success(SubtypeList(regs))
		},
	}
}

func runSubtype(rootOpts *RootOptions, cmd *cobra.Command, args []string, action string,
	do func(a *app, t entity.Type, name string) (SubtypeResult, error)) error {
	a, err := openApp(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	t, err := entity.ParseType(args[0])
	if err != nil {
		return a.out.Fail("invalid type", err)
	}

	result, err := do(a, t, args[1])
	if err != nil {
		return a.out.Fail("subtype "+action+" failed", err)
	}
	result.Action, result.Type, result.Subtype = action, t, args[1]
	return a.out.Success(result)
}
