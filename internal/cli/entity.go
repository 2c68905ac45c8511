package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/polystore/internal/access"
	"github.com/roach88/polystore/internal/entity"
)

// StateResult is the output of entity enable, disable and touch.
type StateResult struct {
	Action string `json:"action"`
	ID     int64  `json:"id"`
}

func (r StateResult) String() string {
	return fmt.Sprintf("%s #%d", r.Action, r.ID)
}

type entityFlags struct {
	subtype     string
	owner       int64
	container   int64
	accessLevel int
	attrs       map[string]string
}

// NewEntityCommand creates the entity command group.
func NewEntityCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Create, read and change entities",
	}

	cmd.AddCommand(newEntityCreateCommand(rootOpts))
	cmd.AddCommand(newEntityGetCommand(rootOpts))
	cmd.AddCommand(newEntityUpdateCommand(rootOpts))
	cmd.AddCommand(newEntityStateCommand(rootOpts, "enable"))
	cmd.AddCommand(newEntityStateCommand(rootOpts, "disable"))
	cmd.AddCommand(newEntityTouchCommand(rootOpts))

	return cmd
}

func newEntityCreateCommand(rootOpts *RootOptions) *cobra.Command {
	f := &entityFlags{}

	cmd := &cobra.Command{
		Use:   "create <type>",
		Short: "Create an entity",
		Long: `Create an entity of the given base type. An unregistered subtype is
registered on first use.

Example:
  polystore entity create object --subtype blog --owner 2 --attr title="Hello"
  polystore entity create user --attr username=ada --attr email=ada@example.com`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			t, err := entity.ParseType(args[0])
			if err != nil {
				return a.out.Fail("invalid type", err)
			}
			if t == entity.TypeSite {
				return a.out.Fail("invalid type", entity.NewUsageError("the site entity is installed by init"))
			}

			e, err := entity.New(t, entity.Base{
				Subtype:     f.subtype,
				OwnerID:     f.owner,
				ContainerID: f.container,
				AccessLevel: f.accessLevel,
			})
			if err != nil {
				return a.out.Fail("create failed", err)
			}
			if err := setAttributes(e, f.attrs); err != nil {
				return a.out.Fail("create failed", err)
			}

			if _, err := a.svc.Save(a.ctx, e); err != nil {
				return a.out.Fail("create failed", err)
			}
			a.logger.Info("entity created", "entity", e.Attributes().String())
			return a.out.Success(newEntityView(e))
		},
	}

	cmd.Flags().StringVar(&f.subtype, "subtype", "", "subtype name")
	cmd.Flags().Int64Var(&f.owner, "owner", 0, "owner entity id")
	cmd.Flags().Int64Var(&f.container, "container", 0, "container entity id")
	cmd.Flags().IntVar(&f.accessLevel, "access", access.Public, "access level (0 private, 1 logged in, 2 public)")
	cmd.Flags().StringToStringVar(&f.attrs, "attr", nil, "type-specific attribute as key=value (repeatable)")

	return cmd
}

func newEntityGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <id>",
		Short:         "Show one entity",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			e, err := a.getEntity(args[0])
			if err != nil {
				return err
			}
			return a.out.Success(newEntityView(e))
		},
	}
}

func newEntityUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	f := &entityFlags{}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an entity's attributes",
		Long: `Change the owner, container, access level or type-specific attributes of
an entity. Type and subtype cannot be changed.

Example:
  polystore entity update 7 --access 0 --attr title="Draft"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			e, err := a.getEntity(args[0])
			if err != nil {
				return err
			}
			if len(f.attrs) > 0 {
				if err := a.svc.Hydrator().LoadExtension(a.ctx, e); err != nil {
					return a.out.Fail("update failed", err)
				}
				if err := setAttributes(e, f.attrs); err != nil {
					return a.out.Fail("update failed", err)
				}
			}

			b := e.Attributes()
			flags := cmd.Flags()
			if flags.Changed("owner") {
				b.OwnerID = f.owner
			}
			if flags.Changed("container") {
				b.ContainerID = f.container
			}
			if flags.Changed("access") {
				b.AccessLevel = f.accessLevel
			}

			if _, err := a.svc.Save(a.ctx, e); err != nil {
				return a.out.Fail("update failed", err)
			}
			return a.out.Success(newEntityView(e))
		},
	}

	cmd.Flags().Int64Var(&f.owner, "owner", 0, "owner entity id")
	cmd.Flags().Int64Var(&f.container, "container", 0, "container entity id")
	cmd.Flags().IntVar(&f.accessLevel, "access", 0, "access level (0 private, 1 logged in, 2 public)")
	cmd.Flags().StringToStringVar(&f.attrs, "attr", nil, "type-specific attribute as key=value (repeatable)")

	return cmd
}

func newEntityStateCommand(rootOpts *RootOptions, action string) *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:           action + " <id>",
		Short:         action + " an entity",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			id, err := parseID(args[0])
			if err != nil {
				return a.out.Fail("invalid id", err)
			}

			op := a.svc.Disable
			if action == "enable" {
				op = a.svc.Enable
			}
			ok, err := op(a.ctx, id, recursive)
			if err != nil {
				return a.out.Fail(action+" failed", err)
			}
			if !ok {
				return a.out.NotFound(fmt.Sprintf("entity %d not found", id))
			}
			return a.out.Success(StateResult{Action: action + "d", ID: id})
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "also "+action+" every contained entity")

	return cmd
}

func newEntityTouchCommand(rootOpts *RootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:           "touch <id>",
		Short:         "Set an entity's last action time",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			id, err := parseID(args[0])
			if err != nil {
				return a.out.Fail("invalid id", err)
			}
			var ts time.Time
			if at != "" {
				if ts, err = parseTime(at); err != nil {
					return a.out.Fail("invalid --at", entity.NewUsageError("%v", err))
				}
			}

			ok, err := a.svc.UpdateLastAction(a.ctx, id, ts)
			if err != nil {
				return a.out.Fail("touch failed", err)
			}
			if !ok {
				return a.out.NotFound(fmt.Sprintf("entity %d not found", id))
			}
			return a.out.Success(StateResult{Action: "touched", ID: id})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "timestamp (RFC 3339); defaults to now")

	return cmd
}

// getEntity loads the entity named by arg, reporting a bad id or a missing
// entity through the formatter.
func (a *app) getEntity(arg string) (entity.Entity, error) {
	id, err := parseID(arg)
	if err != nil {
		return nil, a.out.Fail("invalid id", err)
	}
	e, err := a.svc.Get(a.ctx, id)
	if err != nil {
		return nil, a.out.Fail("get failed", err)
	}
	if e == nil {
		return nil, a.out.NotFound(fmt.Sprintf("entity %d not found", id))
	}
	return e, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, entity.NewUsageError("invalid entity id %q", s)
	}
	return id, nil
}
