package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/polystore/internal/entity"
)

// InitResult is the output of the init command.
type InitResult struct {
	Database string     `json:"database"`
	Driver   string     `json:"driver"`
	Site     EntityView `json:"site"`
	Suites   []string   `json:"test_suites,omitempty"`
}

func (r InitResult) String() string {
	s := fmt.Sprintf("Database %s (%s) ready\n%s", r.Database, r.Driver, r.Site)
	for _, suite := range r.Suites {
		s += "\n  test suite: " + suite
	}
	return s
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	var listSuites bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and install the site entity",
		Long: `Create the database if needed, apply migrations and install the site
entity (id 1) from the site section of the config.

Running init again only reports the existing site.

Example:
  polystore init --db ./site.db
  polystore init --config polystore.yaml --test-suites`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			site, ok := a.svc.Site().(entity.SiteEntity)
			if !ok {
				return a.out.FailCode(ErrCodeConfiguration, ExitFailure, "site entity missing after init", nil)
			}
			result := InitResult{
				Database: a.cfg.Database.Path,
				Driver:   a.cfg.Database.Driver,
				Site:     newEntityView(site),
			}
			if listSuites {
				result.Suites = a.svc.UnitTests(a.ctx)
			}
			return a.out.Success(result)
		},
	}

	cmd.Flags().BoolVar(&listSuites, "test-suites", false, "list registered test suites")

	return cmd
}
