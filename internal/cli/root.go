package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/polystore/internal/entities"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Config  string // YAML config file; empty means defaults and environment only
	EnvFile string // .env file loaded when present
	DB      string // overrides database.path

	// Actor the command runs as.
	AsUser     int64
	Admin      bool
	ShowHidden bool

	// TraceIDs overrides the response trace id source (for testing).
	// If nil, defaults to UUIDv7TraceIDs.
	TraceIDs TraceIDGenerator

	// Clock overrides the service clock (for testing).
	Clock entities.Clock
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the polystore CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "polystore",
		Short: "Polymorphic entity store",
		Long: `Inspect and manage a polystore database: typed entities sharing one
base table, subtype registrations and access-filtered queries.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "environment file loaded when present")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().Int64Var(&opts.AsUser, "as", 0, "user id to run as (0 is anonymous)")
	cmd.PersistentFlags().BoolVar(&opts.Admin, "admin", false, "run as an administrator")
	cmd.PersistentFlags().BoolVar(&opts.ShowHidden, "show-hidden", false, "include disabled entities")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewBootstrapCommand(opts))
	cmd.AddCommand(NewSubtypeCommand(opts))
	cmd.AddCommand(NewEntityCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewTypesCommand(opts))

	return cmd
}
