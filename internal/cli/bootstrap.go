package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/polystore/internal/manifest"
)

// BootstrapResult is the output of the bootstrap command.
type BootstrapResult struct {
	Manifest string `json:"manifest"`
	Files    int    `json:"files"`
	*manifest.Report
}

func (r BootstrapResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Applied %s (%d file(s))", r.Manifest, r.Files)
	for _, line := range []struct {
		label string
		keys  []string
	}{
		{"added", r.Added},
		{"rebound", r.Rebound},
		{"registered", r.Registered},
	} {
		if len(line.keys) > 0 {
			fmt.Fprintf(&sb, "\n  %s: %s", line.label, strings.Join(line.keys, ", "))
		}
	}
	return sb.String()
}

// NewBootstrapCommand creates the bootstrap command.
func NewBootstrapCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap [manifest-dir]",
		Short: "Apply a CUE manifest of subtypes and public types",
		Long: `Load the CUE manifest in manifest-dir (or the manifest directory named in
the config) and register every subtype and public type it declares.

Applying the same manifest twice changes nothing.

Example:
  polystore bootstrap --db ./site.db ./manifest`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			dir := a.cfg.Manifest
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return a.out.FailCode(ErrCodeManifest, ExitCommandError, "no manifest directory given", nil)
			}

			m, err := manifest.Load(dir)
			if err != nil {
				return a.out.Fail("failed to load manifest", err)
			}
			a.out.VerboseLog("Found %d CUE file(s) in %s", m.FileCount, dir)

			report, err := manifest.Apply(a.ctx, m, a.svc)
			if err != nil {
				return a.out.Fail("failed to apply manifest", err)
			}
			return a.out.Success(BootstrapResult{Manifest: dir, Files: m.FileCount, Report: report})
		},
	}

	return cmd
}
