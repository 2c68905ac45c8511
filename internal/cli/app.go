package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/polystore/internal/access"
	"github.com/roach88/polystore/internal/config"
	"github.com/roach88/polystore/internal/entities"
	"github.com/roach88/polystore/internal/store"
)

// app is one command invocation's view of the database.
type app struct {
	cfg    *config.Config
	store  *store.Store
	svc    *entities.Service
	logger *slog.Logger
	out    *OutputFormatter
	ctx    context.Context
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	gen := opts.TraceIDs
	if gen == nil {
		gen = UUIDv7TraceIDs{}
	}
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
		TraceID:   gen.Generate(),
	}
}

// openApp loads configuration, opens the store and initialises the entity
// service. Failures are reported through the formatter; the returned error
// is the one the command should return.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	out := newFormatter(opts, cmd)

	cfg, err := config.Load(opts.Config, opts.EnvFile)
	if err != nil {
		return nil, out.FailCode(ErrCodeConfig, ExitCommandError, "failed to load config", err)
	}
	if opts.DB != "" {
		cfg.Database.Path = opts.DB
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(out.GetErrWriter(), &slog.HandlerOptions{Level: level}))

	logger.Debug("opening database", "path", cfg.Database.Path, "driver", cfg.Database.Driver)
	st, err := store.OpenWithDriver(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, out.FailCode(ErrCodeDatabase, ExitCommandError, "failed to open database", err)
	}

	svcOpts := []entities.Option{
		entities.WithLogger(logger),
		entities.WithCacheCapacity(cfg.Cache.Capacity),
		entities.WithHydrationMode(cfg.HydrationMode()),
	}
	if opts.Clock != nil {
		svcOpts = append(svcOpts, entities.WithClock(opts.Clock))
	}
	svc := entities.New(st, svcOpts...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = access.WithActor(ctx, access.Actor{
		UserID:     opts.AsUser,
		Admin:      opts.Admin,
		ShowHidden: opts.ShowHidden,
	})

	site := entities.SiteConfig{Name: cfg.Site.Name, Description: cfg.Site.Description, URL: cfg.Site.URL}
	if err := svc.Init(ctx, site); err != nil {
		st.Close()
		return nil, out.Fail("failed to initialise", err)
	}

	return &app{cfg: cfg, store: st, svc: svc, logger: logger, out: out, ctx: ctx}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}
