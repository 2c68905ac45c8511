package entities

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/polystore/internal/access"
	"github.com/roach88/polystore/internal/cache"
	"github.com/roach88/polystore/internal/directory"
	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/events"
	"github.com/roach88/polystore/internal/hydrate"
	"github.com/roach88/polystore/internal/querysql"
	"github.com/roach88/polystore/internal/store"
	"github.com/roach88/polystore/internal/subtype"
)

// Backend is the row store. *store.Store implements it.
type Backend interface {
	hydrate.Backend
	subtype.Backend
	directory.Backend

	GetRow(ctx context.Context, id int64) (*store.Row, error)
	Exists(ctx context.Context, id int64) (bool, error)
	Insert(ctx context.Context, row store.Row, ext store.ExtensionRow) (int64, error)
	Update(ctx context.Context, row store.Row, ext store.ExtensionRow) (bool, error)
	UpdateLastAction(ctx context.Context, id, ts int64) (bool, error)
	Enable(ctx context.Context, id int64, recursive bool) ([]int64, bool, error)
	Disable(ctx context.Context, id int64, recursive bool) ([]int64, bool, error)
	QueryRows(ctx context.Context, query string, args ...any) ([]store.Row, error)
	QueryCount(ctx context.Context, query string, args ...any) (int64, error)
}

// Clock supplies write timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC().Truncate(time.Second) }

// SiteConfig describes the site entity installed by Init.
type SiteConfig struct {
	Name        string
	Description string
	URL         string
}

// TestSuites lists the package directories holding this module's tests.
// Init registers it as the unit_test:system hook handler.
var TestSuites = []string{
	"internal/access",
	"internal/cache",
	"internal/cli",
	"internal/config",
	"internal/directory",
	"internal/entities",
	"internal/entity",
	"internal/events",
	"internal/hydrate",
	"internal/manifest",
	"internal/query",
	"internal/querysql",
	"internal/store",
	"internal/subtype",
	"internal/testutil",
}

// Service is the entity storage and query engine.
//
// Thread-safety: all methods are safe for concurrent use. A Cursor is not;
// each caller must hold its own.
type Service struct {
	backend   Backend
	subtypes  *subtype.Registry
	hydrator  *hydrate.Hydrator
	cache     *cache.Cache
	directory *directory.Directory
	events    *events.Registry
	access    access.Provider
	compiler  *querysql.SQLCompiler
	clock     Clock
	logger    *slog.Logger

	cacheCapacity int
	hydrateMode   hydrate.Mode

	mu          sync.RWMutex
	site        entity.Entity
	initialized bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock sets the timestamp source. Default: wall clock, whole seconds.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithAccess sets the access provider. Default: access.Default.
func WithAccess(p access.Provider) Option {
	return func(s *Service) { s.access = p }
}

// WithEvents sets the event registry. Default: a new empty registry.
func WithEvents(r *events.Registry) Option {
	return func(s *Service) { s.events = r }
}

// WithCacheCapacity bounds the entity cache. Default: cache.DefaultCapacity.
func WithCacheCapacity(n int) Option {
	return func(s *Service) { s.cacheCapacity = n }
}

// WithHydrationMode selects eager or lazy extension loading. Default: Eager.
func WithHydrationMode(m hydrate.Mode) Option {
	return func(s *Service) { s.hydrateMode = m }
}

// New creates a Service over backend.
func New(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend:  backend,
		access:   access.Default{},
		compiler: querysql.NewSQLCompiler(),
		clock:    systemClock{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = events.New()
	}

	s.subtypes = subtype.New(backend, s.logger)
	s.hydrator = hydrate.New(backend, s.subtypes, hydrate.WithMode(s.hydrateMode), hydrate.WithLogger(s.logger))
	s.cache = cache.New(s.cacheCapacity)
	s.directory = directory.New(backend, s.logger)
	return s
}

// Events returns the event registry the Service publishes to.
func (s *Service) Events() *events.Registry { return s.events }

// Hydrator returns the hydrator, for LoadExtension on lazily loaded
// entities.
func (s *Service) Hydrator() *hydrate.Hydrator { return s.hydrator }

// CacheLen reports the number of cached entities.
func (s *Service) CacheLen() int { return s.cache.Len() }

// Init installs the site entity if absent, loads it as the process-wide
// site singleton, registers the unit_test:system hook and publishes
// init:system. Calling Init again only reloads the site.
func (s *Service) Init(ctx context.Context, site SiteConfig) error {
	row, err := s.backend.GetRow(ctx, entity.SiteID)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	if row == nil {
		now := s.clock.Now()
		base := entity.Base{
			ID:             entity.SiteID,
			Type:           entity.TypeSite,
			AccessLevel:    access.Public,
			CreatedTime:    now,
			UpdatedTime:    now,
			LastActionTime: now,
			Enabled:        true,
		}
		r, ext := hydrate.ToRows(&entity.Site{Base: base, Name: site.Name, Description: site.Description, URL: site.URL})
		if _, err := s.backend.Insert(ctx, r, ext); err != nil {
			return fmt.Errorf("init: install site: %w", err)
		}
		s.logger.Info("site installed", "name", site.Name)
	} else if row.Type != string(entity.TypeSite) {
		return entity.NewConfigurationError("entity %d is a %s, not the site", entity.SiteID, row.Type)
	}

	if err := s.loadSite(ctx); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	s.mu.Lock()
	first := !s.initialized
	s.initialized = true
	s.mu.Unlock()

	if first {
		s.events.RegisterHook(events.HookUnitTest, events.TypeSystem, events.DefaultPriority,
			func(_ context.Context, _, _ string, _ map[string]any, value any) any {
				suites, _ := value.([]string)
				return append(suites, TestSuites...)
			})
		s.events.Trigger(ctx, events.EventInit, events.TypeSystem, s)
		s.logger.Info("entity service initialised")
	}
	return nil
}

// UnitTests collects test-suite locations from every unit_test:system
// hook handler.
func (s *Service) UnitTests(ctx context.Context) []string {
	out, _ := s.events.TriggerHook(ctx, events.HookUnitTest, events.TypeSystem, nil, []string{}).([]string)
	return out
}

// Site returns the site singleton, or nil before Init.
func (s *Service) Site() entity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.site
}

func (s *Service) loadSite(ctx context.Context) error {
	row, err := s.backend.GetRow(ctx, entity.SiteID)
	if err != nil {
		return err
	}
	if row == nil {
		return entity.NewConfigurationError("site entity %d is missing", entity.SiteID)
	}
	site, err := s.hydrator.RowToEntity(ctx, *row)
	if err != nil {
		return err
	}
	if err := s.hydrator.LoadExtension(ctx, site); err != nil {
		return err
	}

	s.mu.Lock()
	s.site = site
	s.mu.Unlock()
	return nil
}
