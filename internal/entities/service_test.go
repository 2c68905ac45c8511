package entities

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polystore/internal/access"
	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/events"
	"github.com/roach88/polystore/internal/hydrate"
	"github.com/roach88/polystore/internal/store"
	"github.com/roach88/polystore/internal/testutil"
)

// countingBackend records how many composed queries reach the store.
type countingBackend struct {
	*store.Store
	rowQueries   int
	countQueries int
}

func (b *countingBackend) QueryRows(ctx context.Context, q string, args ...any) ([]store.Row, error) {
	b.rowQueries++
	return b.Store.QueryRows(ctx, q, args...)
}

func (b *countingBackend) QueryCount(ctx context.Context, q string, args ...any) (int64, error) {
	b.countQueries++
	return b.Store.QueryCount(ctx, q, args...)
}

func (b *countingBackend) reset() {
	b.rowQueries, b.countQueries = 0, 0
}

func newTestService(t *testing.T, opts ...Option) (*Service, *countingBackend) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	backend := &countingBackend{Store: s}
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(testutil.NewDeterministicClock()),
	}, opts...)
	return New(backend, opts...), backend
}

// elevated returns a context whose actor sees every row.
func elevated() context.Context {
	return access.Elevate(context.Background())
}

func publicObject(title string, containerID int64) *entity.Object {
	return &entity.Object{
		Base:  entity.Base{AccessLevel: access.Public, ContainerID: containerID},
		Title: title,
	}
}

func save(t *testing.T, svc *Service, e entity.Entity) int64 {
	t.Helper()
	id, err := svc.Save(elevated(), e)
	require.NoError(t, err)
	return id
}

type BlogPost struct {
	entity.Object
}

func blogFactory(base entity.Base) (entity.Entity, error) {
	return &BlogPost{Object: entity.Object{Base: base}}, nil
}

func TestInit_InstallsSiteAndPublishes(t *testing.T) {
	reg := events.New()
	var inits int
	reg.RegisterEvent(events.EventInit, events.TypeSystem, events.DefaultPriority, func(context.Context, string, string, any) bool {
		inits++
		return true
	})
	svc, backend := newTestService(t, WithEvents(reg))
	ctx := context.Background()

	require.NoError(t, svc.Init(ctx, SiteConfig{Name: "Example", URL: "https://example.org/"}))
	require.NoError(t, svc.Init(ctx, SiteConfig{Name: "ignored"}))
	assert.Equal(t, 1, inits)

	backend.reset()
	got, err := svc.Get(ctx, entity.SiteID)
	require.NoError(t, err)
	require.NotNil(t, got)
	site, ok := got.(entity.SiteEntity)
	require.True(t, ok)
	assert.Equal(t, "Example", site.AsSite().Name)
	assert.Equal(t, "https://example.org/", site.AsSite().URL)
	assert.Zero(t, backend.rowQueries+backend.countQueries, "site resolves without a row lookup")

	assert.Equal(t, TestSuites, svc.UnitTests(ctx))
}

func TestInit_RejectsNonSiteRow(t *testing.T) {
	svc, backend := newTestService(t)
	_, err := backend.Insert(elevated(), store.Row{ID: entity.SiteID, Type: "object", Enabled: true}, nil)
	require.NoError(t, err)

	err = svc.Init(context.Background(), SiteConfig{})
	require.Error(t, err)
	assert.True(t, entity.IsConfigurationError(err))
}

func TestSave_RoundTripAndCache(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := elevated()

	post := &entity.Object{
		Base:        entity.Base{Subtype: "blog", OwnerID: 4, ContainerID: 5, AccessLevel: access.LoggedIn},
		Title:       "Hello",
		Description: "First post",
	}
	id, err := svc.Save(ctx, post)
	require.NoError(t, err)
	require.NotZero(t, id)
	assert.Equal(t, id, post.ID)
	assert.True(t, post.Enabled)
	assert.NotZero(t, post.SubtypeID)

	backend.reset()
	first, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, backend.rowQueries)

	assert.Equal(t, post.Base, *first.Attributes())
	obj := first.(entity.ObjectEntity).AsObject()
	assert.Equal(t, "Hello", obj.Title)
	assert.Equal(t, "First post", obj.Description)

	second, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, backend.rowQueries, "second read is served from the cache")
}

func TestSave_UpdateInvalidatesCache(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()
	id := save(t, svc, publicObject("before", 0))

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	obj := got.(entity.ObjectEntity).AsObject()
	created := obj.CreatedTime
	obj.Title = "after"
	_, err = svc.Save(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, 0, svc.CacheLen())

	again, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "after", again.(entity.ObjectEntity).AsObject().Title)
	assert.Equal(t, created, again.Attributes().CreatedTime)
	assert.True(t, again.Attributes().UpdatedTime.After(created))
}

func TestSave_TypeAndSubtypeImmutable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()

	obj := publicObject("x", 0)
	obj.Subtype = "blog"
	id := save(t, svc, obj)

	obj.Subtype = "file"
	_, err := svc.Save(ctx, obj)
	require.NoError(t, err)
	row, err := svc.GetRow(ctx, id)
	require.NoError(t, err)
	blogID, _, err := svc.SubtypeID(ctx, entity.TypeObject, "blog")
	require.NoError(t, err)
	assert.Equal(t, blogID, row.SubtypeID)
	assert.Equal(t, "blog", obj.Subtype, "in-memory subtype follows the stored one")
	assert.Equal(t, blogID, obj.SubtypeID)

	impostor := &entity.User{Base: entity.Base{ID: id}}
	_, err = svc.Save(ctx, impostor)
	require.Error(t, err)
	assert.True(t, entity.IsUsageError(err))

	_, err = svc.Save(ctx, &entity.Object{Base: entity.Base{ID: 9999}})
	require.Error(t, err)
	assert.True(t, entity.IsUsageError(err))

	_, err = svc.Save(ctx, &entity.Object{Base: entity.Base{Type: entity.TypeUser}})
	require.Error(t, err)
	assert.True(t, entity.IsUsageError(err))
}

func TestSave_AutoRegistersSubtype(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()

	obj := publicObject("page", 0)
	obj.Subtype = "wiki"
	save(t, svc, obj)

	id, ok, err := svc.SubtypeID(ctx, entity.TypeObject, "wiki")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, obj.SubtypeID)

	class, err := svc.SubtypeClass(ctx, entity.TypeObject, "wiki")
	require.NoError(t, err)
	assert.Empty(t, class)
}

func TestSave_TimestampsRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()

	created := time.Date(2024, 5, 1, 12, 0, 0, 750_000_000, time.FixedZone("UTC+1", 3600))
	obj := publicObject("x", 0)
	obj.CreatedTime = created
	id := save(t, svc, obj)

	want := time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(obj.CreatedTime), "created_time %v", obj.CreatedTime)
	assert.True(t, want.Equal(obj.LastActionTime), "last_action_time %v", obj.LastActionTime)
	assert.Equal(t, time.UTC, obj.CreatedTime.Location())

	svc.cache.Clear()
	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, obj.CreatedTime, got.Attributes().CreatedTime, "created_time")
	assert.Equal(t, obj.LastActionTime, got.Attributes().LastActionTime, "last_action_time")
	assert.Equal(t, obj.UpdatedTime, got.Attributes().UpdatedTime, "updated_time")
}

func TestSetEnabled_PublishesEntities(t *testing.T) {
	reg := events.New()
	var got []entity.Entity
	reg.RegisterEvent(events.EventDisable, events.All, events.DefaultPriority, func(_ context.Context, _, _ string, object any) bool {
		e, ok := object.(entity.Entity)
		require.True(t, ok, "disable event carries %T", object)
		got = append(got, e)
		return true
	})
	svc, _ := newTestService(t, WithEvents(reg))

	id := save(t, svc, publicObject("x", 0))
	_, err := svc.Disable(elevated(), id, false)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].Attributes().ID)
	assert.False(t, got[0].Attributes().Enabled)
}

func TestSave_PublishesEvents(t *testing.T) {
	reg := events.New()
	var seen []string
	reg.RegisterEvent(events.All, events.All, events.DefaultPriority, func(_ context.Context, event, objectType string, _ any) bool {
		seen = append(seen, event+":"+objectType)
		return true
	})
	svc, _ := newTestService(t, WithEvents(reg))
	ctx := elevated()

	obj := publicObject("x", 0)
	id := save(t, svc, obj)
	_, err := svc.Save(ctx, obj)
	require.NoError(t, err)
	_, err = svc.Disable(ctx, id, false)
	require.NoError(t, err)
	_, err = svc.Enable(ctx, id, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"create:object", "update:object", "disable:object", "enable:object"}, seen)
}

func TestExists_TrueAfterDisable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()
	id := save(t, svc, publicObject("x", 0))

	found, err := svc.Disable(ctx, id, false)
	require.NoError(t, err)
	assert.True(t, found)

	ok, err := svc.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Exists(ctx, id+100)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err = svc.Disable(ctx, id+100, false)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEnable_RecursiveAcyclic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()

	container := save(t, svc, publicObject("container", 0))
	var children []int64
	for i := 0; i < 4; i++ {
		children = append(children, save(t, svc, publicObject("child", container)))
	}

	_, err := svc.Disable(ctx, container, true)
	require.NoError(t, err)
	for _, id := range append([]int64{container}, children...) {
		row, err := svc.GetRow(ctx, id)
		require.NoError(t, err)
		assert.False(t, row.Enabled, "entity %d", id)
	}

	_, err = svc.Enable(ctx, container, true)
	require.NoError(t, err)
	for _, id := range append([]int64{container}, children...) {
		row, err := svc.GetRow(ctx, id)
		require.NoError(t, err)
		assert.True(t, row.Enabled, "entity %d", id)
	}
}

func TestEnable_RecursiveCycleTerminates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()

	a := save(t, svc, publicObject("a", 0))
	b := save(t, svc, publicObject("b", a))

	got, err := svc.Get(ctx, a)
	require.NoError(t, err)
	got.Attributes().ContainerID = b
	_, err = svc.Save(ctx, got)
	require.NoError(t, err)

	_, err = svc.Disable(ctx, a, true)
	require.NoError(t, err)
	_, err = svc.Enable(ctx, b, true)
	require.NoError(t, err)

	for _, id := range []int64{a, b} {
		row, err := svc.GetRow(ctx, id)
		require.NoError(t, err)
		assert.True(t, row.Enabled)
	}
}

func TestUpdateLastAction(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()
	id := save(t, svc, publicObject("x", 0))
	before, err := svc.GetRow(ctx, id)
	require.NoError(t, err)

	at := testutil.Epoch.AddDate(1, 0, 0)
	ok, err := svc.UpdateLastAction(ctx, id, at)
	require.NoError(t, err)
	assert.True(t, ok)

	after, err := svc.GetRow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, at.Unix(), after.LastActionTime)
	assert.Equal(t, before.UpdatedTime, after.UpdatedTime)

	ok, err = svc.UpdateLastAction(ctx, 424242, at)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGet_AccessControl(t *testing.T) {
	svc, _ := newTestService(t)

	public := save(t, svc, publicObject("public", 0))
	private := save(t, svc, &entity.Object{Base: entity.Base{OwnerID: 77, AccessLevel: access.Private}, Title: "private"})
	hidden := save(t, svc, publicObject("hidden", 0))
	_, err := svc.Disable(elevated(), hidden, false)
	require.NoError(t, err)

	// Warm the cache with every entity.
	for _, id := range []int64{public, private, hidden} {
		e, err := svc.Get(elevated(), id)
		require.NoError(t, err)
		require.NotNil(t, e)
	}

	anon := context.Background()
	owner := access.WithActor(context.Background(), access.Actor{UserID: 77})
	other := access.WithActor(context.Background(), access.Actor{UserID: 78})

	tests := []struct {
		name    string
		ctx     context.Context
		id      int64
		visible bool
	}{
		{"anonymous public", anon, public, true},
		{"anonymous private", anon, private, false},
		{"anonymous hidden", anon, hidden, false},
		{"owner private", owner, private, true},
		{"other private", other, private, false},
		{"admin hidden", elevated(), hidden, true},
		{"absent", anon, 9999, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := svc.Get(tt.ctx, tt.id)
			require.NoError(t, err)
			if tt.visible {
				assert.NotNil(t, e)
			} else {
				assert.Nil(t, e)
			}
		})
	}

	// GetRow bypasses access control.
	row, err := svc.GetRow(anon, private)
	require.NoError(t, err)
	require.NotNil(t, row)
}

func TestGet_BoundClassAndRemoval(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()

	require.NoError(t, svc.RegisterClass("blogpost", blogFactory))
	_, err := svc.AddSubtype(ctx, entity.TypeObject, "blog", "blogpost")
	require.NoError(t, err)

	post := &BlogPost{Object: entity.Object{Base: entity.Base{Subtype: "blog", AccessLevel: access.Public}, Title: "t"}}
	id := save(t, svc, post)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	bp, ok := got.(*BlogPost)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, "blog", bp.Subtype)
	assert.Equal(t, "t", bp.Title)

	removed, err := svc.RemoveSubtype(ctx, entity.TypeObject, "blog")
	require.NoError(t, err)
	require.True(t, removed)

	got, err = svc.Get(ctx, id)
	require.NoError(t, err)
	obj, ok := got.(*entity.Object)
	require.True(t, ok, "got %T", got)
	assert.Empty(t, obj.Subtype)
	assert.Equal(t, "t", obj.Title)
}

func TestGet_UnregisteredClassIsConfigurationError(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()

	_, err := svc.AddSubtype(ctx, entity.TypeObject, "ghost", "NoSuchClass")
	require.NoError(t, err)
	obj := publicObject("boo", 0)
	obj.Subtype = "ghost"
	id := save(t, svc, obj)

	_, err = svc.Get(ctx, id)
	require.Error(t, err)
	assert.True(t, entity.IsConfigurationError(err))
}

func TestLazyHydration(t *testing.T) {
	svc, _ := newTestService(t, WithHydrationMode(hydrate.Lazy))
	ctx := elevated()
	id := save(t, svc, publicObject("lazy", 0))

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	obj := got.(entity.ObjectEntity).AsObject()
	assert.False(t, obj.ExtensionLoaded)
	assert.Empty(t, obj.Title)

	// Saving without loading keeps the stored extension row.
	obj.AccessLevel = access.LoggedIn
	_, err = svc.Save(ctx, obj)
	require.NoError(t, err)

	got, err = svc.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, svc.Hydrator().LoadExtension(ctx, got))
	obj = got.(entity.ObjectEntity).AsObject()
	assert.Equal(t, "lazy", obj.Title)
	assert.Equal(t, access.LoggedIn, obj.AccessLevel)
}

func TestDirectoryPassThrough(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ok, err := svc.IsRegisteredType(ctx, entity.TypeObject, "blog")
	require.NoError(t, err)
	assert.True(t, ok)

	changed, err := svc.RegisterType(ctx, entity.TypeObject, "blog")
	require.NoError(t, err)
	assert.True(t, changed)
	ok, err = svc.IsRegisteredType(ctx, entity.TypeObject, "file")
	require.NoError(t, err)
	assert.False(t, ok)

	list, found, err := svc.RegisteredTypes(ctx, "")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"blog"}, list[entity.TypeObject])

	removed, err := svc.UnregisterType(ctx, entity.TypeObject, "")
	require.NoError(t, err)
	assert.True(t, removed)
}
