package entities

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/polystore/internal/access"
	"github.com/roach88/polystore/internal/entity"
	"github.com/roach88/polystore/internal/query"
)

func ids(list []entity.Entity) []int64 {
	out := make([]int64, 0, len(list))
	for _, e := range list {
		out = append(out, e.Attributes().ID)
	}
	return out
}

func TestList_SubtypeFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()

	blogID, err := svc.AddSubtype(ctx, entity.TypeObject, "blog", "")
	require.NoError(t, err)
	_, err = svc.AddSubtype(ctx, entity.TypeObject, "file", "")
	require.NoError(t, err)

	post := publicObject("post", 0)
	post.Subtype = "blog"
	id := save(t, svc, post)

	row, err := svc.GetRow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, blogID, row.SubtypeID)

	blogs, err := svc.List(ctx, query.Options{Type: entity.TypeObject, Subtype: "blog"})
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, ids(blogs))

	files, err := svc.List(ctx, query.Options{Type: entity.TypeObject, Subtype: "file"})
	require.NoError(t, err)
	assert.Empty(t, files)

	unknown, err := svc.List(ctx, query.Options{Type: entity.TypeObject, Subtype: "never-registered"})
	require.NoError(t, err)
	assert.Empty(t, unknown)
}

func TestList_AnyVersusNoSubtype(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()

	plain := save(t, svc, &entity.User{Base: entity.Base{AccessLevel: access.Public}, Username: "plain"})
	member := save(t, svc, &entity.User{Base: entity.Base{Subtype: "member", AccessLevel: access.Public}, Username: "member"})
	save(t, svc, publicObject("not a user", 0))

	anySubtype, err := svc.List(ctx, query.Options{Types: []entity.Type{entity.TypeUser}, Subtypes: query.AnySubtype})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{plain, member}, ids(anySubtype))

	none, err := svc.List(ctx, query.Options{Types: []entity.Type{entity.TypeUser}, Subtypes: []string{query.NoSubtype}})
	require.NoError(t, err)
	assert.Equal(t, []int64{plain}, ids(none))
}

func TestList_EmptyIDSetVersusOmitted(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := elevated()
	save(t, svc, publicObject("a", 0))
	save(t, svc, publicObject("b", 0))

	backend.reset()
	none, err := svc.List(ctx, query.Options{IDs: query.IDs()})
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Zero(t, backend.rowQueries, "an empty required set never reaches the store")

	all, err := svc.List(ctx, query.Options{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	n, err := svc.Count(ctx, query.Options{OwnerIDs: query.IDs()})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestList_OrderAndPagination(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()

	var created []int64
	for i := 0; i < 5; i++ {
		created = append(created, save(t, svc, publicObject("x", 0)))
	}

	newest, err := svc.List(ctx, query.Options{Type: entity.TypeObject, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{created[4], created[3]}, ids(newest))

	oldest, err := svc.List(ctx, query.Options{Type: entity.TypeObject, Limit: 2, Offset: 1, ReverseOrder: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{created[1], created[2]}, ids(oldest))

	everything, err := svc.List(ctx, query.Options{Limit: query.NoLimit, Order: []query.Order{{Column: "id"}}})
	require.NoError(t, err)
	assert.Equal(t, created, ids(everything))
}

func TestPage_CountZeroSkipsFetch(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := elevated()
	save(t, svc, publicObject("a", 0))

	backend.reset()
	page, err := svc.Page(ctx, query.Options{OwnerID: 404})
	require.NoError(t, err)
	assert.Zero(t, page.Count)
	assert.Empty(t, page.Entities)
	assert.Equal(t, 1, backend.countQueries)
	assert.Zero(t, backend.rowQueries, "fetch must be skipped when the count is zero")

	backend.reset()
	page, err = svc.Page(ctx, query.Options{Type: entity.TypeObject})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Count)
	assert.Len(t, page.Entities, 1)
	assert.Equal(t, 1, backend.countQueries)
	assert.Equal(t, 1, backend.rowQueries)
}

func TestGetEntities_Modes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()
	for i := 0; i < 3; i++ {
		save(t, svc, publicObject("x", 0))
	}

	res, err := svc.GetEntities(ctx, query.Options{Count: true, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Count, "count ignores limit")
	assert.Nil(t, res.Entities)

	res, err = svc.GetEntities(ctx, query.Options{Batch: true, BatchSize: 2})
	require.NoError(t, err)
	require.NotNil(t, res.Cursor)
	all, err := res.Cursor.All()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	res, err = svc.GetEntities(ctx, query.Options{RawRows: true})
	require.NoError(t, err)
	require.Len(t, res.Entities, 3)
	for _, e := range res.Entities {
		_, isBase := e.(*entity.Base)
		assert.True(t, isBase, "raw rows are the generic variant, got %T", e)
	}
}

func TestGetEntities_UsageErrorsAbort(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()

	_, err := svc.GetEntities(ctx, query.Options{
		Types:      []entity.Type{entity.TypeObject, entity.TypeUser},
		Attributes: []query.AttributePredicate{{Name: "title", Value: "x"}},
	})
	require.Error(t, err)
	assert.True(t, entity.IsUsageError(err))

	_, err = svc.GetEntitiesFromAttributes(ctx, query.Options{Type: entity.TypeObject})
	require.Error(t, err)
	assert.True(t, entity.IsUsageError(err))
}

func TestGetEntitiesFromAttributes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := elevated()

	hello := save(t, svc, publicObject("Hello", 0))
	save(t, svc, publicObject("Goodbye", 0))
	world := save(t, svc, publicObject("World", 0))

	res, err := svc.GetEntitiesFromAttributes(ctx, query.Options{
		Type:       entity.TypeObject,
		Attributes: []query.AttributePredicate{{Name: "title", Value: "hello", CaseInsensitive: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{hello}, ids(res.Entities))

	res, err = svc.GetEntitiesFromAttributes(ctx, query.Options{
		Type:       entity.TypeObject,
		Attributes: []query.AttributePredicate{{Name: "title", Value: []string{"Hello", "World"}}},
		Order:      []query.Order{{Column: "title"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{hello, world}, ids(res.Entities))

	admin := save(t, svc, &entity.User{Base: entity.Base{AccessLevel: access.Public}, Username: "root", Admin: true})
	save(t, svc, &entity.User{Base: entity.Base{AccessLevel: access.Public}, Username: "guest"})
	res, err = svc.GetEntitiesFromAttributes(ctx, query.Options{
		Type:       entity.TypeUser,
		Attributes: []query.AttributePredicate{{Name: "admin", Value: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{admin}, ids(res.Entities))
}

func TestList_AccessFiltered(t *testing.T) {
	svc, _ := newTestService(t)

	visible := save(t, svc, publicObject("public", 0))
	save(t, svc, &entity.Object{Base: entity.Base{AccessLevel: access.Private}, Title: "private"})
	hidden := save(t, svc, publicObject("hidden", 0))
	_, err := svc.Disable(elevated(), hidden, false)
	require.NoError(t, err)

	list, err := svc.List(context.Background(), query.Options{Type: entity.TypeObject})
	require.NoError(t, err)
	assert.Equal(t, []int64{visible}, ids(list))

	n, err := svc.Count(elevated(), query.Options{Type: entity.TypeObject})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestList_SiteSingleton(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Init(context.Background(), SiteConfig{Name: "Example"}))

	list, err := svc.List(context.Background(), query.Options{Type: entity.TypeSite})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Same(t, svc.Site(), list[0])
}

func TestBatch_Paging(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := elevated()

	var created []int64
	for i := 0; i < 7; i++ {
		created = append(created, save(t, svc, publicObject("x", 0)))
	}

	backend.reset()
	cursor, err := svc.Batch(ctx, query.Options{Type: entity.TypeObject, BatchSize: 3, Limit: query.NoLimit, ReverseOrder: true})
	require.NoError(t, err)
	all, err := cursor.All()
	require.NoError(t, err)
	assert.Equal(t, created, ids(all))
	assert.Equal(t, 3, backend.rowQueries, "pages of 3, 3 and 1")

	limited, err := svc.Batch(ctx, query.Options{Type: entity.TypeObject, BatchSize: 3, Limit: 5})
	require.NoError(t, err)
	got, err := limited.All()
	require.NoError(t, err)
	assert.Len(t, got, 5)

	limited.Reset()
	again, err := limited.All()
	require.NoError(t, err)
	assert.Equal(t, ids(got), ids(again))
}

func TestBatch_KeepOffsetWhileDisabling(t *testing.T) {
	svc, _ := newTestService(t)
	for i := 0; i < 7; i++ {
		save(t, svc, publicObject("x", 0))
	}
	anon := context.Background()

	drain := func(keepOffset bool) int {
		cursor, err := svc.Batch(anon, query.Options{Type: entity.TypeObject, BatchSize: 3, Limit: query.NoLimit, KeepOffset: keepOffset})
		require.NoError(t, err)
		n := 0
		for cursor.Next() {
			_, err := svc.Disable(elevated(), cursor.Entity().Attributes().ID, false)
			require.NoError(t, err)
			n++
		}
		require.NoError(t, cursor.Err())
		return n
	}

	// Advancing the offset past rows that dropped out of the result skips
	// entities.
	assert.Less(t, drain(false), 7)

	all, err := svc.List(elevated(), query.Options{Type: entity.TypeObject, Limit: query.NoLimit})
	require.NoError(t, err)
	for _, e := range all {
		_, err := svc.Enable(elevated(), e.Attributes().ID, false)
		require.NoError(t, err)
	}

	assert.Equal(t, 7, drain(true))
}
