package recordstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/ministore/recordstore/recordstore/models"
	"github.com/ministore/recordstore/recordstore/ops"
	"github.com/ministore/recordstore/recordstore/storage/sqlite"
)

func rule(s string) *string { return &s }

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()

	opts := DefaultStoreOptions()
	opts.Now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	s, err := Open(context.Background(), sqlite.New(path), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedStore(t *testing.T) (*Store, string) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")
	s := openTestStore(t, path)

	users := &models.Collection{
		Name: "users",
		Fields: []models.Field{
			{Name: "name", Type: models.FieldText},
			{Name: "email", Type: models.FieldText, Hidden: true},
		},
		ListRule: rule(""),
		ViewRule: rule("id = @request.auth.id"),
	}
	require.NoError(t, s.CreateCollection(ctx, users))

	posts := &models.Collection{
		Name: "posts",
		Fields: []models.Field{
			{Name: "title", Type: models.FieldText},
			{Name: "published", Type: models.FieldBool},
			{Name: "author", Type: models.FieldRelation, Options: models.FieldOptions{CollectionID: "users"}},
			{Name: "tags", Type: models.FieldSelect, Options: models.FieldOptions{MaxSelect: 3, Values: []string{"go", "sql", "web"}}},
		},
		ListRule:   rule("published = true || author = @request.auth.id"),
		ViewRule:   rule("published = true || author = @request.auth.id"),
		UpdateRule: rule("author = @request.auth.id && @request.body.author:isset = false"),
	}
	require.NoError(t, s.CreateCollection(ctx, posts))

	secrets := &models.Collection{
		Name:   "secrets",
		Fields: []models.Field{{Name: "value", Type: models.FieldText}},
	}
	require.NoError(t, s.CreateCollection(ctx, secrets))

	for _, u := range []map[string]any{
		{"id": "u1", "name": "Ann", "email": "ann@example.com"},
		{"id": "u2", "name": "Bob", "email": "bob@example.com"},
	} {
		_, err := s.InsertRecord(ctx, "users", u)
		require.NoError(t, err)
	}

	for _, p := range []map[string]any{
		{"id": "p1", "title": "hello", "published": true, "author": "u1", "tags": []any{"go"}},
		{"id": "p2", "title": "draft", "published": false, "author": "u1", "tags": []any{"go", "sql"}},
		{"id": "p3", "title": "bob post", "published": true, "author": "u2"},
		{"id": "p4", "title": "bob draft", "published": false, "author": "u2", "tags": []any{"web"}},
	} {
		_, err := s.InsertRecord(ctx, "posts", p)
		require.NoError(t, err)
	}

	_, err := s.InsertRecord(ctx, "secrets", map[string]any{"id": "s1", "value": "x"})
	require.NoError(t, err)

	return s, path
}

func authAs(t *testing.T, s *Store, id string) *models.RequestInfo {
	t.Helper()
	user, err := s.GetRecord(context.Background(), "users", id)
	require.NoError(t, err)
	return &models.RequestInfo{Context: models.RequestContextDefault, Method: "GET", Auth: user}
}

func recordIDs(records []*models.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID())
	}
	return out
}

func TestInsertAndGetRecord(t *testing.T) {
	s, _ := seedStore(t)
	ctx := context.Background()

	p, err := s.GetRecord(ctx, "posts", "p2")
	require.NoError(t, err)
	assert.Equal(t, "draft", p.Get("title"))
	assert.Equal(t, false, p.Get("published"))
	assert.Equal(t, []any{"go", "sql"}, p.Get("tags"))
	assert.Equal(t, "2024-05-01 10:00:00.000Z", p.Get("created"))

	generated, err := s.InsertRecord(ctx, "posts", map[string]any{"title": "new"})
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID())
	assert.Equal(t, []string{}, generated.Get("tags"))

	_, err = s.InsertRecord(ctx, "posts", map[string]any{"bogus": 1})
	assert.True(t, IsKind(err, ErrValidation))

	_, err = s.InsertRecord(ctx, "posts", map[string]any{"tags": []any{"rust"}})
	assert.True(t, IsKind(err, ErrValidation))

	_, err = s.GetRecord(ctx, "posts", "missing")
	assert.True(t, IsKind(err, ErrNotFound))

	_, err = s.GetRecord(ctx, "missing", "p1")
	assert.True(t, IsKind(err, ErrNotFound))
}

func TestCreateCollectionErrors(t *testing.T) {
	s, _ := seedStore(t)
	ctx := context.Background()

	err := s.CreateCollection(ctx, &models.Collection{Name: "posts"})
	assert.True(t, IsKind(err, ErrSchema))

	err = s.CreateCollection(ctx, &models.Collection{Name: "bad name"})
	assert.True(t, IsKind(err, ErrSchema))

	err = s.CreateCollection(ctx, &models.Collection{
		Name:   "comments",
		Fields: []models.Field{{Name: "post", Type: models.FieldRelation, Options: models.FieldOptions{CollectionID: "nope"}}},
	})
	require.True(t, IsKind(err, ErrSchema))
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "post", e.Field)
}

func TestCollectionsPersist(t *testing.T) {
	_, path := seedStore(t)

	reopened := openTestStore(t, path)
	var names []string
	for _, c := range reopened.Collections() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"posts", "secrets", "users"}, names)

	p, err := reopened.ViewRecord(context.Background(), "posts", "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Get("title"))
}

func TestListRecordsRules(t *testing.T) {
	s, _ := seedStore(t)
	ctx := context.Background()
	all := ops.SearchParams{Sort: "id", PerPage: 30}

	anon, err := s.ListRecords(ctx, "posts", all, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3"}, recordIDs(anon.Items))
	assert.Equal(t, 2, anon.TotalItems)

	ann, err := s.ListRecords(ctx, "posts", all, authAs(t, s, "u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, recordIDs(ann.Items))

	filtered, err := s.ListRecords(ctx, "posts", ops.SearchParams{Filter: "author.name = 'Ann'", Sort: "-id", PerPage: 30}, authAs(t, s, "u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, recordIDs(filtered.Items))

	tagged, err := s.ListRecords(ctx, "posts", ops.SearchParams{Filter: "tags:each ?= 'sql'", PerPage: 30}, &models.RequestInfo{Superuser: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, recordIDs(tagged.Items))

	_, err = s.ListRecords(ctx, "secrets", all, authAs(t, s, "u1"))
	assert.True(t, IsKind(err, ErrForbidden))

	secrets, err := s.ListRecords(ctx, "secrets", all, &models.RequestInfo{Superuser: true})
	require.NoError(t, err)
	assert.Len(t, secrets.Items, 1)
}

func TestListRecordsHiddenFields(t *testing.T) {
	s, _ := seedStore(t)
	ctx := context.Background()
	params := ops.SearchParams{Filter: "author.email = 'ann@example.com'", PerPage: 30}

	// hidden fields resolve to NULL outside of rules
	result, err := s.ListRecords(ctx, "posts", params, authAs(t, s, "u1"))
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalItems)
	assert.Empty(t, result.Items)

	result, err = s.ListRecords(ctx, "posts", params, &models.RequestInfo{Superuser: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalItems)
}

func TestListRecordsRejectedParams(t *testing.T) {
	s, _ := seedStore(t)
	ctx := context.Background()

	_, err := s.ListRecords(ctx, "posts", ops.SearchParams{Filter: "title = ", PerPage: 30}, nil)
	assert.True(t, IsKind(err, ErrQueryParse))

	_, err = s.ListRecords(ctx, "posts", ops.SearchParams{Sort: "a,b,c,d,e,f,g,h,i", PerPage: 30}, nil)
	require.True(t, IsKind(err, ErrQueryRejected))
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "sort", e.Field)
}

func TestViewRecord(t *testing.T) {
	s, _ := seedStore(t)
	ctx := context.Background()

	_, err := s.ViewRecord(ctx, "posts", "p2", nil)
	assert.True(t, IsKind(err, ErrNotFound))

	p, err := s.ViewRecord(ctx, "posts", "p2", authAs(t, s, "u1"))
	require.NoError(t, err)
	assert.Equal(t, "draft", p.Get("title"))

	_, err = s.ViewRecord(ctx, "users", "u2", authAs(t, s, "u1"))
	assert.True(t, IsKind(err, ErrNotFound))

	_, err = s.ViewRecord(ctx, "secrets", "s1", authAs(t, s, "u1"))
	assert.True(t, IsKind(err, ErrForbidden))

	_, err = s.ViewRecord(ctx, "secrets", "s1", &models.RequestInfo{Superuser: true})
	assert.NoError(t, err)
}

func TestUpdateRecord(t *testing.T) {
	s, _ := seedStore(t)
	ctx := context.Background()

	_, err := s.UpdateRecord(ctx, "posts", "p1", map[string]any{"title": "stolen"}, authAs(t, s, "u2"))
	assert.True(t, IsKind(err, ErrForbidden))

	_, err = s.UpdateRecord(ctx, "posts", "p1", map[string]any{"author": "u2"}, authAs(t, s, "u1"))
	assert.True(t, IsKind(err, ErrForbidden))

	updated, err := s.UpdateRecord(ctx, "posts", "p1", map[string]any{"title": "renamed"}, authAs(t, s, "u1"))
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Get("title"))

	_, err = s.UpdateRecord(ctx, "posts", "p1", map[string]any{"id": "x"}, &models.RequestInfo{Superuser: true})
	assert.True(t, IsKind(err, ErrValidation))

	_, err = s.UpdateRecord(ctx, "users", "u1", map[string]any{"name": "x"}, authAs(t, s, "u1"))
	assert.True(t, IsKind(err, ErrForbidden))

	_, err = s.UpdateRecord(ctx, "posts", "missing", map[string]any{"title": "x"}, nil)
	assert.True(t, IsKind(err, ErrNotFound))
}

func TestUpdateRuleChangedModifier(t *testing.T) {
	s, _ := seedStore(t)
	ctx := context.Background()

	c, err := s.Collection("posts")
	require.NoError(t, err)
	c.UpdateRule = rule("@request.body.title:changed = false")

	_, err = s.UpdateRecord(ctx, "posts", "p3", map[string]any{"title": "bob post"}, authAs(t, s, "u1"))
	require.NoError(t, err)

	_, err = s.UpdateRecord(ctx, "posts", "p3", map[string]any{"title": "changed"}, authAs(t, s, "u1"))
	assert.True(t, IsKind(err, ErrForbidden))
}

func TestDeleteWhere(t *testing.T) {
	s, _ := seedStore(t)
	ctx := context.Background()

	n, err := s.DeleteWhere(ctx, "posts", "published = false && author.email ~ 'bob'")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetRecord(ctx, "posts", "p4")
	assert.True(t, IsKind(err, ErrNotFound))

	_, err = s.DeleteWhere(ctx, "posts", "published =")
	assert.True(t, IsKind(err, ErrQueryParse))
}
