package ops

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministore/recordstore/recordstore/models"
	"github.com/ministore/recordstore/recordstore/planner"
	"github.com/ministore/recordstore/recordstore/query"
	"github.com/ministore/recordstore/recordstore/resolvers"
	"github.com/ministore/recordstore/recordstore/storage"
	"github.com/ministore/recordstore/recordstore/storage/sqlbuilder"
)

func newTestProvider(opts ...planner.Option) *Provider {
	resolver := planner.NewSimpleFieldResolver(storage.BackendSQLite, "id", "title", "status", "created")
	return NewProvider(storage.BackendSQLite, resolver, sqlbuilder.New(), WithCompilerOptions(opts...))
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, perPage         int
		wantPage, wantPerPage int
	}{
		{0, 0, 1, 1},
		{-3, -1, 1, 1},
		{2, 30, 2, 30},
		{1, 99999, 1, MaxPerPage},
		{5, MaxPerPage, 5, MaxPerPage},
	}

	for _, tt := range tests {
		page, perPage := NormalizePage(tt.page, tt.perPage)
		assert.Equal(t, tt.wantPage, page)
		assert.Equal(t, tt.wantPerPage, perPage)
	}
}

func TestBuild(t *testing.T) {
	p := newTestProvider()

	plan, err := p.Build("posts", "[[status]] = 'published'", SearchParams{
		Page:    2,
		PerPage: 10,
		Filter:  "title = 'a'",
		Sort:    "-created,@rowid",
	})
	require.NoError(t, err)

	where := " WHERE ([[status]] = 'published') AND (COALESCE([[title]], '') = COALESCE(:__p1, ''))"
	assert.Equal(t, "SELECT COUNT(DISTINCT [[posts.id]]) FROM [[posts]]"+where, plan.CountSQL)
	assert.Equal(t, "SELECT [[posts]].* FROM [[posts]]"+where+" ORDER BY [[created]] DESC, [[_rowid_]] ASC", plan.DataSQL)
	assert.Equal(t, map[string]any{"__p1": "a"}, plan.Params)
	assert.Equal(t, 2, plan.Page)
	assert.Equal(t, 10, plan.PerPage)

	pageSQL, err := plan.PageSQL(3)
	require.NoError(t, err)
	assert.Equal(t, plan.DataSQL+" LIMIT 10 OFFSET 20", pageSQL)
}

func TestBuildWithoutFilter(t *testing.T) {
	plan, err := newTestProvider().Build("posts", "", SearchParams{Filter: "  "})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(DISTINCT [[posts.id]]) FROM [[posts]]", plan.CountSQL)
	assert.Equal(t, "SELECT [[posts]].* FROM [[posts]]", plan.DataSQL)
	assert.Empty(t, plan.Params)
}

func TestBuildLimits(t *testing.T) {
	exactFilter := "title = '" + strings.Repeat("x", MaxFilterLength-10) + "'"
	require.Len(t, exactFilter, MaxFilterLength)

	_, err := newTestProvider().Build("posts", "", SearchParams{Filter: exactFilter})
	require.NoError(t, err)

	// limits count characters, not bytes
	wideFilter := "title = '" + strings.Repeat("é", MaxFilterLength-10) + "'"
	_, err = newTestProvider().Build("posts", "", SearchParams{Filter: wideFilter})
	require.NoError(t, err)
	_, err = newTestProvider().Build("posts", "", SearchParams{Sort: strings.Repeat("é", MaxSortLength)})
	require.NoError(t, err)

	tests := []struct {
		name   string
		params SearchParams
		param  string
	}{
		{
			name:   "filter too long",
			params: SearchParams{Filter: "title = '" + strings.Repeat("x", MaxFilterLength-9) + "'"},
			param:  "filter",
		},
		{
			name:   "sort too long",
			params: SearchParams{Sort: strings.Repeat("a", MaxSortLength+1)},
			param:  "sort",
		},
		{
			name:   "too many sort fields",
			params: SearchParams{Sort: strings.TrimSuffix(strings.Repeat("title,", MaxSortFields+1), ",")},
			param:  "sort",
		},
		{
			name:   "malformed filter",
			params: SearchParams{Filter: "title = "},
			param:  "filter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestProvider().Build("posts", "", tt.params)
			require.Error(t, err)

			param, ok := IsParamError(err)
			require.True(t, ok)
			assert.Equal(t, tt.param, param)
		})
	}

	_, err = newTestProvider().Build("posts", "", SearchParams{Sort: strings.TrimSuffix(strings.Repeat("title,", MaxSortFields), ",")})
	assert.NoError(t, err)
}

func TestBuildErrorsUnwrap(t *testing.T) {
	_, err := newTestProvider().Build("posts", "", SearchParams{Filter: "title ="})
	var syntaxErr *query.SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)

	_, err = newTestProvider(planner.WithMaxExprLimit(0)).Build("posts", "", SearchParams{Filter: "title = 'a'"})
	assert.ErrorIs(t, err, planner.ErrExprLimit)
}

func TestBuildRandomSortPostgres(t *testing.T) {
	resolver := planner.NewSimpleFieldResolver(storage.BackendPostgres, "id", "title")
	p := NewProvider(storage.BackendPostgres, resolver, sqlbuilder.New())

	plan, err := p.Build("posts", "", SearchParams{Sort: "@random"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT [[posts]].* FROM [[posts]] ORDER BY RANDOM()", plan.DataSQL)
}

func TestBuildJoinedSort(t *testing.T) {
	users := &models.Collection{Name: "users", Fields: []models.Field{{Name: "name", Type: models.FieldText}}}
	posts := &models.Collection{Name: "posts", Fields: []models.Field{
		{Name: "title", Type: models.FieldText},
		{Name: "author", Type: models.FieldRelation, Options: models.FieldOptions{CollectionID: "users"}},
	}}
	collections := resolvers.StaticCollections{users, posts}
	join := "LEFT JOIN [[users]] [[posts_6author]] ON [[posts_6author.id]] = [[posts.author]]"
	params := SearchParams{Filter: "author.name = 'a'", Sort: "-author.name,title,@random"}

	t.Run("postgres groups by id", func(t *testing.T) {
		builder := sqlbuilder.New()
		resolver := resolvers.NewRecordFieldResolver(collections, posts, nil, builder, storage.BackendPostgres)
		plan, err := NewProvider(storage.BackendPostgres, resolver, builder).Build("posts", "", params)
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(plan.DataSQL, "SELECT [[posts]].* FROM [[posts]] "+join+" WHERE "), plan.DataSQL)
		assert.True(t, strings.HasSuffix(plan.DataSQL,
			" GROUP BY [[posts.id]] ORDER BY MAX([[posts_6author.name]]) DESC, MIN([[posts.title]]) ASC, RANDOM()"), plan.DataSQL)
		assert.NotContains(t, plan.DataSQL, "DISTINCT [[posts]]")
	})

	t.Run("sqlite selects distinct rows", func(t *testing.T) {
		builder := sqlbuilder.New()
		resolver := resolvers.NewRecordFieldResolver(collections, posts, nil, builder, storage.BackendSQLite)
		plan, err := NewProvider(storage.BackendSQLite, resolver, builder).Build("posts", "", params)
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(plan.DataSQL, "SELECT DISTINCT [[posts]].* FROM [[posts]] "+join+" WHERE "), plan.DataSQL)
		assert.True(t, strings.HasSuffix(plan.DataSQL,
			" ORDER BY [[posts_6author.name]] DESC, [[posts.title]] ASC, RANDOM()"), plan.DataSQL)
		assert.NotContains(t, plan.DataSQL, "GROUP BY")
	})
}
