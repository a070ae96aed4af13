package planner

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministore/recordstore/recordstore/storage"
)

func TestSimpleFieldResolver(t *testing.T) {
	r := NewSimpleFieldResolver(storage.BackendSQLite, "id", `^meta(\.\w+)+$`)

	res, err := r.Resolve("id")
	require.NoError(t, err)
	assert.Equal(t, &ResolverResult{Identifier: "[[id]]"}, res)

	res, err = r.Resolve("meta.a.0")
	require.NoError(t, err)
	assert.Equal(t, "(CASE WHEN json_valid([[meta]]) THEN JSON_EXTRACT([[meta]], '$.a[0]') ELSE NULL END)", res.Identifier)
	assert.True(t, res.NoCoalesce)

	res, err = r.Resolve("id:lower")
	require.NoError(t, err)
	assert.Equal(t, "LOWER([[id]])", res.Identifier)

	_, err = r.Resolve("meta")
	assert.Error(t, err)

	_, err = r.Resolve("other")
	assert.Error(t, err)

	_, err = r.Resolve("id:each")
	assert.Error(t, err)

	q := sq.Select("*").From("t")
	assert.Equal(t, q, r.UpdateQuery(q))
}

func TestParseFilterCache(t *testing.T) {
	parseCache.Flush()

	first, err := ParseFilter("a = 1")
	require.NoError(t, err)

	second, err := ParseFilter("a = 1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	cached, ok := parseCache.Get("a = 1")
	require.True(t, ok)
	assert.Equal(t, first, cached)

	_, err = ParseFilter("a =")
	require.Error(t, err)
	_, ok = parseCache.Get("a =")
	assert.False(t, ok)
}
