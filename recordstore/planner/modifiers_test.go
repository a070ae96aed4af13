package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministore/recordstore/recordstore/storage"
)

func TestExtractModifiers(t *testing.T) {
	tests := []struct {
		field        string
		expectedPath string
		expectedMods []string
	}{
		{"name", "name", nil},
		{"name:lower", "name", []string{ModifierLower}},
		{"tags:each:length", "tags", []string{ModifierEach, ModifierLength}},
		{"@request.body.title:changed", "@request.body.title", []string{ModifierChanged}},
		{"@collection.users:u.name:isset", "@collection.users:u.name", []string{ModifierIsSet}},
		{"a:unknown", "a:unknown", nil},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			path, mods := ExtractModifiers(tt.field)
			assert.Equal(t, tt.expectedPath, path)
			assert.Equal(t, tt.expectedMods, mods)
		})
	}
}

func TestApplyModifiers(t *testing.T) {
	r, err := ApplyModifiers(storage.BackendSQLite, &ResolverResult{Identifier: "[[a]]"}, []string{ModifierLower})
	require.NoError(t, err)
	assert.Equal(t, "LOWER([[a]])", r.Identifier)
	assert.False(t, r.NoCoalesce)

	r, err = ApplyModifiers(storage.BackendPostgres, &ResolverResult{Identifier: "[[a]]"}, []string{ModifierLower})
	require.NoError(t, err)
	assert.Equal(t, "LOWER(([[a]])::text)", r.Identifier)

	r, err = ApplyModifiers(storage.BackendSQLite, &ResolverResult{Identifier: "[[a]]"}, []string{ModifierLength})
	require.NoError(t, err)
	assert.Equal(t, storage.BackendSQLite.JSONArrayLength("[[a]]"), r.Identifier)
	assert.True(t, r.NoCoalesce)

	r, err = ApplyModifiers(storage.BackendSQLite, &ResolverResult{Identifier: "[[a]]"}, []string{ModifierIsSet})
	require.NoError(t, err)
	assert.Equal(t, "([[a]] IS NOT NULL AND [[a]] != '')", r.Identifier)

	_, err = ApplyModifiers(storage.BackendSQLite, &ResolverResult{Identifier: "[[a]]"}, []string{ModifierEach})
	assert.Error(t, err)
}
