package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupMacro(t *testing.T) {
	now := time.Date(2024, 2, 29, 13, 45, 10, 0, time.UTC)

	expected := map[string]any{
		"@now":        "2024-02-29 13:45:10.000Z",
		"@yesterday":  "2024-02-28 13:45:10.000Z",
		"@tomorrow":   "2024-03-01 13:45:10.000Z",
		"@second":     10,
		"@minute":     45,
		"@hour":       13,
		"@day":        29,
		"@month":      2,
		"@weekday":    4,
		"@year":       2024,
		"@todayStart": "2024-02-29 00:00:00.000Z",
		"@todayEnd":   "2024-02-29 23:59:59.999Z",
		"@monthStart": "2024-02-01 00:00:00.000Z",
		"@monthEnd":   "2024-02-29 23:59:59.999Z",
		"@yearStart":  "2024-01-01 00:00:00.000Z",
		"@yearEnd":    "2024-12-31 23:59:59.999Z",
	}

	require.Len(t, MacroNames(), len(expected))
	for _, name := range MacroNames() {
		v, ok := LookupMacro(name, now)
		require.True(t, ok, name)
		assert.Equal(t, expected[name], v, name)
	}

	_, ok := LookupMacro("@unknown", now)
	assert.False(t, ok)
}

func TestLookupMacroUsesUTC(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2024, 1, 1, 1, 0, 0, 0, zone) // 2023-12-31 22:00 UTC, a Sunday

	v, _ := LookupMacro("@year", now)
	assert.Equal(t, 2023, v)

	v, _ = LookupMacro("@weekday", now)
	assert.Equal(t, 0, v)

	v, _ = LookupMacro("@todayStart", now)
	assert.Equal(t, "2023-12-31 00:00:00.000Z", v)
}
