package planner

import (
	"sort"
	"time"

	"github.com/ministore/recordstore/recordstore/models"
)

// Macro computes the value of an @-identifier from the current time (UTC).
type Macro func(now time.Time) any

var macros = map[string]Macro{
	"@now":       func(now time.Time) any { return now.Format(models.DateLayout) },
	"@yesterday": func(now time.Time) any { return now.Add(-24 * time.Hour).Format(models.DateLayout) },
	"@tomorrow":  func(now time.Time) any { return now.Add(24 * time.Hour).Format(models.DateLayout) },
	"@second":    func(now time.Time) any { return now.Second() },
	"@minute":    func(now time.Time) any { return now.Minute() },
	"@hour":      func(now time.Time) any { return now.Hour() },
	"@day":       func(now time.Time) any { return now.Day() },
	"@month":     func(now time.Time) any { return int(now.Month()) },
	"@weekday":   func(now time.Time) any { return int(now.Weekday()) },
	"@year":      func(now time.Time) any { return now.Year() },
	"@todayStart": func(now time.Time) any {
		return dayStart(now).Format(models.DateLayout)
	},
	"@todayEnd": func(now time.Time) any {
		return dayStart(now).AddDate(0, 0, 1).Add(-time.Millisecond).Format(models.DateLayout)
	},
	"@monthStart": func(now time.Time) any {
		return monthStart(now).Format(models.DateLayout)
	},
	"@monthEnd": func(now time.Time) any {
		return monthStart(now).AddDate(0, 1, 0).Add(-time.Millisecond).Format(models.DateLayout)
	},
	"@yearStart": func(now time.Time) any {
		return yearStart(now).Format(models.DateLayout)
	},
	"@yearEnd": func(now time.Time) any {
		return yearStart(now).AddDate(1, 0, 0).Add(-time.Millisecond).Format(models.DateLayout)
	},
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func yearStart(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// LookupMacro returns the value of a macro for the given time.
func LookupMacro(name string, now time.Time) (any, bool) {
	m, ok := macros[name]
	if !ok {
		return nil, false
	}
	return m(now.UTC()), true
}

// MacroNames lists the registered macros in sorted order.
func MacroNames() []string {
	names := make([]string, 0, len(macros))
	for name := range macros {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
