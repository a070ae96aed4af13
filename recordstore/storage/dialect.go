package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ministore/recordstore/recordstore/storage/sqlbuilder"
)

type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

func (b Backend) PlaceholderStyle() sqlbuilder.PlaceholderStyle {
	if b == BackendPostgres {
		return sqlbuilder.PlaceholderDollar
	}
	return sqlbuilder.PlaceholderQuestion
}

// Bool renders a boolean literal.
func (b Backend) Bool(v bool) string {
	switch {
	case b == BackendPostgres && v:
		return "TRUE"
	case b == BackendPostgres:
		return "FALSE"
	case v:
		return "1"
	default:
		return "0"
	}
}

// NullSafeEqual returns the NULL aware (in)equality operator.
func (b Backend) NullSafeEqual(negate bool) string {
	if b == BackendPostgres {
		if negate {
			return "IS DISTINCT FROM"
		}
		return "IS NOT DISTINCT FROM"
	}
	if negate {
		return "IS NOT"
	}
	return "IS"
}

// RowID is the column used by the @rowid sort macro.
func (b Backend) RowID() string {
	if b == BackendPostgres {
		return "[[id]]"
	}
	return "[[_rowid_]]"
}

func (b Backend) Random() string {
	return "RANDOM()"
}

// Coalesce maps NULL to the empty string.
func (b Backend) Coalesce(expr string) string {
	if b == BackendPostgres {
		return "COALESCE((" + expr + ")::text, '')"
	}
	return "COALESCE(" + expr + ", '')"
}

// Text casts expr for text operators such as LIKE.
func (b Backend) Text(expr string) string {
	if b == BackendPostgres {
		return "(" + expr + ")::text"
	}
	return expr
}

// JSONExtract returns the value found at path inside the JSON column.
// Path segments must already be validated; numeric segments index arrays.
func (b Backend) JSONExtract(column string, path []string) string {
	if b == BackendPostgres {
		return fmt.Sprintf("((%s)::jsonb #>> '{%s}')", column, strings.Join(path, ","))
	}

	var sb strings.Builder
	sb.WriteString("$")
	for _, p := range path {
		if _, err := strconv.Atoi(p); err == nil {
			sb.WriteString("[" + p + "]")
			continue
		}
		sb.WriteString("." + p)
	}
	return fmt.Sprintf("(CASE WHEN json_valid(%[1]s) THEN JSON_EXTRACT(%[1]s, '%[2]s') ELSE NULL END)", column, sb.String())
}

// JSONArrayLength counts the elements of a JSON array column. A non-array
// value counts as one element and NULL or '' as none.
func (b Backend) JSONArrayLength(column string) string {
	if b == BackendPostgres {
		return fmt.Sprintf(
			"(CASE WHEN %[1]s IS NULL THEN 0 WHEN jsonb_typeof((%[1]s)::jsonb) = 'array' THEN jsonb_array_length((%[1]s)::jsonb) ELSE 1 END)",
			column,
		)
	}
	return fmt.Sprintf(
		"json_array_length(CASE WHEN json_valid(%[1]s) THEN %[1]s ELSE (CASE WHEN %[1]s = '' OR %[1]s IS NULL THEN json_array() ELSE json_array(%[1]s) END) END)",
		column,
	)
}

// JSONEach is a table source yielding one "value" row per array element of
// expr. A scalar is treated as a single element array.
func (b Backend) JSONEach(expr string) string {
	if b == BackendPostgres {
		return fmt.Sprintf(
			"jsonb_array_elements_text(CASE WHEN jsonb_typeof((%[1]s)::jsonb) = 'array' THEN (%[1]s)::jsonb ELSE jsonb_build_array(%[1]s) END)",
			expr,
		)
	}
	return fmt.Sprintf("json_each(CASE WHEN json_valid(%[1]s) THEN %[1]s ELSE json_array(%[1]s) END)", expr)
}

// ConvertArg adapts a bound value to what the driver expects.
func (b Backend) ConvertArg(v any) any {
	if b != BackendPostgres {
		return v
	}
	// untyped text lets the server infer the parameter type from its context
	switch val := v.(type) {
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return v
}
