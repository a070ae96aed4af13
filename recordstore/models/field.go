package models

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"
)

// DateLayout is the text layout of every stored date value.
const DateLayout = "2006-01-02 15:04:05.000Z"

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldBool     FieldType = "bool"
	FieldDate     FieldType = "date"
	FieldSelect   FieldType = "select"
	FieldJSON     FieldType = "json"
	FieldRelation FieldType = "relation"
	FieldGeoPoint FieldType = "geoPoint"
)

// System fields present on every collection.
const (
	FieldNameID      = "id"
	FieldNameCreated = "created"
	FieldNameUpdated = "updated"
)

var fieldTypes = map[FieldType]struct{}{
	FieldText: {}, FieldNumber: {}, FieldBool: {}, FieldDate: {},
	FieldSelect: {}, FieldJSON: {}, FieldRelation: {}, FieldGeoPoint: {},
}

type FieldOptions struct {
	// MaxSelect > 1 makes select and relation fields multi-valued.
	MaxSelect int `json:"maxSelect,omitempty" yaml:"maxSelect,omitempty"`
	// Values lists the allowed select values (empty allows any).
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
	// CollectionID is the relation target, by id or name.
	CollectionID string `json:"collectionId,omitempty" yaml:"collectionId,omitempty"`
}

type Field struct {
	ID      string       `json:"id" yaml:"id"`
	Name    string       `json:"name" yaml:"name"`
	Type    FieldType    `json:"type" yaml:"type"`
	Hidden  bool         `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	System  bool         `json:"system,omitempty" yaml:"-"`
	Options FieldOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// IsMultiple reports whether the field stores a JSON array of values.
func (f Field) IsMultiple() bool {
	return (f.Type == FieldSelect || f.Type == FieldRelation) && f.Options.MaxSelect > 1
}

// IsJSON reports whether the column holds a JSON document.
func (f Field) IsJSON() bool {
	return f.IsMultiple() || f.Type == FieldJSON || f.Type == FieldGeoPoint
}

func systemFields() []Field {
	return []Field{
		{Name: FieldNameID, Type: FieldText, System: true},
		{Name: FieldNameCreated, Type: FieldDate, System: true},
		{Name: FieldNameUpdated, Type: FieldDate, System: true},
	}
}

// Normalize converts an input value into the value stored in the column.
// Nil stays nil.
func (f Field) Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch f.Type {
	case FieldNumber:
		return toFloat(v)
	case FieldBool:
		return toBool(v)
	case FieldDate:
		return toDate(v)
	case FieldJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case FieldGeoPoint:
		p, err := ParseGeoPoint(v)
		if err != nil {
			return nil, err
		}
		return GeoPointJSON(p)
	case FieldSelect, FieldRelation:
		values, err := toStrings(v)
		if err != nil {
			return nil, err
		}
		if f.Type == FieldSelect && len(f.Options.Values) > 0 {
			for _, val := range values {
				if !slices.Contains(f.Options.Values, val) {
					return nil, fmt.Errorf("value %q is not one of %v", val, f.Options.Values)
				}
			}
		}
		if f.IsMultiple() {
			if len(values) > f.Options.MaxSelect {
				return nil, fmt.Errorf("at most %d values allowed", f.Options.MaxSelect)
			}
			b, err := json.Marshal(values)
			if err != nil {
				return nil, err
			}
			return string(b), nil
		}
		if len(values) > 1 {
			return nil, fmt.Errorf("a single value is allowed")
		}
		if len(values) == 0 {
			return "", nil
		}
		return values[0], nil
	default:
		return toString(v), nil
	}
}

// Decode converts a scanned column value back into its API representation.
func (f Field) Decode(v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		switch {
		case f.IsMultiple():
			return []string{}
		case f.Type == FieldText, f.Type == FieldDate, f.Type == FieldSelect, f.Type == FieldRelation:
			return ""
		}
		return nil
	}

	switch f.Type {
	case FieldBool:
		b, err := toBool(v)
		if err != nil {
			return false
		}
		return b
	case FieldNumber:
		n, err := toFloat(v)
		if err != nil {
			return 0.0
		}
		return n
	}

	if f.IsJSON() {
		s, ok := v.(string)
		if !ok {
			return v
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return s
		}
		return out
	}

	return v
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func toStrings(v any) ([]string, error) {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil, nil
		}
		return []string{val}, nil
	case []string:
		return val, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, toString(item))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a string or a list of strings, got %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case json.Number:
		return val.Float64()
	case string:
		if val == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", val)
		}
		return f, nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func toBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case int64:
		return val != 0, nil
	case int:
		return val != 0, nil
	case float64:
		return val != 0 && !math.IsNaN(val), nil
	case string:
		return strconv.ParseBool(val)
	default:
		return false, fmt.Errorf("expected a bool, got %T", v)
	}
}

func toDate(v any) (string, error) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(DateLayout), nil
	case string:
		if val == "" {
			return "", nil
		}
		for _, layout := range []string{DateLayout, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t.UTC().Format(DateLayout), nil
			}
		}
		return "", fmt.Errorf("invalid date %q", val)
	default:
		return "", fmt.Errorf("expected a date, got %T", v)
	}
}
