package sqlbuilder

import (
	"fmt"
	"strconv"
	"strings"
)

type PlaceholderStyle int

const (
	// PlaceholderQuestion renders ?1, ?2, ... (SQLite)
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar renders $1, $2, ... (PostgreSQL)
	PlaceholderDollar
)

// Builder hands out named parameters for one compilation.
//
// Names are unique within a Builder only; a fresh Builder per compile call
// keeps the generated SQL deterministic.
type Builder struct {
	n      int
	params map[string]any
}

func New() *Builder {
	return &Builder{params: make(map[string]any)}
}

// Arg binds v under a fresh name and returns its ":name" placeholder.
func (b *Builder) Arg(v any) string {
	name := b.Unique("__p")
	b.params[name] = v
	return ":" + name
}

// Unique returns a name that was not handed out before by this builder.
func (b *Builder) Unique(prefix string) string {
	b.n++
	return prefix + strconv.Itoa(b.n)
}

// Bind stores v under an explicit name, replacing any previous value.
func (b *Builder) Bind(name string, v any) {
	b.params[name] = v
}

// Value returns the value bound to name (with or without the leading colon).
func (b *Builder) Value(name string) (any, bool) {
	v, ok := b.params[strings.TrimPrefix(name, ":")]
	return v, ok
}

// Params returns a copy of the bound parameters.
func (b *Builder) Params() map[string]any {
	out := make(map[string]any, len(b.params))
	for k, v := range b.params {
		out[k] = v
	}
	return out
}

func (b *Builder) Len() int { return len(b.params) }

// Render rewrites a statement written with [[identifier]] quoting and
// :name parameters into driver SQL and its positional arguments.
//
// Text inside single or double quotes is copied verbatim. A name used more
// than once is bound once and shares its position.
func Render(query string, params map[string]any, style PlaceholderStyle) (string, []any, error) {
	var (
		sb    strings.Builder
		args  []any
		index = make(map[string]int)
	)
	sb.Grow(len(query) + 16)

	for i := 0; i < len(query); i++ {
		ch := query[i]

		switch {
		case ch == '\'' || ch == '"':
			end := strings.IndexByte(query[i+1:], ch)
			if end < 0 {
				return "", nil, fmt.Errorf("unterminated quoted text at offset %d", i)
			}
			sb.WriteString(query[i : i+end+2])
			i += end + 1

		case ch == '[' && i+1 < len(query) && query[i+1] == '[':
			end := strings.Index(query[i+2:], "]]")
			if end < 0 {
				return "", nil, fmt.Errorf("unterminated identifier at offset %d", i)
			}
			sb.WriteString(QuoteIdentifier(query[i+2 : i+2+end]))
			i += end + 3

		case ch == ':' && i+1 < len(query) && isNameStart(query[i+1]) && (i == 0 || query[i-1] != ':'):
			j := i + 1
			for j < len(query) && isNameChar(query[j]) {
				j++
			}
			name := query[i+1 : j]

			pos, ok := index[name]
			if !ok {
				v, found := params[name]
				if !found {
					return "", nil, fmt.Errorf("missing value for parameter :%s", name)
				}
				args = append(args, v)
				pos = len(args)
				index[name] = pos
			}

			if style == PlaceholderDollar {
				sb.WriteByte('$')
			} else {
				sb.WriteByte('?')
			}
			sb.WriteString(strconv.Itoa(pos))
			i = j - 1

		default:
			sb.WriteByte(ch)
		}
	}

	return sb.String(), args, nil
}

// QuoteIdentifier quotes every dot separated part of ident.
func QuoteIdentifier(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

func isNameStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isNameChar(ch byte) bool {
	return isNameStart(ch) || (ch >= '0' && ch <= '9')
}

// Wrap marks ident for quoting by Render.
func Wrap(ident string) string {
	return "[[" + ident + "]]"
}
