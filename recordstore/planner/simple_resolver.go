package planner

import (
	"fmt"
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/ministore/recordstore/recordstore/storage"
)

var plainSegmentRe = regexp.MustCompile(`^\w+$`)

// SimpleFieldResolver resolves identifiers against a fixed list of
// allowed columns. Entries starting with "^" are regular expressions.
// Dotted paths read from the JSON document stored in the first segment.
type SimpleFieldResolver struct {
	backend  storage.Backend
	allowed  []string
	patterns []*regexp.Regexp
}

func NewSimpleFieldResolver(backend storage.Backend, allowedFields ...string) *SimpleFieldResolver {
	r := &SimpleFieldResolver{backend: backend}
	for _, f := range allowedFields {
		if strings.HasPrefix(f, "^") {
			r.patterns = append(r.patterns, regexp.MustCompile(f))
			continue
		}
		r.allowed = append(r.allowed, f)
	}
	return r
}

func (r *SimpleFieldResolver) UpdateQuery(query sq.SelectBuilder) sq.SelectBuilder {
	return query
}

func (r *SimpleFieldResolver) Resolve(field string) (*ResolverResult, error) {
	path, mods := ExtractModifiers(field)
	if !r.isAllowed(path) {
		return nil, fmt.Errorf("failed to resolve field %q", field)
	}

	parts := strings.Split(path, ".")
	for _, p := range parts {
		if !plainSegmentRe.MatchString(p) {
			return nil, fmt.Errorf("invalid field path %q", path)
		}
	}

	result := &ResolverResult{Identifier: "[[" + parts[0] + "]]"}
	if len(parts) > 1 {
		result.Identifier = r.backend.JSONExtract(result.Identifier, parts[1:])
		result.NoCoalesce = true
	}

	return ApplyModifiers(r.backend, result, mods)
}

func (r *SimpleFieldResolver) isAllowed(path string) bool {
	for _, a := range r.allowed {
		if a == path {
			return true
		}
	}
	for _, p := range r.patterns {
		if p.MatchString(path) {
			return true
		}
	}
	return false
}
