package planner

import (
	sq "github.com/Masterminds/squirrel"
)

// ResolverResult is the SQL form of a single operand.
type ResolverResult struct {
	// Identifier is the SQL fragment of the operand, eg. "[[posts.title]]" or ":__p1".
	Identifier string

	// NoCoalesce disables the COALESCE(x, '') wrapping of = and != comparisons
	// and switches them to NULL aware operators.
	NoCoalesce bool

	// Params are extra named values referenced by Identifier.
	Params map[string]any

	// MultiMatchSubQuery, when set, selects every value the operand can take
	// for the current row as a "multiMatchValue" column. Operators without the
	// "?" prefix must then hold for all of those values.
	MultiMatchSubQuery string

	// AfterBuild post-processes the compiled comparison the operand is part of.
	AfterBuild func(expr string) string
}

// FieldResolver maps filter identifiers to SQL.
//
// Resolve is called for every identifier that is not a literal or macro.
// UpdateQuery is called once after compilation to add the JOINs the
// resolved identifiers depend on.
type FieldResolver interface {
	UpdateQuery(query sq.SelectBuilder) sq.SelectBuilder
	Resolve(field string) (*ResolverResult, error)
}

// JoinReporter is implemented by resolvers whose identifiers can add JOINs.
// Queries over joined rows must collapse duplicate records.
type JoinReporter interface {
	HasJoins() bool
}

// HasJoins reports whether r registered any JOIN.
func HasJoins(r FieldResolver) bool {
	jr, ok := r.(JoinReporter)
	return ok && jr.HasJoins()
}
