package planner

import (
	"fmt"

	"github.com/ministore/recordstore/recordstore/storage"
)

// Function builds the SQL of a filter function call from its resolved arguments.
type Function struct {
	Args  int
	Build func(backend storage.Backend, args []*ResolverResult) (*ResolverResult, error)
}

var functions = map[string]Function{
	"geoDistance": {Args: 4, Build: geoDistance},
}

// geoDistance(lonA, latA, lonB, latB) returns the great-circle distance in
// kilometres using the Haversine formula.
func geoDistance(backend storage.Backend, args []*ResolverResult) (*ResolverResult, error) {
	lonA, latA, lonB, latB := args[0].Identifier, args[1].Identifier, args[2].Identifier, args[3].Identifier

	cosine := fmt.Sprintf(
		"cos(radians(%[2]s)) * cos(radians(%[4]s)) * cos(radians(%[3]s) - radians(%[1]s)) + sin(radians(%[2]s)) * sin(radians(%[4]s))",
		lonA, latA, lonB, latB,
	)

	// rounding can push the cosine slightly outside [-1, 1]
	var clamped string
	if backend == storage.BackendPostgres {
		clamped = "LEAST(1.0, GREATEST(-1.0, " + cosine + "))"
	} else {
		clamped = "MIN(1.0, MAX(-1.0, " + cosine + "))"
	}

	return &ResolverResult{
		Identifier: "(6371 * acos(" + clamped + "))",
		NoCoalesce: true,
	}, nil
}
