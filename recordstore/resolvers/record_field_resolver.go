package resolvers

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/ministore/recordstore/recordstore/models"
	"github.com/ministore/recordstore/recordstore/planner"
	"github.com/ministore/recordstore/recordstore/storage"
	"github.com/ministore/recordstore/recordstore/storage/sqlbuilder"
)

// MaxNestedRels is the maximum number of relation hops in a single path.
const MaxNestedRels = 6

var plainFieldRe = regexp.MustCompile(`^\w+$`)

// CollectionProvider looks up collections by id or name.
type CollectionProvider interface {
	FindCollection(nameOrID string) (*models.Collection, error)
}

// StaticCollections is a CollectionProvider over a fixed list.
type StaticCollections []*models.Collection

func (s StaticCollections) FindCollection(nameOrID string) (*models.Collection, error) {
	for _, c := range s {
		if c.ID == nameOrID || c.Name == nameOrID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("missing collection %q", nameOrID)
}

type join struct {
	table string
	alias string
	on    string
}

func (j join) String() string {
	return "LEFT JOIN " + j.table + " " + sqlbuilder.Wrap(j.alias) + " ON " + j.on
}

type Option func(*RecordFieldResolver)

// WithAllowHiddenFields lets paths reference hidden fields. Access rules
// need this, user supplied filters must not have it.
func WithAllowHiddenFields(allow bool) Option {
	return func(r *RecordFieldResolver) { r.allowHiddenFields = allow }
}

// RecordFieldResolver resolves record field paths, @request.* and
// @collection.* identifiers for a single compilation.
//
// Relation paths add LEFT JOINs that are memoized by alias and handed back
// through UpdateQuery. A resolver holds per-compile state and must not be
// shared between concurrent compilations.
type RecordFieldResolver struct {
	provider          CollectionProvider
	base              *models.Collection
	info              *models.RequestInfo
	builder           *sqlbuilder.Builder
	backend           storage.Backend
	allowHiddenFields bool

	joins     []join
	joinIndex map[string]int
	static    map[string]any
	authParam string
	logger    *zap.SugaredLogger
}

func NewRecordFieldResolver(
	provider CollectionProvider,
	base *models.Collection,
	info *models.RequestInfo,
	builder *sqlbuilder.Builder,
	backend storage.Backend,
	opts ...Option,
) *RecordFieldResolver {
	r := &RecordFieldResolver{
		provider:  provider,
		base:      base,
		info:      info,
		builder:   builder,
		backend:   backend,
		joinIndex: make(map[string]int),
		logger:    zap.S().Named("resolvers"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.static = staticRequestData(info)
	return r
}

// SetAllowHiddenFields switches hidden field access for the identifiers
// resolved from now on.
func (r *RecordFieldResolver) SetAllowHiddenFields(allow bool) {
	r.allowHiddenFields = allow
}

// UpdateQuery adds the JOINs registered while resolving.
func (r *RecordFieldResolver) UpdateQuery(query sq.SelectBuilder) sq.SelectBuilder {
	for _, j := range r.joins {
		query = query.JoinClause(j.String())
	}
	return query
}

func (r *RecordFieldResolver) HasJoins() bool {
	return len(r.joins) > 0
}

// Joins returns the registered JOIN clauses in order.
func (r *RecordFieldResolver) Joins() []string {
	out := make([]string, len(r.joins))
	for i, j := range r.joins {
		out[i] = j.String()
	}
	return out
}

func (r *RecordFieldResolver) Resolve(field string) (*planner.ResolverResult, error) {
	path, mods := planner.ExtractModifiers(field)

	if strings.HasPrefix(path, "@request.") {
		return r.resolveRequest(strings.Split(path, ".")[1:], mods)
	}

	run, err := r.newRunner(path, mods)
	if err != nil {
		return nil, err
	}
	res, err := run.run()
	if err != nil {
		return nil, err
	}
	// joins of a failed path must not leak into the query
	for _, j := range run.pending {
		r.registerJoin(j.table, j.alias, j.on)
	}
	return res, nil
}

func (r *RecordFieldResolver) registerJoin(table, alias, on string) {
	if _, ok := r.joinIndex[alias]; ok {
		return
	}
	r.joinIndex[alias] = len(r.joins)
	r.joins = append(r.joins, join{table: table, alias: alias, on: on})
	r.logger.Debugw("registered join", "alias", alias, "table", table)
}

func (r *RecordFieldResolver) bind(v any) (*planner.ResolverResult, error) {
	if v == nil {
		return &planner.ResolverResult{Identifier: "NULL", NoCoalesce: true}, nil
	}

	switch v.(type) {
	case map[string]any, []any, []string:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		v = string(b)
	}

	name := r.builder.Unique("__rq")
	return &planner.ResolverResult{
		Identifier: ":" + name,
		Params:     map[string]any{name: v},
	}, nil
}

func (r *RecordFieldResolver) isHidden(f models.Field) bool {
	return f.Hidden && !r.allowHiddenFields
}
