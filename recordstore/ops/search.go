package ops

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ministore/recordstore/recordstore/models"
	"github.com/ministore/recordstore/recordstore/planner"
	"github.com/ministore/recordstore/recordstore/storage"
	"github.com/ministore/recordstore/recordstore/storage/sqlbuilder"
)

const (
	DefaultPerPage  = 30
	MaxPerPage      = 1000
	MaxFilterLength = 3500
	MaxSortLength   = 255
	MaxSortFields   = 8
)

// ParamError attributes a rejected request to one search parameter.
type ParamError struct {
	Param string
	Err   error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s parameter: %v", e.Param, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }

// SearchParams are the user controlled parts of a list request.
type SearchParams struct {
	Page      int
	PerPage   int
	Filter    string
	Sort      string
	SkipTotal bool
}

// SearchResult is one page of rows. Totals are -1 when skipped.
type SearchResult struct {
	Page       int              `json:"page"`
	PerPage    int              `json:"perPage"`
	TotalItems int              `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
	Items      []map[string]any `json:"items"`
}

// Plan holds the statements of a search before execution.
type Plan struct {
	CountSQL string
	DataSQL  string
	Params   map[string]any
	Page     int
	PerPage  int

	data sq.SelectBuilder
}

// PageSQL is DataSQL limited to one page.
func (p *Plan) PageSQL(page int) (string, error) {
	query, _, err := p.data.
		Limit(uint64(p.PerPage)).
		Offset(uint64((page - 1) * p.PerPage)).
		ToSql()
	return query, err
}

// Provider composes a paginated search from a table, an optional base
// predicate and the user supplied filter and sort.
//
// The resolver and builder are per request: every filter and sort compiled
// by the provider registers its JOINs and parameters on them.
type Provider struct {
	backend  storage.Backend
	resolver planner.FieldResolver
	builder  *sqlbuilder.Builder
	opts     []planner.Option
	tracer   trace.Tracer
	logger   *zap.SugaredLogger
}

type ProviderOption func(*Provider)

// WithCompilerOptions configures the filter compiler used by the provider.
func WithCompilerOptions(opts ...planner.Option) ProviderOption {
	return func(p *Provider) { p.opts = append(p.opts, opts...) }
}

// WithTracer replaces the tracer of the global otel provider.
func WithTracer(tracer trace.Tracer) ProviderOption {
	return func(p *Provider) { p.tracer = tracer }
}

func NewProvider(backend storage.Backend, resolver planner.FieldResolver, builder *sqlbuilder.Builder, opts ...ProviderOption) *Provider {
	p := &Provider{
		backend:  backend,
		resolver: resolver,
		builder:  builder,
		tracer:   otel.Tracer("recordstore/ops"),
		logger:   zap.S().Named("search"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NormalizePage clamps page and perPage into their allowed ranges.
// Callers apply DefaultPerPage when the client did not ask for a size.
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

// Build compiles the count and data statements of a search. A non empty
// base predicate is ANDed with the user filter.
func (p *Provider) Build(table, base string, params SearchParams) (*Plan, error) {
	if utf8.RuneCountInString(params.Filter) > MaxFilterLength {
		return nil, &ParamError{Param: "filter", Err: fmt.Errorf("filter exceeds %d characters", MaxFilterLength)}
	}
	if utf8.RuneCountInString(params.Sort) > MaxSortLength {
		return nil, &ParamError{Param: "sort", Err: fmt.Errorf("sort exceeds %d characters", MaxSortLength)}
	}

	sortFields := planner.ParseSortFromString(params.Sort)
	if len(sortFields) > MaxSortFields {
		return nil, &ParamError{Param: "sort", Err: fmt.Errorf("at most %d sort fields are allowed", MaxSortFields)}
	}

	compiler := planner.NewCompiler(p.backend, p.resolver, p.builder, p.opts...)

	var where []string
	if base != "" {
		where = append(where, "("+base+")")
	}
	if strings.TrimSpace(params.Filter) != "" {
		expr, err := compiler.BuildFilter(params.Filter)
		if err != nil {
			return nil, &ParamError{Param: "filter", Err: err}
		}
		where = append(where, "("+expr+")")
	}
	sortTerms := compiler.BuildSortTerms(sortFields)

	// PostgreSQL rejects ORDER BY terms outside the select list of a
	// SELECT DISTINCT, so joined rows are grouped by id there instead.
	joined := planner.HasJoins(p.resolver)
	grouped := joined && p.backend == storage.BackendPostgres
	orderBy := planner.JoinSortTerms(sortTerms, grouped)

	from := func(q sq.SelectBuilder) sq.SelectBuilder {
		q = p.resolver.UpdateQuery(q.From(sqlbuilder.Wrap(table)))
		if len(where) > 0 {
			q = q.Where(strings.Join(where, " AND "))
		}
		return q
	}

	countSQL, _, err := from(sq.Select("COUNT(DISTINCT " + sqlbuilder.Wrap(table+"."+models.FieldNameID) + ")")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count query: %w", err)
	}

	page, perPage := NormalizePage(params.Page, params.PerPage)

	data := from(sq.Select(sqlbuilder.Wrap(table) + ".*"))
	switch {
	case grouped:
		data = data.GroupBy(sqlbuilder.Wrap(table + "." + models.FieldNameID))
	case joined:
		data = data.Distinct()
	}
	if orderBy != "" {
		data = data.OrderBy(orderBy)
	}
	dataSQL, _, err := data.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build data query: %w", err)
	}

	return &Plan{
		CountSQL: countSQL,
		DataSQL:  dataSQL,
		Params:   p.builder.Params(),
		Page:     page,
		PerPage:  perPage,
		data:     data,
	}, nil
}

// Search builds and runs a search. Without SkipTotal the rows are counted
// first and a page past the end is clamped to the last page.
func (p *Provider) Search(ctx context.Context, db *storage.DB, table, base string, params SearchParams) (result *SearchResult, err error) {
	ctx, span := p.tracer.Start(ctx, "ops.Search", trace.WithSpanKind(trace.SpanKindInternal))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("recordstore.table", table),
		attribute.Int("recordstore.page", params.Page),
		attribute.Int("recordstore.per_page", params.PerPage),
		attribute.Bool("recordstore.skip_total", params.SkipTotal),
	)

	plan, err := p.Build(table, base, params)
	if err != nil {
		return nil, err
	}

	result = &SearchResult{
		Page:       plan.Page,
		PerPage:    plan.PerPage,
		TotalItems: -1,
		TotalPages: -1,
	}

	if !params.SkipTotal {
		var total int
		if err := db.QueryRowContext(ctx, plan.CountSQL, plan.Params, &total); err != nil {
			return nil, fmt.Errorf("count rows: %w", err)
		}
		result.TotalItems = total
		result.TotalPages = int(math.Ceil(float64(total) / float64(plan.PerPage)))
		if result.TotalPages > 0 && result.Page > result.TotalPages {
			result.Page = result.TotalPages
		}
	}

	query, err := plan.PageSQL(result.Page)
	if err != nil {
		return nil, fmt.Errorf("build page query: %w", err)
	}
	rows, err := db.QueryContext(ctx, query, plan.Params)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}

	items, err := storage.ScanMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("scan rows: %w", err)
	}
	if items == nil {
		items = []map[string]any{}
	}
	result.Items = items

	span.SetAttributes(attribute.Int("recordstore.items", len(items)))
	p.logger.Debugw("search", "table", table, "page", result.Page, "items", len(items), "total", result.TotalItems)
	return result, nil
}

// IsParamError reports whether err was caused by a search parameter and
// returns that parameter.
func IsParamError(err error) (string, bool) {
	var pe *ParamError
	if errors.As(err, &pe) {
		return pe.Param, true
	}
	return "", false
}
