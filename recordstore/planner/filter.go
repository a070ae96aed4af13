package planner

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ministore/recordstore/recordstore/query"
	"github.com/ministore/recordstore/recordstore/storage"
	"github.com/ministore/recordstore/recordstore/storage/sqlbuilder"
)

// DefaultMaxExprLimit is the default number of comparisons a single filter may contain.
const DefaultMaxExprLimit = 200

// ErrExprLimit is returned when a filter has more comparisons than allowed.
var ErrExprLimit = errors.New("too many filter expressions")

// Compiler turns parsed filter expressions into SQL WHERE fragments.
//
// A Compiler belongs to one compilation: every literal is bound through
// its Builder, so two compilers never share parameter names and compiling
// the same input with fresh compilers yields identical SQL.
type Compiler struct {
	backend  storage.Backend
	resolver FieldResolver
	builder  *sqlbuilder.Builder
	now      func() time.Time
	maxExprs int

	remaining   int
	likeWrapped map[string]bool
	logger      *zap.SugaredLogger
}

type Option func(*Compiler)

// WithNow overrides the clock used by the date macros.
func WithNow(fn func() time.Time) Option {
	return func(c *Compiler) { c.now = fn }
}

// WithMaxExprLimit overrides DefaultMaxExprLimit. A limit of 0 rejects every filter.
func WithMaxExprLimit(n int) Option {
	return func(c *Compiler) { c.maxExprs = n }
}

func NewCompiler(backend storage.Backend, resolver FieldResolver, builder *sqlbuilder.Builder, opts ...Option) *Compiler {
	c := &Compiler{
		backend:     backend,
		resolver:    resolver,
		builder:     builder,
		now:         time.Now,
		maxExprs:    DefaultMaxExprLimit,
		likeWrapped: make(map[string]bool),
		logger:      zap.S().Named("planner"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Compiler) Backend() storage.Backend { return c.backend }

func (c *Compiler) Builder() *sqlbuilder.Builder { return c.builder }

// BuildFilter parses raw and compiles it.
func (c *Compiler) BuildFilter(raw string) (string, error) {
	groups, err := ParseFilter(raw)
	if err != nil {
		return "", err
	}
	return c.BuildFilterExpr(groups)
}

// BuildFilterExpr compiles parsed groups into a boolean SQL expression.
//
// Groups are joined left to right with AND/OR, so the usual SQL precedence
// of AND over OR applies; nested groups are parenthesised.
func (c *Compiler) BuildFilterExpr(groups []query.ExprGroup) (string, error) {
	c.remaining = c.maxExprs
	return c.buildGroups(groups)
}

func (c *Compiler) buildGroups(groups []query.ExprGroup) (string, error) {
	if len(groups) == 0 {
		return "", errors.New("empty filter expression")
	}

	var sb strings.Builder
	for i, g := range groups {
		part, err := c.buildItem(g.Item)
		if err != nil {
			return "", err
		}
		if i > 0 {
			if g.Join == query.JoinOr {
				sb.WriteString(" OR ")
			} else {
				sb.WriteString(" AND ")
			}
		}
		sb.WriteString(part)
	}
	return sb.String(), nil
}

func (c *Compiler) buildItem(item query.ExprItem) (string, error) {
	switch v := item.(type) {
	case query.Expr:
		return c.buildExpr(v)
	case query.ExprGroups:
		inner, err := c.buildGroups(v)
		if err != nil {
			return "", err
		}
		return "(" + inner + ")", nil
	default:
		return "", fmt.Errorf("unsupported expression item %T", item)
	}
}

func (c *Compiler) buildExpr(e query.Expr) (string, error) {
	c.remaining--
	if c.remaining < 0 {
		return "", fmt.Errorf("%w (max %d)", ErrExprLimit, c.maxExprs)
	}

	if !e.Op.Valid() {
		return "", fmt.Errorf("unknown operator %q", e.Op)
	}

	left, err := c.ResolveToken(e.Left)
	if err != nil {
		return "", err
	}
	right, err := c.ResolveToken(e.Right)
	if err != nil {
		return "", err
	}

	expr, err := c.buildComparison(e.Op, left, right)
	if err != nil {
		return "", err
	}

	if left.AfterBuild != nil {
		expr = left.AfterBuild(expr)
	}
	if right.AfterBuild != nil {
		expr = right.AfterBuild(expr)
	}
	return expr, nil
}

// ResolveToken turns a single operand token into SQL.
//
// null/true/false and @-macros become literals or bound values, text and
// numbers are always bound, functions go through the function registry and
// every other identifier is handed to the FieldResolver. An identifier the
// resolver cannot handle becomes NULL.
func (c *Compiler) ResolveToken(t query.Token) (*ResolverResult, error) {
	switch t.Kind {
	case query.TokenIdentifier:
		switch strings.ToLower(t.Literal) {
		case "null":
			return &ResolverResult{Identifier: "NULL", NoCoalesce: true}, nil
		case "true":
			return &ResolverResult{Identifier: c.backend.Bool(true), NoCoalesce: true}, nil
		case "false":
			return &ResolverResult{Identifier: c.backend.Bool(false), NoCoalesce: true}, nil
		}

		if v, ok := LookupMacro(t.Literal, c.now()); ok {
			return &ResolverResult{Identifier: c.builder.Arg(v)}, nil
		}

		r, err := c.resolver.Resolve(t.Literal)
		if err != nil || r == nil {
			c.logger.Debugw("unresolved identifier", "identifier", t.Literal, "error", err)
			return &ResolverResult{Identifier: "NULL", NoCoalesce: true}, nil
		}
		for name, v := range r.Params {
			c.builder.Bind(name, v)
		}
		return r, nil

	case query.TokenText:
		return &ResolverResult{Identifier: c.builder.Arg(t.Literal)}, nil

	case query.TokenNumber:
		n, err := parseNumber(t.Literal)
		if err != nil {
			return nil, err
		}
		return &ResolverResult{Identifier: c.builder.Arg(n)}, nil

	case query.TokenFunction:
		return c.callFunction(t)

	default:
		return nil, fmt.Errorf("unsupported operand %s %q", t.Kind, t.Literal)
	}
}

func (c *Compiler) callFunction(t query.Token) (*ResolverResult, error) {
	fn, ok := functions[t.Literal]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", t.Literal)
	}
	if len(t.Args) != fn.Args {
		return nil, fmt.Errorf("function %s expects %d arguments, got %d", t.Literal, fn.Args, len(t.Args))
	}

	args := make([]*ResolverResult, len(t.Args))
	for i, a := range t.Args {
		r, err := c.ResolveToken(a)
		if err != nil {
			return nil, fmt.Errorf("function %s argument %d: %w", t.Literal, i+1, err)
		}
		args[i] = r
	}
	return fn.Build(c.backend, args)
}

func parseNumber(literal string) (any, error) {
	if !strings.Contains(literal, ".") {
		if n, err := strconv.ParseInt(literal, 10, 64); err == nil {
			return n, nil
		}
	}
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", literal)
	}
	return f, nil
}

func (c *Compiler) buildComparison(op query.SignOp, left, right *ResolverResult) (string, error) {
	base := op.Base()

	expr, err := c.compare(base, left, right)
	if err != nil {
		return "", err
	}

	// plain operators must hold for every value of a multi-valued operand
	if op.IsAny() || (left.MultiMatchSubQuery == "" && right.MultiMatchSubQuery == "") {
		return expr, nil
	}

	mm, err := c.multiMatch(base, left, right)
	if err != nil {
		return "", err
	}
	return "(" + expr + " AND " + mm + ")", nil
}

func (c *Compiler) compare(op query.SignOp, left, right *ResolverResult) (string, error) {
	switch op {
	case query.SignEq, query.SignNeq:
		return c.equal(op == query.SignEq, left, right), nil
	case query.SignLike, query.SignNlike:
		return c.like(op == query.SignLike, left, right), nil
	case query.SignLt, query.SignLte, query.SignGt, query.SignGte:
		return left.Identifier + " " + string(op) + " " + right.Identifier, nil
	default:
		return "", fmt.Errorf("unknown operator %q", op)
	}
}

func (c *Compiler) equal(eq bool, left, right *ResolverResult) string {
	equalOp, concatOp, nullExpr := "=", "OR", "IS NULL"
	if !eq {
		equalOp, concatOp, nullExpr = "!=", "AND", "IS NOT NULL"
	}

	leftEmpty, rightEmpty := c.isEmpty(left), c.isEmpty(right)
	switch {
	case leftEmpty && rightEmpty:
		return "'' " + equalOp + " ''"
	case leftEmpty:
		return fmt.Sprintf("('' %s %s %s %s %s)", equalOp, c.backend.Text(right.Identifier), concatOp, right.Identifier, nullExpr)
	case rightEmpty:
		return fmt.Sprintf("(%s %s '' %s %s %s)", c.backend.Text(left.Identifier), equalOp, concatOp, left.Identifier, nullExpr)
	case left.NoCoalesce || right.NoCoalesce:
		return left.Identifier + " " + c.backend.NullSafeEqual(!eq) + " " + right.Identifier
	default:
		return c.backend.Coalesce(left.Identifier) + " " + equalOp + " " + c.backend.Coalesce(right.Identifier)
	}
}

// isEmpty reports whether r is the empty string literal.
func (c *Compiler) isEmpty(r *ResolverResult) bool {
	if r.Identifier == "''" {
		return true
	}
	if !strings.HasPrefix(r.Identifier, ":") {
		return false
	}
	v, ok := c.builder.Value(r.Identifier)
	s, isString := v.(string)
	return ok && isString && s == ""
}

func (c *Compiler) like(positive bool, left, right *ResolverResult) string {
	c.wrapLikeParam(right)

	if positive {
		return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, c.backend.Text(left.Identifier), right.Identifier)
	}
	// NULL never contains the pattern
	return fmt.Sprintf(`%s NOT LIKE %s ESCAPE '\'`, c.backend.Coalesce(left.Identifier), right.Identifier)
}

// wrapLikeParam turns a bound right operand into a "contains" pattern.
func (c *Compiler) wrapLikeParam(r *ResolverResult) {
	if !strings.HasPrefix(r.Identifier, ":") || c.likeWrapped[r.Identifier] {
		return
	}
	v, ok := c.builder.Value(r.Identifier)
	if !ok {
		return
	}

	var s string
	switch val := v.(type) {
	case string:
		s = val
	case int64, float64, int:
		s = fmt.Sprint(val)
	default:
		return
	}

	c.builder.Bind(strings.TrimPrefix(r.Identifier, ":"), "%"+escapeLike(s)+"%")
	c.likeWrapped[r.Identifier] = true
}

// escapeLike escapes %, _ and \ so the value can be used with "ESCAPE '\'".
func escapeLike(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '%', '_', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// multiMatch requires the comparison to hold for every value selected by
// the operands' multi-match subqueries.
func (c *Compiler) multiMatch(op query.SignOp, left, right *ResolverResult) (string, error) {
	var sources []string

	mmLeft := left
	if left.MultiMatchSubQuery != "" {
		sources = append(sources, "("+left.MultiMatchSubQuery+") [[__mml]]")
		mmLeft = &ResolverResult{Identifier: "[[__mml.multiMatchValue]]", NoCoalesce: left.NoCoalesce}
	}

	mmRight := right
	if right.MultiMatchSubQuery != "" {
		sources = append(sources, "("+right.MultiMatchSubQuery+") [[__mmr]]")
		mmRight = &ResolverResult{Identifier: "[[__mmr.multiMatchValue]]", NoCoalesce: right.NoCoalesce}
	}

	inner, err := c.compare(op, mmLeft, mmRight)
	if err != nil {
		return "", err
	}
	return "NOT EXISTS (SELECT 1 FROM " + strings.Join(sources, ", ") + " WHERE NOT (" + inner + "))", nil
}
