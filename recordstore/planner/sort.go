package planner

import "strings"

const (
	SortAsc  = "ASC"
	SortDesc = "DESC"

	// RandomSortKey orders rows randomly.
	RandomSortKey = "@random"
	// RowidSortKey orders rows by their physical insertion key.
	RowidSortKey = "@rowid"
)

type SortField struct {
	Name      string
	Direction string
}

// ParseSortFromString parses "-a,+b,c" into sort fields. A leading "-"
// sorts descending; "+" or no prefix sorts ascending.
func ParseSortFromString(str string) []SortField {
	var fields []SortField
	for _, part := range strings.Split(str, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
			continue
		case strings.HasPrefix(part, "-"):
			fields = append(fields, SortField{Name: part[1:], Direction: SortDesc})
		case strings.HasPrefix(part, "+"):
			fields = append(fields, SortField{Name: part[1:], Direction: SortAsc})
		default:
			fields = append(fields, SortField{Name: part, Direction: SortAsc})
		}
	}
	return fields
}

// SortTerm is a compiled ORDER BY term. Random terms carry no direction.
type SortTerm struct {
	Expr      string
	Direction string
	Random    bool
}

// BuildSortExpr compiles sort fields into an ORDER BY list.
// Fields the resolver cannot handle are left out.
func (c *Compiler) BuildSortExpr(fields []SortField) string {
	return JoinSortTerms(c.BuildSortTerms(fields), false)
}

// BuildSortTerms resolves sort fields into ORDER BY terms.
func (c *Compiler) BuildSortTerms(fields []SortField) []SortTerm {
	terms := make([]SortTerm, 0, len(fields))
	for _, f := range fields {
		dir := SortAsc
		if strings.EqualFold(f.Direction, SortDesc) {
			dir = SortDesc
		}

		switch f.Name {
		case RandomSortKey:
			terms = append(terms, SortTerm{Expr: c.backend.Random(), Random: true})
		case RowidSortKey:
			terms = append(terms, SortTerm{Expr: c.backend.RowID(), Direction: dir})
		default:
			r, err := c.resolver.Resolve(f.Name)
			if err != nil || r == nil || r.Identifier == "" {
				c.logger.Debugw("skipping unresolved sort field", "field", f.Name, "error", err)
				continue
			}
			for name, v := range r.Params {
				c.builder.Bind(name, v)
			}
			terms = append(terms, SortTerm{Expr: r.Identifier, Direction: dir})
		}
	}
	return terms
}

// JoinSortTerms renders terms as an ORDER BY list. With aggregate set the
// query is grouped by record id: ascending terms sort by their smallest
// value per record and descending terms by their largest.
func JoinSortTerms(terms []SortTerm, aggregate bool) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		switch {
		case t.Random:
			parts = append(parts, t.Expr)
		case !aggregate:
			parts = append(parts, t.Expr+" "+t.Direction)
		case t.Direction == SortDesc:
			parts = append(parts, "MAX("+t.Expr+") "+t.Direction)
		default:
			parts = append(parts, "MIN("+t.Expr+") "+t.Direction)
		}
	}
	return strings.Join(parts, ", ")
}
