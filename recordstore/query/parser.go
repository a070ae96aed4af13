package query

import "fmt"

// SyntaxError reports a malformed filter expression.
type SyntaxError struct {
	Msg string
}

func (e *SyntaxError) Error() string {
	return "invalid filter expression: " + e.Msg
}

func syntaxErrorf(format string, args ...any) *SyntaxError {
	return &SyntaxError{Msg: fmt.Sprintf(format, args...)}
}

type step int

const (
	stepBeforeSign step = iota
	stepSign
	stepAfterSign
	stepJoin
)

// Parse parses a filter expression into an ordered list of groups.
//
// Groups are joined left to right with the join stored on each group; a
// parenthesised group is parsed recursively into a nested ExprGroups item.
// Empty input and input that ends before a complete comparison are errors.
func Parse(text string) ([]ExprGroup, error) {
	s := NewScanner(text)

	var (
		result []ExprGroup
		expr   Expr
		join   = JoinAnd
		st     = stepBeforeSign
	)

	for {
		t := s.Scan()

		switch t.Kind {
		case TokenWhitespace, TokenComment:
			continue
		case TokenEOF:
			if st != stepJoin {
				if len(result) == 0 && st == stepBeforeSign {
					return nil, syntaxErrorf("empty filter expression")
				}
				return nil, syntaxErrorf("incomplete filter expression")
			}
			return result, nil
		case TokenUnexpected:
			return nil, syntaxErrorf("unexpected token %q", t.Literal)
		}

		switch st {
		case stepBeforeSign:
			if t.Kind == TokenGroup {
				item, err := parseGroup(t)
				if err != nil {
					return nil, err
				}
				result = append(result, ExprGroup{Join: join, Item: item})
				st = stepJoin
				continue
			}
			if !t.Kind.IsOperand() {
				return nil, syntaxErrorf("expected left operand (identifier, text, number, function or group), got %s %q", t.Kind, t.Literal)
			}
			expr = Expr{Left: t}
			st = stepSign

		case stepSign:
			if t.Kind != TokenSign {
				return nil, syntaxErrorf("expected a sign operator, got %s %q", t.Kind, t.Literal)
			}
			expr.Op = SignOp(t.Literal)
			st = stepAfterSign

		case stepAfterSign:
			if !t.Kind.IsOperand() {
				return nil, syntaxErrorf("expected right operand (identifier, text, number or function), got %s %q", t.Kind, t.Literal)
			}
			expr.Right = t
			result = append(result, ExprGroup{Join: join, Item: expr})
			expr = Expr{}
			st = stepJoin

		case stepJoin:
			switch t.Kind {
			case TokenJoin:
				join = JoinOp(t.Literal)
				st = stepBeforeSign
			case TokenGroup:
				// a group directly after another expression is AND-ed
				item, err := parseGroup(t)
				if err != nil {
					return nil, err
				}
				result = append(result, ExprGroup{Join: JoinAnd, Item: item})
			default:
				return nil, syntaxErrorf("expected && or ||, got %s %q", t.Kind, t.Literal)
			}
		}
	}
}

func parseGroup(t Token) (ExprGroups, error) {
	groups, err := Parse(t.Literal)
	if err != nil {
		return nil, err
	}
	return ExprGroups(groups), nil
}
