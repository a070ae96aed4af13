package query

import "strings"

// SignOp is a comparison operator.
type SignOp string

const (
	SignEq    SignOp = "="
	SignNeq   SignOp = "!="
	SignLike  SignOp = "~"
	SignNlike SignOp = "!~"
	SignLt    SignOp = "<"
	SignLte   SignOp = "<="
	SignGt    SignOp = ">"
	SignGte   SignOp = ">="

	// "any of" variants used against multi-valued operands

	SignAnyEq    SignOp = "?="
	SignAnyNeq   SignOp = "?!="
	SignAnyLike  SignOp = "?~"
	SignAnyNlike SignOp = "?!~"
	SignAnyLt    SignOp = "?<"
	SignAnyLte   SignOp = "?<="
	SignAnyGt    SignOp = "?>"
	SignAnyGte   SignOp = "?>="
)

var signOps = map[SignOp]struct{}{
	SignEq: {}, SignNeq: {}, SignLike: {}, SignNlike: {},
	SignLt: {}, SignLte: {}, SignGt: {}, SignGte: {},
	SignAnyEq: {}, SignAnyNeq: {}, SignAnyLike: {}, SignAnyNlike: {},
	SignAnyLt: {}, SignAnyLte: {}, SignAnyGt: {}, SignAnyGte: {},
}

// Valid reports whether op is one of the known operators.
func (op SignOp) Valid() bool {
	_, ok := signOps[op]
	return ok
}

// IsAny reports whether op is an "any of" operator.
func (op SignOp) IsAny() bool {
	return strings.HasPrefix(string(op), "?")
}

// Base strips the "any of" prefix.
func (op SignOp) Base() SignOp {
	return SignOp(strings.TrimPrefix(string(op), "?"))
}

// JoinOp combines two consecutive groups.
type JoinOp string

const (
	JoinAnd JoinOp = "&&"
	JoinOr  JoinOp = "||"
)

// ExprItem is either a single comparison (Expr) or a nested list of groups (ExprGroups).
type ExprItem interface {
	isExprItem()
}

// Expr is a single "left op right" comparison.
type Expr struct {
	Left  Token
	Op    SignOp
	Right Token
}

func (Expr) isExprItem() {}

// ExprGroups is an ordered list of groups, the result of parsing a (sub)expression.
type ExprGroups []ExprGroup

func (ExprGroups) isExprItem() {}

// ExprGroup pairs an item with the join that connects it to the previous group.
// The join of the first group in a list carries no meaning.
type ExprGroup struct {
	Join JoinOp
	Item ExprItem
}
