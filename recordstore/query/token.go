package query

// TokenKind identifies the lexical class of a Token.
type TokenKind int

const (
	TokenUnexpected TokenKind = iota
	TokenEOF
	TokenWhitespace
	TokenComment
	TokenIdentifier
	TokenText
	TokenNumber
	TokenFunction
	TokenSign
	TokenJoin
	TokenGroup
)

// TokenKinds lists every kind in declaration order.
var TokenKinds = []TokenKind{
	TokenUnexpected,
	TokenEOF,
	TokenWhitespace,
	TokenComment,
	TokenIdentifier,
	TokenText,
	TokenNumber,
	TokenFunction,
	TokenSign,
	TokenJoin,
	TokenGroup,
}

func (k TokenKind) String() string {
	switch k {
	case TokenUnexpected:
		return "unexpected"
	case TokenEOF:
		return "eof"
	case TokenWhitespace:
		return "whitespace"
	case TokenComment:
		return "comment"
	case TokenIdentifier:
		return "identifier"
	case TokenText:
		return "text"
	case TokenNumber:
		return "number"
	case TokenFunction:
		return "function"
	case TokenSign:
		return "sign"
	case TokenJoin:
		return "join"
	case TokenGroup:
		return "group"
	default:
		return "unknown"
	}
}

// IsOperand reports whether a token of this kind can stand on either side of a sign.
func (k TokenKind) IsOperand() bool {
	switch k {
	case TokenIdentifier, TokenText, TokenNumber, TokenFunction:
		return true
	default:
		return false
	}
}

// Token is a single lexical unit of a filter expression.
//
// Literal holds the unquoted text for TokenText, the raw inner text for
// TokenGroup and the function name for TokenFunction. Args is only set for
// TokenFunction and holds the argument tokens in call order.
type Token struct {
	Kind    TokenKind
	Literal string
	Args    []Token
}
