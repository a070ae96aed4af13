package query

import (
	"strings"
	"unicode"
)

// Scanner splits a filter expression into tokens.
type Scanner struct {
	input []rune
	pos   int
}

// NewScanner creates a new scanner for the input string
func NewScanner(input string) *Scanner {
	return &Scanner{input: []rune(input)}
}

// ScanAll returns every significant token of the input.
// Whitespace and comments are dropped and the trailing EOF is not included.
func ScanAll(input string) []Token {
	s := NewScanner(input)
	var tokens []Token
	for {
		t := s.Scan()
		switch t.Kind {
		case TokenEOF:
			return tokens
		case TokenWhitespace, TokenComment:
			continue
		}
		tokens = append(tokens, t)
	}
}

// Scan reads the next token. Every call that does not return TokenEOF
// consumes at least one character.
func (s *Scanner) Scan() Token {
	if s.pos >= len(s.input) {
		return Token{Kind: TokenEOF}
	}

	ch := s.input[s.pos]

	switch {
	case isWhitespace(ch):
		return s.scanWhitespace()
	case ch == '(':
		return s.scanGroup()
	case isQuote(ch):
		return s.scanText()
	case isNumberStart(ch, s.peek(1)):
		return s.scanNumber()
	case isIdentifierStart(ch):
		return s.scanIdentifier()
	case isSignChar(ch):
		return s.scanSign()
	case isJoinChar(ch):
		return s.scanJoin()
	case ch == '/' && s.peek(1) == '/':
		return s.scanComment()
	}

	s.pos++
	return Token{Kind: TokenUnexpected, Literal: string(ch)}
}

func (s *Scanner) peek(offset int) rune {
	pos := s.pos + offset
	if pos < len(s.input) {
		return s.input[pos]
	}
	return 0
}

func (s *Scanner) scanWhitespace() Token {
	start := s.pos
	for s.pos < len(s.input) && isWhitespace(s.input[s.pos]) {
		s.pos++
	}
	return Token{Kind: TokenWhitespace, Literal: string(s.input[start:s.pos])}
}

func (s *Scanner) scanComment() Token {
	s.pos += 2 // consume //
	start := s.pos
	for s.pos < len(s.input) && s.input[s.pos] != '\n' {
		s.pos++
	}
	return Token{Kind: TokenComment, Literal: strings.TrimSpace(string(s.input[start:s.pos]))}
}

// scanText reads a quoted literal. A backslash only escapes the quote
// character that opened the literal; a missing closing quote ends the
// literal at end of input.
func (s *Scanner) scanText() Token {
	quote := s.input[s.pos]
	s.pos++

	var sb strings.Builder
	for s.pos < len(s.input) {
		ch := s.input[s.pos]
		if ch == '\\' && s.peek(1) == quote {
			sb.WriteRune(quote)
			s.pos += 2
			continue
		}
		s.pos++
		if ch == quote {
			break
		}
		sb.WriteRune(ch)
	}

	return Token{Kind: TokenText, Literal: sb.String()}
}

func (s *Scanner) scanNumber() Token {
	start := s.pos
	if s.input[s.pos] == '-' {
		s.pos++
	}
	s.skipDigits()

	// fractional part only when a digit follows the dot
	if s.peek(0) == '.' && isDigit(s.peek(1)) {
		s.pos++
		s.skipDigits()
	}

	return Token{Kind: TokenNumber, Literal: string(s.input[start:s.pos])}
}

func (s *Scanner) skipDigits() {
	for s.pos < len(s.input) && isDigit(s.input[s.pos]) {
		s.pos++
	}
}

// scanIdentifier reads an identifier and, when it is directly followed by
// "(", the function call it names.
func (s *Scanner) scanIdentifier() Token {
	start := s.pos
	s.pos++ // the start char is the only place @ and # are allowed
	for s.pos < len(s.input) && isIdentifierChar(s.input[s.pos]) {
		s.pos++
	}

	// trailing separators are left for the next Scan call
	for s.pos-start > 1 && isIdentifierSeparator(s.input[s.pos-1]) {
		s.pos--
	}

	literal := string(s.input[start:s.pos])

	if s.peek(0) == '(' {
		return s.scanFunction(literal, start)
	}

	return Token{Kind: TokenIdentifier, Literal: literal}
}

func (s *Scanner) scanFunction(name string, start int) Token {
	s.pos++ // consume (

	var args []Token
	for {
		for s.pos < len(s.input) && isWhitespace(s.input[s.pos]) {
			s.pos++
		}
		if s.pos >= len(s.input) {
			return Token{Kind: TokenUnexpected, Literal: string(s.input[start:s.pos])}
		}

		ch := s.input[s.pos]
		var arg Token
		switch {
		case ch == ')':
			s.pos++
			return Token{Kind: TokenFunction, Literal: name, Args: args}
		case ch == ',':
			s.pos++
			continue
		case isQuote(ch):
			arg = s.scanText()
		case isNumberStart(ch, s.peek(1)):
			arg = s.scanNumber()
		case isIdentifierStart(ch):
			arg = s.scanIdentifier()
		default:
			s.pos++
			return Token{Kind: TokenUnexpected, Literal: string(s.input[start:s.pos])}
		}

		if arg.Kind == TokenUnexpected {
			return arg
		}
		args = append(args, arg)
	}
}

// scanGroup reads a parenthesised group and returns its raw inner text.
// Parentheses inside quoted literals do not count towards the nesting depth
// and a group still open at end of input is closed there.
func (s *Scanner) scanGroup() Token {
	s.pos++ // consume (
	start := s.pos

	depth := 1
	var quote rune
	for s.pos < len(s.input) {
		ch := s.input[s.pos]

		if quote != 0 {
			switch {
			case ch == '\\' && s.peek(1) == quote:
				s.pos += 2
				continue
			case ch == quote:
				quote = 0
			}
			s.pos++
			continue
		}

		switch ch {
		case '\'', '"':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				literal := string(s.input[start:s.pos])
				s.pos++
				return Token{Kind: TokenGroup, Literal: literal}
			}
		}
		s.pos++
	}

	return Token{Kind: TokenGroup, Literal: string(s.input[start:])}
}

func (s *Scanner) scanSign() Token {
	start := s.pos
	for s.pos < len(s.input) && isSignChar(s.input[s.pos]) {
		s.pos++
	}

	literal := string(s.input[start:s.pos])
	if !SignOp(literal).Valid() {
		return Token{Kind: TokenUnexpected, Literal: literal}
	}
	return Token{Kind: TokenSign, Literal: literal}
}

func (s *Scanner) scanJoin() Token {
	start := s.pos
	for s.pos < len(s.input) && isJoinChar(s.input[s.pos]) {
		s.pos++
	}

	literal := string(s.input[start:s.pos])
	switch JoinOp(literal) {
	case JoinAnd, JoinOr:
		return Token{Kind: TokenJoin, Literal: literal}
	}
	return Token{Kind: TokenUnexpected, Literal: literal}
}

func isWhitespace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isQuote(ch rune) bool {
	return ch == '\'' || ch == '"'
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isNumberStart(ch, next rune) bool {
	return isDigit(ch) || (ch == '-' && isDigit(next))
}

func isIdentifierStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_' || ch == '@' || ch == '#'
}

func isIdentifierChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || isIdentifierSeparator(ch)
}

func isIdentifierSeparator(ch rune) bool {
	return ch == '.' || ch == ':'
}

func isSignChar(ch rune) bool {
	switch ch {
	case '=', '?', '!', '>', '<', '~':
		return true
	}
	return false
}

func isJoinChar(ch rune) bool {
	return ch == '&' || ch == '|'
}
