package recordstore

import (
	"errors"
	"fmt"

	"github.com/ministore/recordstore/recordstore/ops"
	"github.com/ministore/recordstore/recordstore/query"
)

type ErrorKind string

const (
	ErrIO            ErrorKind = "io"
	ErrSQL           ErrorKind = "sql"
	ErrSchema        ErrorKind = "schema"
	ErrQueryParse    ErrorKind = "query_parse"
	ErrQueryRejected ErrorKind = "query_rejected"
	ErrNotFound      ErrorKind = "not_found"
	ErrForbidden     ErrorKind = "forbidden"
	ErrValidation    ErrorKind = "validation"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Field   string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	base := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Field != "" {
		base = fmt.Sprintf("%s (field=%s)", base, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Wrap(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func New(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func SchemaError(msg string) *Error {
	return &Error{Kind: ErrSchema, Message: msg}
}

func ValidationError(field string, cause error) *Error {
	return &Error{Kind: ErrValidation, Message: "invalid value", Field: field, Cause: cause}
}

func NotFoundError(what string) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("%s not found", what)}
}

func ForbiddenError(msg string) *Error {
	return &Error{Kind: ErrForbidden, Message: msg}
}

// searchError classifies an error returned by the search provider. Parse
// and limit errors name the request parameter that caused them.
func searchError(err error) *Error {
	param, ok := ops.IsParamError(err)
	if !ok {
		return Wrap(ErrSQL, "search records", err)
	}

	var syntaxErr *query.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &Error{Kind: ErrQueryParse, Message: "malformed " + param, Field: param, Cause: err}
	}
	return &Error{Kind: ErrQueryRejected, Message: "rejected " + param, Field: param, Cause: err}
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
