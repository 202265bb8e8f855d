package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailTaken         = errors.New("a user with this email already exists")
	ErrNoSession          = errors.New("no active session")
	ErrNotFound           = errors.New("record not found")
	ErrDuplicate          = errors.New("duplicate key value")
	ErrUnknownRelation    = errors.New("unknown relation")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// AuthError is returned by a Gateway when authentication or registration is refused.
type AuthError struct {
	Err error
}

func NewAuthError(err error) error {
	return &AuthError{Err: err}
}

func (err *AuthError) Error() string { return err.Err.Error() }
func (err *AuthError) Unwrap() error { return err.Err }

// QueryError is returned by a Gateway when a read or write against a relation fails.
type QueryError struct {
	Op       string // query | insert | update
	Relation string
	Err      error
}

func NewQueryError(op, relation string, err error) error {
	return &QueryError{Op: op, Relation: relation, Err: err}
}

func (err *QueryError) Error() string {
	return fmt.Sprintf("%s %s: %v", err.Op, err.Relation, err.Err)
}

func (err *QueryError) Unwrap() error { return err.Err }
