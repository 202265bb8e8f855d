package session

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrRoleBindingNotFound = errors.New("role binding not found")
	ErrInvalidRole         = errors.New("invalid role")
)

// RoleLookupFailed is returned when the RoleBinding of an authenticated Identity is missing or unreadable.
type RoleLookupFailed struct {
	UserID string
	Err    error
}

func (err *RoleLookupFailed) Error() string {
	return fmt.Sprintf("role lookup failed: %v", err.Err)
}

func (err *RoleLookupFailed) Unwrap() error { return err.Err }

// RoleMismatch is returned when the stored Role disagrees with the requested one.
type RoleMismatch struct {
	Expected Role // requested
	Actual   Role // stored
}

func (err *RoleMismatch) Error() string {
	return fmt.Sprintf("role mismatch: account is not a %s account", err.Expected)
}

// RoleBindingFailed is returned when the RoleBinding could not be created after account creation.
type RoleBindingFailed struct {
	UserID string
	Err    error
}

func (err *RoleBindingFailed) Error() string {
	return fmt.Sprintf("role binding failed: %v", err.Err)
}

func (err *RoleBindingFailed) Unwrap() error { return err.Err }
