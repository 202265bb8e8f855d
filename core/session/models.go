package session

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/classroom/core"
)

// Roles
const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

var AllRoles = []Role{RoleTeacher, RoleStudent}

// Role is the portal a user may reach.
type Role string

func ParseRole(s string) (Role, bool) {
	role := Role(core.CleanString(s, true /* lower */))
	for _, r := range AllRoles {
		if role == r {
			return role, true
		}
	}
	return "", false
}

func (r Role) String() string { return string(r) }

// RoleBinding is the application level record associating an Identity with its Role.
type RoleBinding struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (rb RoleBinding) record() core.Record {
	return core.Record{"user_id": rb.UserID, "role": string(rb.Role)}
}

// User is the reconciled view of who is logged in and as what.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (u User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

// Credentials contains information needed to sign in.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     Role   `json:"role" validate:"required,role"`
}

func (c *Credentials) Validate(validate *validator.Validate) error {
	c.Email = core.CleanEmail(c.Email)
	c.Role = Role(core.CleanString(string(c.Role), true /* lower */))
	return validate.Struct(c)
}

// NewAccount contains information needed to sign up. The password policy applies.
type NewAccount struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     Role   `json:"role" validate:"required,role"`
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Email = core.CleanEmail(na.Email)
	na.Role = Role(core.CleanString(string(na.Role), true /* lower */))
	return validate.Struct(na)
}
