package core

import "context"

// Relations consumed by the portal.
const (
	RelationUserRoles   = "user_roles"
	RelationCourses     = "courses"
	RelationEnrollments = "enrollments"
)

type (
	// Identity is issued and owned by the Gateway.
	Identity struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}

	// Filter is a conjunction of column equalities.
	Filter map[string]interface{}

	// Gateway is the authentication + relational storage backend.
	//
	// Register and Authenticate both establish the Gateway session that CurrentIdentity reports
	// and EndSession terminates. Auth failures are *AuthError, storage failures are *QueryError.
	Gateway interface {
		Authenticate(ctx context.Context, email, password string) (Identity, error)
		Register(ctx context.Context, email, password string, metadata map[string]string) (Identity, error)
		// CurrentIdentity returns ErrNoSession when there is no valid session.
		CurrentIdentity(ctx context.Context) (Identity, error)
		EndSession(ctx context.Context) error

		Query(ctx context.Context, relation string, filter Filter, ordering ...DBOrdering) ([]Record, error)
		Insert(ctx context.Context, relation string, rec Record) (Record, error)
		// Update patches every record matching filter and returns the first one (ErrNotFound if none).
		Update(ctx context.Context, relation string, filter Filter, patch Record) (Record, error)
	}
)
