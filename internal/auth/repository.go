package auth

import (
	"context"
	"time"
)

// Repository is the persistence the auth service needs. Lookups that miss
// return apperr.ErrNotFound; uniqueness breaches return apperr.ErrConflict.
type Repository interface {
	RightsSource
	TokenRepository

	CreateUser(ctx context.Context, name, digest string) (*User, error)
	UserByName(ctx context.Context, name string) (*User, error)
	// UserByID loads the user with its roles and their rights.
	UserByID(ctx context.Context, id int64) (*User, error)
	UpdatePassword(ctx context.Context, id int64, digest string) error
	DeleteUser(ctx context.Context, id int64) error

	CreateRole(ctx context.Context, name string) (*Role, error)
	RoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)

	CreateRight(ctx context.Context, r Right) (*Right, error)
	RightByTuple(ctx context.Context, r Right) (*Right, error)
	ListRights(ctx context.Context) ([]Right, error)

	// GrantRight and AssignRoles are idempotent.
	GrantRight(ctx context.Context, roleID, rightID int64) error
	AssignRoles(ctx context.Context, userID int64, roleIDs ...int64) error

	// WithinTx runs fn against a repository bound to a single transaction.
	WithinTx(ctx context.Context, fn func(Repository) error) error
}

// RightsSource resolves every right reachable from a user through its roles.
type RightsSource interface {
	RightsForUser(ctx context.Context, userID int64) ([]Right, error)
}

type TokenRepository interface {
	CreateToken(ctx context.Context, t *Token) error
	TokenByValue(ctx context.Context, value string) (*Token, error)
	DeleteToken(ctx context.Context, value string) error
	DeleteTokensCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
