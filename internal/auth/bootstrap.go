package auth

import (
	"context"
	"errors"
	"fmt"

	"adboard/internal/apperr"
)

// adminModels are the resource kinds the admin role may read and write globally.
var adminModels = []string{ModelRight, ModelRole, ModelUser}

// CreateAdminUser provisions the admin role with global write and global read
// rights on rights, roles and users, and a user holding it. It is not
// idempotent: a second call fails with apperr.ErrConflict and changes nothing.
func CreateAdminUser(ctx context.Context, repo Repository, hasher Hasher, name, password string) (*User, error) {
	if err := validateUserName(name); err != nil {
		return nil, err
	}
	digest, err := hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	var rights []Right
	for _, model := range adminModels {
		rights = append(rights, Right{Model: model, Write: true, Read: false, OnlyOwn: false})
	}
	for _, model := range adminModels {
		rights = append(rights, Right{Model: model, Write: false, Read: true, OnlyOwn: false})
	}

	var admin *User
	err = repo.WithinTx(ctx, func(tx Repository) error {
		role, err := createRoleWithRights(ctx, tx, AdminRoleName, rights)
		if err != nil {
			return err
		}
		u, err := tx.CreateUser(ctx, name, digest)
		if err != nil {
			return err
		}
		if err := tx.AssignRoles(ctx, u.ID, role.ID); err != nil {
			return err
		}
		u.Roles = []Role{*role}
		admin = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create admin user: %w", err)
	}
	return admin, nil
}

// CreateDefaultRole creates the role every registered user receives. It holds
// two separate own-scoped rights on users: write without read, and read
// without write.
func CreateDefaultRole(ctx context.Context, repo Repository, name string) (*Role, error) {
	rights := []Right{
		{Model: ModelUser, Write: true, Read: false, OnlyOwn: true},
		{Model: ModelUser, Write: false, Read: true, OnlyOwn: true},
	}
	var role *Role
	err := repo.WithinTx(ctx, func(tx Repository) error {
		r, err := createRoleWithRights(ctx, tx, name, rights)
		role = r
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create default role: %w", err)
	}
	return role, nil
}

func createRoleWithRights(ctx context.Context, tx Repository, name string, rights []Right) (*Role, error) {
	role, err := tx.CreateRole(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, r := range rights {
		created, err := ensureRight(ctx, tx, r)
		if err != nil {
			return nil, err
		}
		if err := tx.GrantRight(ctx, role.ID, created.ID); err != nil {
			return nil, err
		}
		role.Rights = append(role.Rights, *created)
	}
	return role, nil
}

// DefaultRole looks up the configured default role. The boolean is false
// when no such role exists.
func DefaultRole(ctx context.Context, repo Repository, name string) (*Role, bool, error) {
	role, err := repo.RoleByName(ctx, name)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return role, true, nil
}

// EnsureDefaultRole returns the default role, creating it when absent.
func EnsureDefaultRole(ctx context.Context, repo Repository, name string) (*Role, bool, error) {
	role, ok, err := DefaultRole(ctx, repo, name)
	if err != nil || ok {
		return role, false, err
	}
	role, err = CreateDefaultRole(ctx, repo, name)
	if errors.Is(err, apperr.ErrConflict) {
		// Lost a race with another instance.
		role, _, err = DefaultRole(ctx, repo, name)
		return role, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return role, true, nil
}
