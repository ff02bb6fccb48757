package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"adboard/internal/apperr"
)

const maxNameLen = 50

// unknownUserPassword is hashed once at the configured cost so that logins
// for missing users spend the same bcrypt work as wrong passwords.
const unknownUserPassword = "adboard-unknown-user"

type Service struct {
	repo        Repository
	hasher      Hasher
	issuer      Issuer
	access      *Evaluator
	defaultRole string
	logger      *slog.Logger

	// unknownDigest is compared against when the login name does not exist.
	unknownDigest func() (string, error)
}

func NewService(repo Repository, hasher Hasher, issuer Issuer, access *Evaluator, defaultRole string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		hasher:      hasher,
		issuer:      issuer,
		access:      access,
		defaultRole: defaultRole,
		logger:      logger,
		unknownDigest: sync.OnceValues(func() (string, error) {
			return hasher.Hash(unknownUserPassword)
		}),
	}
}

func validateUserName(name string) error {
	if strings.TrimSpace(name) == "" || utf8.RuneCountInString(name) > maxNameLen {
		return fmt.Errorf("%w: name must be 1..%d characters", apperr.ErrInvalidInput, maxNameLen)
	}
	return nil
}

// Register creates a user and gives it the default role when one exists.
func (s *Service) Register(ctx context.Context, name, password string) (*User, error) {
	if err := validateUserName(name); err != nil {
		return nil, err
	}
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	var created *User
	err = s.repo.WithinTx(ctx, func(tx Repository) error {
		u, err := tx.CreateUser(ctx, name, digest)
		if err != nil {
			return err
		}
		role, ok, err := DefaultRole(ctx, tx, s.defaultRole)
		if err != nil {
			return err
		}
		if ok {
			if err := tx.AssignRoles(ctx, u.ID, role.ID); err != nil {
				return err
			}
			u.Roles = []Role{*role}
		} else {
			s.logger.Warn("default role missing, user registered without roles", "role", s.defaultRole, "user", name)
			u.Roles = []Role{}
		}
		created = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("register %q: %w", name, err)
	}
	s.logger.Info("user registered", "user_id", created.ID)
	return created, nil
}

// Login checks the password and issues a new token.
func (s *Service) Login(ctx context.Context, name, password string) (string, error) {
	u, err := s.repo.UserByName(ctx, name)
	if errors.Is(err, apperr.ErrNotFound) {
		if digest, err := s.unknownDigest(); err == nil {
			_, _ = s.hasher.Verify(password, digest)
		}
		return "", apperr.ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	ok, err := s.hasher.Verify(password, u.PasswordDigest)
	if err != nil {
		return "", fmt.Errorf("verify user %d: %w", u.ID, err)
	}
	if !ok {
		return "", apperr.ErrInvalidCredentials
	}
	token, err := s.issuer.Issue(ctx, u.ID)
	if err != nil {
		return "", err
	}
	s.logger.Info("user logged in", "user_id", u.ID)
	return token, nil
}

// Authenticate resolves a bearer credential to its user, with roles and
// rights loaded.
func (s *Service) Authenticate(ctx context.Context, raw string) (*User, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: missing token", apperr.ErrUnauthenticated)
	}
	userID, err := s.issuer.Resolve(ctx, raw)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.UserByID(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: user no longer exists", apperr.ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Logout revokes the credential when the issuer supports revocation.
func (s *Service) Logout(ctx context.Context, raw string) error {
	rev, ok := s.issuer.(Revoker)
	if !ok {
		return fmt.Errorf("%w: token scheme does not support revocation", apperr.ErrInvalidInput)
	}
	return rev.Revoke(ctx, raw)
}

// Access exposes the evaluator for other resource services.
func (s *Service) Access() *Evaluator {
	return s.access
}

func (s *Service) GetUser(ctx context.Context, caller *User, id int64) (*User, error) {
	if err := s.access.CheckAccess(ctx, caller, ModelUser, OpRead, Owner(id)); err != nil {
		return nil, err
	}
	return s.repo.UserByID(ctx, id)
}

func (s *Service) ChangePassword(ctx context.Context, caller *User, id int64, password string) error {
	if err := s.access.CheckAccess(ctx, caller, ModelUser, OpWrite, Owner(id)); err != nil {
		return err
	}
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, id, digest)
}

// DeleteUser removes the user; tokens and ads go with it.
func (s *Service) DeleteUser(ctx context.Context, caller *User, id int64) error {
	if err := s.access.CheckAccess(ctx, caller, ModelUser, OpWrite, Owner(id)); err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", "user_id", id, "by", caller.ID)
	return nil
}

func (s *Service) CreateRole(ctx context.Context, caller *User, name string) (*Role, error) {
	if err := s.access.CheckAccess(ctx, caller, ModelRole, OpWrite, nil); err != nil {
		return nil, err
	}
	if err := validateUserName(name); err != nil {
		return nil, err
	}
	return s.repo.CreateRole(ctx, name)
}

func (s *Service) ListRoles(ctx context.Context, caller *User) ([]Role, error) {
	if err := s.access.CheckAccess(ctx, caller, ModelRole, OpRead, nil); err != nil {
		return nil, err
	}
	return s.repo.ListRoles(ctx)
}

func (s *Service) CreateRight(ctx context.Context, caller *User, r Right) (*Right, error) {
	if err := s.access.CheckAccess(ctx, caller, ModelRight, OpWrite, nil); err != nil {
		return nil, err
	}
	if r.Model == "" || len(r.Model) > maxNameLen {
		return nil, fmt.Errorf("%w: model must be 1..%d characters", apperr.ErrInvalidInput, maxNameLen)
	}
	return s.repo.CreateRight(ctx, r)
}

func (s *Service) ListRights(ctx context.Context, caller *User) ([]Right, error) {
	if err := s.access.CheckAccess(ctx, caller, ModelRight, OpRead, nil); err != nil {
		return nil, err
	}
	return s.repo.ListRights(ctx)
}

// GrantRight adds a right to a role. Changing a role's grants is a write on roles.
func (s *Service) GrantRight(ctx context.Context, caller *User, roleID, rightID int64) error {
	if err := s.access.CheckAccess(ctx, caller, ModelRole, OpWrite, nil); err != nil {
		return err
	}
	return s.repo.GrantRight(ctx, roleID, rightID)
}

// AssignRole gives a user a role. It is a write on roles, never an own-scoped
// user write, so users cannot grant themselves roles.
func (s *Service) AssignRole(ctx context.Context, caller *User, userID int64, roleName string) error {
	if err := s.access.CheckAccess(ctx, caller, ModelRole, OpWrite, nil); err != nil {
		return err
	}
	role, err := s.repo.RoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	if err := s.repo.AssignRoles(ctx, userID, role.ID); err != nil {
		return err
	}
	s.logger.Info("role assigned", "user_id", userID, "role", roleName, "by", caller.ID)
	return nil
}
