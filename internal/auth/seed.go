package auth

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"adboard/internal/apperr"
)

type Seed struct {
	Roles []SeedRole `yaml:"roles"`
	Users []SeedUser `yaml:"users"`
}

type SeedRole struct {
	Name   string      `yaml:"name"`
	Rights []SeedRight `yaml:"rights"`
}

type SeedRight struct {
	Model string `yaml:"model"`
	Write bool   `yaml:"write"`
	Read  bool   `yaml:"read"`
	// OnlyOwn defaults to true when omitted.
	OnlyOwn *bool `yaml:"only_own"`
}

func (r SeedRight) right() Right {
	onlyOwn := true
	if r.OnlyOwn != nil {
		onlyOwn = *r.OnlyOwn
	}
	return Right{Model: r.Model, Write: r.Write, Read: r.Read, OnlyOwn: onlyOwn}
}

type SeedUser struct {
	Name     string   `yaml:"name"`
	Password string   `yaml:"password"`
	Roles    []string `yaml:"roles"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return &s, nil
}

// ApplySeed makes the store contain every role, right, grant, and user in s.
// Existing users keep their password; it is safe to run on every start.
func ApplySeed(ctx context.Context, repo Repository, hasher Hasher, s *Seed) error {
	roleIDs := map[string]int64{}
	for _, sr := range s.Roles {
		if sr.Name == "" {
			continue
		}
		role, err := ensureRole(ctx, repo, sr.Name)
		if err != nil {
			return err
		}
		roleIDs[sr.Name] = role.ID
		for _, srr := range sr.Rights {
			if srr.Model == "" {
				continue
			}
			right, err := ensureRight(ctx, repo, srr.right())
			if err != nil {
				return err
			}
			if err := repo.GrantRight(ctx, role.ID, right.ID); err != nil {
				return err
			}
		}
	}
	for _, su := range s.Users {
		if su.Name == "" || su.Password == "" {
			continue
		}
		u, err := repo.UserByName(ctx, su.Name)
		if errors.Is(err, apperr.ErrNotFound) {
			digest, hashErr := hasher.Hash(su.Password)
			if hashErr != nil {
				return fmt.Errorf("seed user %s: %w", su.Name, hashErr)
			}
			u, err = repo.CreateUser(ctx, su.Name, digest)
		}
		if err != nil {
			return fmt.Errorf("seed user %s: %w", su.Name, err)
		}
		var ids []int64
		for _, name := range su.Roles {
			id, ok := roleIDs[name]
			if !ok {
				role, err := repo.RoleByName(ctx, name)
				if err != nil {
					return fmt.Errorf("seed user %s: role %s: %w", su.Name, name, err)
				}
				id = role.ID
				roleIDs[name] = id
			}
			ids = append(ids, id)
		}
		if err := repo.AssignRoles(ctx, u.ID, ids...); err != nil {
			return fmt.Errorf("seed user %s: %w", su.Name, err)
		}
	}
	return nil
}

func ensureRole(ctx context.Context, repo Repository, name string) (*Role, error) {
	role, err := repo.RoleByName(ctx, name)
	if !errors.Is(err, apperr.ErrNotFound) {
		return role, err
	}
	role, err = repo.CreateRole(ctx, name)
	if errors.Is(err, apperr.ErrConflict) {
		return repo.RoleByName(ctx, name)
	}
	return role, err
}

func ensureRight(ctx context.Context, repo Repository, r Right) (*Right, error) {
	right, err := repo.RightByTuple(ctx, r)
	if !errors.Is(err, apperr.ErrNotFound) {
		return right, err
	}
	right, err = repo.CreateRight(ctx, r)
	if errors.Is(err, apperr.ErrConflict) {
		return repo.RightByTuple(ctx, r)
	}
	return right, err
}
