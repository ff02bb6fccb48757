package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"adboard/internal/apperr"
)

// MemoryStore is an in-process Repository for tests and local development.
// Rights are resolved by walking user->roles and role->rights adjacency sets.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
	now   func() time.Time
}

type memoryState struct {
	nextID     int64
	users      map[int64]User
	roles      map[int64]Role
	rights     map[int64]Right
	userRoles  map[int64]map[int64]struct{}
	roleRights map[int64]map[int64]struct{}
	tokens     map[string]Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memoryState{
			users:      map[int64]User{},
			roles:      map[int64]Role{},
			rights:     map[int64]Right{},
			userRoles:  map[int64]map[int64]struct{}{},
			roleRights: map[int64]map[int64]struct{}{},
			tokens:     map[string]Token{},
		},
		now: time.Now,
	}
}

func (st memoryState) clone() memoryState {
	c := memoryState{
		nextID:     st.nextID,
		users:      make(map[int64]User, len(st.users)),
		roles:      make(map[int64]Role, len(st.roles)),
		rights:     make(map[int64]Right, len(st.rights)),
		userRoles:  make(map[int64]map[int64]struct{}, len(st.userRoles)),
		roleRights: make(map[int64]map[int64]struct{}, len(st.roleRights)),
		tokens:     make(map[string]Token, len(st.tokens)),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.roles {
		c.roles[k] = v
	}
	for k, v := range st.rights {
		c.rights[k] = v
	}
	for k, set := range st.userRoles {
		c.userRoles[k] = cloneSet(set)
	}
	for k, set := range st.roleRights {
		c.roleRights[k] = cloneSet(set)
	}
	for k, v := range st.tokens {
		c.tokens[k] = v
	}
	return c
}

func cloneSet(set map[int64]struct{}) map[int64]struct{} {
	c := make(map[int64]struct{}, len(set))
	for k := range set {
		c[k] = struct{}{}
	}
	return c
}

func sortedKeys(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// memoryTx operates on the state without locking. MemoryStore methods hold
// m.mu around a single call; WithinTx holds it for the whole of fn.
type memoryTx struct {
	st  *memoryState
	now func() time.Time
}

func (m *MemoryStore) tx() *memoryTx {
	return &memoryTx{st: &m.state, now: m.now}
}

// WithinTx runs fn with the store locked and restores the previous state when
// fn fails. fn must only use the repository it is given.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.state.clone()
	if err := fn(m.tx()); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, name, digest string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().CreateUser(ctx, name, digest)
}

func (m *MemoryStore) UserByName(ctx context.Context, name string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tx().UserByName(ctx, name)
}

func (m *MemoryStore) UserByID(ctx context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tx().UserByID(ctx, id)
}

func (m *MemoryStore) UpdatePassword(ctx context.Context, id int64, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().UpdatePassword(ctx, id, digest)
}

func (m *MemoryStore) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().DeleteUser(ctx, id)
}

func (m *MemoryStore) CreateRole(ctx context.Context, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().CreateRole(ctx, name)
}

func (m *MemoryStore) RoleByName(ctx context.Context, name string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tx().RoleByName(ctx, name)
}

func (m *MemoryStore) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tx().ListRoles(ctx)
}

func (m *MemoryStore) CreateRight(ctx context.Context, r Right) (*Right, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().CreateRight(ctx, r)
}

func (m *MemoryStore) RightByTuple(ctx context.Context, r Right) (*Right, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tx().RightByTuple(ctx, r)
}

func (m *MemoryStore) ListRights(ctx context.Context) ([]Right, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tx().ListRights(ctx)
}

func (m *MemoryStore) GrantRight(ctx context.Context, roleID, rightID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().GrantRight(ctx, roleID, rightID)
}

func (m *MemoryStore) AssignRoles(ctx context.Context, userID int64, roleIDs ...int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().AssignRoles(ctx, userID, roleIDs...)
}

func (m *MemoryStore) RightsForUser(ctx context.Context, userID int64) ([]Right, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tx().RightsForUser(ctx, userID)
}

func (m *MemoryStore) CreateToken(ctx context.Context, t *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().CreateToken(ctx, t)
}

func (m *MemoryStore) TokenByValue(ctx context.Context, value string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tx().TokenByValue(ctx, value)
}

func (m *MemoryStore) DeleteToken(ctx context.Context, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().DeleteToken(ctx, value)
}

func (m *MemoryStore) DeleteTokensCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx().DeleteTokensCreatedBefore(ctx, cutoff)
}

// WithinTx on an open transaction joins it.
func (m *memoryTx) WithinTx(ctx context.Context, fn func(Repository) error) error {
	return fn(m)
}

func (m *memoryTx) id() int64 {
	m.st.nextID++
	return m.st.nextID
}

func (m *memoryTx) CreateUser(ctx context.Context, name, digest string) (*User, error) {
	for _, u := range m.st.users {
		if u.Name == name {
			return nil, fmt.Errorf("create user %q: %w", name, apperr.ErrConflict)
		}
	}
	u := User{ID: m.id(), Name: name, PasswordDigest: digest, RegistrationTime: m.now().UTC()}
	m.st.users[u.ID] = u
	return &u, nil
}

func (m *memoryTx) UserByName(ctx context.Context, name string) (*User, error) {
	for _, u := range m.st.users {
		if u.Name == name {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("get user by name %q: %w", name, apperr.ErrNotFound)
}

func (m *memoryTx) UserByID(ctx context.Context, id int64) (*User, error) {
	u, ok := m.st.users[id]
	if !ok {
		return nil, fmt.Errorf("get user %d: %w", id, apperr.ErrNotFound)
	}
	u.Roles = []Role{}
	for _, roleID := range sortedKeys(m.st.userRoles[id]) {
		u.Roles = append(u.Roles, m.role(roleID))
	}
	return &u, nil
}

func (m *memoryTx) UpdatePassword(ctx context.Context, id int64, digest string) error {
	u, ok := m.st.users[id]
	if !ok {
		return fmt.Errorf("update password %d: %w", id, apperr.ErrNotFound)
	}
	u.PasswordDigest = digest
	m.st.users[id] = u
	return nil
}

func (m *memoryTx) DeleteUser(ctx context.Context, id int64) error {
	if _, ok := m.st.users[id]; !ok {
		return fmt.Errorf("delete user %d: %w", id, apperr.ErrNotFound)
	}
	delete(m.st.users, id)
	delete(m.st.userRoles, id)
	for value, t := range m.st.tokens {
		if t.UserID == id {
			delete(m.st.tokens, value)
		}
	}
	return nil
}

// role returns the role with its rights.
func (m *memoryTx) role(id int64) Role {
	r := m.st.roles[id]
	r.Rights = []Right{}
	for _, rightID := range sortedKeys(m.st.roleRights[id]) {
		r.Rights = append(r.Rights, m.st.rights[rightID])
	}
	return r
}

func (m *memoryTx) CreateRole(ctx context.Context, name string) (*Role, error) {
	for _, r := range m.st.roles {
		if r.Name == name {
			return nil, fmt.Errorf("create role %q: %w", name, apperr.ErrConflict)
		}
	}
	r := Role{ID: m.id(), Name: name}
	m.st.roles[r.ID] = r
	r.Rights = []Right{}
	return &r, nil
}

func (m *memoryTx) RoleByName(ctx context.Context, name string) (*Role, error) {
	for id, r := range m.st.roles {
		if r.Name == name {
			role := m.role(id)
			return &role, nil
		}
	}
	return nil, fmt.Errorf("get role %q: %w", name, apperr.ErrNotFound)
}

func (m *memoryTx) ListRoles(ctx context.Context) ([]Role, error) {
	ids := make(map[int64]struct{}, len(m.st.roles))
	for id := range m.st.roles {
		ids[id] = struct{}{}
	}
	roles := []Role{}
	for _, id := range sortedKeys(ids) {
		roles = append(roles, m.role(id))
	}
	return roles, nil
}

func (m *memoryTx) CreateRight(ctx context.Context, r Right) (*Right, error) {
	for _, existing := range m.st.rights {
		if existing.sameTuple(r) {
			return nil, fmt.Errorf("create right %+v: %w", r, apperr.ErrConflict)
		}
	}
	r.ID = m.id()
	m.st.rights[r.ID] = r
	return &r, nil
}

func (m *memoryTx) RightByTuple(ctx context.Context, r Right) (*Right, error) {
	for _, existing := range m.st.rights {
		if existing.sameTuple(r) {
			return &existing, nil
		}
	}
	return nil, fmt.Errorf("get right %+v: %w", r, apperr.ErrNotFound)
}

func (m *memoryTx) ListRights(ctx context.Context) ([]Right, error) {
	rights := make([]Right, 0, len(m.st.rights))
	for _, r := range m.st.rights {
		rights = append(rights, r)
	}
	sort.Slice(rights, func(i, j int) bool { return rights[i].ID < rights[j].ID })
	return rights, nil
}

func (m *memoryTx) GrantRight(ctx context.Context, roleID, rightID int64) error {
	if _, ok := m.st.roles[roleID]; !ok {
		return fmt.Errorf("grant right: role %d: %w", roleID, apperr.ErrNotFound)
	}
	if _, ok := m.st.rights[rightID]; !ok {
		return fmt.Errorf("grant right: right %d: %w", rightID, apperr.ErrNotFound)
	}
	if m.st.roleRights[roleID] == nil {
		m.st.roleRights[roleID] = map[int64]struct{}{}
	}
	m.st.roleRights[roleID][rightID] = struct{}{}
	return nil
}

func (m *memoryTx) AssignRoles(ctx context.Context, userID int64, roleIDs ...int64) error {
	if _, ok := m.st.users[userID]; !ok {
		return fmt.Errorf("assign roles: user %d: %w", userID, apperr.ErrNotFound)
	}
	for _, roleID := range roleIDs {
		if _, ok := m.st.roles[roleID]; !ok {
			return fmt.Errorf("assign roles: role %d: %w", roleID, apperr.ErrNotFound)
		}
	}
	if m.st.userRoles[userID] == nil {
		m.st.userRoles[userID] = map[int64]struct{}{}
	}
	for _, roleID := range roleIDs {
		m.st.userRoles[userID][roleID] = struct{}{}
	}
	return nil
}

func (m *memoryTx) RightsForUser(ctx context.Context, userID int64) ([]Right, error) {
	reachable := map[int64]struct{}{}
	for roleID := range m.st.userRoles[userID] {
		for rightID := range m.st.roleRights[roleID] {
			reachable[rightID] = struct{}{}
		}
	}
	rights := make([]Right, 0, len(reachable))
	for _, id := range sortedKeys(reachable) {
		rights = append(rights, m.st.rights[id])
	}
	return rights, nil
}

func (m *memoryTx) CreateToken(ctx context.Context, t *Token) error {
	if _, ok := m.st.users[t.UserID]; !ok {
		return fmt.Errorf("create token: user %d: %w", t.UserID, apperr.ErrNotFound)
	}
	if _, ok := m.st.tokens[t.Value]; ok {
		return fmt.Errorf("create token: %w", apperr.ErrConflict)
	}
	t.ID = m.id()
	m.st.tokens[t.Value] = *t
	return nil
}

func (m *memoryTx) TokenByValue(ctx context.Context, value string) (*Token, error) {
	t, ok := m.st.tokens[value]
	if !ok {
		return nil, fmt.Errorf("get token: %w", apperr.ErrNotFound)
	}
	return &t, nil
}

func (m *memoryTx) DeleteToken(ctx context.Context, value string) error {
	if _, ok := m.st.tokens[value]; !ok {
		return fmt.Errorf("delete token: %w", apperr.ErrNotFound)
	}
	delete(m.st.tokens, value)
	return nil
}

func (m *memoryTx) DeleteTokensCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for value, t := range m.st.tokens {
		if t.CreationTime.Before(cutoff) {
			delete(m.st.tokens, value)
			n++
		}
	}
	return n, nil
}
