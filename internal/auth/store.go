package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"adboard/internal/apperr"
	"adboard/internal/db"
)

// Store is the Postgres Repository.
type Store struct {
	db *sql.DB
	q  db.Querier
}

func NewStore(conn *sql.DB) *Store {
	return &Store{db: conn, q: conn}
}

func (s *Store) WithinTx(ctx context.Context, fn func(Repository) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&Store{db: s.db, q: tx})
	})
}

func (s *Store) CreateUser(ctx context.Context, name, digest string) (*User, error) {
	const q = `
		INSERT INTO app_user (name, password_digest, registration_time)
		VALUES ($1, $2, $3)
		RETURNING id, name, password_digest, registration_time
	`
	u := &User{}
	if err := s.q.QueryRowContext(ctx, q, name, digest, time.Now().UTC()).
		Scan(&u.ID, &u.Name, &u.PasswordDigest, &u.RegistrationTime); err != nil {
		return nil, db.MapErr("create user", err)
	}
	return u, nil
}

func (s *Store) UserByName(ctx context.Context, name string) (*User, error) {
	const q = `SELECT id, name, password_digest, registration_time FROM app_user WHERE name = $1`
	u := &User{}
	if err := s.q.QueryRowContext(ctx, q, name).
		Scan(&u.ID, &u.Name, &u.PasswordDigest, &u.RegistrationTime); err != nil {
		return nil, db.MapErr("get user by name", err)
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	const q = `SELECT id, name, password_digest, registration_time FROM app_user WHERE id = $1`
	u := &User{}
	if err := s.q.QueryRowContext(ctx, q, id).
		Scan(&u.ID, &u.Name, &u.PasswordDigest, &u.RegistrationTime); err != nil {
		return nil, db.MapErr("get user", err)
	}
	const rolesQ = `
		SELECT r.id, r.name, ar.id, ar.model, ar.write, ar.read, ar.only_own
		FROM user_role ur
		JOIN role r ON r.id = ur.role_id
		LEFT JOIN role_right rr ON rr.role_id = r.id
		LEFT JOIN access_right ar ON ar.id = rr.right_id
		WHERE ur.user_id = $1
		ORDER BY r.id, ar.id
	`
	rows, err := s.q.QueryContext(ctx, rolesQ, id)
	if err != nil {
		return nil, db.MapErr("load user roles", err)
	}
	roles, err := scanRolesWithRights(rows)
	if err != nil {
		return nil, db.MapErr("load user roles", err)
	}
	u.Roles = roles
	return u, nil
}

// scanRolesWithRights folds (role, right) rows ordered by role id into roles.
// Rights columns are NULL for roles without rights.
func scanRolesWithRights(rows *sql.Rows) ([]Role, error) {
	defer rows.Close()
	roles := []Role{}
	for rows.Next() {
		var (
			roleID               int64
			roleName             string
			rightID              sql.NullInt64
			model                sql.NullString
			write, read, onlyOwn sql.NullBool
		)
		if err := rows.Scan(&roleID, &roleName, &rightID, &model, &write, &read, &onlyOwn); err != nil {
			return nil, err
		}
		if len(roles) == 0 || roles[len(roles)-1].ID != roleID {
			roles = append(roles, Role{ID: roleID, Name: roleName, Rights: []Right{}})
		}
		if rightID.Valid {
			last := &roles[len(roles)-1]
			last.Rights = append(last.Rights, Right{
				ID:      rightID.Int64,
				Model:   model.String,
				Write:   write.Bool,
				Read:    read.Bool,
				OnlyOwn: onlyOwn.Bool,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) UpdatePassword(ctx context.Context, id int64, digest string) error {
	const q = `UPDATE app_user SET password_digest = $1 WHERE id = $2`
	res, err := s.q.ExecContext(ctx, q, digest, id)
	if err != nil {
		return db.MapErr("update password", err)
	}
	return db.RequireRow("update password", res)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM app_user WHERE id = $1`, id)
	if err != nil {
		return db.MapErr("delete user", err)
	}
	return db.RequireRow("delete user", res)
}

func (s *Store) CreateRole(ctx context.Context, name string) (*Role, error) {
	r := &Role{Rights: []Right{}}
	if err := s.q.QueryRowContext(ctx, `INSERT INTO role (name) VALUES ($1) RETURNING id, name`, name).
		Scan(&r.ID, &r.Name); err != nil {
		return nil, db.MapErr("create role", err)
	}
	return r, nil
}

func (s *Store) RoleByName(ctx context.Context, name string) (*Role, error) {
	const q = `
		SELECT r.id, r.name, ar.id, ar.model, ar.write, ar.read, ar.only_own
		FROM role r
		LEFT JOIN role_right rr ON rr.role_id = r.id
		LEFT JOIN access_right ar ON ar.id = rr.right_id
		WHERE r.name = $1
		ORDER BY r.id, ar.id
	`
	rows, err := s.q.QueryContext(ctx, q, name)
	if err != nil {
		return nil, db.MapErr("get role", err)
	}
	roles, err := scanRolesWithRights(rows)
	if err != nil {
		return nil, db.MapErr("get role", err)
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("get role %q: %w", name, apperr.ErrNotFound)
	}
	return &roles[0], nil
}

func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	const q = `
		SELECT r.id, r.name, ar.id, ar.model, ar.write, ar.read, ar.only_own
		FROM role r
		LEFT JOIN role_right rr ON rr.role_id = r.id
		LEFT JOIN access_right ar ON ar.id = rr.right_id
		ORDER BY r.id, ar.id
	`
	rows, err := s.q.QueryContext(ctx, q)
	if err != nil {
		return nil, db.MapErr("list roles", err)
	}
	roles, err := scanRolesWithRights(rows)
	if err != nil {
		return nil, db.MapErr("list roles", err)
	}
	return roles, nil
}

func (s *Store) CreateRight(ctx context.Context, r Right) (*Right, error) {
	const q = `
		INSERT INTO access_right (model, write, read, only_own)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := s.q.QueryRowContext(ctx, q, r.Model, r.Write, r.Read, r.OnlyOwn).Scan(&r.ID); err != nil {
		return nil, db.MapErr("create right", err)
	}
	return &r, nil
}

func (s *Store) RightByTuple(ctx context.Context, r Right) (*Right, error) {
	const q = `
		SELECT id FROM access_right
		WHERE model = $1 AND write = $2 AND read = $3 AND only_own = $4
	`
	if err := s.q.QueryRowContext(ctx, q, r.Model, r.Write, r.Read, r.OnlyOwn).Scan(&r.ID); err != nil {
		return nil, db.MapErr("get right", err)
	}
	return &r, nil
}

func (s *Store) ListRights(ctx context.Context) ([]Right, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, model, write, read, only_own FROM access_right ORDER BY id`)
	if err != nil {
		return nil, db.MapErr("list rights", err)
	}
	rights, err := scanRights(rows)
	if err != nil {
		return nil, db.MapErr("list rights", err)
	}
	return rights, nil
}

func scanRights(rows *sql.Rows) ([]Right, error) {
	defer rows.Close()
	rights := []Right{}
	for rows.Next() {
		var r Right
		if err := rows.Scan(&r.ID, &r.Model, &r.Write, &r.Read, &r.OnlyOwn); err != nil {
			return nil, err
		}
		rights = append(rights, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rights, nil
}

func (s *Store) GrantRight(ctx context.Context, roleID, rightID int64) error {
	const q = `
		INSERT INTO role_right (role_id, right_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := s.q.ExecContext(ctx, q, roleID, rightID); err != nil {
		return db.MapErr("grant right", err)
	}
	return nil
}

func (s *Store) AssignRoles(ctx context.Context, userID int64, roleIDs ...int64) error {
	if len(roleIDs) == 0 {
		return nil
	}
	const q = `
		INSERT INTO user_role (user_id, role_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`
	if _, err := s.q.ExecContext(ctx, q, userID, pq.Array(roleIDs)); err != nil {
		return db.MapErr("assign roles", err)
	}
	return nil
}

// RightsForUser joins user_role, role_right and access_right. It is read
// fresh on every call.
func (s *Store) RightsForUser(ctx context.Context, userID int64) ([]Right, error) {
	const q = `
		SELECT DISTINCT ar.id, ar.model, ar.write, ar.read, ar.only_own
		FROM user_role ur
		JOIN role_right rr ON rr.role_id = ur.role_id
		JOIN access_right ar ON ar.id = rr.right_id
		WHERE ur.user_id = $1
		ORDER BY ar.id
	`
	rows, err := s.q.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, db.MapErr("rights for user", err)
	}
	rights, err := scanRights(rows)
	if err != nil {
		return nil, db.MapErr("rights for user", err)
	}
	return rights, nil
}

func (s *Store) CreateToken(ctx context.Context, t *Token) error {
	const q = `
		INSERT INTO token (token, user_id, creation_time)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	if err := s.q.QueryRowContext(ctx, q, t.Value, t.UserID, t.CreationTime).Scan(&t.ID); err != nil {
		return db.MapErr("create token", err)
	}
	return nil
}

func (s *Store) TokenByValue(ctx context.Context, value string) (*Token, error) {
	const q = `SELECT id, token, user_id, creation_time FROM token WHERE token = $1`
	t := &Token{}
	if err := s.q.QueryRowContext(ctx, q, value).Scan(&t.ID, &t.Value, &t.UserID, &t.CreationTime); err != nil {
		return nil, db.MapErr("get token", err)
	}
	return t, nil
}

func (s *Store) DeleteToken(ctx context.Context, value string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM token WHERE token = $1`, value)
	if err != nil {
		return db.MapErr("delete token", err)
	}
	return db.RequireRow("delete token", res)
}

func (s *Store) DeleteTokensCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM token WHERE creation_time < $1`, cutoff)
	if err != nil {
		return 0, db.MapErr("sweep tokens", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep tokens: %w", err)
	}
	return n, nil
}
