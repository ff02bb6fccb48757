package ads

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"adboard/internal/db"
)

type Repository interface {
	Create(ctx context.Context, ad *Advertisement) error
	Get(ctx context.Context, id int64) (*Advertisement, error)
	List(ctx context.Context, f Filter) ([]Advertisement, error)
	// Update overwrites title, description, and price of ad.ID.
	Update(ctx context.Context, ad *Advertisement) error
	Delete(ctx context.Context, id int64) error
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const adColumns = "id, title, description, price, created_at, author_id"

func scanAd(row interface{ Scan(...any) error }, ad *Advertisement) error {
	var desc sql.NullString
	if err := row.Scan(&ad.ID, &ad.Title, &desc, &ad.Price, &ad.CreatedAt, &ad.AuthorID); err != nil {
		return err
	}
	ad.Description = nil
	if desc.Valid {
		ad.Description = &desc.String
	}
	return nil
}

func (s *Store) Create(ctx context.Context, ad *Advertisement) error {
	const q = `
		INSERT INTO advertisement (title, description, price, created_at, author_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + adColumns
	row := s.db.QueryRowContext(ctx, q,
		ad.Title,
		ad.Description,
		ad.Price,
		time.Now().UTC(),
		ad.AuthorID,
	)
	if err := scanAd(row, ad); err != nil {
		return db.MapErr("create advertisement", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*Advertisement, error) {
	ad := &Advertisement{}
	row := s.db.QueryRowContext(ctx, "SELECT "+adColumns+" FROM advertisement WHERE id = $1", id)
	if err := scanAd(row, ad); err != nil {
		return nil, db.MapErr("get advertisement", err)
	}
	return ad, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) List(ctx context.Context, f Filter) ([]Advertisement, error) {
	clauses := []string{"1=1"}
	args := []any{}
	argIdx := 1

	if f.Title != "" {
		clauses = append(clauses, "title ILIKE '%' || $"+itoa(argIdx)+" || '%'")
		args = append(args, likeEscaper.Replace(f.Title))
		argIdx++
	}
	if f.MinPrice != nil {
		clauses = append(clauses, "price >= $"+itoa(argIdx))
		args = append(args, *f.MinPrice)
		argIdx++
	}
	if f.MaxPrice != nil {
		clauses = append(clauses, "price <= $"+itoa(argIdx))
		args = append(args, *f.MaxPrice)
		argIdx++
	}
	if f.AuthorID != 0 {
		clauses = append(clauses, "author_id = $"+itoa(argIdx))
		args = append(args, f.AuthorID)
		argIdx++
	}

	query := "SELECT " + adColumns + " FROM advertisement WHERE " +
		strings.Join(clauses, " AND ") + " ORDER BY created_at DESC, id DESC LIMIT " + itoa(f.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.MapErr("list advertisements", err)
	}
	defer rows.Close()

	result := []Advertisement{}
	for rows.Next() {
		var ad Advertisement
		if err := scanAd(rows, &ad); err != nil {
			return nil, db.MapErr("list advertisements", err)
		}
		result = append(result, ad)
	}
	if err := rows.Err(); err != nil {
		return nil, db.MapErr("list advertisements", err)
	}
	return result, nil
}

func (s *Store) Update(ctx context.Context, ad *Advertisement) error {
	const q = `UPDATE advertisement SET title = $2, description = $3, price = $4 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, ad.ID, ad.Title, ad.Description, ad.Price)
	if err != nil {
		return db.MapErr("update advertisement", err)
	}
	return db.RequireRow("update advertisement", res)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM advertisement WHERE id = $1`, id)
	if err != nil {
		return db.MapErr("delete advertisement", err)
	}
	return db.RequireRow("delete advertisement", res)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
