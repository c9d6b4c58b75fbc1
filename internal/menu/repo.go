package menu

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Catalog is the read-mostly menu reference table. Orders snapshot item
// fields at creation time, so catalog edits never touch existing orders.
type Catalog interface {
	ListAll(ctx context.Context) ([]Item, error)
	ListEnabled(ctx context.Context) ([]Item, error)
	Get(ctx context.Context, id string) (*Item, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (*Item, error)
}

type Repo struct{ DB *pgxpool.Pool }

var _ Catalog = (*Repo)(nil)

const itemColumns = `id, name, price, meal, enabled, description, image_url, created_at, updated_at`

func (r *Repo) ListAll(ctx context.Context) ([]Item, error) {
	return r.list(ctx, `SELECT `+itemColumns+` FROM menu_items ORDER BY meal, name`)
}

func (r *Repo) ListEnabled(ctx context.Context) ([]Item, error) {
	return r.list(ctx, `SELECT `+itemColumns+` FROM menu_items WHERE enabled ORDER BY meal, name`)
}

func (r *Repo) Get(ctx context.Context, id string) (*Item, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+itemColumns+` FROM menu_items WHERE id=$1`, id)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (r *Repo) SetEnabled(ctx context.Context, id string, enabled bool) (*Item, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE menu_items SET enabled=$2, updated_at=now()
		WHERE id=$1
		RETURNING `+itemColumns, id, enabled)
	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (r *Repo) list(ctx context.Context, sql string) ([]Item, error) {
	rows, err := r.DB.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Name, &it.Price, &it.Meal, &it.Enabled,
		&it.Description, &it.ImageURL, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}
