package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistence contract of the order lifecycle. Repo implements
// it on Postgres; tests substitute a fake.
type Store interface {
	Insert(ctx context.Context, o *Order, clientKey string) error
	FindByClientKey(ctx context.Context, key string) (*Order, error)
	Get(ctx context.Context, id string) (*Order, error)
	ListByStatus(ctx context.Context, s Status) ([]*Order, error)
	Transition(ctx context.Context, id string, from, to Status) (*Order, error)
	Archive(ctx context.Context, id string) (*Order, error)
	History(ctx context.Context, day time.Time) ([]*Order, error)
}

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

const orderColumns = `id, customer_name, location, mobile, total, status, created_at, accepted_at, delivered_at`

// Insert writes a new pending order and its line-item snapshot. The id and
// created_at are assigned here, never by the caller.
func (r *Repo) Insert(ctx context.Context, o *Order, clientKey string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o.ID = uuid.NewString()
	o.Status = StatusPending

	var key any
	if clientKey != "" {
		key = clientKey
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, client_key, customer_name, location, mobile, total, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING created_at`,
		o.ID, key, o.CustomerName, o.Location, o.Mobile, o.Total,
	).Scan(&o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("%w: %s", ErrDuplicateKey, clientKey)
		}
		return err
	}

	for itemID, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, item_id, name, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5)`,
			o.ID, itemID, it.Name, it.UnitPrice, it.Quantity,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *Repo) FindByClientKey(ctx context.Context, key string) (*Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE client_key=$1`, key)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ListByStatus returns the live orders in a state, most recent first.
func (r *Repo) ListByStatus(ctx context.Context, s Status) ([]*Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status=$1 ORDER BY created_at DESC`, string(s))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range out {
		if err := r.loadItems(ctx, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Transition applies one forward step with a conditional update: the row
// only changes if it still holds the expected prior status, which closes the
// read-modify-write window between concurrent admins. The matching
// timestamp column is set exactly once, server-side.
func (r *Repo) Transition(ctx context.Context, id string, from, to Status) (*Order, error) {
	var stampCol string
	switch to {
	case StatusAccepted:
		stampCol = "accepted_at"
	case StatusDelivered:
		stampCol = "delivered_at"
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, to)
	}

	row := r.DB.QueryRow(ctx, `
		UPDATE orders SET status=$1, `+stampCol+`=now()
		WHERE id=$2 AND status=$3
		RETURNING `+orderColumns, string(to), id, string(from))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the conditional: either the order is gone or someone else
		// moved it first.
		var cur string
		qerr := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, id).Scan(&cur)
		if errors.Is(qerr, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if qerr != nil {
			return nil, qerr
		}
		return nil, fmt.Errorf("%w: %s -> %s (order is %s)", ErrInvalidTransition, from, to, cur)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Archive moves a delivered order into the date-keyed history partition and
// removes it from the live set, in one transaction. The insert precedes the
// delete so a failure can only ever leave the order duplicated, never lost.
func (r *Repo) Archive(ctx context.Context, id string) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !o.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, o.Status)
	}
	if err := r.loadItemsTx(ctx, tx, o); err != nil {
		return nil, err
	}

	record, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_history(submission_date, order_id, record)
		VALUES ($1, $2, $3)
		ON CONFLICT (submission_date, order_id) DO NOTHING`,
		o.CreatedAt, o.ID, record,
	); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, o.ID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, o.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

// History returns the archived orders of one submission date, most recent
// first. Records are stored verbatim at archival time.
func (r *Repo) History(ctx context.Context, day time.Time) ([]*Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT record FROM order_history
		WHERE submission_date=$1
		ORDER BY (record->>'created_at') DESC`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var o Order
		if err := json.Unmarshal(record, &o); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (r *Repo) loadItems(ctx context.Context, o *Order) error {
	rows, err := r.DB.Query(ctx, `
		SELECT item_id, name, unit_price, quantity FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return err
	}
	return scanItems(rows, o)
}

func (r *Repo) loadItemsTx(ctx context.Context, tx pgx.Tx, o *Order) error {
	rows, err := tx.Query(ctx, `
		SELECT item_id, name, unit_price, quantity FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return err
	}
	return scanItems(rows, o)
}

func scanItems(rows pgx.Rows, o *Order) error {
	defer rows.Close()
	o.Items = map[string]LineItem{}
	for rows.Next() {
		var itemID string
		var it LineItem
		if err := rows.Scan(&itemID, &it.Name, &it.UnitPrice, &it.Quantity); err != nil {
			return err
		}
		o.Items[itemID] = it
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.CustomerName, &o.Location, &o.Mobile, &o.Total,
		&status, &o.CreatedAt, &o.AcceptedAt, &o.DeliveredAt)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	return &o, nil
}
