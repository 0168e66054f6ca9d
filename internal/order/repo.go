package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists orders. Update stores o only while the stored version
// still equals prevVersion and returns ErrConflict otherwise.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	ListPendingPayments(ctx context.Context, startedBefore time.Time) ([]Order, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	Update(ctx context.Context, o *Order, prevVersion int) error
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS orders (
  id                TEXT PRIMARY KEY,
  user_id           TEXT NOT NULL,
  shipping_address  JSONB NOT NULL,
  payment_method    TEXT NOT NULL,
  payment_result    JSONB,
  intent_txn_id     TEXT,
  intent_started_at TIMESTAMPTZ,
  total_price       NUMERIC(14,2) NOT NULL CHECK (total_price >= 0),
  is_paid           BOOLEAN NOT NULL DEFAULT FALSE,
  paid_at           TIMESTAMPTZ,
  is_delivered      BOOLEAN NOT NULL DEFAULT FALSE,
  delivered_at      TIMESTAMPTZ,
  idempotency_key   TEXT,
  version           INT NOT NULL DEFAULT 1,
  created_at        TIMESTAMPTZ NOT NULL,
  updated_at        TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS orders_user_idem_key ON orders (user_id, idempotency_key) WHERE idempotency_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS orders_user_created ON orders (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS orders_pending ON orders (intent_started_at) WHERE is_paid = FALSE AND intent_txn_id IS NOT NULL;
CREATE TABLE IF NOT EXISTS order_items (
  order_id   TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  position   INT NOT NULL,
  product_id TEXT NOT NULL,
  name       TEXT NOT NULL,
  quantity   INT NOT NULL CHECK (quantity >= 1),
  unit_price NUMERIC(14,2) NOT NULL CHECK (unit_price >= 0),
  image      TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (order_id, position)
);
`

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, pgSchema)
	return err
}

const pgOrderCols = `id,user_id,shipping_address,payment_method,payment_result,intent_txn_id,intent_started_at,
  total_price::text,is_paid,paid_at,is_delivered,delivered_at,COALESCE(idempotency_key,''),version,created_at,updated_at`

func (r *PGRepo) Create(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	addr, pay, err := encodeOrderJSON(o)
	if err != nil {
		return err
	}
	txnID, startedAt := intentCols(o)

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
    INSERT INTO orders (id,user_id,shipping_address,payment_method,payment_result,intent_txn_id,intent_started_at,
      total_price,is_paid,paid_at,is_delivered,delivered_at,idempotency_key,version,created_at,updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8::numeric,$9,$10,$11,$12,$13,$14,$15,$16)
  `, o.ID, o.UserID, addr, string(o.PaymentMethod), pay, txnID, startedAt,
		o.TotalPrice.String(), o.IsPaid, o.PaidAt, o.IsDelivered, o.DeliveredAt,
		nullIfEmpty(o.IdempotencyKey), o.Version, o.CreatedAt, o.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}

	for i, it := range o.Items {
		if _, err := tx.Exec(ctx, `
      INSERT INTO order_items (order_id,position,product_id,name,quantity,unit_price,image)
      VALUES ($1,$2,$3,$4,$5,$6::numeric,$7)
    `, o.ID, i, it.ProductID, it.Name, it.Quantity, it.UnitPrice.String(), it.Image); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := scanPGOrder(r.db.QueryRow(ctx, `SELECT `+pgOrderCols+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PGRepo) FindByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	o, err := scanPGOrder(r.db.QueryRow(ctx,
		`SELECT `+pgOrderCols+` FROM orders WHERE user_id=$1 AND idempotency_key=$2`, userID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return r.list(ctx, `SELECT `+pgOrderCols+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *PGRepo) ListAll(ctx context.Context) ([]Order, error) {
	return r.list(ctx, `SELECT `+pgOrderCols+` FROM orders ORDER BY created_at DESC`)
}

func (r *PGRepo) ListPendingPayments(ctx context.Context, startedBefore time.Time) ([]Order, error) {
	return r.list(ctx, `SELECT `+pgOrderCols+` FROM orders
    WHERE is_paid = FALSE AND intent_txn_id IS NOT NULL AND intent_started_at < $1
    ORDER BY intent_started_at`, startedBefore)
}

func (r *PGRepo) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ptrs []*Order
	for rows.Next() {
		o, err := scanPGOrder(rows)
		if err != nil {
			return nil, err
		}
		ptrs = append(ptrs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, ptrs); err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(ptrs))
	for _, o := range ptrs {
		out = append(out, *o)
	}
	return out, nil
}

func (r *PGRepo) attachItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}
	rows, err := r.db.Query(ctx, `
    SELECT order_id,product_id,name,quantity,unit_price::text,image
    FROM order_items WHERE order_id = ANY($1)
    ORDER BY order_id, position
  `, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID, price string
			it             Item
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.Quantity, &price, &it.Image); err != nil {
			return err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("order %s: bad unit price %q: %w", orderID, price, err)
		}
		if o := byID[orderID]; o != nil {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func (r *PGRepo) Update(ctx context.Context, o *Order, prevVersion int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, pay, err := encodeOrderJSON(o)
	if err != nil {
		return err
	}
	txnID, startedAt := intentCols(o)

	tag, err := r.db.Exec(ctx, `
    UPDATE orders
    SET payment_result=$3, intent_txn_id=$4, intent_started_at=$5, is_paid=$6, paid_at=$7,
        is_delivered=$8, delivered_at=$9, version=$10, updated_at=$11
    WHERE id=$1 AND version=$2
  `, o.ID, prevVersion, pay, txnID, startedAt, o.IsPaid, o.PaidAt,
		o.IsDelivered, o.DeliveredAt, o.Version, o.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func scanPGOrder(row pgx.Row) (*Order, error) {
	var (
		o               Order
		addr, pay       []byte
		method, total   string
		txnID           *string
		intentStartedAt *time.Time
	)
	if err := row.Scan(&o.ID, &o.UserID, &addr, &method, &pay, &txnID, &intentStartedAt,
		&total, &o.IsPaid, &o.PaidAt, &o.IsDelivered, &o.DeliveredAt, &o.IdempotencyKey,
		&o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.PaymentMethod = PaymentMethod(method)
	var err error
	if o.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("order %s: bad total %q: %w", o.ID, total, err)
	}
	if err := decodeOrderJSON(&o, addr, pay); err != nil {
		return nil, err
	}
	if txnID != nil && intentStartedAt != nil {
		o.Intent = &PaymentIntent{Method: o.PaymentMethod, TransactionID: *txnID, StartedAt: intentStartedAt.UTC()}
	}
	return &o, nil
}

// encodeOrderJSON returns the shipping address and payment result as JSON.
// pay is nil for an unpaid order.
func encodeOrderJSON(o *Order) (addr, pay []byte, err error) {
	if addr, err = json.Marshal(o.ShippingAddress); err != nil {
		return nil, nil, err
	}
	if rec := RecordOf(o.Payment); rec != nil {
		if pay, err = json.Marshal(rec); err != nil {
			return nil, nil, err
		}
	}
	return addr, pay, nil
}

func decodeOrderJSON(o *Order, addr, pay []byte) error {
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return fmt.Errorf("order %s: shipping address: %w", o.ID, err)
	}
	if len(pay) == 0 {
		return nil
	}
	var rec PaymentRecord
	if err := json.Unmarshal(pay, &rec); err != nil {
		return fmt.Errorf("order %s: payment result: %w", o.ID, err)
	}
	res, err := rec.Result()
	if err != nil {
		return fmt.Errorf("order %s: %w", o.ID, err)
	}
	o.Payment = res
	return nil
}

func intentCols(o *Order) (txnID *string, startedAt *time.Time) {
	if o.Intent == nil {
		return nil, nil
	}
	id, at := o.Intent.TransactionID, o.Intent.StartedAt
	return &id, &at
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
