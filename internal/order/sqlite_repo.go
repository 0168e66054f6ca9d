package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS orders (
  id                TEXT PRIMARY KEY,
  user_id           TEXT NOT NULL,
  shipping_address  TEXT NOT NULL,
  payment_method    TEXT NOT NULL,
  payment_result    TEXT,
  intent_txn_id     TEXT,
  intent_started_at INTEGER,
  total_price       TEXT NOT NULL,
  is_paid           INTEGER NOT NULL DEFAULT 0,
  paid_at           INTEGER,
  is_delivered      INTEGER NOT NULL DEFAULT 0,
  delivered_at      INTEGER,
  idempotency_key   TEXT,
  version           INTEGER NOT NULL DEFAULT 1,
  created_at        INTEGER NOT NULL,
  updated_at        INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS orders_user_idem_key ON orders (user_id, idempotency_key) WHERE idempotency_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS orders_user_created ON orders (user_id, created_at);
CREATE TABLE IF NOT EXISTS order_items (
  order_id   TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  position   INTEGER NOT NULL,
  product_id TEXT NOT NULL,
  name       TEXT NOT NULL,
  quantity   INTEGER NOT NULL CHECK (quantity >= 1),
  unit_price TEXT NOT NULL,
  image      TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (order_id, position)
);
`

// SQLiteRepo is the embedded store used for single-node deployments and tests.
// Timestamps are stored as unix nanoseconds so range filters compare numerically.
type SQLiteRepo struct{ db *sql.DB }

func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}
	return &SQLiteRepo{db: db}, nil
}

func (r *SQLiteRepo) Close() error { return r.db.Close() }

const sqliteOrderCols = `id,user_id,shipping_address,payment_method,payment_result,intent_txn_id,intent_started_at,
  total_price,is_paid,paid_at,is_delivered,delivered_at,COALESCE(idempotency_key,''),version,created_at,updated_at`

func (r *SQLiteRepo) Create(ctx context.Context, o *Order) error {
	addr, pay, err := encodeOrderJSON(o)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	txnID, startedAt := sqliteIntent(o)
	if _, err := tx.ExecContext(ctx, `
    INSERT INTO orders (id,user_id,shipping_address,payment_method,payment_result,intent_txn_id,intent_started_at,
      total_price,is_paid,paid_at,is_delivered,delivered_at,idempotency_key,version,created_at,updated_at)
    VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
  `, o.ID, o.UserID, string(addr), string(o.PaymentMethod), nullText(pay), txnID, startedAt,
		o.TotalPrice.String(), o.IsPaid, nanos(o.PaidAt), o.IsDelivered, nanos(o.DeliveredAt),
		nullIfEmpty(o.IdempotencyKey), o.Version, o.CreatedAt.UnixNano(), o.UpdatedAt.UnixNano()); err != nil {
		if isIdempotencyConflict(err) {
			return ErrDuplicateKey
		}
		return err
	}
	for i, it := range o.Items {
		if _, err := tx.ExecContext(ctx, `
      INSERT INTO order_items (order_id,position,product_id,name,quantity,unit_price,image)
      VALUES (?,?,?,?,?,?,?)
    `, o.ID, i, it.ProductID, it.Name, it.Quantity, it.UnitPrice.String(), it.Image); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// isIdempotencyConflict matches only the orders_user_idem_key index. Primary key
// collisions carry SQLITE_CONSTRAINT_PRIMARYKEY and surface unchanged.
func isIdempotencyConflict(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) || se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return false
	}
	return strings.Contains(se.Error(), "orders.idempotency_key")
}

func (r *SQLiteRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	return r.one(ctx, `SELECT `+sqliteOrderCols+` FROM orders WHERE id=?`, id)
}

func (r *SQLiteRepo) FindByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error) {
	return r.one(ctx, `SELECT `+sqliteOrderCols+` FROM orders WHERE user_id=? AND idempotency_key=?`, userID, key)
}

func (r *SQLiteRepo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return r.list(ctx, `SELECT `+sqliteOrderCols+` FROM orders WHERE user_id=? ORDER BY created_at DESC`, userID)
}

func (r *SQLiteRepo) ListAll(ctx context.Context) ([]Order, error) {
	return r.list(ctx, `SELECT `+sqliteOrderCols+` FROM orders ORDER BY created_at DESC`)
}

func (r *SQLiteRepo) ListPendingPayments(ctx context.Context, startedBefore time.Time) ([]Order, error) {
	return r.list(ctx, `SELECT `+sqliteOrderCols+` FROM orders
    WHERE is_paid = 0 AND intent_txn_id IS NOT NULL AND intent_started_at < ?
    ORDER BY intent_started_at`, startedBefore.UnixNano())
}

func (r *SQLiteRepo) Update(ctx context.Context, o *Order, prevVersion int) error {
	_, pay, err := encodeOrderJSON(o)
	if err != nil {
		return err
	}
	txnID, startedAt := sqliteIntent(o)
	res, err := r.db.ExecContext(ctx, `
    UPDATE orders
    SET payment_result=?, intent_txn_id=?, intent_started_at=?, is_paid=?, paid_at=?,
        is_delivered=?, delivered_at=?, version=?, updated_at=?
    WHERE id=? AND version=?
  `, nullText(pay), txnID, startedAt, o.IsPaid, nanos(o.PaidAt),
		o.IsDelivered, nanos(o.DeliveredAt), o.Version, o.UpdatedAt.UnixNano(), o.ID, prevVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var one int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id=?`, o.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (r *SQLiteRepo) one(ctx context.Context, query string, args ...any) (*Order, error) {
	list, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

func (r *SQLiteRepo) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []Order
	for rows.Next() {
		o, err := scanSQLiteOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, *o)
	}
	// the pool holds a single connection, so rows must be released before
	// items are queried
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Items, err = r.items(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *SQLiteRepo) items(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, `
    SELECT product_id,name,quantity,unit_price,image
    FROM order_items WHERE order_id=? ORDER BY position
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var (
			it    Item
			price string
		)
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &price, &it.Image); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("order %s: bad unit price %q: %w", orderID, price, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanSQLiteOrder(rows *sql.Rows) (*Order, error) {
	var (
		o                         Order
		addr, method, total       string
		pay, txnID                sql.NullString
		intentAt, paidAt, delivAt sql.NullInt64
		createdAt, updatedAt      int64
	)
	if err := rows.Scan(&o.ID, &o.UserID, &addr, &method, &pay, &txnID, &intentAt,
		&total, &o.IsPaid, &paidAt, &o.IsDelivered, &delivAt, &o.IdempotencyKey,
		&o.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	o.PaymentMethod = PaymentMethod(method)
	var err error
	if o.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("order %s: bad total %q: %w", o.ID, total, err)
	}
	var payJSON []byte
	if pay.Valid {
		payJSON = []byte(pay.String)
	}
	if err := decodeOrderJSON(&o, []byte(addr), payJSON); err != nil {
		return nil, err
	}
	o.PaidAt = fromNanos(paidAt)
	o.DeliveredAt = fromNanos(delivAt)
	o.CreatedAt = time.Unix(0, createdAt).UTC()
	o.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if txnID.Valid && intentAt.Valid {
		o.Intent = &PaymentIntent{Method: o.PaymentMethod, TransactionID: txnID.String, StartedAt: time.Unix(0, intentAt.Int64).UTC()}
	}
	return &o, nil
}

func sqliteIntent(o *Order) (txnID, startedAt any) {
	if o.Intent == nil {
		return nil, nil
	}
	return o.Intent.TransactionID, o.Intent.StartedAt.UnixNano()
}

func nanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func nullText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
