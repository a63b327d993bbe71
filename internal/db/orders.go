package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/realtime"
)

// Order numbers are five digits.
const (
	minOrderNumber = 10000
	maxOrderNumber = 99999
)

// ErrOrderNumbersExhausted indicates no free order number was found.
var ErrOrderNumbersExhausted = errors.New("no free order number")

const orderColumns = `
	id, order_number, owner_id, owner_name, document_ref, document_name, document_size,
	copies, color, duplex, finish, note, payment_status, payment_method, price,
	status, progress, verification_token, created_at, updated_at, paid_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (domain.Order, error) {
	var (
		o      domain.Order
		paidAt sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.OwnerID, &o.OwnerName, &o.DocumentRef, &o.DocumentName, &o.DocumentSize,
		&o.Options.Copies, &o.Options.Color, &o.Options.Duplex, &o.Options.Finish, &o.Options.Note,
		&o.PaymentStatus, &o.PaymentMethod, &o.Price,
		&o.Status, &o.Progress, &o.VerificationToken, &o.CreatedAt, &o.UpdatedAt, &paidAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		o.PaidAt = &t
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

// FetchOrders returns the orders matching filter, newest first.
func (db *DB) FetchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	query := `SELECT` + orderColumns + ` FROM orders`
	var args []any
	if filter.OwnerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}
	return orders, nil
}

// GetOrder returns an order by ID.
func (db *DB) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return getOrder(ctx, db.DB, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getOrder(ctx context.Context, q queryRower, id string) (domain.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("querying order: %w", err)
	}
	return o, nil
}

// InsertOrder stores a new order, assigning a free order number when none is
// set, and publishes a create.
func (db *DB) InsertOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	if o.ID == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = now
	if o.PaymentStatus == "" {
		o.PaymentStatus = domain.PaymentUnpaid
	}

	err := db.mutate(ctx, func(tx *sql.Tx) (*pending, error) {
		if o.Number == 0 {
			n, err := freeOrderNumber(ctx, tx)
			if err != nil {
				return nil, err
			}
			o.Number = n
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			o.ID, o.Number, o.OwnerID, o.OwnerName, o.DocumentRef, o.DocumentName, o.DocumentSize,
			o.Options.Copies, o.Options.Color, o.Options.Duplex, o.Options.Finish, o.Options.Note,
			o.PaymentStatus, o.PaymentMethod, o.Price,
			o.Status, o.Progress, o.VerificationToken, o.CreatedAt, o.UpdatedAt, nullTime(o.PaidAt),
		)
		if err != nil {
			return nil, fmt.Errorf("inserting order: %w", err)
		}
		return &pending{collection: realtime.CollectionOrders, kind: realtime.KindCreate, id: o.ID, record: o}, nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func freeOrderNumber(ctx context.Context, tx *sql.Tx) (int, error) {
	for i := 0; i < 50; i++ {
		n := minOrderNumber + rand.Intn(maxOrderNumber-minOrderNumber+1)
		taken, err := orderNumberTaken(ctx, tx, n)
		if err != nil {
			return 0, err
		}
		if !taken {
			return n, nil
		}
	}
	return 0, ErrOrderNumbersExhausted
}

// UpdateOrder applies patch and publishes an update. Payment never moves
// from paid back to unpaid.
func (db *DB) UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (domain.Order, error) {
	var updated domain.Order
	err := db.mutate(ctx, func(tx *sql.Tx) (*pending, error) {
		o, err := getOrder(ctx, tx, id)
		if err != nil {
			return nil, err
		}

		applyPatch(&o, patch)
		o.UpdatedAt = time.Now().UTC()

		_, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET status = ?, progress = ?,
				payment_status = CASE WHEN payment_status = 'paid' THEN 'paid' ELSE ? END,
				payment_method = ?, verification_token = ?, paid_at = ?, updated_at = ?
			WHERE id = ?
		`, o.Status, o.Progress, o.PaymentStatus, o.PaymentMethod, o.VerificationToken, nullTime(o.PaidAt), o.UpdatedAt, id)
		if err != nil {
			return nil, fmt.Errorf("updating order: %w", err)
		}

		updated = o
		return &pending{collection: realtime.CollectionOrders, kind: realtime.KindUpdate, id: id, record: o}, nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

func applyPatch(o *domain.Order, patch domain.OrderPatch) {
	if patch.Status != nil {
		o.Status = *patch.Status
	}
	if patch.Progress != nil {
		o.Progress = *patch.Progress
	}
	if patch.PaymentStatus != nil && !o.Paid() {
		o.PaymentStatus = *patch.PaymentStatus
	}
	if patch.PaymentMethod != nil {
		o.PaymentMethod = *patch.PaymentMethod
	}
	if patch.VerificationToken != nil {
		o.VerificationToken = *patch.VerificationToken
	}
	if patch.PaidAt != nil {
		t := patch.PaidAt.UTC()
		o.PaidAt = &t
	}
}

// DeleteOrder purges an order and publishes a delete.
func (db *DB) DeleteOrder(ctx context.Context, id string) error {
	return db.mutate(ctx, func(tx *sql.Tx) (*pending, error) {
		result, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
		if err != nil {
			return nil, fmt.Errorf("deleting order: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("checking rows affected: %w", err)
		}
		if rows == 0 {
			return nil, domain.ErrOrderNotFound
		}
		return &pending{collection: realtime.CollectionOrders, kind: realtime.KindDelete, id: id}, nil
	})
}

func orderNumberTaken(ctx context.Context, q queryRower, n int) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE order_number = ?)`, n).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking order number: %w", err)
	}
	return exists, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
