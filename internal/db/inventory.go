package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/realtime"
)

func scanItem(row scanner) (domain.InventoryItem, error) {
	var it domain.InventoryItem
	if err := row.Scan(&it.ID, &it.Name, &it.Category, &it.Quantity, &it.Status, &it.LastModified); err != nil {
		return domain.InventoryItem{}, err
	}
	it.LastModified = it.LastModified.UTC()
	return it, nil
}

// FetchInventory returns every stock item ordered by name.
func (db *DB) FetchInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, category, quantity, status, last_modified
		FROM inventory ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying inventory: %w", err)
	}
	defer rows.Close()

	var items []domain.InventoryItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning inventory item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating inventory: %w", err)
	}
	return items, nil
}

// GetItem returns a stock item by ID.
func (db *DB) GetItem(ctx context.Context, id string) (domain.InventoryItem, error) {
	return getItem(ctx, db.DB, id)
}

func getItem(ctx context.Context, q queryRower, id string) (domain.InventoryItem, error) {
	it, err := scanItem(q.QueryRowContext(ctx, `
		SELECT id, name, category, quantity, status, last_modified
		FROM inventory WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InventoryItem{}, domain.ErrItemNotFound
	}
	if err != nil {
		return domain.InventoryItem{}, fmt.Errorf("querying inventory item: %w", err)
	}
	return it, nil
}

// InsertItem creates a stock item with derived status and publishes a create.
func (db *DB) InsertItem(ctx context.Context, it domain.InventoryItem) (domain.InventoryItem, error) {
	if strings.TrimSpace(it.Name) == "" {
		return domain.InventoryItem{}, fmt.Errorf("%w: name is required", domain.ErrInvalidItem)
	}
	if it.Quantity < 0 {
		return domain.InventoryItem{}, fmt.Errorf("%w: quantity must be non-negative", domain.ErrInvalidItem)
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.Category == "" {
		it.Category = domain.CategoryOther
	}
	it.Status = domain.StockStatusFor(it.Quantity)
	it.LastModified = time.Now().UTC()

	err := db.mutate(ctx, func(tx *sql.Tx) (*pending, error) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory (id, name, category, quantity, status, last_modified)
			VALUES (?, ?, ?, ?, ?, ?)
		`, it.ID, it.Name, it.Category, it.Quantity, it.Status, it.LastModified)
		if err != nil {
			return nil, fmt.Errorf("inserting inventory item: %w", err)
		}
		return &pending{collection: realtime.CollectionInventory, kind: realtime.KindCreate, id: it.ID, record: it}, nil
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return it, nil
}

// UpdateItem applies fields, recomputes status and publishes an update.
func (db *DB) UpdateItem(ctx context.Context, id string, fields domain.ItemFields) (domain.InventoryItem, error) {
	if err := fields.Validate(); err != nil {
		return domain.InventoryItem{}, err
	}
	return db.modifyItem(ctx, id, func(it *domain.InventoryItem) {
		if fields.Name != nil {
			it.Name = strings.TrimSpace(*fields.Name)
		}
		if fields.Category != nil {
			it.Category = *fields.Category
		}
		if fields.Quantity != nil {
			it.Quantity = *fields.Quantity
		}
	})
}

// AdjustItemQuantity adds delta to the quantity, clamping at zero.
func (db *DB) AdjustItemQuantity(ctx context.Context, id string, delta int) (domain.InventoryItem, error) {
	return db.modifyItem(ctx, id, func(it *domain.InventoryItem) {
		it.Quantity = max(it.Quantity+delta, 0)
	})
}

func (db *DB) modifyItem(ctx context.Context, id string, change func(*domain.InventoryItem)) (domain.InventoryItem, error) {
	var updated domain.InventoryItem
	err := db.mutate(ctx, func(tx *sql.Tx) (*pending, error) {
		it, err := getItem(ctx, tx, id)
		if err != nil {
			return nil, err
		}

		change(&it)
		it.Status = domain.StockStatusFor(it.Quantity)
		it.LastModified = time.Now().UTC()

		_, err = tx.ExecContext(ctx, `
			UPDATE inventory
			SET name = ?, category = ?, quantity = ?, status = ?, last_modified = ?
			WHERE id = ?
		`, it.Name, it.Category, it.Quantity, it.Status, it.LastModified, id)
		if err != nil {
			return nil, fmt.Errorf("updating inventory item: %w", err)
		}

		updated = it
		return &pending{collection: realtime.CollectionInventory, kind: realtime.KindUpdate, id: id, record: it}, nil
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return updated, nil
}

// DeleteItem removes a stock item and publishes a delete.
func (db *DB) DeleteItem(ctx context.Context, id string) error {
	return db.mutate(ctx, func(tx *sql.Tx) (*pending, error) {
		result, err := tx.ExecContext(ctx, `DELETE FROM inventory WHERE id = ?`, id)
		if err != nil {
			return nil, fmt.Errorf("deleting inventory item: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("checking rows affected: %w", err)
		}
		if rows == 0 {
			return nil, domain.ErrItemNotFound
		}
		return &pending{collection: realtime.CollectionInventory, kind: realtime.KindDelete, id: id}, nil
	})
}
