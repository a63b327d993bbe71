package domain

import (
	"fmt"
	"strings"
	"time"
)

// Stock thresholds for derived status.
const (
	LowStockThreshold     = 5
	LimitedStockThreshold = 20
)

// StockStatus is derived from quantity alone.
type StockStatus string

const (
	StockOut     StockStatus = "Out of Stock"
	StockLow     StockStatus = "Low Stock"
	StockLimited StockStatus = "Limited Stock"
	StockIn      StockStatus = "In Stock"
)

// StockStatusFor derives the status of a quantity.
func StockStatusFor(quantity int) StockStatus {
	switch {
	case quantity <= 0:
		return StockOut
	case quantity <= LowStockThreshold:
		return StockLow
	case quantity <= LimitedStockThreshold:
		return StockLimited
	default:
		return StockIn
	}
}

// Category groups consumables.
type Category string

const (
	CategoryPaper      Category = "Paper"
	CategoryInk        Category = "Ink"
	CategoryToner      Category = "Toner"
	CategoryBinding    Category = "Binding"
	CategoryStationery Category = "Stationery"
	CategoryOther      Category = "Other"
)

var categories = []Category{
	CategoryPaper, CategoryInk, CategoryToner, CategoryBinding, CategoryStationery, CategoryOther,
}

// ParseCategory matches a category name case-insensitively.
func ParseCategory(s string) (Category, error) {
	for _, c := range categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidItem, s)
}

// InventoryItem is a stocked consumable.
type InventoryItem struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Category     Category    `json:"category"`
	Quantity     int         `json:"quantity"`
	Status       StockStatus `json:"status"`
	LastModified time.Time   `json:"last_modified"`
}

// ItemFields is a partial update of an inventory item.
type ItemFields struct {
	Name     *string
	Category *Category
	Quantity *int
}

// Validate rejects blank names and negative quantities.
func (f ItemFields) Validate() error {
	if f.Name != nil && strings.TrimSpace(*f.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if f.Quantity != nil && *f.Quantity < 0 {
		return fmt.Errorf("%w: quantity must be non-negative", ErrInvalidItem)
	}
	return nil
}

// ServiceStatus is the singleton service availability record.
type ServiceStatus struct {
	Online       bool      `json:"online"`
	LastModified time.Time `json:"last_modified"`
}

// Staff is a member of the shop roster.
type Staff struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
