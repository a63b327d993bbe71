package inventory

import (
	"fmt"

	"github.com/buildtall-systems/printq/internal/domain"
)

// AlertKind names a stock transition worth telling staff about.
type AlertKind string

const (
	AlertLowStock  AlertKind = "low-stock"
	AlertRestocked AlertKind = "restocked"
)

// Alert is a transient notification derived from one update delta. Alerts are
// not stored; every subscriber derives its own.
type Alert struct {
	Kind   AlertKind
	Item   domain.InventoryItem
	Before int
	After  int
}

func (a Alert) String() string {
	switch a.Kind {
	case AlertLowStock:
		return fmt.Sprintf("%s is running low (%d left)", a.Item.Name, a.After)
	case AlertRestocked:
		return fmt.Sprintf("%s is back in stock (%d)", a.Item.Name, a.After)
	default:
		return string(a.Kind)
	}
}

// DetectAlert returns the alert raised by a quantity moving from before to
// after. Only crossings alert: dropping into the low band from above it, or
// leaving zero.
func DetectAlert(before, after int) (AlertKind, bool) {
	switch {
	case before == 0 && after > 0:
		return AlertRestocked, true
	case after <= domain.LowStockThreshold && before > domain.LowStockThreshold:
		return AlertLowStock, true
	default:
		return "", false
	}
}
