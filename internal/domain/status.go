package domain

import "fmt"

// Status is the fulfillment status of an order. The status string is
// authoritative; progress is derived from it.
type Status string

const (
	StatusPendingPayment Status = "Pending Payment"
	StatusProcessing     Status = "Processing"
	StatusReadyForPickup Status = "Ready for Pickup"
	StatusCompleted      Status = "Completed"
	StatusDelivered      Status = "Delivered"
)

// statusSequence is the fixed forward order of the lifecycle.
var statusSequence = []Status{
	StatusPendingPayment,
	StatusProcessing,
	StatusReadyForPickup,
	StatusCompleted,
	StatusDelivered,
}

// Statuses returns the lifecycle in forward order.
func Statuses() []Status {
	out := make([]Status, len(statusSequence))
	copy(out, statusSequence)
	return out
}

func (s Status) String() string { return string(s) }

// Rank is the position of s in the lifecycle, or -1 for an unknown status.
func (s Status) Rank() int {
	for i, st := range statusSequence {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Status) IsValid() bool { return s.Rank() >= 0 }

// IsActive reports whether the order is paid and still being worked on.
func (s Status) IsActive() bool {
	return s == StatusProcessing || s == StatusReadyForPickup
}

// IsFinished reports whether the order has left the active queue.
func (s Status) IsFinished() bool {
	return s == StatusCompleted || s == StatusDelivered
}

// IsTerminal reports whether no further transition exists.
func (s Status) IsTerminal() bool { return s == StatusDelivered }

// Next returns the status that follows s in the fixed sequence.
func (s Status) Next() (Status, bool) {
	r := s.Rank()
	if r < 0 || r == len(statusSequence)-1 {
		return "", false
	}
	return statusSequence[r+1], true
}

// Before reports whether s comes strictly before other in the lifecycle.
func (s Status) Before(other Status) bool {
	return s.Rank() < other.Rank()
}

// Progress percentages accepted for the legacy progress encoding.
const (
	ProgressNone    = 0
	ProgressStarted = 25
	ProgressHalf    = 50
	ProgressMost    = 75
	ProgressDone    = 100
)

// ProgressFor returns the default progress value consistent with status.
func ProgressFor(s Status) int {
	switch s {
	case StatusPendingPayment:
		return ProgressNone
	case StatusProcessing:
		return ProgressStarted
	case StatusReadyForPickup, StatusCompleted, StatusDelivered:
		return ProgressDone
	default:
		return ProgressNone
	}
}

// ValidProgress reports whether p is one of the recognised steps.
func ValidProgress(p int) bool {
	switch p {
	case ProgressNone, ProgressStarted, ProgressHalf, ProgressMost, ProgressDone:
		return true
	}
	return false
}

// ConsistentProgress reports whether progress agrees with status:
// 100 exactly when the order is ready or later, 0 exactly before processing.
func ConsistentProgress(s Status, progress int) bool {
	switch {
	case s == StatusPendingPayment:
		return progress == ProgressNone
	case s == StatusProcessing:
		return progress > ProgressNone && progress < ProgressDone
	case s.IsValid():
		return progress == ProgressDone
	default:
		return false
	}
}

// Label renders the status the way order cards show it.
func Label(s Status, progress int) string {
	if s == StatusProcessing && progress > ProgressNone && progress < ProgressDone {
		return fmt.Sprintf("%s (%d%%)", s, progress)
	}
	return string(s)
}

// PaymentStatus is monotonic: once paid, never unpaid again.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// PaymentMethod records how a customer paid.
type PaymentMethod string

const (
	PaymentGPay   PaymentMethod = "gpay"
	PaymentQRCode PaymentMethod = "qrcode"
)

// ParsePaymentMethod accepts the method names shown at checkout.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case "":
		return PaymentGPay, nil
	case PaymentGPay, PaymentQRCode:
		return PaymentMethod(s), nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrInvalidOptions, s)
}
