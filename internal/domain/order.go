package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxCopies bounds the copy count of a single order.
const MaxCopies = 100

// Finish is the paper finish of a print job.
type Finish string

const (
	FinishNormal Finish = "Normal"
	FinishGlossy Finish = "Glossy"
	FinishMatte  Finish = "Matte"
)

// ParseFinish accepts canonical names, lowercase names and the print type
// labels older records carry ("Glossy Print", "Normal Xerox").
func ParseFinish(s string) (Finish, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal", "normal xerox":
		return FinishNormal, nil
	case "glossy", "glossy print":
		return FinishGlossy, nil
	case "matte", "matte print":
		return FinishMatte, nil
	}
	return "", fmt.Errorf("%w: unknown finish %q", ErrInvalidOptions, s)
}

// PrintOptions are the customer's choices for a job.
type PrintOptions struct {
	Copies int    `json:"copies"`
	Color  bool   `json:"color"`
	Duplex bool   `json:"duplex"`
	Finish Finish `json:"finish"`
	Note   string `json:"note,omitempty"`
}

// Validate checks the copy bound and finish.
func (o PrintOptions) Validate() error {
	if o.Copies < 1 || o.Copies > MaxCopies {
		return fmt.Errorf("%w: copies must be between 1 and %d", ErrInvalidOptions, MaxCopies)
	}
	switch o.Finish {
	case FinishNormal, FinishGlossy, FinishMatte:
	default:
		return fmt.Errorf("%w: unknown finish %q", ErrInvalidOptions, o.Finish)
	}
	return nil
}

// Per-unit price components.
const (
	BaseUnitPrice   = 1
	ColorSurcharge  = 4
	GlossySurcharge = 3
	MatteSurcharge  = 2
)

// UnitPrice is base + color surcharge + finish surcharge.
func UnitPrice(o PrintOptions) int {
	unit := BaseUnitPrice
	if o.Color {
		unit += ColorSurcharge
	}
	switch o.Finish {
	case FinishGlossy:
		unit += GlossySurcharge
	case FinishMatte:
		unit += MatteSurcharge
	}
	return unit
}

// Price is a pure function of the options: copies × unit price.
func Price(o PrintOptions) int {
	return o.Copies * UnitPrice(o)
}

// Order is one print job.
type Order struct {
	ID                string        `json:"id"`
	Number            int           `json:"order_number"`
	OwnerID           string        `json:"owner_id"`
	OwnerName         string        `json:"owner_name,omitempty"`
	DocumentRef       string        `json:"document_ref"`
	DocumentName      string        `json:"document_name"`
	DocumentSize      int64         `json:"document_size"`
	Options           PrintOptions  `json:"options"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	PaymentMethod     PaymentMethod `json:"payment_method,omitempty"`
	Price             int           `json:"price"`
	Status            Status        `json:"status"`
	Progress          int           `json:"progress"`
	VerificationToken string        `json:"verification_token,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`
}

// Paid reports whether payment has been captured.
func (o Order) Paid() bool { return o.PaymentStatus == PaymentPaid }

// ComputedPrice recomputes the price from options. The stored Price is a cache.
func (o Order) ComputedPrice() int { return Price(o.Options) }

// Label is the display status, e.g. "Processing (50%)".
func (o Order) Label() string { return Label(o.Status, o.Progress) }

// OrderFilter scopes a fetch of order records.
type OrderFilter struct {
	OwnerID string
}

// Matches reports whether o falls inside the filter.
func (f OrderFilter) Matches(o Order) bool {
	return f.OwnerID == "" || f.OwnerID == o.OwnerID
}

// OrderPatch lists the fields a transition may change. Nil fields are left alone.
type OrderPatch struct {
	Status            *Status
	Progress          *int
	PaymentStatus     *PaymentStatus
	PaymentMethod     *PaymentMethod
	VerificationToken *string
	PaidAt            *time.Time
}
