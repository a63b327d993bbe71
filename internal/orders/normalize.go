package orders

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/buildtall-systems/printq/internal/domain"
)

// ErrMalformedOrder marks a record that cannot be turned into an Order.
var ErrMalformedOrder = errors.New("malformed order record")

// Decode converts a stored or published order record into the canonical
// Order. It accepts the canonical snake_case shape as well as the camelCase
// shape of older records (studentEmail, fileName, printType, dateCreated,
// paid, progress, numeric ids, "Processing (50%)" style statuses).
func Decode(raw json.RawMessage) (domain.Order, error) {
	var w wireOrder
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&w); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrMalformedOrder, err)
	}
	return w.normalize()
}

// Normalize re-derives the fields of o that depend on others: price from
// options, progress from status, and payment from status.
func Normalize(o domain.Order) (domain.Order, error) {
	if o.ID == "" {
		return domain.Order{}, fmt.Errorf("%w: missing id", ErrMalformedOrder)
	}
	if o.OwnerID == "" {
		return domain.Order{}, fmt.Errorf("%w: missing owner", ErrMalformedOrder)
	}
	if !o.Status.IsValid() {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrMalformedOrder, o.Status)
	}
	if o.Options.Finish == "" {
		o.Options.Finish = domain.FinishNormal
	}
	if err := o.Options.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrMalformedOrder, err)
	}

	o.Price = domain.Price(o.Options)
	if o.Status != domain.StatusPendingPayment {
		o.PaymentStatus = domain.PaymentPaid
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = domain.PaymentUnpaid
	}
	if !domain.ConsistentProgress(o.Status, o.Progress) {
		o.Progress = domain.ProgressFor(o.Status)
	}
	return o, nil
}

var processingPercent = regexp.MustCompile(`^processing\s*\((\d{1,3})%\)$`)

// parseStatus maps canonical and legacy status strings. The second result is
// a progress percentage embedded in the status, or -1.
func parseStatus(s string) (domain.Status, int, bool) {
	trimmed := strings.TrimSpace(s)
	for _, st := range domain.Statuses() {
		if strings.EqualFold(trimmed, string(st)) {
			return st, -1, true
		}
	}
	lower := strings.ToLower(trimmed)
	switch lower {
	case "pending", "pending_payment", "unpaid":
		return domain.StatusPendingPayment, -1, true
	case "paid", "paid - waiting for processing", "waiting for processing":
		return domain.StatusProcessing, -1, true
	case "ready", "ready_for_pickup":
		return domain.StatusReadyForPickup, -1, true
	}
	if m := processingPercent.FindStringSubmatch(lower); m != nil {
		p, _ := strconv.Atoi(m[1])
		return domain.StatusProcessing, p, true
	}
	return "", -1, false
}

type wireOptions struct {
	Copies flexInt    `json:"copies"`
	Color  flexBool   `json:"color"`
	Duplex flexBool   `json:"duplex"`
	Finish flexString `json:"finish"`
	Note   flexString `json:"note"`
}

type wireOrder struct {
	ID                flexString   `json:"id"`
	Number            flexInt      `json:"order_number"`
	OwnerID           flexString   `json:"owner_id"`
	OwnerName         flexString   `json:"owner_name"`
	DocumentRef       flexString   `json:"document_ref"`
	DocumentName      flexString   `json:"document_name"`
	DocumentSize      flexInt      `json:"document_size"`
	Options           *wireOptions `json:"options"`
	PaymentStatus     flexString   `json:"payment_status"`
	PaymentMethod     flexString   `json:"payment_method"`
	Status            flexString   `json:"status"`
	Progress          *flexInt     `json:"progress"`
	VerificationToken flexString   `json:"verification_token"`
	CreatedAt         flexTime     `json:"created_at"`
	UpdatedAt         flexTime     `json:"updated_at"`
	PaidAt            flexTime     `json:"paid_at"`

	// Older camelCase records.
	OrderNumber      flexInt    `json:"orderNumber"`
	StudentEmail     flexString `json:"studentEmail"`
	StudentName      flexString `json:"studentName"`
	FileURL          flexString `json:"fileUrl"`
	FileName         flexString `json:"fileName"`
	FileSize         flexInt    `json:"fileSize"`
	PrintType        flexString `json:"printType"`
	Copies           flexInt    `json:"copies"`
	IsColorPrint     flexBool   `json:"isColorPrint"`
	IsDoubleSided    flexBool   `json:"isDoubleSided"`
	Message          flexString `json:"message"`
	Paid             *flexBool  `json:"paid"`
	VerificationCode flexString `json:"verificationCode"`
	DateCreated      flexTime   `json:"dateCreated"`
}

func (w wireOrder) normalize() (domain.Order, error) {
	o := domain.Order{
		ID:                string(w.ID),
		Number:            int(firstInt(w.Number, w.OrderNumber)),
		OwnerID:           strings.ToLower(firstString(w.OwnerID, w.StudentEmail)),
		OwnerName:         firstString(w.OwnerName, w.StudentName),
		DocumentRef:       firstString(w.DocumentRef, w.FileURL),
		DocumentName:      firstString(w.DocumentName, w.FileName),
		DocumentSize:      int64(firstInt(w.DocumentSize, w.FileSize)),
		PaymentMethod:     domain.PaymentMethod(w.PaymentMethod),
		VerificationToken: firstString(w.VerificationToken, w.VerificationCode),
		CreatedAt:         firstTime(w.CreatedAt, w.DateCreated),
		UpdatedAt:         time.Time(w.UpdatedAt),
	}
	if !time.Time(w.PaidAt).IsZero() {
		t := time.Time(w.PaidAt)
		o.PaidAt = &t
	}

	if w.Options != nil {
		o.Options = domain.PrintOptions{
			Copies: int(w.Options.Copies),
			Color:  bool(w.Options.Color),
			Duplex: bool(w.Options.Duplex),
			Finish: domain.Finish(w.Options.Finish),
			Note:   string(w.Options.Note),
		}
	} else {
		o.Options = domain.PrintOptions{
			Copies: int(w.Copies),
			Color:  bool(w.IsColorPrint),
			Duplex: bool(w.IsDoubleSided),
			Finish: domain.Finish(w.PrintType),
			Note:   string(w.Message),
		}
	}
	finish, err := domain.ParseFinish(string(o.Options.Finish))
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrMalformedOrder, err)
	}
	o.Options.Finish = finish

	status, embedded, ok := parseStatus(string(w.Status))
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrMalformedOrder, w.Status)
	}
	o.Status = status
	switch {
	case w.Progress != nil:
		o.Progress = int(*w.Progress)
	case embedded >= 0:
		o.Progress = embedded
	default:
		o.Progress = domain.ProgressFor(status)
	}

	switch {
	case w.PaymentStatus != "":
		o.PaymentStatus = domain.PaymentStatus(strings.ToLower(string(w.PaymentStatus)))
	case w.Paid != nil && bool(*w.Paid):
		o.PaymentStatus = domain.PaymentPaid
	default:
		o.PaymentStatus = domain.PaymentUnpaid
	}
	if o.PaymentStatus != domain.PaymentPaid && o.PaymentStatus != domain.PaymentUnpaid {
		return domain.Order{}, fmt.Errorf("%w: unknown payment status %q", ErrMalformedOrder, o.PaymentStatus)
	}
	// A paid order still marked pending has not been picked up by the
	// lifecycle yet; it is processing.
	if o.PaymentStatus == domain.PaymentPaid && o.Status == domain.StatusPendingPayment {
		o.Status = domain.StatusProcessing
	}

	return Normalize(o)
}

func firstString(vals ...flexString) string {
	for _, v := range vals {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

func firstInt(vals ...flexInt) flexInt {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstTime(vals ...flexTime) time.Time {
	for _, v := range vals {
		if t := time.Time(v); !t.IsZero() {
			return t.UTC()
		}
	}
	return time.Time{}
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

// flexInt accepts a JSON number or numeric string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			return nil
		}
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("expected integer, got %s", b)
	}
	*f = flexInt(n)
	return nil
}

// flexBool accepts a JSON bool, 0/1 or "true"/"false".
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(strings.Trim(string(b), `"`)) {
	case "true", "1", "yes":
		*f = true
	case "false", "0", "no", "", "null":
		*f = false
	default:
		return fmt.Errorf("expected bool, got %s", b)
	}
	return nil
}

// flexTime accepts RFC 3339 strings and unix milliseconds.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" || string(b) == `""` {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parsing time %q: %w", s, err)
		}
		*f = flexTime(t)
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("expected time, got %s", b)
	}
	*f = flexTime(time.UnixMilli(ms).UTC())
	return nil
}
