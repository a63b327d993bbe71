package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the type of change committed to a record.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// AllKinds subscribes to every change.
var AllKinds = []Kind{KindCreate, KindUpdate, KindDelete}

func (k Kind) IsValid() bool {
	return k == KindCreate || k == KindUpdate || k == KindDelete
}

// Collections fanned out by the record store.
const (
	CollectionOrders        = "orders"
	CollectionInventory     = "inventory"
	CollectionServiceStatus = "service_status"
)

// ErrMalformedChange marks a payload that cannot be reconciled.
var ErrMalformedChange = errors.New("malformed change")

// Change is one committed change to a record, as fanned out to subscribers.
// Record holds the record after the change; for deletes it may be empty.
type Change struct {
	ID          uuid.UUID       `json:"id"`
	Collection  string          `json:"collection"`
	Kind        Kind            `json:"kind"`
	RecordID    string          `json:"record_id"`
	Record      json.RawMessage `json:"record,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}

// NewChange encodes record into a change with a fresh ID.
func NewChange(collection string, kind Kind, recordID string, record any) (Change, error) {
	c := Change{
		ID:          uuid.New(),
		Collection:  collection,
		Kind:        kind,
		RecordID:    recordID,
		CommittedAt: time.Now().UTC(),
	}
	if record != nil {
		raw, err := json.Marshal(record)
		if err != nil {
			return Change{}, fmt.Errorf("encoding %s record: %w", collection, err)
		}
		c.Record = raw
	}
	return c, nil
}

// Validate rejects changes missing the fields reconciliation depends on.
func (c Change) Validate() error {
	switch {
	case c.ID == uuid.Nil:
		return fmt.Errorf("%w: missing id", ErrMalformedChange)
	case c.Collection == "":
		return fmt.Errorf("%w: missing collection", ErrMalformedChange)
	case !c.Kind.IsValid():
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedChange, c.Kind)
	case c.RecordID == "":
		return fmt.Errorf("%w: missing record id", ErrMalformedChange)
	case c.Kind != KindDelete && len(c.Record) == 0:
		return fmt.Errorf("%w: %s without record", ErrMalformedChange, c.Kind)
	}
	return nil
}

// Decode parses and validates a wire payload.
func Decode(payload []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return Change{}, fmt.Errorf("%w: %v", ErrMalformedChange, err)
	}
	if err := c.Validate(); err != nil {
		return Change{}, err
	}
	return c, nil
}

// Encode renders the wire payload.
func Encode(c Change) ([]byte, error) {
	return json.Marshal(c)
}
