package db

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/realtime"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []realtime.Change
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, c realtime.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.changes = append(p.changes, c)
	return nil
}

func (p *recordingPublisher) published() []realtime.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.Change(nil), p.changes...)
}

func setupTestDB(t *testing.T) (*DB, *recordingPublisher) {
	t.Helper()

	pub := &recordingPublisher{}
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), WithPublisher(pub))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	return db, pub
}

func TestMigrate_Bootstrap(t *testing.T) {
	ctx := context.Background()
	db, pub := setupTestDB(t)

	status, err := db.GetServiceStatus(ctx)
	if err != nil {
		t.Fatalf("GetServiceStatus: %v", err)
	}
	if !status.Online {
		t.Error("service should start online")
	}

	items, err := db.FetchInventory(ctx)
	if err != nil {
		t.Fatalf("FetchInventory: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 starter items, got %d", len(items))
	}
	want := map[string]struct {
		qty    int
		status domain.StockStatus
	}{
		"A4 Paper":  {5000, domain.StockIn},
		"Black Ink": {20, domain.StockLimited},
	}
	for _, it := range items {
		w, ok := want[it.Name]
		if !ok {
			t.Errorf("unexpected item %q", it.Name)
			continue
		}
		if it.Quantity != w.qty || it.Status != w.status {
			t.Errorf("%s = %d/%s, want %d/%s", it.Name, it.Quantity, it.Status, w.qty, w.status)
		}
		if it.LastModified.IsZero() {
			t.Errorf("%s has no last-modified time", it.Name)
		}
	}

	if len(pub.published()) != 0 {
		t.Error("migrations should not publish changes")
	}

	// Running migrations again is a no-op.
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestServiceStatus_Toggle(t *testing.T) {
	ctx := context.Background()
	db, pub := setupTestDB(t)

	s, err := db.SetServiceOnline(ctx, false)
	if err != nil {
		t.Fatalf("SetServiceOnline: %v", err)
	}
	if s.Online {
		t.Error("expected offline")
	}

	got, err := db.GetServiceStatus(ctx)
	if err != nil {
		t.Fatalf("GetServiceStatus: %v", err)
	}
	if got.Online {
		t.Error("stored status should be offline")
	}

	changes := pub.published()
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	c := changes[0]
	if c.Collection != realtime.CollectionServiceStatus || c.Kind != realtime.KindUpdate || c.RecordID != ServiceRecordID {
		t.Errorf("unexpected change %+v", c)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	db, pub := setupTestDB(t)
	pub.err = errors.New("broker down")

	if _, err := db.SetServiceOnline(ctx, false); err != nil {
		t.Fatalf("SetServiceOnline should succeed despite publish failure: %v", err)
	}
	got, err := db.GetServiceStatus(ctx)
	if err != nil {
		t.Fatalf("GetServiceStatus: %v", err)
	}
	if got.Online {
		t.Error("write should be committed")
	}
}

func TestStaffCRUD(t *testing.T) {
	ctx := context.Background()
	db, _ := setupTestDB(t)

	s, err := db.AddStaff(ctx, domain.Staff{Name: "Olive", Email: " Op@Shop.test", Role: "operator", Active: true})
	if err != nil {
		t.Fatalf("AddStaff: %v", err)
	}
	if s.Email != "op@shop.test" || s.ID == "" {
		t.Errorf("unexpected staff %+v", s)
	}

	if _, err := db.AddStaff(ctx, domain.Staff{Name: "Dup", Email: "op@shop.test", Role: "admin", Active: true}); !errors.Is(err, domain.ErrStaffExists) {
		t.Errorf("expected ErrStaffExists, got %v", err)
	}

	got, err := db.GetStaffByEmail(ctx, "OP@shop.test")
	if err != nil {
		t.Fatalf("GetStaffByEmail: %v", err)
	}
	if got.Name != "Olive" || got.Role != "operator" || !got.Active {
		t.Errorf("unexpected staff %+v", got)
	}

	list, err := db.ListStaff(ctx)
	if err != nil {
		t.Fatalf("ListStaff: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 staff, got %d", len(list))
	}

	if err := db.RemoveStaff(ctx, "op@shop.test"); err != nil {
		t.Fatalf("RemoveStaff: %v", err)
	}
	if err := db.RemoveStaff(ctx, "op@shop.test"); !errors.Is(err, domain.ErrStaffNotFound) {
		t.Errorf("expected ErrStaffNotFound, got %v", err)
	}
	if _, err := db.GetStaffByEmail(ctx, "op@shop.test"); !errors.Is(err, domain.ErrStaffNotFound) {
		t.Errorf("expected ErrStaffNotFound, got %v", err)
	}
}
