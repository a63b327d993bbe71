package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/buildtall-systems/printq/internal/domain"
	"github.com/buildtall-systems/printq/internal/realtime"
)

func newOrder(owner string) domain.Order {
	opts := domain.PrintOptions{Copies: 2, Color: true, Finish: domain.FinishNormal}
	return domain.Order{
		ID:            uuid.NewString(),
		OwnerID:       owner,
		OwnerName:     "Ana",
		DocumentRef:   uuid.NewString(),
		DocumentName:  "thesis.pdf",
		DocumentSize:  2048,
		Options:       opts,
		PaymentStatus: domain.PaymentUnpaid,
		Price:         domain.Price(opts),
		Status:        domain.StatusPendingPayment,
	}
}

func TestOrderCRUD(t *testing.T) {
	ctx := context.Background()
	db, pub := setupTestDB(t)

	o, err := db.InsertOrder(ctx, newOrder("ana@uni.test"))
	if err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}
	if o.Number < minOrderNumber || o.Number > maxOrderNumber {
		t.Errorf("order number %d out of range", o.Number)
	}
	if o.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}

	got, err := db.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.OwnerID != "ana@uni.test" || got.Options != o.Options || got.Price != 10 || got.Status != domain.StatusPendingPayment {
		t.Errorf("unexpected order %+v", got)
	}
	if !got.CreatedAt.Equal(o.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, o.CreatedAt)
	}

	if _, err := db.GetOrder(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}

	changes := pub.published()
	if len(changes) != 1 || changes[0].Kind != realtime.KindCreate || changes[0].RecordID != o.ID {
		t.Fatalf("unexpected changes %+v", changes)
	}
	var published domain.Order
	if err := json.Unmarshal(changes[0].Record, &published); err != nil {
		t.Fatalf("decoding published record: %v", err)
	}
	if published.Number != o.Number {
		t.Errorf("published number %d, want %d", published.Number, o.Number)
	}

	if err := db.DeleteOrder(ctx, o.ID); err != nil {
		t.Fatalf("DeleteOrder: %v", err)
	}
	if err := db.DeleteOrder(ctx, o.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
	changes = pub.published()
	if last := changes[len(changes)-1]; last.Kind != realtime.KindDelete || last.RecordID != o.ID {
		t.Errorf("unexpected last change %+v", last)
	}
}

func TestFetchOrders_Filter(t *testing.T) {
	ctx := context.Background()
	db, _ := setupTestDB(t)

	for _, owner := range []string{"a@x.test", "a@x.test", "b@x.test"} {
		o := newOrder(owner)
		if _, err := db.InsertOrder(ctx, o); err != nil {
			t.Fatalf("InsertOrder: %v", err)
		}
	}

	all, err := db.FetchOrders(ctx, domain.OrderFilter{})
	if err != nil {
		t.Fatalf("FetchOrders: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 orders, got %d", len(all))
	}

	mine, err := db.FetchOrders(ctx, domain.OrderFilter{OwnerID: "a@x.test"})
	if err != nil {
		t.Fatalf("FetchOrders: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("expected 2 orders, got %d", len(mine))
	}
	for _, o := range mine {
		if o.OwnerID != "a@x.test" {
			t.Errorf("filter leaked order of %s", o.OwnerID)
		}
	}
}

func TestUpdateOrder_PaymentIsMonotonic(t *testing.T) {
	ctx := context.Background()
	db, pub := setupTestDB(t)

	o, err := db.InsertOrder(ctx, newOrder("ana@uni.test"))
	if err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}

	paid := domain.PaymentPaid
	processing := domain.StatusProcessing
	progress := domain.ProgressStarted
	token := "123456"
	now := time.Now()
	updated, err := db.UpdateOrder(ctx, o.ID, domain.OrderPatch{
		Status:            &processing,
		Progress:          &progress,
		PaymentStatus:     &paid,
		VerificationToken: &token,
		PaidAt:            &now,
	})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if !updated.Paid() || updated.Status != domain.StatusProcessing || updated.VerificationToken != token || updated.PaidAt == nil {
		t.Errorf("unexpected order after pay %+v", updated)
	}

	unpaid := domain.PaymentUnpaid
	updated, err = db.UpdateOrder(ctx, o.ID, domain.OrderPatch{PaymentStatus: &unpaid})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if !updated.Paid() {
		t.Error("payment reverted to unpaid")
	}

	stored, err := db.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if !stored.Paid() {
		t.Error("stored payment reverted to unpaid")
	}

	if _, err := db.UpdateOrder(ctx, "missing", domain.OrderPatch{Status: &processing}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}

	changes := pub.published()
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(changes))
	}
	for _, c := range changes[1:] {
		if c.Kind != realtime.KindUpdate {
			t.Errorf("expected update, got %s", c.Kind)
		}
	}
}

func TestInventoryOperations(t *testing.T) {
	ctx := context.Background()
	db, pub := setupTestDB(t)

	it, err := db.InsertItem(ctx, domain.InventoryItem{Name: "Staples", Category: domain.CategoryStationery, Quantity: 6})
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if it.ID == "" || it.Status != domain.StockLimited {
		t.Errorf("unexpected item %+v", it)
	}

	it, err = db.AdjustItemQuantity(ctx, it.ID, -1)
	if err != nil {
		t.Fatalf("AdjustItemQuantity: %v", err)
	}
	if it.Quantity != 5 || it.Status != domain.StockLow {
		t.Errorf("after -1: %d/%s", it.Quantity, it.Status)
	}

	// Clamped at zero.
	it, err = db.AdjustItemQuantity(ctx, it.ID, -100)
	if err != nil {
		t.Fatalf("AdjustItemQuantity: %v", err)
	}
	if it.Quantity != 0 || it.Status != domain.StockOut {
		t.Errorf("after -100: %d/%s", it.Quantity, it.Status)
	}

	name := "Heavy Staples"
	qty := 40
	it, err = db.UpdateItem(ctx, it.ID, domain.ItemFields{Name: &name, Quantity: &qty})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if it.Name != name || it.Quantity != 40 || it.Status != domain.StockIn {
		t.Errorf("after update: %+v", it)
	}

	negative := -3
	if _, err := db.UpdateItem(ctx, it.ID, domain.ItemFields{Quantity: &negative}); !errors.Is(err, domain.ErrInvalidItem) {
		t.Errorf("expected ErrInvalidItem, got %v", err)
	}
	if _, err := db.AdjustItemQuantity(ctx, "missing", 1); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
	if _, err := db.InsertItem(ctx, domain.InventoryItem{Name: " "}); !errors.Is(err, domain.ErrInvalidItem) {
		t.Errorf("expected ErrInvalidItem, got %v", err)
	}

	if err := db.DeleteItem(ctx, it.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if err := db.DeleteItem(ctx, it.ID); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}

	kinds := []realtime.Kind{}
	for _, c := range pub.published() {
		if c.Collection != realtime.CollectionInventory {
			t.Errorf("unexpected collection %s", c.Collection)
		}
		kinds = append(kinds, c.Kind)
	}
	want := []realtime.Kind{realtime.KindCreate, realtime.KindUpdate, realtime.KindUpdate, realtime.KindUpdate, realtime.KindDelete}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestPublishOrderMatchesCommitOrder(t *testing.T) {
	ctx := context.Background()
	db, pub := setupTestDB(t)

	it, err := db.InsertItem(ctx, domain.InventoryItem{Name: "Toner", Category: domain.CategoryToner, Quantity: 0})
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, _ = db.AdjustItemQuantity(ctx, it.ID, 1)
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}

	last := -1
	for _, c := range pub.published()[1:] {
		var item domain.InventoryItem
		if err := json.Unmarshal(c.Record, &item); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if item.Quantity <= last {
			t.Errorf("quantity %d published after %d", item.Quantity, last)
		}
		last = item.Quantity
	}
	if last != 20 {
		t.Errorf("final published quantity %d, want 20", last)
	}
}

func TestOrderNumberTaken(t *testing.T) {
	ctx := context.Background()
	db, _ := setupTestDB(t)

	o, err := db.InsertOrder(ctx, newOrder("ana@uni.test"))
	if err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}

	taken, err := orderNumberTaken(ctx, db, o.Number)
	if err != nil {
		t.Fatalf("orderNumberTaken: %v", err)
	}
	if !taken {
		t.Errorf("number %d should be taken", o.Number)
	}

	free := o.Number + 1
	if free > maxOrderNumber {
		free = minOrderNumber
	}
	taken, err = orderNumberTaken(ctx, db, free)
	if err != nil {
		t.Fatalf("orderNumberTaken: %v", err)
	}
	if taken {
		t.Errorf("number %d should be free", free)
	}
}
