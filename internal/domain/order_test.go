package domain

import (
	"errors"
	"testing"
)

func TestPrice(t *testing.T) {
	tests := []struct {
		name string
		opts PrintOptions
		want int
	}{
		{"single normal mono", PrintOptions{Copies: 1, Finish: FinishNormal}, 1},
		{"three glossy color", PrintOptions{Copies: 3, Color: true, Finish: FinishGlossy}, 24},
		{"two normal color", PrintOptions{Copies: 2, Color: true, Finish: FinishNormal}, 10},
		{"four matte mono", PrintOptions{Copies: 4, Finish: FinishMatte}, 12},
		{"duplex does not change price", PrintOptions{Copies: 2, Duplex: true, Finish: FinishNormal}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Price(tt.opts); got != tt.want {
				t.Errorf("Price(%+v) = %d, want %d", tt.opts, got, tt.want)
			}
		})
	}
}

func TestPrintOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    PrintOptions
		wantErr bool
	}{
		{"minimum copies", PrintOptions{Copies: 1, Finish: FinishNormal}, false},
		{"maximum copies", PrintOptions{Copies: MaxCopies, Finish: FinishMatte}, false},
		{"zero copies", PrintOptions{Copies: 0, Finish: FinishNormal}, true},
		{"too many copies", PrintOptions{Copies: MaxCopies + 1, Finish: FinishNormal}, true},
		{"unknown finish", PrintOptions{Copies: 1, Finish: "Satin"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("expected ErrInvalidOptions, got %v", err)
			}
		})
	}
}

func TestParseFinish(t *testing.T) {
	tests := []struct {
		in   string
		want Finish
	}{
		{"", FinishNormal},
		{"Normal Xerox", FinishNormal},
		{"glossy", FinishGlossy},
		{"Glossy Print", FinishGlossy},
		{"MATTE", FinishMatte},
		{"Matte Print", FinishMatte},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFinish(tt.in)
			if err != nil {
				t.Fatalf("ParseFinish(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFinish(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if _, err := ParseFinish("canvas"); err == nil {
		t.Error("expected error for unknown finish")
	}
}

func TestStatus_Sequence(t *testing.T) {
	seq := Statuses()
	for i := 1; i < len(seq); i++ {
		if !seq[i-1].Before(seq[i]) {
			t.Errorf("%s should come before %s", seq[i-1], seq[i])
		}
		next, ok := seq[i-1].Next()
		if !ok || next != seq[i] {
			t.Errorf("%s.Next() = %s, %v; want %s", seq[i-1], next, ok, seq[i])
		}
	}

	if _, ok := StatusDelivered.Next(); ok {
		t.Error("delivered should have no next status")
	}
	if !StatusDelivered.IsTerminal() {
		t.Error("delivered should be terminal")
	}
	if Status("Shipped").IsValid() {
		t.Error("unknown status should be invalid")
	}
}

func TestProgressConsistency(t *testing.T) {
	for _, s := range Statuses() {
		if !ConsistentProgress(s, ProgressFor(s)) {
			t.Errorf("ProgressFor(%s) = %d is inconsistent", s, ProgressFor(s))
		}
	}

	tests := []struct {
		status   Status
		progress int
		want     bool
	}{
		{StatusPendingPayment, 0, true},
		{StatusPendingPayment, 25, false},
		{StatusProcessing, 0, false},
		{StatusProcessing, 50, true},
		{StatusProcessing, 100, false},
		{StatusReadyForPickup, 100, true},
		{StatusReadyForPickup, 75, false},
		{StatusDelivered, 100, true},
	}
	for _, tt := range tests {
		if got := ConsistentProgress(tt.status, tt.progress); got != tt.want {
			t.Errorf("ConsistentProgress(%s, %d) = %v, want %v", tt.status, tt.progress, got, tt.want)
		}
	}
}

func TestLabel(t *testing.T) {
	if got := Label(StatusProcessing, 50); got != "Processing (50%)" {
		t.Errorf("Label = %q", got)
	}
	if got := Label(StatusReadyForPickup, 100); got != "Ready for Pickup" {
		t.Errorf("Label = %q", got)
	}
}

func TestStockStatusFor(t *testing.T) {
	tests := []struct {
		quantity int
		want     StockStatus
	}{
		{0, StockOut},
		{1, StockLow},
		{5, StockLow},
		{6, StockLimited},
		{20, StockLimited},
		{21, StockIn},
		{5000, StockIn},
	}

	for _, tt := range tests {
		if got := StockStatusFor(tt.quantity); got != tt.want {
			t.Errorf("StockStatusFor(%d) = %q, want %q", tt.quantity, got, tt.want)
		}
		// Derivation depends on quantity alone.
		if StockStatusFor(tt.quantity) != StockStatusFor(tt.quantity) {
			t.Errorf("StockStatusFor(%d) is not stable", tt.quantity)
		}
	}
}

func TestErrorTaxonomy(t *testing.T) {
	err := Invalid(ErrServiceOffline, "printing is paused")
	if !IsValidation(err) {
		t.Error("expected validation error")
	}
	if !errors.Is(err, ErrServiceOffline) {
		t.Error("validation error should unwrap to its sentinel")
	}
	if err.Error() != "printing is paused" {
		t.Errorf("Error() = %q", err.Error())
	}

	mut := &MutationError{Op: "pay", Err: errors.New("disk full")}
	if IsValidation(mut) {
		t.Error("mutation error is not a validation error")
	}
	var target *MutationError
	if !errors.As(error(mut), &target) || target.Op != "pay" {
		t.Error("errors.As should find MutationError")
	}
}
