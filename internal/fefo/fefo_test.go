package fefo

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"centralkitchen/backend/internal/store"
)

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPlanDrawsEarliestExpiryFirst(t *testing.T) {
	lots := []Lot{
		{ID: "b2", Code: "B2", Expiry: day(20), Received: day(1), Available: qty("10")},
		{ID: "b1", Code: "B1", Expiry: day(10), Received: day(2), Available: qty("10")},
	}

	draws, err := Plan(lots, qty("15"))
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(draws) != 2 {
		t.Fatalf("expected 2 draws, got %d", len(draws))
	}
	if draws[0].LotID != "b1" || !draws[0].Quantity.Equal(qty("10")) {
		t.Fatalf("expected full draw from b1 first, got %+v", draws[0])
	}
	if draws[1].LotID != "b2" || !draws[1].Quantity.Equal(qty("5")) {
		t.Fatalf("expected 5 from b2, got %+v", draws[1])
	}
	if !lots[0].Available.Equal(qty("10")) {
		t.Fatalf("plan must not mutate input lots")
	}
}

func TestPlanTieBreakers(t *testing.T) {
	tests := []struct {
		name string
		lots []Lot
		want string
	}{
		{
			name: "received date breaks expiry tie",
			lots: []Lot{
				{ID: "late", Code: "A", Expiry: day(10), Received: day(5), Available: qty("1")},
				{ID: "early", Code: "Z", Expiry: day(10), Received: day(3), Available: qty("1")},
			},
			want: "early",
		},
		{
			name: "code breaks full tie",
			lots: []Lot{
				{ID: "x", Code: "LOT-2", Expiry: day(10), Received: day(3), Available: qty("1")},
				{ID: "y", Code: "LOT-1", Expiry: day(10), Received: day(3), Available: qty("1")},
			},
			want: "y",
		},
		{
			name: "lot without expiry sorts last",
			lots: []Lot{
				{ID: "forever", Code: "A", Received: day(1), Available: qty("1")},
				{ID: "dated", Code: "B", Expiry: day(28), Received: day(9), Available: qty("1")},
			},
			want: "dated",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			draws, err := Plan(tc.lots, qty("1"))
			if err != nil {
				t.Fatalf("plan failed: %v", err)
			}
			if len(draws) != 1 || draws[0].LotID != tc.want {
				t.Fatalf("expected draw from %s, got %+v", tc.want, draws)
			}
		})
	}
}

func TestPlanIsDeterministicAcrossInputOrder(t *testing.T) {
	a := []Lot{
		{ID: "1", Code: "C", Expiry: day(3), Received: day(1), Available: qty("2")},
		{ID: "2", Code: "A", Expiry: day(3), Received: day(1), Available: qty("2")},
		{ID: "3", Code: "B", Expiry: day(2), Received: day(1), Available: qty("2")},
	}
	b := []Lot{a[2], a[0], a[1]}

	first, err := Plan(a, qty("5"))
	if err != nil {
		t.Fatalf("plan a failed: %v", err)
	}
	second, err := Plan(b, qty("5"))
	if err != nil {
		t.Fatalf("plan b failed: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("draw count differs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].LotID != second[i].LotID || !first[i].Quantity.Equal(second[i].Quantity) {
			t.Fatalf("draw %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
	if first[0].LotID != "3" || first[1].LotID != "2" || first[2].LotID != "1" {
		t.Fatalf("unexpected order %+v", first)
	}
}

func TestPlanInsufficientStock(t *testing.T) {
	lots := []Lot{{ID: "a", Code: "A", Expiry: day(5), Available: qty("2.5")}}
	_, err := Plan(lots, qty("3"))
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestPlanRejectsNonPositiveQuantity(t *testing.T) {
	_, err := Plan(nil, decimal.Zero)
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestPlanSkipsEmptyLots(t *testing.T) {
	lots := []Lot{
		{ID: "empty", Code: "A", Expiry: day(1), Available: decimal.Zero},
		{ID: "full", Code: "B", Expiry: day(2), Available: qty("4")},
	}
	draws, err := Plan(lots, qty("4"))
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(draws) != 1 || draws[0].LotID != "full" {
		t.Fatalf("expected single draw from full lot, got %+v", draws)
	}
}
