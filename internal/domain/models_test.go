package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestOrderJSONCarriesDerivedTotals(t *testing.T) {
	order := Order{
		ID:     "ord-1",
		Status: OrderStatusPending,
		Items: []OrderItem{
			{ProductID: "prd-mooncake", Quantity: decimal.NewFromInt(30), UnitPrice: decimal.NewFromInt(45000)},
			{ProductID: "prd-sponge", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(120000)},
		},
	}

	raw, err := json.Marshal(order)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		TotalAmount decimal.Decimal `json:"total_amount"`
		Items       []struct {
			Subtotal decimal.Decimal `json:"subtotal"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.TotalAmount.Equal(decimal.NewFromInt(1590000)) {
		t.Fatalf("expected total 1590000, got %s", decoded.TotalAmount)
	}
	if !decoded.Items[0].Subtotal.Equal(decimal.NewFromInt(1350000)) {
		t.Fatalf("expected first subtotal 1350000, got %s", decoded.Items[0].Subtotal)
	}
}

func TestRecipeRequirementsMergeRepeatedIngredients(t *testing.T) {
	recipe := Recipe{
		ProductID: "prd-mooncake",
		Lines: []RecipeLine{
			{IngredientID: "ing-flour", QuantityPerUnit: decimal.RequireFromString("0.05")},
			{IngredientID: "ing-egg", QuantityPerUnit: decimal.NewFromInt(1)},
			{IngredientID: "ing-flour", QuantityPerUnit: decimal.RequireFromString("0.01")},
		},
	}

	reqs := recipe.Requirements(decimal.NewFromInt(100))
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].IngredientID != "ing-flour" || !reqs[0].Quantity.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("unexpected flour requirement %+v", reqs[0])
	}
	if reqs[1].IngredientID != "ing-egg" || !reqs[1].Quantity.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected egg requirement %+v", reqs[1])
	}
}

func TestProductBatchEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	batch := ProductBatch{
		Status:          BatchStatusActive,
		ExpiryDate:      now.Add(-time.Minute),
		CurrentQuantity: decimal.NewFromInt(5),
	}
	if got := batch.EffectiveStatus(now); got != BatchStatusExpired {
		t.Fatalf("expected Expired, got %s", got)
	}
	if batch.Allocatable(now) {
		t.Fatalf("expired batch must not be allocatable")
	}

	batch.ExpiryDate = now
	if batch.EffectiveStatus(now) != BatchStatusActive || !batch.Allocatable(now) {
		t.Fatalf("batch expiring exactly now is still usable")
	}

	batch.Status = BatchStatusRecalled
	batch.ExpiryDate = now.Add(-time.Hour)
	if got := batch.EffectiveStatus(now); got != BatchStatusRecalled {
		t.Fatalf("recall outranks expiry, got %s", got)
	}
}

func TestProductBatchWillExpireWithin(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	week := 7 * 24 * time.Hour

	soon := ProductBatch{ExpiryDate: now.Add(3 * 24 * time.Hour)}
	later := ProductBatch{ExpiryDate: now.Add(10 * 24 * time.Hour)}
	gone := ProductBatch{ExpiryDate: now.Add(-time.Hour)}

	if !soon.WillExpireWithin(now, week) {
		t.Fatalf("expected batch within window")
	}
	if later.WillExpireWithin(now, week) {
		t.Fatalf("expected batch outside window")
	}
	if gone.WillExpireWithin(now, week) {
		t.Fatalf("expired batch is not expiring soon")
	}
}

func TestIngredientBatchUsable(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	batch := IngredientBatch{
		Active:          true,
		ExpiryDate:      now.Add(time.Hour),
		CurrentQuantity: decimal.NewFromInt(10),
	}
	if !batch.Usable(now) {
		t.Fatalf("expected usable batch")
	}

	batch.CurrentQuantity = decimal.Zero
	if batch.Usable(now) || !batch.Empty() {
		t.Fatalf("empty batch must not be usable")
	}

	batch.CurrentQuantity = decimal.NewFromInt(10)
	batch.Active = false
	if batch.Usable(now) {
		t.Fatalf("inactive batch must not be usable")
	}
}

func TestProductionPlanSettled(t *testing.T) {
	plan := ProductionPlan{Details: []ProductionPlanDetail{
		{ProductID: "a", Status: DetailStatusCompleted},
		{ProductID: "b", Status: DetailStatusInProgress},
	}}
	if plan.Settled() {
		t.Fatalf("plan with an in-progress detail is not settled")
	}
	plan.Details[1].Status = DetailStatusCancelled
	if !plan.Settled() {
		t.Fatalf("expected settled plan")
	}
	if idx, ok := plan.DetailIndex("b"); !ok || idx != 1 {
		t.Fatalf("expected detail b at 1, got %d %v", idx, ok)
	}
	if _, ok := plan.DetailIndex("z"); ok {
		t.Fatalf("unexpected detail z")
	}
}

func TestExpiresWithinBounds(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	week := 7 * 24 * time.Hour
	cases := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"expires now", now, true},
		{"window edge", now.Add(week), true},
		{"past window", now.Add(week + time.Second), false},
		{"already expired", now.Add(-time.Second), false},
		{"long expired", now.AddDate(0, 0, -7), false},
	}
	for _, tc := range cases {
		if got := ExpiresWithin(tc.expiry, now, week); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestQuantityScale(t *testing.T) {
	for _, raw := range []string{"1", "0.0125", "99.9875", "0.0001"} {
		if !FitsQuantityScale(decimal.RequireFromString(raw)) {
			t.Fatalf("expected %s to fit", raw)
		}
	}
	for _, raw := range []string{"0.00001", "1.23456"} {
		if FitsQuantityScale(decimal.RequireFromString(raw)) {
			t.Fatalf("expected %s to be rejected", raw)
		}
	}
}

func TestRecipeRequirementsRoundUpToStoredScale(t *testing.T) {
	recipe := Recipe{Lines: []RecipeLine{
		{IngredientID: "ing-vanilla", QuantityPerUnit: decimal.RequireFromString("0.00004")},
		{IngredientID: "ing-flour", QuantityPerUnit: decimal.RequireFromString("0.0125")},
	}}

	reqs := recipe.Requirements(decimal.NewFromInt(1))
	if !reqs[0].Quantity.Equal(decimal.RequireFromString("0.0001")) {
		t.Fatalf("expected tiny draw rounded up to 0.0001, got %s", reqs[0].Quantity)
	}
	if !reqs[1].Quantity.Equal(decimal.RequireFromString("0.0125")) {
		t.Fatalf("expected exact draw kept, got %s", reqs[1].Quantity)
	}
}
