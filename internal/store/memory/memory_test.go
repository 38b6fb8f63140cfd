package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"centralkitchen/backend/internal/domain"
	"centralkitchen/backend/internal/store"
)

var testNow = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustIngredient(t *testing.T, s *Store, id string) {
	t.Helper()
	if _, err := s.CreateIngredient(context.Background(), domain.Ingredient{ID: id, Name: id, Unit: "kg"}); err != nil {
		t.Fatalf("create ingredient %s: %v", id, err)
	}
}

func mustIngredientBatch(t *testing.T, s *Store, ingredientID, code string, qty string, expiry time.Time) domain.IngredientBatch {
	t.Helper()
	batch, err := s.CreateIngredientBatch(context.Background(), domain.IngredientBatch{
		IngredientID:    ingredientID,
		BatchCode:       code,
		ReceivedDate:    testNow.AddDate(0, 0, -1),
		ExpiryDate:      expiry,
		InitialQuantity: dec(qty),
		CurrentQuantity: dec(qty),
	})
	if err != nil {
		t.Fatalf("create batch %s: %v", code, err)
	}
	return *batch
}

func sumIngredient(t *testing.T, s *Store, ingredientID string) decimal.Decimal {
	t.Helper()
	batches, err := s.ListIngredientBatches(context.Background(), ingredientID)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	total := decimal.Zero
	for _, b := range batches {
		total = total.Add(b.CurrentQuantity)
	}
	return total
}

func TestConsumeIngredientConservesQuantity(t *testing.T) {
	s := New()
	mustIngredient(t, s, "flour")
	mustIngredientBatch(t, s, "flour", "F1", "10", testNow.AddDate(0, 0, 5))
	mustIngredientBatch(t, s, "flour", "F2", "10", testNow.AddDate(0, 0, 9))

	before := sumIngredient(t, s, "flour")
	consumed, err := s.ConsumeIngredient(context.Background(), "flour", dec("12.5"), testNow)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	drawn := decimal.Zero
	for _, c := range consumed {
		drawn = drawn.Add(c.Quantity)
	}
	after := sumIngredient(t, s, "flour")
	if !before.Sub(after).Equal(drawn) || !drawn.Equal(dec("12.5")) {
		t.Fatalf("conservation broken: before=%s after=%s drawn=%s", before, after, drawn)
	}
	if consumed[0].BatchCode != "F1" {
		t.Fatalf("expected F1 drawn first, got %s", consumed[0].BatchCode)
	}
}

func TestConsumeIngredientSkipsExpiredAndInactive(t *testing.T) {
	s := New()
	mustIngredient(t, s, "milk")
	mustIngredientBatch(t, s, "milk", "OLD", "10", testNow.Add(-time.Hour))
	inactive := mustIngredientBatch(t, s, "milk", "OFF", "10", testNow.AddDate(0, 0, 1))
	mustIngredientBatch(t, s, "milk", "OK", "3", testNow.AddDate(0, 0, 2))
	if _, err := s.DeactivateIngredientBatch(context.Background(), inactive.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := s.ConsumeIngredient(context.Background(), "milk", dec("4"), testNow)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if total := sumIngredient(t, s, "milk"); !total.Equal(dec("23")) {
		t.Fatalf("failed consumption must not touch stock, total=%s", total)
	}
}

func TestConcurrentConsumptionNeverOverdraws(t *testing.T) {
	s := New()
	mustIngredient(t, s, "sugar")
	mustIngredientBatch(t, s, "sugar", "S1", "7", testNow.AddDate(0, 0, 3))
	mustIngredientBatch(t, s, "sugar", "S2", "8", testNow.AddDate(0, 0, 4))

	const workers = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConsumeIngredient(context.Background(), "sugar", dec("1"), testNow)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 15 {
		t.Fatalf("expected exactly 15 successful draws, got %d", succeeded)
	}
	if total := sumIngredient(t, s, "sugar"); !total.IsZero() {
		t.Fatalf("expected empty stock, got %s", total)
	}
}

func setupPlan(t *testing.T, s *Store, planned string) domain.ProductionPlan {
	t.Helper()
	ctx := context.Background()
	mustIngredient(t, s, "flour")
	mustIngredient(t, s, "egg")
	if _, err := s.CreateProduct(ctx, domain.Product{ID: "cake", SKU: "CAKE", Name: "Cake", Unit: "pcs", ShelfLifeDays: 3}, nil); err != nil {
		t.Fatalf("create product: %v", err)
	}
	plan, err := s.CreateProductionPlan(ctx, domain.ProductionPlan{
		PlanCode: "PP-1",
		PlanDate: testNow,
		Status:   domain.PlanStatusPlanned,
		Details: []domain.ProductionPlanDetail{
			{ProductID: "cake", PlannedQuantity: dec(planned), Status: domain.DetailStatusPending},
		},
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if _, err := s.TransitionPlan(ctx, plan.ID, domain.PlanStatusInProgress, testNow); err != nil {
		t.Fatalf("start plan: %v", err)
	}
	return *plan
}

func cakeRecipe() domain.Recipe {
	return domain.Recipe{ProductID: "cake", Lines: []domain.RecipeLine{
		{IngredientID: "flour", QuantityPerUnit: dec("0.5")},
		{IngredientID: "egg", QuantityPerUnit: dec("2")},
	}}
}

func TestCompletePlanItemIsAllOrNothing(t *testing.T) {
	s := New()
	plan := setupPlan(t, s, "10")
	mustIngredientBatch(t, s, "flour", "F1", "100", testNow.AddDate(0, 0, 10))
	mustIngredientBatch(t, s, "egg", "E1", "5", testNow.AddDate(0, 0, 10))

	_, err := s.CompletePlanItem(context.Background(), domain.PlanItemCompletion{
		PlanID: plan.ID, ProductID: "cake", ActualQuantity: dec("10"),
		Recipe: cakeRecipe(), BatchCode: "PB-1", ShelfLifeDays: 3, At: testNow,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if total := sumIngredient(t, s, "flour"); !total.Equal(dec("100")) {
		t.Fatalf("flour must be untouched after failure, got %s", total)
	}
	got, _ := s.GetProductionPlan(context.Background(), plan.ID)
	if got.Details[0].Status != domain.DetailStatusPending {
		t.Fatalf("detail must stay pending, got %s", got.Details[0].Status)
	}
	batches, _ := s.ListProductBatches(context.Background(), "cake")
	if len(batches) != 0 {
		t.Fatalf("no product batch expected, got %d", len(batches))
	}
}

func TestCompletePlanItemRecordsTraceability(t *testing.T) {
	s := New()
	plan := setupPlan(t, s, "10")
	mustIngredientBatch(t, s, "flour", "F1", "3", testNow.AddDate(0, 0, 5))
	mustIngredientBatch(t, s, "flour", "F2", "10", testNow.AddDate(0, 0, 10))
	mustIngredientBatch(t, s, "egg", "E1", "20", testNow.AddDate(0, 0, 10))

	batch, err := s.CompletePlanItem(context.Background(), domain.PlanItemCompletion{
		PlanID: plan.ID, ProductID: "cake", ActualQuantity: dec("8"),
		Recipe: cakeRecipe(), BatchCode: "PB-1", ShelfLifeDays: 3, At: testNow,
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if len(batch.Ingredients) != 3 {
		t.Fatalf("expected 3 trace lines (F1, F2, E1), got %+v", batch.Ingredients)
	}
	if !batch.ExpiryDate.Equal(testNow.AddDate(0, 0, 3)) {
		t.Fatalf("unexpected expiry %s", batch.ExpiryDate)
	}
	if total := sumIngredient(t, s, "flour"); !total.Equal(dec("9")) {
		t.Fatalf("expected 9 flour left, got %s", total)
	}

	_, err = s.CompletePlanItem(context.Background(), domain.PlanItemCompletion{
		PlanID: plan.ID, ProductID: "cake", ActualQuantity: dec("1"),
		Recipe: cakeRecipe(), BatchCode: "PB-2", ShelfLifeDays: 3, At: testNow,
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state on retry, got %v", err)
	}
	if total := sumIngredient(t, s, "flour"); !total.Equal(dec("9")) {
		t.Fatalf("retry must not consume again, got %s", total)
	}
}

func seedProductBatch(t *testing.T, s *Store, id, code, qty string, expiry time.Time) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.productBatches[id] = domain.ProductBatch{
		ID: id, BatchCode: code, ProductID: "cake",
		ManufactureDate: testNow.AddDate(0, 0, -1), ExpiryDate: expiry,
		InitialQuantity: dec(qty), CurrentQuantity: dec(qty), Status: domain.BatchStatusActive,
	}
	s.productBatchCodes[code] = id
}

func TestShipShortfallLeavesBatchesUntouched(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.CreateProduct(ctx, domain.Product{ID: "cake", SKU: "CAKE", Name: "Cake", Unit: "pcs"}, nil); err != nil {
		t.Fatalf("create product: %v", err)
	}
	seedProductBatch(t, s, "b1", "B1", "3", testNow.AddDate(0, 0, 2))
	order, err := s.CreateOrder(ctx, domain.Order{
		OrderCode: "ORD-1", StoreID: "s1", Status: domain.OrderStatusPending,
		Items: []domain.OrderItem{{ProductID: "cake", Quantity: dec("5"), UnitPrice: dec("1")}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := s.TransitionOrder(ctx, order.ID, domain.OrderStatusApproved, testNow); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := s.ShipOrder(ctx, order.ID, testNow); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	got, _ := s.GetOrder(ctx, order.ID)
	if got.Status != domain.OrderStatusApproved {
		t.Fatalf("order must stay approved, got %s", got.Status)
	}
	batch, _ := s.GetProductBatch(ctx, "b1")
	if !batch.CurrentQuantity.Equal(dec("3")) || batch.Status != domain.BatchStatusActive {
		t.Fatalf("batch must be untouched, got %+v", batch)
	}
}

func TestReceiveCreditsStoreOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.CreateProduct(ctx, domain.Product{ID: "cake", SKU: "CAKE", Name: "Cake", Unit: "pcs"}, nil); err != nil {
		t.Fatalf("create product: %v", err)
	}
	seedProductBatch(t, s, "b1", "B1", "4", testNow.AddDate(0, 0, 2))
	order, _ := s.CreateOrder(ctx, domain.Order{
		OrderCode: "ORD-1", StoreID: "s1", Status: domain.OrderStatusPending,
		Items: []domain.OrderItem{{ProductID: "cake", Quantity: dec("4"), UnitPrice: dec("1")}},
	})
	if _, err := s.TransitionOrder(ctx, order.ID, domain.OrderStatusApproved, testNow); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := s.ShipOrder(ctx, order.ID, testNow); err != nil {
		t.Fatalf("ship: %v", err)
	}
	batch, _ := s.GetProductBatch(ctx, "b1")
	if batch.Status != domain.BatchStatusSoldOut {
		t.Fatalf("drained batch should be sold out, got %s", batch.Status)
	}

	if _, err := s.ReceiveOrder(ctx, order.ID, testNow); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if _, err := s.ReceiveOrder(ctx, order.ID, testNow); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on second receive, got %v", err)
	}
	lines, _ := s.ListStoreInventory(ctx, "s1")
	if len(lines) != 1 || !lines[0].Quantity.Equal(dec("4")) {
		t.Fatalf("expected one line of 4, got %+v", lines)
	}
}

func TestTransitionPlanCompletionGuard(t *testing.T) {
	s := New()
	plan := setupPlan(t, s, "5")

	_, err := s.TransitionPlan(context.Background(), plan.ID, domain.PlanStatusCompleted, testNow)
	if !errors.Is(err, store.ErrIncompletePlan) {
		t.Fatalf("expected incomplete plan, got %v", err)
	}
	got, _ := s.GetProductionPlan(context.Background(), plan.ID)
	if got.Status != domain.PlanStatusInProgress {
		t.Fatalf("status must be unchanged, got %s", got.Status)
	}

	cancelled, err := s.TransitionPlan(context.Background(), plan.ID, domain.PlanStatusCancelled, testNow)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Details[0].Status != domain.DetailStatusCancelled {
		t.Fatalf("pending detail should be cancelled, got %s", cancelled.Details[0].Status)
	}
	if _, err := s.TransitionPlan(context.Background(), plan.ID, domain.PlanStatusInProgress, testNow); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from cancelled, got %v", err)
	}
}

func TestCreateProductWithRecipeIsAtomic(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustIngredient(t, s, "flour")
	product := domain.Product{ID: "tart", SKU: "TART", Name: "Tart", Unit: "pcs", ShelfLifeDays: 2}

	_, err := s.CreateProduct(ctx, product, []domain.RecipeLine{
		{IngredientID: "flour", QuantityPerUnit: dec("0.1")},
		{IngredientID: "butter", QuantityPerUnit: dec("0.05")},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected missing ingredient to fail, got %v", err)
	}
	if _, err := s.GetProduct(ctx, "tart"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no product after failed create, got %v", err)
	}

	if _, err := s.CreateProduct(ctx, product, []domain.RecipeLine{{IngredientID: "flour", QuantityPerUnit: dec("0.1")}}); err != nil {
		t.Fatalf("expected sku to stay free, got %v", err)
	}
	recipe, err := s.GetRecipe(ctx, "tart")
	if err != nil {
		t.Fatalf("get recipe: %v", err)
	}
	if len(recipe.Lines) != 1 || !recipe.Lines[0].QuantityPerUnit.Equal(dec("0.1")) {
		t.Fatalf("unexpected recipe %+v", recipe)
	}
}
