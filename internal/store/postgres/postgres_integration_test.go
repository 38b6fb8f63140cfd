package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"centralkitchen/backend/internal/domain"
	"centralkitchen/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("CENTRALKITCHEN_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set CENTRALKITCHEN_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestProductionCompletionConsumesFEFO(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	now := time.Now().UTC().Truncate(time.Microsecond)
	d := decimal.RequireFromString

	flourID := fmt.Sprintf("ing-it-flour-%d", stamp)
	productID := fmt.Sprintf("prd-it-cake-%d", stamp)
	planCode := fmt.Sprintf("PP-IT-%d", stamp)
	batchCode := fmt.Sprintf("PB-IT-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM product_batch_ingredients WHERE ingredient_id = $1`, flourID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM product_batches WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM production_plans WHERE plan_code = $1`, planCode)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM recipe_lines WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM recipes WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM ingredient_batches WHERE ingredient_id = $1`, flourID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM ingredients WHERE id = $1`, flourID)
	})

	if _, err := s.CreateIngredient(ctx, domain.Ingredient{ID: flourID, Name: flourID, Unit: "kg"}); err != nil {
		t.Fatalf("create ingredient: %v", err)
	}
	for i, expiry := range []time.Time{now.AddDate(0, 0, 20), now.AddDate(0, 0, 10)} {
		if _, err := s.CreateIngredientBatch(ctx, domain.IngredientBatch{
			IngredientID:    flourID,
			BatchCode:       fmt.Sprintf("%s-B%d", flourID, i+1),
			ReceivedDate:    now.AddDate(0, 0, -1),
			ExpiryDate:      expiry,
			InitialQuantity: d("10"),
			CurrentQuantity: d("10"),
		}); err != nil {
			t.Fatalf("create batch: %v", err)
		}
	}
	if _, err := s.CreateProduct(ctx, domain.Product{ID: productID, SKU: productID, Name: "IT Cake", Unit: "pcs", ShelfLifeDays: 2}, nil); err != nil {
		t.Fatalf("create product: %v", err)
	}
	recipe := domain.Recipe{ProductID: productID, Lines: []domain.RecipeLine{{IngredientID: flourID, QuantityPerUnit: d("1.5")}}}
	if err := s.SetRecipe(ctx, recipe); err != nil {
		t.Fatalf("set recipe: %v", err)
	}

	plan, err := s.CreateProductionPlan(ctx, domain.ProductionPlan{
		PlanCode: planCode, PlanDate: now, Status: domain.PlanStatusPlanned, CreatedAt: now, UpdatedAt: now,
		Details: []domain.ProductionPlanDetail{{ProductID: productID, PlannedQuantity: d("10"), Status: domain.DetailStatusPending}},
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if _, err := s.TransitionPlan(ctx, plan.ID, domain.PlanStatusInProgress, now); err != nil {
		t.Fatalf("start plan: %v", err)
	}

	batch, err := s.CompletePlanItem(ctx, domain.PlanItemCompletion{
		PlanID: plan.ID, ProductID: productID, ActualQuantity: d("8"), Recipe: recipe,
		BatchCode: batchCode, ShelfLifeDays: 2, At: now,
	})
	if err != nil {
		t.Fatalf("complete item: %v", err)
	}
	if len(batch.Ingredients) != 2 {
		t.Fatalf("expected 12kg drawn from two batches, got %+v", batch.Ingredients)
	}

	batches, err := s.ListIngredientBatches(ctx, flourID)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if !batches[0].CurrentQuantity.IsZero() || !batches[1].CurrentQuantity.Equal(d("8")) {
		t.Fatalf("expected earliest-expiry batch drained first, got %s and %s", batches[0].CurrentQuantity, batches[1].CurrentQuantity)
	}

	_, err = s.CompletePlanItem(ctx, domain.PlanItemCompletion{
		PlanID: plan.ID, ProductID: productID, ActualQuantity: d("1"), Recipe: recipe,
		BatchCode: batchCode + "-retry", ShelfLifeDays: 2, At: now,
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state on retry, got %v", err)
	}
}

func TestConcurrentConsumeNeverOverdraws(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	now := time.Now().UTC()
	ingredientID := fmt.Sprintf("ing-it-sugar-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM ingredient_batches WHERE ingredient_id = $1`, ingredientID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM ingredients WHERE id = $1`, ingredientID)
	})

	if _, err := s.CreateIngredient(ctx, domain.Ingredient{ID: ingredientID, Name: ingredientID, Unit: "kg"}); err != nil {
		t.Fatalf("create ingredient: %v", err)
	}
	if _, err := s.CreateIngredientBatch(ctx, domain.IngredientBatch{
		IngredientID: ingredientID, BatchCode: ingredientID + "-B1", ReceivedDate: now,
		ExpiryDate: now.AddDate(0, 1, 0), InitialQuantity: decimal.NewFromInt(5), CurrentQuantity: decimal.NewFromInt(5),
	}); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConsumeIngredient(ctx, ingredientID, decimal.NewFromInt(1), now)
			if err != nil && !errors.Is(err, store.ErrInsufficientStock) && !errors.Is(err, store.ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	batches, err := s.ListIngredientBatches(ctx, ingredientID)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if batches[0].CurrentQuantity.IsNegative() {
		t.Fatalf("stock went negative: %s", batches[0].CurrentQuantity)
	}
}

func TestCreateProductWithRecipeIsAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prd-it-tart-%d", stamp)
	sku := fmt.Sprintf("TART-IT-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM recipe_lines WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM recipes WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	product := domain.Product{ID: productID, SKU: sku, Name: "IT Tart", Unit: "pcs", ShelfLifeDays: 2}
	_, err := s.CreateProduct(ctx, product, []domain.RecipeLine{{IngredientID: "ing-it-missing", QuantityPerUnit: decimal.RequireFromString("0.2")}})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected missing ingredient to fail, got %v", err)
	}
	if _, err := s.GetProduct(ctx, productID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no product after failed create, got %v", err)
	}
	if _, err := s.CreateProduct(ctx, product, nil); err != nil {
		t.Fatalf("expected sku to stay free, got %v", err)
	}
}

func TestTransitionOrderRejectsStaleStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	now := time.Now().UTC().Truncate(time.Microsecond)
	productID := fmt.Sprintf("prd-it-roll-%d", stamp)
	orderCode := fmt.Sprintf("ORD-IT-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE order_code = $1`, orderCode)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.CreateProduct(ctx, domain.Product{ID: productID, SKU: productID, Name: "IT Roll", Unit: "pcs", ShelfLifeDays: 2}, nil); err != nil {
		t.Fatalf("create product: %v", err)
	}
	order, err := s.CreateOrder(ctx, domain.Order{
		OrderCode: orderCode, StoreID: "store-it", Status: domain.OrderStatusPending, CreatedAt: now, UpdatedAt: now,
		Items: []domain.OrderItem{{ProductID: productID, Quantity: decimal.NewFromInt(2), UnitPrice: decimal.Zero}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := s.TransitionOrder(ctx, order.ID, domain.OrderStatusApproved, now); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, err = s.TransitionOrder(ctx, order.ID, domain.OrderStatusApproved, now)
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected second approve to fail, got %v", err)
	}
	if !strings.Contains(err.Error(), orderCode) {
		t.Fatalf("expected error to name %s, got %v", orderCode, err)
	}
}
