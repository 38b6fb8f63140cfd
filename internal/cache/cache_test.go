package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"centralkitchen/backend/internal/domain"
)

func TestMemoryRecipeCacheExpires(t *testing.T) {
	c := NewMemoryRecipeCache()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	recipe := domain.Recipe{ProductID: "p1", Lines: []domain.RecipeLine{{IngredientID: "flour", QuantityPerUnit: decimal.NewFromInt(2)}}}
	if err := c.Set(context.Background(), recipe, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := c.Get(context.Background(), "p1")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	got.Lines[0].IngredientID = "mutated"

	again, _, _ := c.Get(context.Background(), "p1")
	if again.Lines[0].IngredientID != "flour" {
		t.Fatalf("cached recipe must not alias caller copies")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(context.Background(), "p1"); ok {
		t.Fatalf("expected miss after ttl")
	}
}

func TestMemoryRecipeCacheDelete(t *testing.T) {
	c := NewMemoryRecipeCache()
	_ = c.Set(context.Background(), domain.Recipe{ProductID: "p1"}, 0)
	if err := c.Delete(context.Background(), "p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := c.Get(context.Background(), "p1"); ok {
		t.Fatalf("expected miss after delete")
	}
}
