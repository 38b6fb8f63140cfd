package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"centralkitchen/backend/internal/domain"
)

// RecipeCache holds recipes by product id in front of the store.
type RecipeCache interface {
	Get(ctx context.Context, productID string) (*domain.Recipe, bool, error)
	Set(ctx context.Context, recipe domain.Recipe, ttl time.Duration) error
	Delete(ctx context.Context, productID string) error
}

type NoopRecipeCache struct{}

func (NoopRecipeCache) Get(_ context.Context, _ string) (*domain.Recipe, bool, error) {
	return nil, false, nil
}

func (NoopRecipeCache) Set(_ context.Context, _ domain.Recipe, _ time.Duration) error {
	return nil
}

func (NoopRecipeCache) Delete(_ context.Context, _ string) error {
	return nil
}

type memoryEntry struct {
	recipe    domain.Recipe
	expiresAt time.Time
}

// MemoryRecipeCache is an in-process cache for single-instance deployments and tests.
type MemoryRecipeCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryRecipeCache() *MemoryRecipeCache {
	return &MemoryRecipeCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryRecipeCache) Get(_ context.Context, productID string) (*domain.Recipe, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[productID]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		delete(c.entries, productID)
		return nil, false, nil
	}
	recipe := entry.recipe
	recipe.Lines = slices.Clone(entry.recipe.Lines)
	return &recipe, true, nil
}

func (c *MemoryRecipeCache) Set(_ context.Context, recipe domain.Recipe, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{recipe: recipe}
	entry.recipe.Lines = slices.Clone(recipe.Lines)
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[recipe.ProductID] = entry
	return nil
}

func (c *MemoryRecipeCache) Delete(_ context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, productID)
	return nil
}
