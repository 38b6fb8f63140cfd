package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"centralkitchen/backend/internal/domain"
	"centralkitchen/backend/internal/store"
	"centralkitchen/backend/internal/xid"
)

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireRole(ctx); err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if req.SKU == "" || req.Name == "" || req.Unit == "" {
		return domain.Product{}, fmt.Errorf("%w: sku, name and unit are required", store.ErrInvalidInput)
	}
	if req.Price.IsNegative() || req.ShelfLifeDays < 1 {
		return domain.Product{}, fmt.Errorf("%w: price must not be negative and shelf life must be at least one day", store.ErrInvalidInput)
	}
	if len(req.Recipe) > 0 {
		if err := s.validateRecipeLines(ctx, req.Recipe); err != nil {
			return domain.Product{}, err
		}
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:            xid.New("prd"),
		SKU:           req.SKU,
		Name:          req.Name,
		Unit:          req.Unit,
		Price:         req.Price,
		ShelfLifeDays: req.ShelfLifeDays,
		Active:        true,
		CreatedAt:     s.now(),
	}, req.Recipe)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("sku=%s,price=%s,shelf_life=%d,recipe_lines=%d", created.SKU, created.Price, created.ShelfLifeDays, len(req.Recipe)))
	return *created, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetRecipe(ctx context.Context, productID string) (domain.Recipe, error) {
	return s.resolveRecipe(ctx, productID)
}

// SetRecipe replaces the whole recipe and drops the cached copy.
func (s *Service) SetRecipe(ctx context.Context, productID string, req domain.RecipeUpdateRequest) (domain.Recipe, error) {
	if err := requireRole(ctx, domain.RoleKitchen); err != nil {
		return domain.Recipe{}, err
	}
	if len(req.Lines) == 0 {
		return domain.Recipe{}, fmt.Errorf("%w: recipe needs at least one line", store.ErrInvalidInput)
	}
	if err := s.validateRecipeLines(ctx, req.Lines); err != nil {
		return domain.Recipe{}, err
	}

	recipe := domain.Recipe{ProductID: productID, Lines: req.Lines, UpdatedAt: s.now()}
	if err := s.repo.SetRecipe(ctx, recipe); err != nil {
		return domain.Recipe{}, err
	}
	if err := s.recipes.Delete(ctx, productID); err != nil {
		log.Printf("[service] WARN: failed to invalidate recipe cache product=%s: %v", productID, err)
	}

	s.logAudit(ctx, "recipe_update", "product", productID, fmt.Sprintf("lines=%d", len(recipe.Lines)))
	return recipe, nil
}

func (s *Service) validateRecipeLines(ctx context.Context, lines []domain.RecipeLine) error {
	for i := range lines {
		lines[i].IngredientID = strings.TrimSpace(lines[i].IngredientID)
		if lines[i].IngredientID == "" || !lines[i].QuantityPerUnit.IsPositive() {
			return fmt.Errorf("%w: recipe line %d needs an ingredient and a positive quantity", store.ErrInvalidInput, i+1)
		}
		if err := checkScale("quantity_per_unit", lines[i].QuantityPerUnit); err != nil {
			return err
		}
		if _, err := s.repo.GetIngredient(ctx, lines[i].IngredientID); err != nil {
			return fmt.Errorf("ingredient %s: %w", lines[i].IngredientID, err)
		}
	}
	return nil
}

// resolveRecipe reads through the recipe cache. Cache failures fall back to
// the store and are only logged.
func (s *Service) resolveRecipe(ctx context.Context, productID string) (domain.Recipe, error) {
	cached, ok, err := s.recipes.Get(ctx, productID)
	if err != nil {
		log.Printf("[service] WARN: recipe cache read failed product=%s: %v", productID, err)
	}
	if ok && cached != nil && len(cached.Lines) > 0 {
		return *cached, nil
	}

	recipe, err := s.repo.GetRecipe(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Recipe{}, fmt.Errorf("product %s: %w", productID, ErrRecipeMissing)
	}
	if err != nil {
		return domain.Recipe{}, err
	}
	if len(recipe.Lines) == 0 {
		return domain.Recipe{}, fmt.Errorf("product %s: %w", productID, ErrRecipeMissing)
	}

	if err := s.recipes.Set(ctx, *recipe, s.recipeTTL); err != nil {
		log.Printf("[service] WARN: recipe cache write failed product=%s: %v", productID, err)
	}
	return *recipe, nil
}
