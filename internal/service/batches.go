package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"centralkitchen/backend/internal/domain"
	"centralkitchen/backend/internal/store"
)

// ListActiveBatches returns allocatable batches of a product in FEFO order.
// Expiry is evaluated now, whatever the stored status says.
func (s *Service) ListActiveBatches(ctx context.Context, productID string) ([]domain.ProductBatch, error) {
	return s.listBatches(ctx, productID, false)
}

func (s *Service) ListBatches(ctx context.Context, productID string, includeInactive bool) ([]domain.ProductBatch, error) {
	return s.listBatches(ctx, productID, includeInactive)
}

func (s *Service) listBatches(ctx context.Context, productID string, includeInactive bool) ([]domain.ProductBatch, error) {
	batches, err := s.repo.ListProductBatches(ctx, strings.TrimSpace(productID))
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := make([]domain.ProductBatch, 0, len(batches))
	for _, batch := range batches {
		if !includeInactive && !batch.Allocatable(now) {
			continue
		}
		batch.Status = batch.EffectiveStatus(now)
		result = append(result, batch)
	}
	return result, nil
}

// Allocate draws quantity from the product's batches FEFO. Batches drained to
// zero become SoldOut. On shortfall nothing is drawn.
func (s *Service) Allocate(ctx context.Context, productID string, quantity decimal.Decimal) ([]domain.BatchDraw, error) {
	if err := requireRole(ctx, domain.RoleKitchen); err != nil {
		return nil, err
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	if err := checkScale("quantity", quantity); err != nil {
		return nil, err
	}

	draws, err := s.repo.AllocateProduct(ctx, productID, quantity, s.now())
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "product_allocate", "product", productID, fmt.Sprintf("qty=%s,batches=%d", quantity, len(draws)))
	return draws, nil
}

func (s *Service) RecallBatch(ctx context.Context, batchID string) (domain.ProductBatch, error) {
	if err := requireRole(ctx, domain.RoleKitchen); err != nil {
		return domain.ProductBatch{}, err
	}

	batch, err := s.repo.RecallProductBatch(ctx, batchID, s.now())
	if err != nil {
		return domain.ProductBatch{}, err
	}

	s.logAudit(ctx, "product_batch_recall", "product_batch", batch.ID, batch.BatchCode)
	return *batch, nil
}

// GetBatchTrace resolves a finished-goods batch back to the ingredient batches
// it was produced from.
func (s *Service) GetBatchTrace(ctx context.Context, batchID string) (domain.BatchTrace, error) {
	batch, err := s.repo.GetProductBatch(ctx, batchID)
	if err != nil {
		return domain.BatchTrace{}, err
	}
	product, err := s.repo.GetProduct(ctx, batch.ProductID)
	if err != nil {
		return domain.BatchTrace{}, err
	}

	trace := domain.BatchTrace{
		Product:     *product,
		Ingredients: make([]domain.BatchTraceLine, 0, len(batch.Ingredients)),
	}
	plan, err := s.repo.GetProductionPlan(ctx, batch.PlanID)
	switch {
	case err == nil:
		trace.PlanCode = plan.PlanCode
	case !errors.Is(err, store.ErrNotFound):
		return domain.BatchTrace{}, err
	}

	names := make(map[string]string, len(batch.Ingredients))
	for _, used := range batch.Ingredients {
		source, err := s.repo.GetIngredientBatch(ctx, used.IngredientBatchID)
		if err != nil {
			return domain.BatchTrace{}, fmt.Errorf("ingredient batch %s: %w", used.IngredientBatchID, err)
		}
		name, ok := names[source.IngredientID]
		if !ok {
			ingredient, err := s.repo.GetIngredient(ctx, source.IngredientID)
			if err != nil {
				return domain.BatchTrace{}, err
			}
			name = ingredient.Name
			names[source.IngredientID] = name
		}
		trace.Ingredients = append(trace.Ingredients, domain.BatchTraceLine{
			IngredientBatchID: source.ID,
			BatchCode:         source.BatchCode,
			IngredientID:      source.IngredientID,
			IngredientName:    name,
			QuantityUsed:      used.QuantityUsed,
			ExpiryDate:        source.ExpiryDate,
		})
	}

	batch.Status = batch.EffectiveStatus(s.now())
	trace.Batch = *batch
	return trace, nil
}
