package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"centralkitchen/backend/internal/domain"
	"centralkitchen/backend/internal/store"
	"centralkitchen/backend/internal/xid"
)

func (s *Service) CreateIngredient(ctx context.Context, req domain.IngredientCreateRequest) (domain.Ingredient, error) {
	if err := requireRole(ctx, domain.RoleKitchen); err != nil {
		return domain.Ingredient{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if req.Name == "" || req.Unit == "" {
		return domain.Ingredient{}, fmt.Errorf("%w: name and unit are required", store.ErrInvalidInput)
	}
	if req.CostPrice.IsNegative() || req.WarningThreshold.IsNegative() {
		return domain.Ingredient{}, fmt.Errorf("%w: cost price and threshold must not be negative", store.ErrInvalidInput)
	}
	if err := checkScale("warning_threshold", req.WarningThreshold); err != nil {
		return domain.Ingredient{}, err
	}

	created, err := s.repo.CreateIngredient(ctx, domain.Ingredient{
		ID:               xid.New("ing"),
		Name:             req.Name,
		Unit:             req.Unit,
		CostPrice:        req.CostPrice,
		WarningThreshold: req.WarningThreshold,
		Active:           true,
		CreatedAt:        s.now(),
	})
	if err != nil {
		return domain.Ingredient{}, err
	}

	s.logAudit(ctx, "ingredient_create", "ingredient", created.ID, fmt.Sprintf("name=%s,unit=%s", created.Name, created.Unit))
	return *created, nil
}

func (s *Service) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	return s.repo.ListIngredients(ctx)
}

// ReceiveIngredientBatch records a delivery of raw stock as a new batch.
func (s *Service) ReceiveIngredientBatch(ctx context.Context, req domain.IngredientBatchReceiveRequest) (domain.IngredientBatch, error) {
	if err := requireRole(ctx, domain.RoleKitchen); err != nil {
		return domain.IngredientBatch{}, err
	}

	now := s.now()
	req.IngredientID = strings.TrimSpace(req.IngredientID)
	req.BatchCode = strings.ToUpper(strings.TrimSpace(req.BatchCode))
	if req.IngredientID == "" {
		return domain.IngredientBatch{}, fmt.Errorf("%w: ingredient_id is required", store.ErrInvalidInput)
	}
	if !req.Quantity.IsPositive() {
		return domain.IngredientBatch{}, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	if err := checkScale("quantity", req.Quantity); err != nil {
		return domain.IngredientBatch{}, err
	}

	received, err := parseDate(req.ReceivedDate, now)
	if err != nil {
		return domain.IngredientBatch{}, err
	}
	expiry, err := parseExpiry(req.ExpiryDate)
	if err != nil {
		return domain.IngredientBatch{}, err
	}
	if expiry.Before(received) {
		return domain.IngredientBatch{}, fmt.Errorf("%w: expiry date precedes received date", store.ErrInvalidInput)
	}
	if req.BatchCode == "" {
		req.BatchCode = xid.Code("IB", now)
	}

	created, err := s.repo.CreateIngredientBatch(ctx, domain.IngredientBatch{
		ID:              xid.New("ib"),
		IngredientID:    req.IngredientID,
		BatchCode:       req.BatchCode,
		ReceivedDate:    received,
		ExpiryDate:      expiry,
		InitialQuantity: req.Quantity,
		CurrentQuantity: req.Quantity,
		SupplierRef:     strings.TrimSpace(req.SupplierRef),
		Active:          true,
	})
	if err != nil {
		return domain.IngredientBatch{}, err
	}

	s.logAudit(ctx, "ingredient_batch_receive", "ingredient_batch", created.ID, fmt.Sprintf("ingredient=%s,code=%s,qty=%s,expiry=%s", created.IngredientID, created.BatchCode, created.InitialQuantity, created.ExpiryDate.Format("2006-01-02")))
	return *created, nil
}

func (s *Service) ListIngredientBatches(ctx context.Context, ingredientID string) ([]domain.IngredientBatch, error) {
	return s.repo.ListIngredientBatches(ctx, strings.TrimSpace(ingredientID))
}

// GetOnHand sums active, unexpired batches. Empty and expired batches are
// left out of both the total and the batch list.
func (s *Service) GetOnHand(ctx context.Context, ingredientID string) (domain.OnHand, error) {
	ingredient, err := s.repo.GetIngredient(ctx, ingredientID)
	if err != nil {
		return domain.OnHand{}, err
	}
	batches, err := s.repo.ListIngredientBatches(ctx, ingredient.ID)
	if err != nil {
		return domain.OnHand{}, err
	}

	now := s.now()
	onHand := domain.OnHand{
		IngredientID:  ingredient.ID,
		Unit:          ingredient.Unit,
		TotalQuantity: decimal.Zero,
		Batches:       make([]domain.IngredientBatch, 0, len(batches)),
	}
	for _, batch := range batches {
		if !batch.Usable(now) {
			continue
		}
		onHand.TotalQuantity = onHand.TotalQuantity.Add(batch.CurrentQuantity)
		onHand.Batches = append(onHand.Batches, batch)
	}
	return onHand, nil
}

// ReserveAndConsume deducts exactly quantity from the ingredient's batches in
// FEFO order, or nothing at all.
func (s *Service) ReserveAndConsume(ctx context.Context, ingredientID string, quantity decimal.Decimal) ([]domain.BatchConsumption, error) {
	if err := requireRole(ctx, domain.RoleKitchen); err != nil {
		return nil, err
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	if err := checkScale("quantity", quantity); err != nil {
		return nil, err
	}

	consumed, err := s.repo.ConsumeIngredient(ctx, ingredientID, quantity, s.now())
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "ingredient_consume", "ingredient", ingredientID, fmt.Sprintf("qty=%s,batches=%d", quantity, len(consumed)))
	return consumed, nil
}

func (s *Service) DeactivateIngredientBatch(ctx context.Context, batchID string) (domain.IngredientBatch, error) {
	if err := requireRole(ctx, domain.RoleKitchen); err != nil {
		return domain.IngredientBatch{}, err
	}

	batch, err := s.repo.DeactivateIngredientBatch(ctx, batchID)
	if err != nil {
		return domain.IngredientBatch{}, err
	}

	s.logAudit(ctx, "ingredient_batch_deactivate", "ingredient_batch", batch.ID, batch.BatchCode)
	return *batch, nil
}

// CorrectIngredientBatch is the only path that may raise a batch's current
// quantity, and never above its initial quantity.
func (s *Service) CorrectIngredientBatch(ctx context.Context, batchID string, req domain.IngredientBatchCorrectRequest) (domain.IngredientBatch, error) {
	if err := requireRole(ctx, domain.RoleKitchen); err != nil {
		return domain.IngredientBatch{}, err
	}

	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return domain.IngredientBatch{}, fmt.Errorf("%w: reason is required", store.ErrInvalidInput)
	}
	if req.Quantity.IsNegative() {
		return domain.IngredientBatch{}, fmt.Errorf("%w: quantity must not be negative", store.ErrInvalidInput)
	}
	if err := checkScale("quantity", req.Quantity); err != nil {
		return domain.IngredientBatch{}, err
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system"}
	}
	before, err := s.repo.GetIngredientBatch(ctx, batchID)
	if err != nil {
		return domain.IngredientBatch{}, err
	}

	batch, err := s.repo.CorrectIngredientBatch(ctx, domain.IngredientCorrection{
		ID:          xid.New("corr"),
		BatchID:     batchID,
		NewQuantity: req.Quantity,
		Reason:      req.Reason,
		CorrectedBy: actor.Username,
		CorrectedAt: s.now(),
	})
	if err != nil {
		return domain.IngredientBatch{}, err
	}

	s.logAudit(ctx, "ingredient_batch_correct", "ingredient_batch", batch.ID, fmt.Sprintf("from=%s,to=%s,reason=%s", before.CurrentQuantity, batch.CurrentQuantity, req.Reason))
	return *batch, nil
}
