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

func (s *Service) CreatePlan(ctx context.Context, req domain.ProductionPlanCreateRequest) (domain.ProductionPlan, error) {
	if err := requireRole(ctx, domain.RoleKitchen); err != nil {
		return domain.ProductionPlan{}, err
	}

	details, err := mergePlanDetails(req.Details)
	if err != nil {
		return domain.ProductionPlan{}, err
	}

	ids := make([]string, 0, len(details))
	for _, detail := range details {
		ids = append(ids, detail.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.ProductionPlan{}, err
	}
	for _, id := range ids {
		product, ok := products[id]
		if !ok || !product.Active {
			return domain.ProductionPlan{}, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
	}

	now := s.now()
	planDate, err := parseDate(req.PlanDate, startOfDay(now))
	if err != nil {
		return domain.ProductionPlan{}, err
	}
	code := strings.ToUpper(strings.TrimSpace(req.PlanCode))
	if code == "" {
		code = xid.Code("PP", now)
	}
	actor, _ := ActorFromContext(ctx)

	created, err := s.repo.CreateProductionPlan(ctx, domain.ProductionPlan{
		ID:        xid.New("plan"),
		PlanCode:  code,
		PlanDate:  planDate,
		Status:    domain.PlanStatusPlanned,
		Notes:     strings.TrimSpace(req.Notes),
		Details:   details,
		CreatedBy: actor.Username,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.ProductionPlan{}, err
	}

	s.logAudit(ctx, "production_plan_create", "production_plan", created.ID, fmt.Sprintf("code=%s,details=%d", created.PlanCode, len(created.Details)))
	return *created, nil
}

// mergePlanDetails sums duplicate product lines, keeping first-seen order.
func mergePlanDetails(inputs []domain.PlanDetailInput) ([]domain.ProductionPlanDetail, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: plan needs at least one detail", store.ErrInvalidInput)
	}

	details := make([]domain.ProductionPlanDetail, 0, len(inputs))
	index := make(map[string]int, len(inputs))
	for _, input := range inputs {
		productID := strings.TrimSpace(input.ProductID.ID)
		if productID == "" || !input.PlannedQuantity.IsPositive() {
			return nil, fmt.Errorf("%w: each detail needs a product and a positive planned quantity", store.ErrInvalidInput)
		}
		if err := checkScale("planned_quantity", input.PlannedQuantity); err != nil {
			return nil, err
		}
		if i, ok := index[productID]; ok {
			details[i].PlannedQuantity = details[i].PlannedQuantity.Add(input.PlannedQuantity)
			continue
		}
		index[productID] = len(details)
		details = append(details, domain.ProductionPlanDetail{
			ProductID:       productID,
			PlannedQuantity: input.PlannedQuantity,
			ActualQuantity:  decimal.Zero,
			Status:          domain.DetailStatusPending,
		})
	}
	return details, nil
}

func (s *Service) GetPlan(ctx context.Context, planID string) (domain.ProductionPlan, error) {
	plan, err := s.repo.GetProductionPlan(ctx, planID)
	if err != nil {
		return domain.ProductionPlan{}, err
	}
	return *plan, nil
}

func (s *Service) ListPlans(ctx context.Context, status string, limit int) ([]domain.ProductionPlan, error) {
	status = strings.TrimSpace(status)
	if status != "" && !domain.PlanLifecycle.Valid(status) {
		return nil, fmt.Errorf("%w: unknown plan status %q", store.ErrInvalidInput, status)
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.repo.ListProductionPlans(ctx, status, limit)
}

// UpdatePlanStatus moves a plan through Planned, In_Progress, Completed and
// Cancelled. Completion fails with ErrIncompletePlan while any detail is unsettled.
func (s *Service) UpdatePlanStatus(ctx context.Context, planID string, to string) (domain.ProductionPlan, error) {
	if err := requireRole(ctx, domain.RoleKitchen); err != nil {
		return domain.ProductionPlan{}, err
	}
	to = strings.TrimSpace(to)
	if !domain.PlanLifecycle.Valid(to) {
		return domain.ProductionPlan{}, fmt.Errorf("%w: unknown plan status %q", store.ErrInvalidInput, to)
	}

	plan, err := s.repo.TransitionPlan(ctx, planID, to, s.now())
	if err != nil {
		return domain.ProductionPlan{}, err
	}

	s.logAudit(ctx, "production_plan_status", "production_plan", plan.ID, "status="+plan.Status)
	return *plan, nil
}

func (s *Service) StartItem(ctx context.Context, planID string, productID string) (domain.ProductionPlan, error) {
	return s.transitionItem(ctx, planID, productID, domain.DetailStatusInProgress, "production_item_start")
}

func (s *Service) CancelItem(ctx context.Context, planID string, productID string) (domain.ProductionPlan, error) {
	return s.transitionItem(ctx, planID, productID, domain.DetailStatusCancelled, "production_item_cancel")
}

func (s *Service) transitionItem(ctx context.Context, planID string, productID string, to string, action string) (domain.ProductionPlan, error) {
	if err := requireRole(ctx, domain.RoleKitchen); err != nil {
		return domain.ProductionPlan{}, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.ProductionPlan{}, fmt.Errorf("%w: product_id is required", store.ErrInvalidInput)
	}

	plan, err := s.repo.TransitionPlanDetail(ctx, planID, productID, to, s.now())
	if err != nil {
		return domain.ProductionPlan{}, err
	}

	s.logAudit(ctx, action, "production_plan", plan.ID, "product="+productID)
	return *plan, nil
}

// CompleteItem consumes the recipe's ingredients FEFO for actual units, creates
// the finished-goods batch and completes the plan detail in one store write.
// A retry on a completed detail fails with ErrInvalidState and consumes nothing.
func (s *Service) CompleteItem(ctx context.Context, planID string, productID string, actual decimal.Decimal) (domain.ProductBatch, error) {
	if err := requireRole(ctx, domain.RoleKitchen); err != nil {
		return domain.ProductBatch{}, err
	}
	if err := checkScale("actual_quantity", actual); err != nil {
		return domain.ProductBatch{}, err
	}

	plan, err := s.repo.GetProductionPlan(ctx, planID)
	if err != nil {
		return domain.ProductBatch{}, err
	}
	idx, ok := plan.DetailIndex(productID)
	if !ok {
		return domain.ProductBatch{}, fmt.Errorf("plan detail %s: %w", productID, store.ErrNotFound)
	}
	if err := store.CheckDetailCompletion(*plan, idx, actual); err != nil {
		return domain.ProductBatch{}, err
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.ProductBatch{}, err
	}
	recipe, err := s.resolveRecipe(ctx, productID)
	if err != nil {
		return domain.ProductBatch{}, err
	}

	now := s.now()
	batch, err := s.repo.CompletePlanItem(ctx, domain.PlanItemCompletion{
		PlanID:         plan.ID,
		ProductID:      productID,
		ActualQuantity: actual,
		Recipe:         recipe,
		BatchID:        xid.New("pb"),
		BatchCode:      xid.Code("PB", now),
		ShelfLifeDays:  product.ShelfLifeDays,
		At:             now,
	})
	if err != nil {
		return domain.ProductBatch{}, err
	}

	s.logAudit(ctx, "production_item_complete", "production_plan", plan.ID, fmt.Sprintf("product=%s,actual=%s,batch=%s,ingredient_draws=%d", productID, actual, batch.BatchCode, len(batch.Ingredients)))
	return *batch, nil
}
