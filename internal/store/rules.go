package store

import (
	"fmt"

	"github.com/shopspring/decimal"

	"centralkitchen/backend/internal/domain"
)

// CheckDetailTransition validates a start or cancel of plan detail idx.
// Completion has its own path, CheckDetailCompletion.
func CheckDetailTransition(plan domain.ProductionPlan, idx int, to string) error {
	detail := plan.Details[idx]
	if to == domain.DetailStatusCompleted {
		return fmt.Errorf("%w: details complete through complete-item", ErrInvalidInput)
	}
	if to == domain.DetailStatusInProgress && plan.Status != domain.PlanStatusInProgress {
		return fmt.Errorf("%w: plan %s is %s", ErrInvalidState, plan.PlanCode, plan.Status)
	}
	if plan.Status != domain.PlanStatusPlanned && plan.Status != domain.PlanStatusInProgress {
		return fmt.Errorf("%w: plan %s is %s", ErrInvalidState, plan.PlanCode, plan.Status)
	}
	if !domain.PlanDetailLifecycle.CanTransition(detail.Status, to) {
		return fmt.Errorf("%w: detail %s is %s", ErrInvalidState, detail.ProductID, detail.Status)
	}
	return nil
}

// CheckDetailCompletion applies the completion guards in order: plan state,
// detail state, then quantity bounds.
func CheckDetailCompletion(plan domain.ProductionPlan, idx int, actual decimal.Decimal) error {
	detail := plan.Details[idx]
	if plan.Status != domain.PlanStatusInProgress {
		return fmt.Errorf("%w: plan %s is %s", ErrInvalidState, plan.PlanCode, plan.Status)
	}
	if !domain.PlanDetailLifecycle.CanTransition(detail.Status, domain.DetailStatusCompleted) {
		return fmt.Errorf("%w: detail %s is %s", ErrInvalidState, detail.ProductID, detail.Status)
	}
	if !actual.IsPositive() || actual.GreaterThan(detail.PlannedQuantity) {
		return fmt.Errorf("%w: actual %s, planned %s", ErrQuantityExceedsPlan, actual, detail.PlannedQuantity)
	}
	return nil
}
