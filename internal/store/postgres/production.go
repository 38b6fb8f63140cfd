package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"centralkitchen/backend/internal/domain"
	"centralkitchen/backend/internal/fefo"
	"centralkitchen/backend/internal/store"
	"centralkitchen/backend/internal/xid"
)

func (s *Store) CreateProductionPlan(ctx context.Context, plan domain.ProductionPlan) (*domain.ProductionPlan, error) {
	if plan.PlanCode == "" || len(plan.Details) == 0 {
		return nil, store.ErrInvalidInput
	}
	if plan.ID == "" {
		plan.ID = xid.New("plan")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO production_plans (id, plan_code, plan_date, status, notes, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, plan.ID, plan.PlanCode, nowDateUTC(plan.PlanDate), plan.Status, nullIfEmpty(plan.Notes),
		nullIfEmpty(plan.CreatedBy), plan.CreatedAt, plan.UpdatedAt); err != nil {
		return nil, mapWriteError(err)
	}
	for i, detail := range plan.Details {
		if !detail.PlannedQuantity.IsPositive() {
			return nil, store.ErrInvalidInput
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO production_plan_details (plan_id, line_no, product_id, planned_quantity, actual_quantity, status)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, plan.ID, i+1, detail.ProductID, detail.PlannedQuantity, detail.ActualQuantity, detail.Status); err != nil {
			if isForeignKeyViolation(err) {
				return nil, fmt.Errorf("product %s: %w", detail.ProductID, store.ErrNotFound)
			}
			return nil, mapWriteError(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	plan.PlanDate = nowDateUTC(plan.PlanDate)
	return &plan, nil
}

func (s *Store) GetProductionPlan(ctx context.Context, id string) (*domain.ProductionPlan, error) {
	return loadPlan(ctx, s.db, id, false)
}

func (s *Store) ListProductionPlans(ctx context.Context, status string, limit int) ([]domain.ProductionPlan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM production_plans
		WHERE ($1 = '' OR status = $1)
		ORDER BY plan_date DESC, plan_code DESC
		LIMIT $2
	`, status, limitArg(limit))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, 32)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	plans := make([]domain.ProductionPlan, 0, len(ids))
	for _, id := range ids {
		plan, err := loadPlan(ctx, s.db, id, false)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	return plans, nil
}

// loadPlan reads a plan with its details. With forUpdate the plan and detail
// rows stay locked until the surrounding transaction ends.
func loadPlan(ctx context.Context, q querier, id string, forUpdate bool) (*domain.ProductionPlan, error) {
	lock := ""
	if forUpdate {
		lock = " FOR UPDATE"
	}

	var plan domain.ProductionPlan
	var notes, createdBy sql.NullString
	var startedAt, completedAt, cancelledAt sql.NullTime
	err := q.QueryRowContext(ctx, `
		SELECT id, plan_code, plan_date, status, notes, created_by, created_at, updated_at,
		       started_at, completed_at, cancelled_at
		FROM production_plans
		WHERE id = $1`+lock, id).Scan(
		&plan.ID, &plan.PlanCode, &plan.PlanDate, &plan.Status, &notes, &createdBy,
		&plan.CreatedAt, &plan.UpdatedAt, &startedAt, &completedAt, &cancelledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	plan.Notes = notes.String
	plan.CreatedBy = createdBy.String
	plan.PlanDate = plan.PlanDate.UTC()
	plan.CreatedAt = plan.CreatedAt.UTC()
	plan.UpdatedAt = plan.UpdatedAt.UTC()
	plan.StartedAt = timePtr(startedAt)
	plan.CompletedAt = timePtr(completedAt)
	plan.CancelledAt = timePtr(cancelledAt)

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, planned_quantity, actual_quantity, status, COALESCE(batch_id, ''), completed_at
		FROM production_plan_details
		WHERE plan_id = $1
		ORDER BY line_no ASC`+lock, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var detail domain.ProductionPlanDetail
		var detailCompletedAt sql.NullTime
		if err := rows.Scan(&detail.ProductID, &detail.PlannedQuantity, &detail.ActualQuantity,
			&detail.Status, &detail.BatchID, &detailCompletedAt); err != nil {
			return nil, err
		}
		detail.CompletedAt = timePtr(detailCompletedAt)
		plan.Details = append(plan.Details, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *Store) TransitionPlan(ctx context.Context, planID string, to string, at time.Time) (*domain.ProductionPlan, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	plan, err := loadPlan(ctx, tx, planID, true)
	if err != nil {
		return nil, err
	}
	if !domain.PlanLifecycle.CanTransition(plan.Status, to) {
		return nil, fmt.Errorf("%w: plan %s cannot move from %s to %s", store.ErrInvalidTransition, plan.PlanCode, plan.Status, to)
	}
	if to == domain.PlanStatusCompleted && !plan.Settled() {
		return nil, fmt.Errorf("%w: plan %s has unsettled details", store.ErrIncompletePlan, plan.PlanCode)
	}

	column := map[string]string{
		domain.PlanStatusInProgress: "started_at",
		domain.PlanStatusCompleted:  "completed_at",
		domain.PlanStatusCancelled:  "cancelled_at",
	}[to]
	res, err := tx.ExecContext(ctx, `
		UPDATE production_plans
		SET status = $3, updated_at = $4, `+column+` = $4
		WHERE id = $1 AND status = $2
	`, planID, plan.Status, to, at)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, fmt.Errorf("%w: plan %s changed concurrently", store.ErrInvalidTransition, plan.PlanCode)
	}

	if to == domain.PlanStatusCancelled {
		if _, err := tx.ExecContext(ctx, `
			UPDATE production_plan_details
			SET status = $2
			WHERE plan_id = $1 AND status IN ($3, $4)
		`, planID, domain.DetailStatusCancelled, domain.DetailStatusPending, domain.DetailStatusInProgress); err != nil {
			return nil, err
		}
	}

	updated, err := loadPlan(ctx, tx, planID, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

func (s *Store) TransitionPlanDetail(ctx context.Context, planID string, productID string, to string, at time.Time) (*domain.ProductionPlan, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	plan, err := loadPlan(ctx, tx, planID, true)
	if err != nil {
		return nil, err
	}
	idx, ok := plan.DetailIndex(productID)
	if !ok {
		return nil, fmt.Errorf("plan detail %s: %w", productID, store.ErrNotFound)
	}
	if err := store.CheckDetailTransition(*plan, idx, to); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE production_plan_details SET status = $3 WHERE plan_id = $1 AND product_id = $2
	`, planID, productID, to); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE production_plans SET updated_at = $2 WHERE id = $1`, planID, at); err != nil {
		return nil, err
	}

	updated, err := loadPlan(ctx, tx, planID, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

// CompletePlanItem runs the whole completion write set in one serializable
// transaction: ingredient draws, product batch, traceability and detail update.
func (s *Store) CompletePlanItem(ctx context.Context, c domain.PlanItemCompletion) (*domain.ProductBatch, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	plan, err := loadPlan(ctx, tx, c.PlanID, true)
	if err != nil {
		return nil, fmt.Errorf("production plan %s: %w", c.PlanID, err)
	}
	idx, ok := plan.DetailIndex(c.ProductID)
	if !ok {
		return nil, fmt.Errorf("plan detail %s: %w", c.ProductID, store.ErrNotFound)
	}
	if err := store.CheckDetailCompletion(*plan, idx, c.ActualQuantity); err != nil {
		return nil, err
	}
	if len(c.Recipe.Lines) == 0 {
		return nil, fmt.Errorf("%w: product %s has no recipe", store.ErrInvalidState, c.ProductID)
	}

	used := make([]domain.BatchIngredient, 0, len(c.Recipe.Lines))
	for _, req := range c.Recipe.Requirements(c.ActualQuantity) {
		if !req.Quantity.IsPositive() {
			continue
		}
		consumed, err := consumeIngredientTx(ctx, tx, req.IngredientID, req.Quantity, c.At)
		if err != nil {
			return nil, mapWriteError(err)
		}
		for _, item := range consumed {
			used = append(used, domain.BatchIngredient{
				IngredientID:      item.IngredientID,
				IngredientBatchID: item.IngredientBatchID,
				QuantityUsed:      item.Quantity,
			})
		}
	}

	batchID := c.BatchID
	if batchID == "" {
		batchID = xid.New("pb")
	}
	batch := domain.ProductBatch{
		ID:              batchID,
		BatchCode:       c.BatchCode,
		PlanID:          c.PlanID,
		ProductID:       c.ProductID,
		ManufactureDate: c.At,
		ExpiryDate:      c.At.AddDate(0, 0, c.ShelfLifeDays),
		InitialQuantity: c.ActualQuantity,
		CurrentQuantity: c.ActualQuantity,
		Status:          domain.BatchStatusActive,
		Ingredients:     used,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO product_batches (
			id, batch_code, plan_id, product_id, manufacture_date, expiry_date,
			initial_quantity, current_quantity, status, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$5)
	`, batch.ID, batch.BatchCode, batch.PlanID, batch.ProductID, batch.ManufactureDate, batch.ExpiryDate,
		batch.InitialQuantity, batch.CurrentQuantity, batch.Status); err != nil {
		return nil, mapWriteError(err)
	}
	for _, item := range mergeBatchIngredients(used) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO product_batch_ingredients (product_batch_id, ingredient_batch_id, ingredient_id, quantity_used)
			VALUES ($1,$2,$3,$4)
		`, batch.ID, item.IngredientBatchID, item.IngredientID, item.QuantityUsed); err != nil {
			return nil, err
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE production_plan_details
		SET status = $3, actual_quantity = $4, batch_id = $5, completed_at = $6
		WHERE plan_id = $1 AND product_id = $2 AND status IN ($7, $8)
	`, c.PlanID, c.ProductID, domain.DetailStatusCompleted, c.ActualQuantity, batch.ID, c.At,
		domain.DetailStatusPending, domain.DetailStatusInProgress)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, fmt.Errorf("%w: detail %s changed concurrently", store.ErrInvalidState, c.ProductID)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE production_plans SET updated_at = $2 WHERE id = $1`, c.PlanID, c.At); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	return &batch, nil
}

const productBatchColumns = `id, batch_code, plan_id, product_id, manufacture_date, expiry_date,
	initial_quantity, current_quantity, status`

func scanProductBatch(row interface{ Scan(...any) error }) (domain.ProductBatch, error) {
	var b domain.ProductBatch
	err := row.Scan(&b.ID, &b.BatchCode, &b.PlanID, &b.ProductID, &b.ManufactureDate, &b.ExpiryDate,
		&b.InitialQuantity, &b.CurrentQuantity, &b.Status)
	b.ManufactureDate = b.ManufactureDate.UTC()
	b.ExpiryDate = b.ExpiryDate.UTC()
	return b, err
}

func (s *Store) GetProductBatch(ctx context.Context, id string) (*domain.ProductBatch, error) {
	batch, err := scanProductBatch(s.db.QueryRowContext(ctx, `SELECT `+productBatchColumns+` FROM product_batches WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ingredient_id, ingredient_batch_id, quantity_used
		FROM product_batch_ingredients
		WHERE product_batch_id = $1
		ORDER BY ingredient_id, ingredient_batch_id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.BatchIngredient
		if err := rows.Scan(&item.IngredientID, &item.IngredientBatchID, &item.QuantityUsed); err != nil {
			return nil, err
		}
		batch.Ingredients = append(batch.Ingredients, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (s *Store) ListProductBatches(ctx context.Context, productID string) ([]domain.ProductBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productBatchColumns+`
		FROM product_batches
		WHERE ($1 = '' OR product_id = $1)
		ORDER BY product_id, expiry_date ASC, manufacture_date ASC, batch_code ASC
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ProductBatch, 0, 32)
	for rows.Next() {
		batch, err := scanProductBatch(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, batch)
	}
	return result, rows.Err()
}

func (s *Store) AllocateProduct(ctx context.Context, productID string, qty decimal.Decimal, at time.Time) ([]domain.BatchDraw, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}

	draws, err := allocateProductTx(ctx, tx, productID, qty, at)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	return draws, nil
}

// allocateProductTx locks allocatable batches of a product in FEFO order and
// decrements them; a batch drained to zero becomes SoldOut.
func allocateProductTx(ctx context.Context, tx *sql.Tx, productID string, qty decimal.Decimal, at time.Time) ([]domain.BatchDraw, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, batch_code, expiry_date, manufacture_date, current_quantity
		FROM product_batches
		WHERE product_id = $1
		  AND status = $2
		  AND current_quantity > 0
		  AND expiry_date >= $3
		ORDER BY expiry_date ASC, manufacture_date ASC, batch_code ASC
		FOR UPDATE
	`, productID, domain.BatchStatusActive, at)
	if err != nil {
		return nil, err
	}
	lots := make([]fefo.Lot, 0, 8)
	for rows.Next() {
		var lot fefo.Lot
		if err := rows.Scan(&lot.ID, &lot.Code, &lot.Expiry, &lot.Received, &lot.Available); err != nil {
			_ = rows.Close()
			return nil, err
		}
		lot.Expiry = lot.Expiry.UTC()
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	planned, err := fefo.Plan(lots, qty)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", productID, err)
	}
	expiryByID := make(map[string]time.Time, len(lots))
	for _, lot := range lots {
		expiryByID[lot.ID] = lot.Expiry
	}

	draws := make([]domain.BatchDraw, 0, len(planned))
	for _, draw := range planned {
		if _, err := tx.ExecContext(ctx, `
			UPDATE product_batches
			SET current_quantity = current_quantity - $2,
			    status = CASE WHEN current_quantity - $2 <= 0 THEN $3 ELSE status END,
			    updated_at = now()
			WHERE id = $1
		`, draw.LotID, draw.Quantity, domain.BatchStatusSoldOut); err != nil {
			return nil, err
		}
		draws = append(draws, domain.BatchDraw{
			BatchID:    draw.LotID,
			BatchCode:  draw.Code,
			Quantity:   draw.Quantity,
			ExpiryDate: expiryByID[draw.LotID],
		})
	}
	return draws, nil
}

func (s *Store) RecallProductBatch(ctx context.Context, batchID string, at time.Time) (*domain.ProductBatch, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	batch, err := scanProductBatch(tx.QueryRowContext(ctx, `
		SELECT `+productBatchColumns+` FROM product_batches WHERE id = $1 FOR UPDATE
	`, batchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !domain.ProductBatchLifecycle.CanTransition(batch.Status, domain.BatchStatusRecalled) {
		return nil, fmt.Errorf("%w: batch %s is %s", store.ErrInvalidTransition, batch.BatchCode, batch.Status)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE product_batches SET status = $2, updated_at = $3 WHERE id = $1
	`, batchID, domain.BatchStatusRecalled, at); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	batch.Status = domain.BatchStatusRecalled
	return &batch, nil
}

func mergeBatchIngredients(items []domain.BatchIngredient) []domain.BatchIngredient {
	index := make(map[string]int, len(items))
	merged := make([]domain.BatchIngredient, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.IngredientBatchID]; ok {
			merged[i].QuantityUsed = merged[i].QuantityUsed.Add(item.QuantityUsed)
			continue
		}
		index[item.IngredientBatchID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
