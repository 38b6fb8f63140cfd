package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"centralkitchen/backend/internal/domain"
	"centralkitchen/backend/internal/fefo"
	"centralkitchen/backend/internal/store"
	"centralkitchen/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) beginSerializable(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

func (s *Store) CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	if strings.TrimSpace(ingredient.Name) == "" || strings.TrimSpace(ingredient.Unit) == "" {
		return nil, store.ErrInvalidInput
	}
	if ingredient.ID == "" {
		ingredient.ID = xid.New("ing")
	}
	if ingredient.CreatedAt.IsZero() {
		ingredient.CreatedAt = time.Now().UTC()
	}
	ingredient.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingredients (id, name, unit, cost_price, warning_threshold, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, ingredient.ID, ingredient.Name, ingredient.Unit, ingredient.CostPrice, ingredient.WarningThreshold, ingredient.Active, ingredient.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &ingredient, nil
}

func (s *Store) GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error) {
	var ing domain.Ingredient
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, unit, cost_price, warning_threshold, active, created_at
		FROM ingredients
		WHERE id = $1
	`, id).Scan(&ing.ID, &ing.Name, &ing.Unit, &ing.CostPrice, &ing.WarningThreshold, &ing.Active, &ing.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	ing.CreatedAt = ing.CreatedAt.UTC()
	return &ing, nil
}

func (s *Store) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit, cost_price, warning_threshold, active, created_at
		FROM ingredients
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Ingredient, 0, 32)
	for rows.Next() {
		var ing domain.Ingredient
		if err := rows.Scan(&ing.ID, &ing.Name, &ing.Unit, &ing.CostPrice, &ing.WarningThreshold, &ing.Active, &ing.CreatedAt); err != nil {
			return nil, err
		}
		ing.CreatedAt = ing.CreatedAt.UTC()
		result = append(result, ing)
	}
	return result, rows.Err()
}

func (s *Store) CreateIngredientBatch(ctx context.Context, batch domain.IngredientBatch) (*domain.IngredientBatch, error) {
	if strings.TrimSpace(batch.BatchCode) == "" || !batch.InitialQuantity.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if batch.CurrentQuantity.IsNegative() || batch.CurrentQuantity.GreaterThan(batch.InitialQuantity) {
		return nil, store.ErrInvalidInput
	}
	if batch.ID == "" {
		batch.ID = xid.New("ib")
	}
	batch.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingredient_batches (
			id, ingredient_id, batch_code, received_date, expiry_date,
			initial_quantity, current_quantity, supplier_ref, active, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, batch.ID, batch.IngredientID, batch.BatchCode, batch.ReceivedDate, nullZeroTime(batch.ExpiryDate),
		batch.InitialQuantity, batch.CurrentQuantity, nullIfEmpty(batch.SupplierRef), batch.Active)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("ingredient %s: %w", batch.IngredientID, store.ErrNotFound)
		}
		return nil, mapWriteError(err)
	}
	return &batch, nil
}

const ingredientBatchColumns = `id, ingredient_id, batch_code, received_date, expiry_date,
	initial_quantity, current_quantity, COALESCE(supplier_ref, ''), active`

func scanIngredientBatch(row interface{ Scan(...any) error }) (domain.IngredientBatch, error) {
	var b domain.IngredientBatch
	var expiry sql.NullTime
	if err := row.Scan(&b.ID, &b.IngredientID, &b.BatchCode, &b.ReceivedDate, &expiry,
		&b.InitialQuantity, &b.CurrentQuantity, &b.SupplierRef, &b.Active); err != nil {
		return b, err
	}
	b.ReceivedDate = b.ReceivedDate.UTC()
	if expiry.Valid {
		b.ExpiryDate = expiry.Time.UTC()
	}
	return b, nil
}

func (s *Store) GetIngredientBatch(ctx context.Context, id string) (*domain.IngredientBatch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ingredientBatchColumns+` FROM ingredient_batches WHERE id = $1`, id)
	batch, err := scanIngredientBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (s *Store) ListIngredientBatches(ctx context.Context, ingredientID string) ([]domain.IngredientBatch, error) {
	if ingredientID != "" {
		if _, err := s.GetIngredient(ctx, ingredientID); err != nil {
			return nil, err
		}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ingredientBatchColumns+`
		FROM ingredient_batches
		WHERE ($1 = '' OR ingredient_id = $1)
		ORDER BY ingredient_id, expiry_date ASC NULLS LAST, received_date ASC, batch_code ASC
	`, ingredientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.IngredientBatch, 0, 32)
	for rows.Next() {
		batch, err := scanIngredientBatch(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, batch)
	}
	return result, rows.Err()
}

func (s *Store) ConsumeIngredient(ctx context.Context, ingredientID string, qty decimal.Decimal, at time.Time) ([]domain.BatchConsumption, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ingredients WHERE id = $1)`, ingredientID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("ingredient %s: %w", ingredientID, store.ErrNotFound)
	}

	consumed, err := consumeIngredientTx(ctx, tx, ingredientID, qty, at)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	return consumed, nil
}

// consumeIngredientTx locks the ingredient's usable batch rows in FEFO order and
// decrements them. Must run inside a serializable transaction.
func consumeIngredientTx(ctx context.Context, tx *sql.Tx, ingredientID string, qty decimal.Decimal, at time.Time) ([]domain.BatchConsumption, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, batch_code, expiry_date, received_date, current_quantity
		FROM ingredient_batches
		WHERE ingredient_id = $1
		  AND active = true
		  AND current_quantity > 0
		  AND (expiry_date IS NULL OR expiry_date >= $2)
		ORDER BY expiry_date ASC NULLS LAST, received_date ASC, batch_code ASC
		FOR UPDATE
	`, ingredientID, at)
	if err != nil {
		return nil, err
	}
	lots := make([]fefo.Lot, 0, 8)
	for rows.Next() {
		var lot fefo.Lot
		var expiry sql.NullTime
		if err := rows.Scan(&lot.ID, &lot.Code, &expiry, &lot.Received, &lot.Available); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if expiry.Valid {
			lot.Expiry = expiry.Time.UTC()
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	draws, err := fefo.Plan(lots, qty)
	if err != nil {
		return nil, fmt.Errorf("ingredient %s: %w", ingredientID, err)
	}

	consumed := make([]domain.BatchConsumption, 0, len(draws))
	for _, draw := range draws {
		if _, err := tx.ExecContext(ctx, `
			UPDATE ingredient_batches
			SET current_quantity = current_quantity - $2, updated_at = now()
			WHERE id = $1
		`, draw.LotID, draw.Quantity); err != nil {
			return nil, err
		}
		consumed = append(consumed, domain.BatchConsumption{
			IngredientID:      ingredientID,
			IngredientBatchID: draw.LotID,
			BatchCode:         draw.Code,
			Quantity:          draw.Quantity,
		})
	}
	return consumed, nil
}

func (s *Store) DeactivateIngredientBatch(ctx context.Context, batchID string) (*domain.IngredientBatch, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE ingredient_batches
		SET active = false, updated_at = now()
		WHERE id = $1
		RETURNING `+ingredientBatchColumns, batchID)
	batch, err := scanIngredientBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (s *Store) CorrectIngredientBatch(ctx context.Context, correction domain.IngredientCorrection) (*domain.IngredientBatch, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	batch, err := scanIngredientBatch(tx.QueryRowContext(ctx, `
		SELECT `+ingredientBatchColumns+` FROM ingredient_batches WHERE id = $1 FOR UPDATE
	`, correction.BatchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if correction.NewQuantity.IsNegative() || correction.NewQuantity.GreaterThan(batch.InitialQuantity) {
		return nil, fmt.Errorf("%w: quantity must be between 0 and %s", store.ErrInvalidInput, batch.InitialQuantity)
	}
	if correction.ID == "" {
		correction.ID = xid.New("corr")
	}
	correction.OldQuantity = batch.CurrentQuantity

	if _, err := tx.ExecContext(ctx, `
		UPDATE ingredient_batches SET current_quantity = $2, updated_at = now() WHERE id = $1
	`, batch.ID, correction.NewQuantity); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ingredient_corrections (id, batch_id, old_quantity, new_quantity, reason, corrected_by, corrected_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, correction.ID, batch.ID, correction.OldQuantity, correction.NewQuantity, correction.Reason,
		nullIfEmpty(correction.CorrectedBy), correction.CorrectedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	batch.CurrentQuantity = correction.NewQuantity
	return &batch, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, recipe []domain.RecipeLine) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.Price.IsNegative() || product.ShelfLifeDays < 0 {
		return nil, store.ErrInvalidInput
	}
	if err := checkRecipeLines(recipe); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, unit, price, shelf_life_days, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ID, product.SKU, product.Name, product.Unit, product.Price, product.ShelfLifeDays, product.Active, product.CreatedAt); err != nil {
		return nil, mapWriteError(err)
	}
	if len(recipe) > 0 {
		if err := writeRecipe(ctx, tx, domain.Recipe{ProductID: product.ID, Lines: recipe, UpdatedAt: product.CreatedAt}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	return &product, nil
}

const productColumns = `id, sku, name, unit, price, shelf_life_days, active, created_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &p.Price, &p.ShelfLifeDays, &p.Active, &p.CreatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, err
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE active = true ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func (s *Store) SetRecipe(ctx context.Context, recipe domain.Recipe) error {
	if err := checkRecipeLines(recipe.Lines); err != nil {
		return err
	}
	if recipe.UpdatedAt.IsZero() {
		recipe.UpdatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := writeRecipe(ctx, tx, recipe); err != nil {
		return err
	}
	return tx.Commit()
}

func checkRecipeLines(lines []domain.RecipeLine) error {
	for _, line := range lines {
		if !line.QuantityPerUnit.IsPositive() {
			return store.ErrInvalidInput
		}
	}
	return nil
}

// writeRecipe replaces the recipe header and lines inside tx.
func writeRecipe(ctx context.Context, tx *sql.Tx, recipe domain.Recipe) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO recipes (product_id, updated_at)
		VALUES ($1,$2)
		ON CONFLICT (product_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
	`, recipe.ProductID, recipe.UpdatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("product %s: %w", recipe.ProductID, store.ErrNotFound)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_lines WHERE product_id = $1`, recipe.ProductID); err != nil {
		return err
	}
	for i, line := range recipe.Lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recipe_lines (product_id, line_no, ingredient_id, quantity_per_unit)
			VALUES ($1,$2,$3,$4)
		`, recipe.ProductID, i+1, line.IngredientID, line.QuantityPerUnit); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("ingredient %s: %w", line.IngredientID, store.ErrNotFound)
			}
			return err
		}
	}
	return nil
}

func (s *Store) GetRecipe(ctx context.Context, productID string) (*domain.Recipe, error) {
	return loadRecipe(ctx, s.db, productID)
}

func loadRecipe(ctx context.Context, q querier, productID string) (*domain.Recipe, error) {
	recipe := domain.Recipe{ProductID: productID}
	err := q.QueryRowContext(ctx, `SELECT updated_at FROM recipes WHERE product_id = $1`, productID).Scan(&recipe.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	recipe.UpdatedAt = recipe.UpdatedAt.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT ingredient_id, quantity_per_unit
		FROM recipe_lines
		WHERE product_id = $1
		ORDER BY line_no ASC
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.RecipeLine
		if err := rows.Scan(&line.IngredientID, &line.QuantityPerUnit); err != nil {
			return nil, err
		}
		recipe.Lines = append(recipe.Lines, line)
	}
	return &recipe, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, nullIfEmpty(entry.ActorUsername), nullIfEmpty(entry.ActorRole), entry.Action,
		entry.EntityType, entry.EntityID, nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(actor_username, ''), COALESCE(actor_role, ''), action, entity_type, entity_id, COALESCE(detail, ''), created_at
		FROM audit_logs
		WHERE ($1 = '' OR entity_type = $1) AND ($2 = '' OR entity_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleStore
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, store_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.Password, user.Role, nullIfEmpty(user.StoreID), true, user.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, COALESCE(store_id, ''), active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.StoreID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mapWriteError turns constraint and serialization failures into store sentinels.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
	case "40001", "40P01":
		return fmt.Errorf("%w: concurrent update, retry", store.ErrConflict)
	case "23514":
		return fmt.Errorf("%w: %s", store.ErrInvalidInput, pgErr.ConstraintName)
	}
	return err
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullZeroTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return nowDateUTC(*val)
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}

// limitArg maps a non-positive limit to NULL, which Postgres reads as no limit.
func limitArg(limit int) any {
	if limit < 1 {
		return nil
	}
	return limit
}
