package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"centralkitchen/backend/internal/domain"
	"centralkitchen/backend/internal/fefo"
	"centralkitchen/backend/internal/store"
	"centralkitchen/backend/internal/xid"
)

// Store keeps everything behind one RWMutex. Multi-entity writes are staged on
// copies and committed only after every check has passed.
type Store struct {
	mu                   sync.RWMutex
	ingredients          map[string]domain.Ingredient
	ingredientBatches    map[string]domain.IngredientBatch
	ingredientBatchCodes map[string]string
	corrections          []domain.IngredientCorrection
	products             map[string]domain.Product
	productSKUs          map[string]string
	recipes              map[string]domain.Recipe
	plans                map[string]domain.ProductionPlan
	planCodes            map[string]string
	productBatches       map[string]domain.ProductBatch
	productBatchCodes    map[string]string
	orders               map[string]domain.Order
	orderCodes           map[string]string
	storeInventory       map[string]map[string]domain.StoreInventoryLine
	auditLogs            []domain.AuditLog
	usersByUsername      map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		ingredients:          make(map[string]domain.Ingredient),
		ingredientBatches:    make(map[string]domain.IngredientBatch),
		ingredientBatchCodes: make(map[string]string),
		products:             make(map[string]domain.Product),
		productSKUs:          make(map[string]string),
		recipes:              make(map[string]domain.Recipe),
		plans:                make(map[string]domain.ProductionPlan),
		planCodes:            make(map[string]string),
		productBatches:       make(map[string]domain.ProductBatch),
		productBatchCodes:    make(map[string]string),
		orders:               make(map[string]domain.Order),
		orderCodes:           make(map[string]string),
		storeInventory:       make(map[string]map[string]domain.StoreInventoryLine),
		auditLogs:            make([]domain.AuditLog, 0, 128),
		usersByUsername:      make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from SEED_ADMIN_PASSWORD,
// SEED_KITCHEN_PASSWORD and SEED_STORE_PASSWORD, falling back to dev defaults.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	kitchenPwd := envOr("SEED_KITCHEN_PASSWORD", "kitchen123")
	storePwd := envOr("SEED_STORE_PASSWORD", "store123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_KITCHEN_PASSWORD") == "" || os.Getenv("SEED_STORE_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_*_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		storeID  string
	}{
		{"admin", adminPwd, domain.RoleAdmin, ""},
		{"kitchen", kitchenPwd, domain.RoleKitchen, ""},
		{"store", storePwd, domain.RoleStore, "store-district-1"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			StoreID:   u.storeID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo accounts and a small kitchen catalog.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	today := nowDateUTC(now)
	d := decimal.RequireFromString

	for _, ing := range []domain.Ingredient{
		{ID: "ing-flour", Name: "Flour", Unit: "kg", CostPrice: d("18000"), WarningThreshold: d("20")},
		{ID: "ing-sugar", Name: "Sugar", Unit: "kg", CostPrice: d("22000"), WarningThreshold: d("10")},
		{ID: "ing-egg", Name: "Egg", Unit: "pcs", CostPrice: d("3500"), WarningThreshold: d("60")},
		{ID: "ing-lotus-paste", Name: "Lotus Seed Paste", Unit: "kg", CostPrice: d("120000"), WarningThreshold: d("5")},
	} {
		ing.Active = true
		ing.CreatedAt = now
		s.ingredients[ing.ID] = ing
	}

	for _, b := range []domain.IngredientBatch{
		{IngredientID: "ing-flour", BatchCode: "FLOUR-SEED-01", ExpiryDate: today.AddDate(0, 0, 20), InitialQuantity: d("50")},
		{IngredientID: "ing-flour", BatchCode: "FLOUR-SEED-02", ExpiryDate: today.AddDate(0, 0, 45), InitialQuantity: d("50")},
		{IngredientID: "ing-sugar", BatchCode: "SUGAR-SEED-01", ExpiryDate: today.AddDate(0, 6, 0), InitialQuantity: d("25")},
		{IngredientID: "ing-egg", BatchCode: "EGG-SEED-01", ExpiryDate: today.AddDate(0, 0, 12), InitialQuantity: d("300")},
		{IngredientID: "ing-lotus-paste", BatchCode: "LOTUS-SEED-01", ExpiryDate: today.AddDate(0, 2, 0), InitialQuantity: d("15")},
	} {
		b.ID = xid.New("ib")
		b.ReceivedDate = today.AddDate(0, 0, -3)
		b.CurrentQuantity = b.InitialQuantity
		b.Active = true
		s.ingredientBatches[b.ID] = b
		s.ingredientBatchCodes[b.BatchCode] = b.ID
	}

	for _, p := range []domain.Product{
		{ID: "prd-mooncake", SKU: "MC-LOTUS", Name: "Lotus Moon Cake", Unit: "pcs", Price: d("45000"), ShelfLifeDays: 30},
		{ID: "prd-sponge", SKU: "CK-SPONGE", Name: "Sponge Cake", Unit: "pcs", Price: d("120000"), ShelfLifeDays: 3},
	} {
		p.Active = true
		p.CreatedAt = now
		s.products[p.ID] = p
		s.productSKUs[p.SKU] = p.ID
	}

	s.recipes["prd-mooncake"] = domain.Recipe{
		ProductID: "prd-mooncake",
		Lines: []domain.RecipeLine{
			{IngredientID: "ing-flour", QuantityPerUnit: d("0.05")},
			{IngredientID: "ing-lotus-paste", QuantityPerUnit: d("0.08")},
			{IngredientID: "ing-egg", QuantityPerUnit: d("1")},
		},
		UpdatedAt: now,
	}
	s.recipes["prd-sponge"] = domain.Recipe{
		ProductID: "prd-sponge",
		Lines: []domain.RecipeLine{
			{IngredientID: "ing-flour", QuantityPerUnit: d("0.3")},
			{IngredientID: "ing-sugar", QuantityPerUnit: d("0.2")},
			{IngredientID: "ing-egg", QuantityPerUnit: d("6")},
		},
		UpdatedAt: now,
	}
	return s
}

func (s *Store) CreateIngredient(_ context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(ingredient.Name) == "" || strings.TrimSpace(ingredient.Unit) == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.ingredients {
		if strings.EqualFold(existing.Name, ingredient.Name) {
			return nil, fmt.Errorf("ingredient %q: %w", ingredient.Name, store.ErrConflict)
		}
	}
	if ingredient.ID == "" {
		ingredient.ID = xid.New("ing")
	}
	if ingredient.CreatedAt.IsZero() {
		ingredient.CreatedAt = time.Now().UTC()
	}
	ingredient.Active = true
	s.ingredients[ingredient.ID] = ingredient
	created := ingredient
	return &created, nil
}

func (s *Store) GetIngredient(_ context.Context, id string) (*domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ingredient, ok := s.ingredients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ingredient, nil
}

func (s *Store) ListIngredients(_ context.Context) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Ingredient, 0, len(s.ingredients))
	for _, ingredient := range s.ingredients {
		result = append(result, ingredient)
	}
	slices.SortFunc(result, func(a, b domain.Ingredient) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) CreateIngredientBatch(_ context.Context, batch domain.IngredientBatch) (*domain.IngredientBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ingredients[batch.IngredientID]; !ok {
		return nil, fmt.Errorf("ingredient %s: %w", batch.IngredientID, store.ErrNotFound)
	}
	if strings.TrimSpace(batch.BatchCode) == "" || !batch.InitialQuantity.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if batch.CurrentQuantity.IsNegative() || batch.CurrentQuantity.GreaterThan(batch.InitialQuantity) {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.ingredientBatchCodes[batch.BatchCode]; exists {
		return nil, fmt.Errorf("batch code %s: %w", batch.BatchCode, store.ErrConflict)
	}
	if batch.ID == "" {
		batch.ID = xid.New("ib")
	}
	batch.Active = true
	s.ingredientBatches[batch.ID] = batch
	s.ingredientBatchCodes[batch.BatchCode] = batch.ID
	created := batch
	return &created, nil
}

func (s *Store) GetIngredientBatch(_ context.Context, id string) (*domain.IngredientBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.ingredientBatches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &batch, nil
}

func (s *Store) ListIngredientBatches(_ context.Context, ingredientID string) ([]domain.IngredientBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ingredientID != "" {
		if _, ok := s.ingredients[ingredientID]; !ok {
			return nil, store.ErrNotFound
		}
	}
	result := make([]domain.IngredientBatch, 0, 16)
	for _, batch := range s.ingredientBatches {
		if ingredientID != "" && batch.IngredientID != ingredientID {
			continue
		}
		result = append(result, batch)
	}
	slices.SortFunc(result, func(a, b domain.IngredientBatch) int {
		if c := cmpString(a.IngredientID, b.IngredientID); c != 0 {
			return c
		}
		return fefo.Compare(ingredientLot(a), ingredientLot(b))
	})
	return result, nil
}

func (s *Store) ConsumeIngredient(_ context.Context, ingredientID string, qty decimal.Decimal, at time.Time) ([]domain.BatchConsumption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ingredients[ingredientID]; !ok {
		return nil, fmt.Errorf("ingredient %s: %w", ingredientID, store.ErrNotFound)
	}
	staged := make(map[string]domain.IngredientBatch)
	consumed, err := s.drawIngredient(ingredientID, qty, at, staged)
	if err != nil {
		return nil, err
	}
	for id, batch := range staged {
		s.ingredientBatches[id] = batch
	}
	return consumed, nil
}

func (s *Store) DeactivateIngredientBatch(_ context.Context, batchID string) (*domain.IngredientBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.ingredientBatches[batchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	batch.Active = false
	s.ingredientBatches[batchID] = batch
	return &batch, nil
}

func (s *Store) CorrectIngredientBatch(_ context.Context, correction domain.IngredientCorrection) (*domain.IngredientBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.ingredientBatches[correction.BatchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if correction.NewQuantity.IsNegative() || correction.NewQuantity.GreaterThan(batch.InitialQuantity) {
		return nil, fmt.Errorf("%w: quantity must be between 0 and %s", store.ErrInvalidInput, batch.InitialQuantity)
	}
	if correction.ID == "" {
		correction.ID = xid.New("corr")
	}
	correction.OldQuantity = batch.CurrentQuantity
	batch.CurrentQuantity = correction.NewQuantity
	s.ingredientBatches[batch.ID] = batch
	s.corrections = append(s.corrections, correction)
	return &batch, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, recipe []domain.RecipeLine) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SKU == "" || product.Name == "" || product.Price.IsNegative() || product.ShelfLifeDays < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.productSKUs[product.SKU]; exists {
		return nil, fmt.Errorf("sku %s: %w", product.SKU, store.ErrConflict)
	}
	if err := s.checkRecipeLinesLocked(recipe); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true
	s.products[product.ID] = product
	s.productSKUs[product.SKU] = product.ID
	if len(recipe) > 0 {
		s.recipes[product.ID] = cloneRecipe(domain.Recipe{ProductID: product.ID, Lines: recipe, UpdatedAt: product.CreatedAt})
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) SetRecipe(_ context.Context, recipe domain.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[recipe.ProductID]; !ok {
		return fmt.Errorf("product %s: %w", recipe.ProductID, store.ErrNotFound)
	}
	if err := s.checkRecipeLinesLocked(recipe.Lines); err != nil {
		return err
	}
	if recipe.UpdatedAt.IsZero() {
		recipe.UpdatedAt = time.Now().UTC()
	}
	s.recipes[recipe.ProductID] = cloneRecipe(recipe)
	return nil
}

func (s *Store) checkRecipeLinesLocked(lines []domain.RecipeLine) error {
	for _, line := range lines {
		if _, ok := s.ingredients[line.IngredientID]; !ok {
			return fmt.Errorf("ingredient %s: %w", line.IngredientID, store.ErrNotFound)
		}
		if !line.QuantityPerUnit.IsPositive() {
			return store.ErrInvalidInput
		}
	}
	return nil
}

func (s *Store) GetRecipe(_ context.Context, productID string) (*domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recipe, ok := s.recipes[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyRecipe := cloneRecipe(recipe)
	return &copyRecipe, nil
}

func (s *Store) CreateProductionPlan(_ context.Context, plan domain.ProductionPlan) (*domain.ProductionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if plan.PlanCode == "" || len(plan.Details) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.planCodes[plan.PlanCode]; exists {
		return nil, fmt.Errorf("plan code %s: %w", plan.PlanCode, store.ErrConflict)
	}
	for _, detail := range plan.Details {
		if _, ok := s.products[detail.ProductID]; !ok {
			return nil, fmt.Errorf("product %s: %w", detail.ProductID, store.ErrNotFound)
		}
		if !detail.PlannedQuantity.IsPositive() {
			return nil, store.ErrInvalidInput
		}
	}
	if plan.ID == "" {
		plan.ID = xid.New("plan")
	}
	stored := clonePlan(plan)
	s.plans[plan.ID] = stored
	s.planCodes[plan.PlanCode] = plan.ID
	created := clonePlan(stored)
	return &created, nil
}

func (s *Store) GetProductionPlan(_ context.Context, id string) (*domain.ProductionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyPlan := clonePlan(plan)
	return &copyPlan, nil
}

func (s *Store) ListProductionPlans(_ context.Context, status string, limit int) ([]domain.ProductionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ProductionPlan, 0, len(s.plans))
	for _, plan := range s.plans {
		if status != "" && plan.Status != status {
			continue
		}
		result = append(result, clonePlan(plan))
	}
	slices.SortFunc(result, func(a, b domain.ProductionPlan) int {
		if !a.PlanDate.Equal(b.PlanDate) {
			return b.PlanDate.Compare(a.PlanDate)
		}
		return cmpString(b.PlanCode, a.PlanCode)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) TransitionPlan(_ context.Context, planID string, to string, at time.Time) (*domain.ProductionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.plans[planID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !domain.PlanLifecycle.CanTransition(current.Status, to) {
		return nil, fmt.Errorf("%w: plan %s cannot move from %s to %s", store.ErrInvalidTransition, current.PlanCode, current.Status, to)
	}
	if to == domain.PlanStatusCompleted && !current.Settled() {
		return nil, fmt.Errorf("%w: plan %s has unsettled details", store.ErrIncompletePlan, current.PlanCode)
	}

	plan := clonePlan(current)
	stamp := at
	switch to {
	case domain.PlanStatusInProgress:
		plan.StartedAt = &stamp
	case domain.PlanStatusCompleted:
		plan.CompletedAt = &stamp
	case domain.PlanStatusCancelled:
		plan.CancelledAt = &stamp
		for i := range plan.Details {
			if domain.PlanDetailLifecycle.CanTransition(plan.Details[i].Status, domain.DetailStatusCancelled) {
				plan.Details[i].Status = domain.DetailStatusCancelled
			}
		}
	}
	plan.Status = to
	plan.UpdatedAt = at
	s.plans[planID] = plan

	updated := clonePlan(plan)
	return &updated, nil
}

func (s *Store) TransitionPlanDetail(_ context.Context, planID string, productID string, to string, at time.Time) (*domain.ProductionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.plans[planID]
	if !ok {
		return nil, store.ErrNotFound
	}
	idx, ok := current.DetailIndex(productID)
	if !ok {
		return nil, fmt.Errorf("plan detail %s: %w", productID, store.ErrNotFound)
	}
	if err := store.CheckDetailTransition(current, idx, to); err != nil {
		return nil, err
	}

	plan := clonePlan(current)
	plan.Details[idx].Status = to
	plan.UpdatedAt = at
	s.plans[planID] = plan

	updated := clonePlan(plan)
	return &updated, nil
}

func (s *Store) CompletePlanItem(_ context.Context, c domain.PlanItemCompletion) (*domain.ProductBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.plans[c.PlanID]
	if !ok {
		return nil, fmt.Errorf("production plan %s: %w", c.PlanID, store.ErrNotFound)
	}
	idx, ok := current.DetailIndex(c.ProductID)
	if !ok {
		return nil, fmt.Errorf("plan detail %s: %w", c.ProductID, store.ErrNotFound)
	}
	if err := store.CheckDetailCompletion(current, idx, c.ActualQuantity); err != nil {
		return nil, err
	}
	if len(c.Recipe.Lines) == 0 {
		return nil, fmt.Errorf("%w: product %s has no recipe", store.ErrInvalidState, c.ProductID)
	}
	if _, exists := s.productBatchCodes[c.BatchCode]; exists || c.BatchCode == "" {
		return nil, fmt.Errorf("batch code %q: %w", c.BatchCode, store.ErrConflict)
	}

	staged := make(map[string]domain.IngredientBatch)
	used := make([]domain.BatchIngredient, 0, len(c.Recipe.Lines))
	for _, req := range c.Recipe.Requirements(c.ActualQuantity) {
		if !req.Quantity.IsPositive() {
			continue
		}
		consumed, err := s.drawIngredient(req.IngredientID, req.Quantity, c.At, staged)
		if err != nil {
			return nil, err
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

	plan := clonePlan(current)
	completedAt := c.At
	plan.Details[idx].Status = domain.DetailStatusCompleted
	plan.Details[idx].ActualQuantity = c.ActualQuantity
	plan.Details[idx].BatchID = batch.ID
	plan.Details[idx].CompletedAt = &completedAt
	plan.UpdatedAt = c.At

	for id, b := range staged {
		s.ingredientBatches[id] = b
	}
	s.productBatches[batch.ID] = batch
	s.productBatchCodes[batch.BatchCode] = batch.ID
	s.plans[plan.ID] = plan

	created := cloneProductBatch(batch)
	return &created, nil
}

func (s *Store) GetProductBatch(_ context.Context, id string) (*domain.ProductBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.productBatches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyBatch := cloneProductBatch(batch)
	return &copyBatch, nil
}

func (s *Store) ListProductBatches(_ context.Context, productID string) ([]domain.ProductBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ProductBatch, 0, 16)
	for _, batch := range s.productBatches {
		if productID != "" && batch.ProductID != productID {
			continue
		}
		result = append(result, cloneProductBatch(batch))
	}
	slices.SortFunc(result, func(a, b domain.ProductBatch) int {
		if productID == "" {
			if c := cmpString(a.ProductID, b.ProductID); c != 0 {
				return c
			}
		}
		return fefo.Compare(productLot(a), productLot(b))
	})
	return result, nil
}

func (s *Store) AllocateProduct(_ context.Context, productID string, qty decimal.Decimal, at time.Time) ([]domain.BatchDraw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	staged := make(map[string]domain.ProductBatch)
	draws, err := s.drawProduct(productID, qty, at, staged)
	if err != nil {
		return nil, err
	}
	for id, batch := range staged {
		s.productBatches[id] = batch
	}
	return draws, nil
}

func (s *Store) RecallProductBatch(_ context.Context, batchID string, _ time.Time) (*domain.ProductBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.productBatches[batchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !domain.ProductBatchLifecycle.CanTransition(batch.Status, domain.BatchStatusRecalled) {
		return nil, fmt.Errorf("%w: batch %s is %s", store.ErrInvalidTransition, batch.BatchCode, batch.Status)
	}
	batch = cloneProductBatch(batch)
	batch.Status = domain.BatchStatusRecalled
	s.productBatches[batchID] = batch

	recalled := cloneProductBatch(batch)
	return &recalled, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(order.Items) == 0 {
		return nil, store.ErrEmptyOrder
	}
	if order.OrderCode == "" || order.StoreID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.orderCodes[order.OrderCode]; exists {
		return nil, fmt.Errorf("order code %s: %w", order.OrderCode, store.ErrConflict)
	}
	for _, item := range order.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	stored := cloneOrder(order)
	s.orders[order.ID] = stored
	s.orderCodes[order.OrderCode] = order.ID

	created := cloneOrder(stored)
	return &created, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyOrder := cloneOrder(order)
	return &copyOrder, nil
}

func (s *Store) ListOrders(_ context.Context, storeID string, status string, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if storeID != "" && order.StoreID != storeID {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		result = append(result, cloneOrder(order))
	}
	slices.SortFunc(result, func(a, b domain.Order) int {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return b.CreatedAt.Compare(a.CreatedAt)
		}
		return cmpString(b.OrderCode, a.OrderCode)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) TransitionOrder(_ context.Context, orderID string, to string, at time.Time) (*domain.Order, error) {
	if to != domain.OrderStatusApproved && to != domain.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: %s has a dedicated operation", store.ErrInvalidInput, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !domain.OrderLifecycle.CanTransition(current.Status, to) {
		return nil, fmt.Errorf("%w: order %s cannot move from %s to %s", store.ErrInvalidTransition, current.OrderCode, current.Status, to)
	}

	order := cloneOrder(current)
	stamp := at
	if to == domain.OrderStatusApproved {
		order.ApprovedAt = &stamp
	} else {
		order.CancelledAt = &stamp
	}
	order.Status = to
	order.UpdatedAt = at
	s.orders[orderID] = order

	updated := cloneOrder(order)
	return &updated, nil
}

func (s *Store) ShipOrder(_ context.Context, orderID string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !domain.OrderLifecycle.CanTransition(current.Status, domain.OrderStatusShipped) {
		return nil, fmt.Errorf("%w: order %s cannot move from %s to %s", store.ErrInvalidTransition, current.OrderCode, current.Status, domain.OrderStatusShipped)
	}

	staged := make(map[string]domain.ProductBatch)
	allocations := make([]domain.OrderAllocation, 0, len(current.Items))
	for _, item := range current.Items {
		draws, err := s.drawProduct(item.ProductID, item.Quantity, at, staged)
		if err != nil {
			return nil, err
		}
		for _, draw := range draws {
			allocations = append(allocations, domain.OrderAllocation{
				ProductID:  item.ProductID,
				BatchID:    draw.BatchID,
				BatchCode:  draw.BatchCode,
				Quantity:   draw.Quantity,
				ExpiryDate: draw.ExpiryDate,
			})
		}
	}

	order := cloneOrder(current)
	stamp := at
	order.Status = domain.OrderStatusShipped
	order.ShippedAt = &stamp
	order.UpdatedAt = at
	order.Allocations = allocations

	for id, batch := range staged {
		s.productBatches[id] = batch
	}
	s.orders[orderID] = order

	shipped := cloneOrder(order)
	return &shipped, nil
}

func (s *Store) ReceiveOrder(_ context.Context, orderID string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !domain.OrderLifecycle.CanTransition(current.Status, domain.OrderStatusReceived) {
		return nil, fmt.Errorf("%w: order %s cannot move from %s to %s", store.ErrInvalidTransition, current.OrderCode, current.Status, domain.OrderStatusReceived)
	}

	lines, ok := s.storeInventory[current.StoreID]
	if !ok {
		lines = make(map[string]domain.StoreInventoryLine)
		s.storeInventory[current.StoreID] = lines
	}
	for _, alloc := range current.Allocations {
		line, exists := lines[alloc.BatchID]
		if !exists {
			line = domain.StoreInventoryLine{
				StoreID:    current.StoreID,
				ProductID:  alloc.ProductID,
				BatchID:    alloc.BatchID,
				ExpiryDate: alloc.ExpiryDate,
			}
		}
		line.Quantity = line.Quantity.Add(alloc.Quantity)
		line.UpdatedAt = at
		lines[alloc.BatchID] = line
	}

	order := cloneOrder(current)
	stamp := at
	order.Status = domain.OrderStatusReceived
	order.ReceivedAt = &stamp
	order.UpdatedAt = at
	s.orders[orderID] = order

	received := cloneOrder(order)
	return &received, nil
}

func (s *Store) ListStoreInventory(_ context.Context, storeID string) ([]domain.StoreInventoryLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := s.storeInventory[storeID]
	result := make([]domain.StoreInventoryLine, 0, len(lines))
	for _, line := range lines {
		result = append(result, line)
	}
	slices.SortFunc(result, func(a, b domain.StoreInventoryLine) int {
		if c := cmpString(a.ProductID, b.ProductID); c != 0 {
			return c
		}
		if c := a.ExpiryDate.Compare(b.ExpiryDate); c != 0 {
			return c
		}
		return cmpString(a.BatchID, b.BatchID)
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entityType != "" && entry.EntityType != entityType {
			continue
		}
		if entityID != "" && entry.EntityID != entityID {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStore
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// drawIngredient plans a FEFO draw against committed batches overlaid with
// staged, and records the decremented batches in staged. Nothing is committed.
func (s *Store) drawIngredient(ingredientID string, qty decimal.Decimal, at time.Time, staged map[string]domain.IngredientBatch) ([]domain.BatchConsumption, error) {
	lookup := func(id string) domain.IngredientBatch {
		if b, ok := staged[id]; ok {
			return b
		}
		return s.ingredientBatches[id]
	}

	lots := make([]fefo.Lot, 0, 8)
	for id := range s.ingredientBatches {
		batch := lookup(id)
		if batch.IngredientID != ingredientID || !batch.Usable(at) {
			continue
		}
		lots = append(lots, ingredientLot(batch))
	}
	draws, err := fefo.Plan(lots, qty)
	if err != nil {
		return nil, fmt.Errorf("ingredient %s: %w", ingredientID, err)
	}

	consumed := make([]domain.BatchConsumption, 0, len(draws))
	for _, draw := range draws {
		batch := lookup(draw.LotID)
		batch.CurrentQuantity = batch.CurrentQuantity.Sub(draw.Quantity)
		staged[draw.LotID] = batch
		consumed = append(consumed, domain.BatchConsumption{
			IngredientID:      ingredientID,
			IngredientBatchID: draw.LotID,
			BatchCode:         draw.Code,
			Quantity:          draw.Quantity,
		})
	}
	return consumed, nil
}

func (s *Store) drawProduct(productID string, qty decimal.Decimal, at time.Time, staged map[string]domain.ProductBatch) ([]domain.BatchDraw, error) {
	lookup := func(id string) domain.ProductBatch {
		if b, ok := staged[id]; ok {
			return b
		}
		return s.productBatches[id]
	}

	lots := make([]fefo.Lot, 0, 8)
	for id := range s.productBatches {
		batch := lookup(id)
		if batch.ProductID != productID || !batch.Allocatable(at) {
			continue
		}
		lots = append(lots, productLot(batch))
	}
	draws, err := fefo.Plan(lots, qty)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", productID, err)
	}

	result := make([]domain.BatchDraw, 0, len(draws))
	for _, draw := range draws {
		batch := cloneProductBatch(lookup(draw.LotID))
		batch.CurrentQuantity = batch.CurrentQuantity.Sub(draw.Quantity)
		if !batch.CurrentQuantity.IsPositive() {
			batch.Status = domain.BatchStatusSoldOut
		}
		staged[draw.LotID] = batch
		result = append(result, domain.BatchDraw{
			BatchID:    batch.ID,
			BatchCode:  batch.BatchCode,
			Quantity:   draw.Quantity,
			ExpiryDate: batch.ExpiryDate,
		})
	}
	return result, nil
}

func ingredientLot(b domain.IngredientBatch) fefo.Lot {
	return fefo.Lot{
		ID:        b.ID,
		Code:      b.BatchCode,
		Expiry:    b.ExpiryDate,
		Received:  b.ReceivedDate,
		Available: b.CurrentQuantity,
	}
}

func productLot(b domain.ProductBatch) fefo.Lot {
	return fefo.Lot{
		ID:        b.ID,
		Code:      b.BatchCode,
		Expiry:    b.ExpiryDate,
		Received:  b.ManufactureDate,
		Available: b.CurrentQuantity,
	}
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func cmpString(a string, b string) int {
	return strings.Compare(a, b)
}

func cloneRecipe(src domain.Recipe) domain.Recipe {
	dst := src
	dst.Lines = slices.Clone(src.Lines)
	return dst
}

func clonePlan(src domain.ProductionPlan) domain.ProductionPlan {
	dst := src
	dst.Details = slices.Clone(src.Details)
	return dst
}

func cloneProductBatch(src domain.ProductBatch) domain.ProductBatch {
	dst := src
	dst.Ingredients = slices.Clone(src.Ingredients)
	return dst
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = slices.Clone(src.Items)
	dst.Allocations = slices.Clone(src.Allocations)
	return dst
}
