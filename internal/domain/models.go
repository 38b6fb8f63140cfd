package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin   = "admin"
	RoleKitchen = "kitchen"
	RoleStore   = "store"
)

// QuantityScale is the number of decimal places kept for every stock quantity.
const QuantityScale = 4

// FitsQuantityScale reports whether q can be stored without rounding.
func FitsQuantityScale(q decimal.Decimal) bool {
	return q.Equal(q.Truncate(QuantityScale))
}

type Ingredient struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	WarningThreshold decimal.Decimal `json:"warning_threshold"`
	Active           bool            `json:"active"`
	CreatedAt        time.Time       `json:"created_at"`
}

type IngredientCreateRequest struct {
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	WarningThreshold decimal.Decimal `json:"warning_threshold"`
}

type IngredientBatch struct {
	ID              string          `json:"id"`
	IngredientID    string          `json:"ingredient_id"`
	BatchCode       string          `json:"batch_code"`
	ReceivedDate    time.Time       `json:"received_date"`
	ExpiryDate      time.Time       `json:"expiry_date"`
	InitialQuantity decimal.Decimal `json:"initial_quantity"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	SupplierRef     string          `json:"supplier_ref,omitempty"`
	Active          bool            `json:"active"`
}

// Empty reports a fully consumed batch. Empty batches are retained for history.
func (b IngredientBatch) Empty() bool {
	return !b.CurrentQuantity.IsPositive()
}

// IsExpired is true once the expiry instant lies strictly before at.
// A zero expiry never expires.
func (b IngredientBatch) IsExpired(at time.Time) bool {
	return !b.ExpiryDate.IsZero() && b.ExpiryDate.Before(at)
}

func (b IngredientBatch) Usable(at time.Time) bool {
	return b.Active && !b.IsExpired(at) && b.CurrentQuantity.IsPositive()
}

type IngredientBatchReceiveRequest struct {
	IngredientID string          `json:"ingredient_id"`
	BatchCode    string          `json:"batch_code"`
	ReceivedDate string          `json:"received_date,omitempty"`
	ExpiryDate   string          `json:"expiry_date"`
	Quantity     decimal.Decimal `json:"quantity"`
	SupplierRef  string          `json:"supplier_ref,omitempty"`
}

type IngredientBatchCorrectRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	Reason   string          `json:"reason"`
}

type IngredientConsumeRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

type IngredientCorrection struct {
	ID          string          `json:"id"`
	BatchID     string          `json:"batch_id"`
	OldQuantity decimal.Decimal `json:"old_quantity"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
	Reason      string          `json:"reason"`
	CorrectedBy string          `json:"corrected_by"`
	CorrectedAt time.Time       `json:"corrected_at"`
}

type OnHand struct {
	IngredientID  string            `json:"ingredient_id"`
	Unit          string            `json:"unit"`
	TotalQuantity decimal.Decimal   `json:"total_quantity"`
	Batches       []IngredientBatch `json:"batches"`
}

// BatchConsumption is one (ingredient batch, quantity) pair drawn by a consumption.
type BatchConsumption struct {
	IngredientID      string          `json:"ingredient_id"`
	IngredientBatchID string          `json:"ingredient_batch_id"`
	BatchCode         string          `json:"batch_code"`
	Quantity          decimal.Decimal `json:"quantity"`
}

type Product struct {
	ID            string          `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	Price         decimal.Decimal `json:"price"`
	ShelfLifeDays int             `json:"shelf_life_days"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
}

type ProductCreateRequest struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	Price         decimal.Decimal `json:"price"`
	ShelfLifeDays int             `json:"shelf_life_days"`
	Recipe        []RecipeLine    `json:"recipe,omitempty"`
}

type RecipeLine struct {
	IngredientID    string          `json:"ingredient_id"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
}

type Recipe struct {
	ProductID string       `json:"product_id"`
	Lines     []RecipeLine `json:"lines"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type RecipeUpdateRequest struct {
	Lines []RecipeLine `json:"lines"`
}

type IngredientRequirement struct {
	IngredientID string
	Quantity     decimal.Decimal
}

// Requirements scales the recipe to units of output. Lines naming the same
// ingredient are merged so each ingredient is drawn exactly once, in first-seen order.
// Each merged total is rounded up to QuantityScale so a draw is never zero
// and never short.
func (r Recipe) Requirements(units decimal.Decimal) []IngredientRequirement {
	out := make([]IngredientRequirement, 0, len(r.Lines))
	index := make(map[string]int, len(r.Lines))
	for _, line := range r.Lines {
		need := line.QuantityPerUnit.Mul(units)
		if i, ok := index[line.IngredientID]; ok {
			out[i].Quantity = out[i].Quantity.Add(need)
			continue
		}
		index[line.IngredientID] = len(out)
		out = append(out, IngredientRequirement{IngredientID: line.IngredientID, Quantity: need})
	}
	for i := range out {
		out[i].Quantity = out[i].Quantity.RoundCeil(QuantityScale)
	}
	return out
}

type ProductionPlan struct {
	ID          string                 `json:"id"`
	PlanCode    string                 `json:"plan_code"`
	PlanDate    time.Time              `json:"plan_date"`
	Status      string                 `json:"status"`
	Notes       string                 `json:"notes,omitempty"`
	Details     []ProductionPlanDetail `json:"details"`
	CreatedBy   string                 `json:"created_by,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	CancelledAt *time.Time             `json:"cancelled_at,omitempty"`
}

func (p ProductionPlan) DetailIndex(productID string) (int, bool) {
	for i, d := range p.Details {
		if d.ProductID == productID {
			return i, true
		}
	}
	return -1, false
}

// Settled reports whether every detail reached Completed or Cancelled.
func (p ProductionPlan) Settled() bool {
	for _, d := range p.Details {
		if d.Status != DetailStatusCompleted && d.Status != DetailStatusCancelled {
			return false
		}
	}
	return true
}

type ProductionPlanDetail struct {
	ProductID       string          `json:"product_id"`
	PlannedQuantity decimal.Decimal `json:"planned_quantity"`
	ActualQuantity  decimal.Decimal `json:"actual_quantity"`
	Status          string          `json:"status"`
	BatchID         string          `json:"batch_id,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

type PlanDetailInput struct {
	ProductID       ProductRef      `json:"product_id"`
	PlannedQuantity decimal.Decimal `json:"planned_quantity"`
}

type ProductionPlanCreateRequest struct {
	PlanCode string            `json:"plan_code,omitempty"`
	PlanDate string            `json:"plan_date,omitempty"`
	Notes    string            `json:"notes,omitempty"`
	Details  []PlanDetailInput `json:"details"`
}

type StatusUpdateRequest struct {
	Status string `json:"status"`
}

type PlanItemRequest struct {
	ProductID      ProductRef      `json:"product_id"`
	ActualQuantity decimal.Decimal `json:"actual_quantity"`
}

// PlanItemCompletion carries everything the store needs to complete a plan
// detail in one atomic write.
type PlanItemCompletion struct {
	PlanID         string
	ProductID      string
	ActualQuantity decimal.Decimal
	Recipe         Recipe
	BatchID        string
	BatchCode      string
	ShelfLifeDays  int
	At             time.Time
}

type BatchIngredient struct {
	IngredientID      string          `json:"ingredient_id"`
	IngredientBatchID string          `json:"ingredient_batch_id"`
	QuantityUsed      decimal.Decimal `json:"quantity_used"`
}

type ProductBatch struct {
	ID              string            `json:"id"`
	BatchCode       string            `json:"batch_code"`
	PlanID          string            `json:"production_plan_id"`
	ProductID       string            `json:"product_id"`
	ManufactureDate time.Time         `json:"manufacture_date"`
	ExpiryDate      time.Time         `json:"expiry_date"`
	InitialQuantity decimal.Decimal   `json:"initial_quantity"`
	CurrentQuantity decimal.Decimal   `json:"current_quantity"`
	Status          string            `json:"status"`
	Ingredients     []BatchIngredient `json:"ingredient_batches"`
}

func (b ProductBatch) IsExpired(at time.Time) bool {
	return b.ExpiryDate.Before(at)
}

// EffectiveStatus derives Expired at read time; the stored status is left as is.
func (b ProductBatch) EffectiveStatus(at time.Time) string {
	if b.Status == BatchStatusActive && b.IsExpired(at) {
		return BatchStatusExpired
	}
	return b.Status
}

func (b ProductBatch) Allocatable(at time.Time) bool {
	return b.EffectiveStatus(at) == BatchStatusActive && b.CurrentQuantity.IsPositive()
}

// WillExpireWithin reports an unexpired batch whose expiry falls inside window.
func (b ProductBatch) WillExpireWithin(at time.Time, window time.Duration) bool {
	return ExpiresWithin(b.ExpiryDate, at, window)
}

// ExpiresWithin is true when 0 <= expiry-at <= window.
func ExpiresWithin(expiry time.Time, at time.Time, window time.Duration) bool {
	return !expiry.Before(at) && !expiry.After(at.Add(window))
}

type BatchDraw struct {
	BatchID    string          `json:"batch_id"`
	BatchCode  string          `json:"batch_code"`
	Quantity   decimal.Decimal `json:"quantity"`
	ExpiryDate time.Time       `json:"expiry_date"`
}

type BatchTraceLine struct {
	IngredientBatchID string          `json:"ingredient_batch_id"`
	BatchCode         string          `json:"batch_code"`
	IngredientID      string          `json:"ingredient_id"`
	IngredientName    string          `json:"ingredient_name"`
	QuantityUsed      decimal.Decimal `json:"quantity_used"`
	ExpiryDate        time.Time       `json:"expiry_date"`
}

type BatchTrace struct {
	Batch       ProductBatch     `json:"batch"`
	Product     Product          `json:"product"`
	PlanCode    string           `json:"plan_code"`
	Ingredients []BatchTraceLine `json:"ingredients"`
}

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

func (i OrderItem) MarshalJSON() ([]byte, error) {
	type itemAlias OrderItem
	return json.Marshal(struct {
		itemAlias
		Subtotal decimal.Decimal `json:"subtotal"`
	}{itemAlias(i), i.Subtotal()})
}

type OrderAllocation struct {
	ProductID  string          `json:"product_id"`
	BatchID    string          `json:"batch_id"`
	BatchCode  string          `json:"batch_code"`
	Quantity   decimal.Decimal `json:"quantity"`
	ExpiryDate time.Time       `json:"expiry_date"`
}

type Order struct {
	ID           string            `json:"id"`
	OrderCode    string            `json:"order_code"`
	StoreID      string            `json:"store_id"`
	Status       string            `json:"status"`
	DeliveryDate *time.Time        `json:"delivery_date,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	Items        []OrderItem       `json:"items"`
	Allocations  []OrderAllocation `json:"allocations,omitempty"`
	CreatedBy    string            `json:"created_by,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	ApprovedAt   *time.Time        `json:"approved_at,omitempty"`
	ShippedAt    *time.Time        `json:"shipped_at,omitempty"`
	ReceivedAt   *time.Time        `json:"received_at,omitempty"`
	CancelledAt  *time.Time        `json:"cancelled_at,omitempty"`
}

// TotalAmount is always derived from the items and never stored.
func (o Order) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (o Order) MarshalJSON() ([]byte, error) {
	type orderAlias Order
	return json.Marshal(struct {
		orderAlias
		TotalAmount decimal.Decimal `json:"total_amount"`
	}{orderAlias(o), o.TotalAmount()})
}

type OrderItemInput struct {
	ProductID ProductRef      `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type OrderCreateRequest struct {
	StoreID      string           `json:"store_id"`
	DeliveryDate string           `json:"delivery_date,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	Items        []OrderItemInput `json:"items"`
}

type StoreInventoryLine struct {
	StoreID    string          `json:"store_id"`
	ProductID  string          `json:"product_id"`
	BatchID    string          `json:"batch_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	ExpiryDate time.Time       `json:"expiry_date"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type IngredientStockStatus struct {
	IngredientID     string          `json:"ingredient_id"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	TotalQuantity    decimal.Decimal `json:"total_quantity"`
	WarningThreshold decimal.Decimal `json:"warning_threshold"`
	ActiveBatches    int             `json:"active_batches"`
	LowStock         bool            `json:"low_stock"`
}

type IngredientStockReport struct {
	GeneratedAt string                  `json:"generated_at"`
	Ingredients []IngredientStockStatus `json:"ingredients"`
}

type ExpiringBatch struct {
	Batch        ProductBatch `json:"batch"`
	ProductName  string       `json:"product_name"`
	DaysToExpiry int          `json:"days_to_expiry"`
	ExpiringSoon bool         `json:"expiring_soon"`
}

type ExpiringBatchReport struct {
	GeneratedAt string          `json:"generated_at"`
	WindowDays  int             `json:"window_days"`
	Batches     []ExpiringBatch `json:"batches"`
}

type StoreProductSummary struct {
	ProductID      string          `json:"product_id"`
	ProductName    string          `json:"product_name"`
	TotalQuantity  decimal.Decimal `json:"total_quantity"`
	BatchCount     int             `json:"batch_count"`
	EarliestExpiry *time.Time      `json:"earliest_expiry,omitempty"`
	ExpiringSoon   bool            `json:"expiring_soon"`
}

type StoreInventorySummary struct {
	StoreID     string                `json:"store_id"`
	GeneratedAt string                `json:"generated_at"`
	Products    []StoreProductSummary `json:"products"`
}

type ProductionSuggestion struct {
	ProductID       string          `json:"product_id"`
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	OpenDemand      decimal.Decimal `json:"open_demand"`
	AvailableStock  decimal.Decimal `json:"available_stock"`
	PlannedQuantity decimal.Decimal `json:"planned_quantity"`
	Shortfall       decimal.Decimal `json:"shortfall"`
}

type ProductionSuggestionResponse struct {
	GeneratedAt string                 `json:"generated_at"`
	Suggestions []ProductionSuggestion `json:"suggestions"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	StoreID     string `json:"store_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
	StoreID  string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	StoreID  string `json:"store_id,omitempty"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	StoreID   string    `json:"store_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type UserAccount struct {
	Username  string
	Password  string
	Role      string
	StoreID   string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
