package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"centralkitchen/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrInvalidState        = errors.New("invalid state")
	ErrIncompletePlan      = errors.New("incomplete plan")
	ErrQuantityExceedsPlan = errors.New("quantity exceeds plan")
	ErrEmptyOrder          = errors.New("empty order")
	ErrInvalidInput        = errors.New("invalid input")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflict")
)

// Repository is the single authoritative store. Every mutating method below is
// one atomic unit: either all of its writes land or none do. List methods
// treat a non-positive limit as no limit.
type Repository interface {
	CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error)
	GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error)
	ListIngredients(ctx context.Context) ([]domain.Ingredient, error)
	CreateIngredientBatch(ctx context.Context, batch domain.IngredientBatch) (*domain.IngredientBatch, error)
	GetIngredientBatch(ctx context.Context, id string) (*domain.IngredientBatch, error)
	// ListIngredientBatches lists every batch of one ingredient, or of all
	// ingredients when ingredientID is empty, in FEFO order.
	ListIngredientBatches(ctx context.Context, ingredientID string) ([]domain.IngredientBatch, error)
	ConsumeIngredient(ctx context.Context, ingredientID string, qty decimal.Decimal, at time.Time) ([]domain.BatchConsumption, error)
	DeactivateIngredientBatch(ctx context.Context, batchID string) (*domain.IngredientBatch, error)
	CorrectIngredientBatch(ctx context.Context, correction domain.IngredientCorrection) (*domain.IngredientBatch, error)

	CreateProduct(ctx context.Context, product domain.Product, recipe []domain.RecipeLine) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	SetRecipe(ctx context.Context, recipe domain.Recipe) error
	GetRecipe(ctx context.Context, productID string) (*domain.Recipe, error)

	CreateProductionPlan(ctx context.Context, plan domain.ProductionPlan) (*domain.ProductionPlan, error)
	GetProductionPlan(ctx context.Context, id string) (*domain.ProductionPlan, error)
	ListProductionPlans(ctx context.Context, status string, limit int) ([]domain.ProductionPlan, error)
	// TransitionPlan re-checks the current status under lock. Completing requires
	// every detail settled; cancelling also cancels unsettled details.
	TransitionPlan(ctx context.Context, planID string, to string, at time.Time) (*domain.ProductionPlan, error)
	TransitionPlanDetail(ctx context.Context, planID string, productID string, to string, at time.Time) (*domain.ProductionPlan, error)
	CompletePlanItem(ctx context.Context, completion domain.PlanItemCompletion) (*domain.ProductBatch, error)

	GetProductBatch(ctx context.Context, id string) (*domain.ProductBatch, error)
	// ListProductBatches returns batches in FEFO order. Empty productID lists all products.
	ListProductBatches(ctx context.Context, productID string) ([]domain.ProductBatch, error)
	AllocateProduct(ctx context.Context, productID string, qty decimal.Decimal, at time.Time) ([]domain.BatchDraw, error)
	RecallProductBatch(ctx context.Context, batchID string, at time.Time) (*domain.ProductBatch, error)

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.Order, error)
	// TransitionOrder covers the transitions with no stock effect (approve, cancel).
	TransitionOrder(ctx context.Context, orderID string, to string, at time.Time) (*domain.Order, error)
	ShipOrder(ctx context.Context, orderID string, at time.Time) (*domain.Order, error)
	ReceiveOrder(ctx context.Context, orderID string, at time.Time) (*domain.Order, error)
	ListStoreInventory(ctx context.Context, storeID string) ([]domain.StoreInventoryLine, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error)
}
