package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"centralkitchen/backend/internal/domain"
)

func (a *API) handleListIngredients(w http.ResponseWriter, r *http.Request) {
	ingredients, err := a.service.ListIngredients(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingredients": ingredients})
}

func (a *API) handleCreateIngredient(w http.ResponseWriter, r *http.Request) {
	var req domain.IngredientCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ingredient, err := a.service.CreateIngredient(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingredient)
}

func (a *API) handleOnHand(w http.ResponseWriter, r *http.Request) {
	onHand, err := a.service.GetOnHand(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, onHand)
}

func (a *API) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req domain.IngredientConsumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	consumed, err := a.service.ReserveAndConsume(r.Context(), r.PathValue("id"), req.Quantity)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consumed": consumed})
}

func (a *API) handleListIngredientBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := a.service.ListIngredientBatches(r.Context(), r.URL.Query().Get("ingredient_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (a *API) handleReceiveIngredientBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.IngredientBatchReceiveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	batch, err := a.service.ReceiveIngredientBatch(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (a *API) handleDeactivateIngredientBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := a.service.DeactivateIngredientBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (a *API) handleCorrectIngredientBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.IngredientBatchCorrectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	batch, err := a.service.CorrectIngredientBatch(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	recipe, err := a.service.GetRecipe(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

func (a *API) handleSetRecipe(w http.ResponseWriter, r *http.Request) {
	var req domain.RecipeUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	recipe, err := a.service.SetRecipe(r.Context(), r.PathValue("id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

func (a *API) handleListPlans(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	plans, err := a.service.ListPlans(r.Context(), query.Get("status"), parsePositiveLimit(query.Get("limit"), 50, 200))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

func (a *API) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductionPlanCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	plan, err := a.service.CreatePlan(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (a *API) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := a.service.GetPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (a *API) handlePlanStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.StatusUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	plan, err := a.service.UpdatePlanStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (a *API) handleStartItem(w http.ResponseWriter, r *http.Request) {
	var req domain.PlanItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	plan, err := a.service.StartItem(r.Context(), r.PathValue("id"), req.ProductID.ID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (a *API) handleCancelItem(w http.ResponseWriter, r *http.Request) {
	var req domain.PlanItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	plan, err := a.service.CancelItem(r.Context(), r.PathValue("id"), req.ProductID.ID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (a *API) handleCompleteItem(w http.ResponseWriter, r *http.Request) {
	var req domain.PlanItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	batch, err := a.service.CompleteItem(r.Context(), r.PathValue("id"), req.ProductID.ID, req.ActualQuantity)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (a *API) handleListProductBatches(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	includeInactive, _ := strconv.ParseBool(strings.TrimSpace(query.Get("include_inactive")))
	batches, err := a.service.ListBatches(r.Context(), query.Get("product_id"), includeInactive)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (a *API) handleRecallBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := a.service.RecallBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (a *API) handleBatchTrace(w http.ResponseWriter, r *http.Request) {
	trace, err := a.service.GetBatchTrace(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 50, 200)
	orders, err := a.service.ListOrders(r.Context(), query.Get("store_id"), query.Get("status"), limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.StatusUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := a.service.UpdateOrderStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleStoreInventory(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.StoreInventorySummary(r.Context(), r.PathValue("storeId"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleIngredientStock(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.IngredientStockReport(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleExpiringBatches takes ?days=N; a missing or invalid value falls back
// to the configured window.
func (a *API) handleExpiringBatches(w http.ResponseWriter, r *http.Request) {
	days := parsePositiveLimit(r.URL.Query().Get("days"), 0, 365)
	report, err := a.service.ExpiringProductBatches(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleProductionSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := a.service.ProductionSuggestions(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}
