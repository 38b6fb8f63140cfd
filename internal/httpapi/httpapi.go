package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"centralkitchen/backend/internal/domain"
	"centralkitchen/backend/internal/service"
	"centralkitchen/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginGuard    *loginGuard
	renderError   ErrorRenderer
}

type Option func(*API)

// WithErrorRenderer replaces the default error-to-status mapping.
func WithErrorRenderer(renderer ErrorRenderer) Option {
	return func(a *API) {
		if renderer != nil {
			a.renderError = renderer
		}
	}
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, opts ...Option) *API {
	a := &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginGuard:    newLoginGuard(5, time.Minute),
		renderError:   DefaultErrorRenderer,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)

	kitchen := []string{domain.RoleAdmin, domain.RoleKitchen}
	everyone := []string{domain.RoleAdmin, domain.RoleKitchen, domain.RoleStore}

	mux.HandleFunc("GET /api/v1/ingredients", a.requireAuth(a.handleListIngredients, kitchen...))
	mux.HandleFunc("POST /api/v1/ingredients", a.requireAuth(a.handleCreateIngredient, kitchen...))
	mux.HandleFunc("GET /api/v1/ingredients/{id}/on-hand", a.requireAuth(a.handleOnHand, kitchen...))
	mux.HandleFunc("POST /api/v1/ingredients/{id}/consume", a.requireAuth(a.handleConsume, kitchen...))
	mux.HandleFunc("GET /api/v1/ingredient-batches", a.requireAuth(a.handleListIngredientBatches, kitchen...))
	mux.HandleFunc("POST /api/v1/ingredient-batches", a.requireAuth(a.handleReceiveIngredientBatch, kitchen...))
	mux.HandleFunc("POST /api/v1/ingredient-batches/{id}/deactivate", a.requireAuth(a.handleDeactivateIngredientBatch, kitchen...))
	mux.HandleFunc("POST /api/v1/ingredient-batches/{id}/correct", a.requireAuth(a.handleCorrectIngredientBatch, kitchen...))

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts, everyone...))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct, domain.RoleAdmin))
	mux.HandleFunc("GET /api/v1/products/{id}/recipe", a.requireAuth(a.handleGetRecipe, kitchen...))
	mux.HandleFunc("PUT /api/v1/products/{id}/recipe", a.requireAuth(a.handleSetRecipe, kitchen...))

	mux.HandleFunc("GET /api/v1/production", a.requireAuth(a.handleListPlans, kitchen...))
	mux.HandleFunc("POST /api/v1/production", a.requireAuth(a.handleCreatePlan, kitchen...))
	mux.HandleFunc("GET /api/v1/production/{id}", a.requireAuth(a.handleGetPlan, kitchen...))
	mux.HandleFunc("PATCH /api/v1/production/{id}/status", a.requireAuth(a.handlePlanStatus, kitchen...))
	mux.HandleFunc("POST /api/v1/production/{id}/start-item", a.requireAuth(a.handleStartItem, kitchen...))
	mux.HandleFunc("POST /api/v1/production/{id}/cancel-item", a.requireAuth(a.handleCancelItem, kitchen...))
	mux.HandleFunc("POST /api/v1/production/{id}/complete-item", a.requireAuth(a.handleCompleteItem, kitchen...))

	mux.HandleFunc("GET /api/v1/product-batches", a.requireAuth(a.handleListProductBatches, kitchen...))
	mux.HandleFunc("POST /api/v1/product-batches/{id}/recall", a.requireAuth(a.handleRecallBatch, kitchen...))
	mux.HandleFunc("GET /api/v1/product-batches/{id}/trace", a.requireAuth(a.handleBatchTrace, kitchen...))

	mux.HandleFunc("GET /api/v1/orders", a.requireAuth(a.handleListOrders, everyone...))
	mux.HandleFunc("POST /api/v1/orders", a.requireAuth(a.handleCreateOrder, domain.RoleAdmin, domain.RoleStore))
	mux.HandleFunc("GET /api/v1/orders/{id}", a.requireAuth(a.handleGetOrder, everyone...))
	mux.HandleFunc("PUT /api/v1/orders/{id}/status", a.requireAuth(a.handleOrderStatus, everyone...))

	mux.HandleFunc("GET /api/v1/inventory/store/{storeId}", a.requireAuth(a.handleStoreInventory, everyone...))
	mux.HandleFunc("GET /api/v1/inventory/ingredients", a.requireAuth(a.handleIngredientStock, kitchen...))
	mux.HandleFunc("GET /api/v1/inventory/expiring", a.requireAuth(a.handleExpiringBatches, kitchen...))
	mux.HandleFunc("GET /api/v1/inventory/production-suggestions", a.requireAuth(a.handleProductionSuggestions, kitchen...))

	mux.HandleFunc("GET /api/v1/users/staff", a.requireAuth(a.handleListStaff, domain.RoleAdmin))
	mux.HandleFunc("POST /api/v1/users/staff", a.requireAuth(a.handleCreateStaff, domain.RoleAdmin))
	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, domain.RoleAdmin))

	return withRequestID(withRecoverer(a.withMiddleware(mux)))
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, r, http.StatusForbidden, "FORBIDDEN", errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	client := clientAddress(r)
	if a.loginGuard.Blocked(client) {
		writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", errors.New("too many failed login attempts"))
		return
	}

	var req domain.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.loginGuard.Fail(client)
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", err)
		return
	}
	a.loginGuard.Reset(client)

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListStaff(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"staff": a.auth.ListStaff(r.Context())})
}

func (a *API) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := a.auth.CreateStaff(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("entity_type"), query.Get("entity_id"), limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// decodeBody writes a 400 and returns false when the body does not decode.
func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err)
		return false
	}
	return true
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
