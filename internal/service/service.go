package service

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"centralkitchen/backend/internal/cache"
	"centralkitchen/backend/internal/domain"
	"centralkitchen/backend/internal/store"
	"centralkitchen/backend/internal/xid"

	"github.com/shopspring/decimal"
)

// ErrRecipeMissing is returned when a product has no recipe to produce from.
var ErrRecipeMissing = fmt.Errorf("%w: recipe missing", store.ErrInvalidState)

const (
	defaultRecipeTTL    = 10 * time.Minute
	defaultExpiringSoon = 7 * 24 * time.Hour
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo         store.Repository
	recipes      cache.RecipeCache
	recipeTTL    time.Duration
	expiringSoon time.Duration
	now          func() time.Time
}

func New(repo store.Repository, recipes cache.RecipeCache, recipeTTL time.Duration, expiringSoon time.Duration) *Service {
	if recipes == nil {
		recipes = cache.NoopRecipeCache{}
	}
	if recipeTTL <= 0 {
		recipeTTL = defaultRecipeTTL
	}
	if expiringSoon <= 0 {
		expiringSoon = defaultExpiringSoon
	}

	return &Service{
		repo:         repo,
		recipes:      recipes,
		recipeTTL:    recipeTTL,
		expiringSoon: expiringSoon,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, strings.TrimSpace(entityType), strings.TrimSpace(entityID), limit)
}

// requireRole passes calls without an actor; those come from internal callers.
func requireRole(ctx context.Context, roles ...string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role == domain.RoleAdmin {
		return nil
	}
	if slices.Contains(roles, actor.Role) {
		return nil
	}
	return fmt.Errorf("%w: role %s", store.ErrForbidden, actor.Role)
}

// authorizeStore confines store staff to their own store.
func authorizeStore(ctx context.Context, storeID string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleStore {
		return nil
	}
	if actor.StoreID == "" || actor.StoreID != storeID {
		return fmt.Errorf("%w: store %s", store.ErrForbidden, storeID)
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// checkScale rejects quantities with more decimal places than the store keeps.
func checkScale(field string, q decimal.Decimal) error {
	if !domain.FitsQuantityScale(q) {
		return fmt.Errorf("%w: %s %s has more than %d decimal places", store.ErrInvalidInput, field, q, domain.QuantityScale)
	}
	return nil
}

// parseDate accepts YYYY-MM-DD or RFC3339. Empty input yields fallback.
func parseDate(value string, fallback time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", store.ErrInvalidInput, value)
	}
	return parsed.UTC(), nil
}

// parseExpiry reads a date-only value as the last second of that day.
func parseExpiry(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: expiry date is required", store.ErrInvalidInput)
	}
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return parsed.UTC().Add(24*time.Hour - time.Second), nil
	}
	return parseDate(value, time.Time{})
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
