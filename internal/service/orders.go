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

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	if err := requireRole(ctx, domain.RoleStore); err != nil {
		return domain.Order{}, err
	}

	storeID := strings.TrimSpace(req.StoreID)
	if actor, ok := ActorFromContext(ctx); ok && actor.Role == domain.RoleStore && storeID == "" {
		storeID = actor.StoreID
	}
	if storeID == "" {
		return domain.Order{}, fmt.Errorf("%w: store_id is required", store.ErrInvalidInput)
	}
	if err := authorizeStore(ctx, storeID); err != nil {
		return domain.Order{}, err
	}

	items := normalizeItems(req.Items)
	if len(items) == 0 {
		return domain.Order{}, store.ErrEmptyOrder
	}
	for _, item := range items {
		if err := checkScale("quantity", item.Quantity); err != nil {
			return domain.Order{}, err
		}
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.Order{}, err
	}
	for i := range items {
		product, ok := products[items[i].ProductID]
		if !ok || !product.Active {
			return domain.Order{}, fmt.Errorf("product %s: %w", items[i].ProductID, store.ErrNotFound)
		}
		items[i].UnitPrice = product.Price
	}

	now := s.now()
	order := domain.Order{
		ID:        xid.New("ord"),
		OrderCode: xid.Code("ORD", now),
		StoreID:   storeID,
		Status:    domain.OrderStatusPending,
		Notes:     strings.TrimSpace(req.Notes),
		Items:     items,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if actor, ok := ActorFromContext(ctx); ok {
		order.CreatedBy = actor.Username
	}
	if strings.TrimSpace(req.DeliveryDate) != "" {
		delivery, err := parseDate(req.DeliveryDate, now)
		if err != nil {
			return domain.Order{}, err
		}
		order.DeliveryDate = &delivery
	}

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_create", "order", created.ID, fmt.Sprintf("code=%s,store=%s,items=%d,total=%s", created.OrderCode, created.StoreID, len(created.Items), created.TotalAmount()))
	return *created, nil
}

// normalizeItems drops non-positive lines and merges the rest by product,
// keeping first-seen order.
func normalizeItems(inputs []domain.OrderItemInput) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(inputs))
	index := make(map[string]int, len(inputs))
	for _, input := range inputs {
		productID := strings.TrimSpace(input.ProductID.ID)
		if productID == "" || !input.Quantity.IsPositive() {
			continue
		}
		if i, ok := index[productID]; ok {
			items[i].Quantity = items[i].Quantity.Add(input.Quantity)
			continue
		}
		index[productID] = len(items)
		items = append(items, domain.OrderItem{ProductID: productID, Quantity: input.Quantity, UnitPrice: decimal.Zero})
	}
	return items
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := authorizeStore(ctx, order.StoreID); err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// ListOrders pins store staff to their own store.
func (s *Service) ListOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.Order, error) {
	storeID = strings.TrimSpace(storeID)
	status = strings.TrimSpace(status)
	if actor, ok := ActorFromContext(ctx); ok && actor.Role == domain.RoleStore {
		if storeID == "" {
			storeID = actor.StoreID
		}
		if err := authorizeStore(ctx, storeID); err != nil {
			return nil, err
		}
	}
	if status != "" && !domain.OrderLifecycle.Valid(status) {
		return nil, fmt.Errorf("%w: unknown order status %q", store.ErrInvalidInput, status)
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.repo.ListOrders(ctx, storeID, status, limit)
}

func (s *Service) ApproveOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if err := requireRole(ctx, domain.RoleKitchen); err != nil {
		return domain.Order{}, err
	}
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return domain.Order{}, err
	}

	order, err := s.repo.TransitionOrder(ctx, orderID, domain.OrderStatusApproved, s.now())
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_approve", "order", order.ID, order.OrderCode)
	return *order, nil
}

// ShipOrder allocates every item FEFO from finished-goods stock. Any shortfall
// fails the whole shipment and the order stays Approved.
func (s *Service) ShipOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if err := requireRole(ctx, domain.RoleKitchen); err != nil {
		return domain.Order{}, err
	}
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return domain.Order{}, err
	}

	order, err := s.repo.ShipOrder(ctx, orderID, s.now())
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_ship", "order", order.ID, fmt.Sprintf("code=%s,allocations=%d", order.OrderCode, len(order.Allocations)))
	return *order, nil
}

// ReceiveOrder credits the store with exactly the shipped allocations. A
// second call fails with ErrInvalidTransition.
func (s *Service) ReceiveOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if err := requireRole(ctx, domain.RoleStore); err != nil {
		return domain.Order{}, err
	}
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return domain.Order{}, err
	}

	order, err := s.repo.ReceiveOrder(ctx, orderID, s.now())
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_receive", "order", order.ID, fmt.Sprintf("code=%s,store=%s", order.OrderCode, order.StoreID))
	return *order, nil
}

func (s *Service) CancelOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if err := requireRole(ctx, domain.RoleKitchen, domain.RoleStore); err != nil {
		return domain.Order{}, err
	}
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return domain.Order{}, err
	}

	order, err := s.repo.TransitionOrder(ctx, orderID, domain.OrderStatusCancelled, s.now())
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_cancel", "order", order.ID, order.OrderCode)
	return *order, nil
}

// UpdateOrderStatus dispatches a requested target status to its operation.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status string) (domain.Order, error) {
	switch strings.TrimSpace(status) {
	case domain.OrderStatusApproved:
		return s.ApproveOrder(ctx, orderID)
	case domain.OrderStatusShipped:
		return s.ShipOrder(ctx, orderID)
	case domain.OrderStatusReceived:
		return s.ReceiveOrder(ctx, orderID)
	case domain.OrderStatusCancelled:
		return s.CancelOrder(ctx, orderID)
	case domain.OrderStatusPending:
		return domain.Order{}, fmt.Errorf("%w: orders never return to %s", store.ErrInvalidTransition, domain.OrderStatusPending)
	default:
		return domain.Order{}, fmt.Errorf("%w: unknown order status %q", store.ErrInvalidInput, status)
	}
}
