package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"centralkitchen/backend/internal/domain"
	"centralkitchen/backend/internal/store"
	"centralkitchen/backend/internal/xid"
)

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 {
		return nil, store.ErrEmptyOrder
	}
	if order.OrderCode == "" || order.StoreID == "" {
		return nil, store.ErrInvalidInput
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_code, store_id, status, delivery_date, notes, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, order.ID, order.OrderCode, order.StoreID, order.Status, nullDate(order.DeliveryDate),
		nullIfEmpty(order.Notes), nullIfEmpty(order.CreatedBy), order.CreatedAt, order.UpdatedAt); err != nil {
		return nil, mapWriteError(err)
	}
	for i, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5)
		`, order.ID, i+1, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			if isForeignKeyViolation(err) {
				return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
			}
			return nil, mapWriteError(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	return &order, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return loadOrder(ctx, s.db, id, false)
}

func loadOrder(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Order, error) {
	lock := ""
	if forUpdate {
		lock = " FOR UPDATE"
	}

	var order domain.Order
	var notes, createdBy sql.NullString
	var deliveryDate, approvedAt, shippedAt, receivedAt, cancelledAt sql.NullTime
	err := q.QueryRowContext(ctx, `
		SELECT id, order_code, store_id, status, delivery_date, notes, created_by, created_at, updated_at,
		       approved_at, shipped_at, received_at, cancelled_at
		FROM orders
		WHERE id = $1`+lock, id).Scan(
		&order.ID, &order.OrderCode, &order.StoreID, &order.Status, &deliveryDate, &notes, &createdBy,
		&order.CreatedAt, &order.UpdatedAt, &approvedAt, &shippedAt, &receivedAt, &cancelledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	order.Notes = notes.String
	order.CreatedBy = createdBy.String
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	order.DeliveryDate = timePtr(deliveryDate)
	order.ApprovedAt = timePtr(approvedAt)
	order.ShippedAt = timePtr(shippedAt)
	order.ReceivedAt = timePtr(receivedAt)
	order.CancelledAt = timePtr(cancelledAt)

	itemRows, err := q.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_no ASC
	`, id)
	if err != nil {
		return nil, err
	}
	for itemRows.Next() {
		var item domain.OrderItem
		if err := itemRows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	allocRows, err := q.QueryContext(ctx, `
		SELECT a.product_id, a.batch_id, b.batch_code, a.quantity, b.expiry_date
		FROM order_allocations a
		JOIN product_batches b ON b.id = a.batch_id
		WHERE a.order_id = $1
		ORDER BY a.line_no ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer allocRows.Close()

	for allocRows.Next() {
		var alloc domain.OrderAllocation
		if err := allocRows.Scan(&alloc.ProductID, &alloc.BatchID, &alloc.BatchCode, &alloc.Quantity, &alloc.ExpiryDate); err != nil {
			return nil, err
		}
		alloc.ExpiryDate = alloc.ExpiryDate.UTC()
		order.Allocations = append(order.Allocations, alloc)
	}
	if err := allocRows.Err(); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM orders
		WHERE ($1 = '' OR store_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, order_code DESC
		LIMIT $3
	`, storeID, status, limitArg(limit))
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

	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		order, err := loadOrder(ctx, s.db, id, false)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

func (s *Store) TransitionOrder(ctx context.Context, orderID string, to string, at time.Time) (*domain.Order, error) {
	column := map[string]string{
		domain.OrderStatusApproved:  "approved_at",
		domain.OrderStatusCancelled: "cancelled_at",
	}[to]
	if column == "" {
		return nil, fmt.Errorf("%w: %s has a dedicated operation", store.ErrInvalidInput, to)
	}

	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, code, err := lockOrderStatus(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !domain.OrderLifecycle.CanTransition(current, to) {
		return nil, fmt.Errorf("%w: order %s cannot move from %s to %s", store.ErrInvalidTransition, code, current, to)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $3, updated_at = $4, `+column+` = $4
		WHERE id = $1 AND status = $2
	`, orderID, current, to, at)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, fmt.Errorf("%w: order %s changed concurrently", store.ErrInvalidTransition, code)
	}

	updated, err := loadOrder(ctx, tx, orderID, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

// ShipOrder allocates every item FEFO and flips the order to Shipped in one
// transaction. Any shortfall rolls the whole shipment back.
func (s *Store) ShipOrder(ctx context.Context, orderID string, at time.Time) (*domain.Order, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := loadOrder(ctx, tx, orderID, true)
	if err != nil {
		return nil, err
	}
	if !domain.OrderLifecycle.CanTransition(order.Status, domain.OrderStatusShipped) {
		return nil, fmt.Errorf("%w: order %s cannot move from %s to %s", store.ErrInvalidTransition, order.OrderCode, order.Status, domain.OrderStatusShipped)
	}

	allocations := make([]domain.OrderAllocation, 0, len(order.Items))
	for _, item := range order.Items {
		draws, err := allocateProductTx(ctx, tx, item.ProductID, item.Quantity, at)
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
	for i, alloc := range allocations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_allocations (order_id, line_no, product_id, batch_id, quantity)
			VALUES ($1,$2,$3,$4,$5)
		`, orderID, i+1, alloc.ProductID, alloc.BatchID, alloc.Quantity); err != nil {
			return nil, mapWriteError(err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, shipped_at = $3, updated_at = $3 WHERE id = $1
	`, orderID, domain.OrderStatusShipped, at); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}

	stamp := at
	order.Status = domain.OrderStatusShipped
	order.ShippedAt = &stamp
	order.UpdatedAt = at
	order.Allocations = allocations
	return order, nil
}

func (s *Store) ReceiveOrder(ctx context.Context, orderID string, at time.Time) (*domain.Order, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := loadOrder(ctx, tx, orderID, true)
	if err != nil {
		return nil, err
	}
	if !domain.OrderLifecycle.CanTransition(order.Status, domain.OrderStatusReceived) {
		return nil, fmt.Errorf("%w: order %s cannot move from %s to %s", store.ErrInvalidTransition, order.OrderCode, order.Status, domain.OrderStatusReceived)
	}

	for _, alloc := range order.Allocations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO store_inventory (store_id, batch_id, product_id, quantity, expiry_date, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (store_id, batch_id)
			DO UPDATE SET quantity = store_inventory.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
		`, order.StoreID, alloc.BatchID, alloc.ProductID, alloc.Quantity, alloc.ExpiryDate, at); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, received_at = $3, updated_at = $3 WHERE id = $1
	`, orderID, domain.OrderStatusReceived, at); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, mapWriteError(err)
	}

	stamp := at
	order.Status = domain.OrderStatusReceived
	order.ReceivedAt = &stamp
	order.UpdatedAt = at
	return order, nil
}

func (s *Store) ListStoreInventory(ctx context.Context, storeID string) ([]domain.StoreInventoryLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id, product_id, batch_id, quantity, expiry_date, updated_at
		FROM store_inventory
		WHERE store_id = $1
		ORDER BY product_id, expiry_date, batch_id
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.StoreInventoryLine, 0, 32)
	for rows.Next() {
		var line domain.StoreInventoryLine
		if err := rows.Scan(&line.StoreID, &line.ProductID, &line.BatchID, &line.Quantity, &line.ExpiryDate, &line.UpdatedAt); err != nil {
			return nil, err
		}
		line.ExpiryDate = line.ExpiryDate.UTC()
		line.UpdatedAt = line.UpdatedAt.UTC()
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func lockOrderStatus(ctx context.Context, tx *sql.Tx, orderID string) (status string, code string, err error) {
	err = tx.QueryRowContext(ctx, `SELECT status, order_code FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&status, &code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", store.ErrNotFound
		}
		return "", "", err
	}
	return status, code, nil
}
