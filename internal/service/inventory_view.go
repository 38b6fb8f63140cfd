package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"centralkitchen/backend/internal/domain"
)

// The reports below are projections recomputed on every call. Nothing here
// writes to the store.

func (s *Service) IngredientStockReport(ctx context.Context) (domain.IngredientStockReport, error) {
	ingredients, err := s.repo.ListIngredients(ctx)
	if err != nil {
		return domain.IngredientStockReport{}, err
	}
	batches, err := s.repo.ListIngredientBatches(ctx, "")
	if err != nil {
		return domain.IngredientStockReport{}, err
	}

	now := s.now()
	totals := make(map[string]decimal.Decimal, len(ingredients))
	counts := make(map[string]int, len(ingredients))
	for _, batch := range batches {
		if !batch.Usable(now) {
			continue
		}
		totals[batch.IngredientID] = totals[batch.IngredientID].Add(batch.CurrentQuantity)
		counts[batch.IngredientID]++
	}

	report := domain.IngredientStockReport{
		GeneratedAt: now.Format(time.RFC3339),
		Ingredients: make([]domain.IngredientStockStatus, 0, len(ingredients)),
	}
	for _, ingredient := range ingredients {
		total := totals[ingredient.ID]
		report.Ingredients = append(report.Ingredients, domain.IngredientStockStatus{
			IngredientID:     ingredient.ID,
			Name:             ingredient.Name,
			Unit:             ingredient.Unit,
			TotalQuantity:    total,
			WarningThreshold: ingredient.WarningThreshold,
			ActiveBatches:    counts[ingredient.ID],
			LowStock:         total.LessThan(ingredient.WarningThreshold),
		})
	}
	return report, nil
}

// ExpiringProductBatches lists allocatable batches with 0 <= expiry-now <= window.
// A non-positive window uses the configured expiring-soon window.
func (s *Service) ExpiringProductBatches(ctx context.Context, window time.Duration) (domain.ExpiringBatchReport, error) {
	if window <= 0 {
		window = s.expiringSoon
	}
	batches, err := s.repo.ListProductBatches(ctx, "")
	if err != nil {
		return domain.ExpiringBatchReport{}, err
	}
	names, err := s.productNames(ctx)
	if err != nil {
		return domain.ExpiringBatchReport{}, err
	}

	now := s.now()
	report := domain.ExpiringBatchReport{
		GeneratedAt: now.Format(time.RFC3339),
		WindowDays:  int(window / (24 * time.Hour)),
		Batches:     make([]domain.ExpiringBatch, 0, 16),
	}
	for _, batch := range batches {
		if !batch.Allocatable(now) || !batch.WillExpireWithin(now, window) {
			continue
		}
		report.Batches = append(report.Batches, domain.ExpiringBatch{
			Batch:        batch,
			ProductName:  names[batch.ProductID],
			DaysToExpiry: int(batch.ExpiryDate.Sub(now) / (24 * time.Hour)),
			ExpiringSoon: true,
		})
	}
	sort.SliceStable(report.Batches, func(i, j int) bool {
		return report.Batches[i].Batch.ExpiryDate.Before(report.Batches[j].Batch.ExpiryDate)
	})
	return report, nil
}

// StoreInventorySummary groups a store's lines by product. The earliest expiry
// among a product's lines drives its expiring-soon flag.
func (s *Service) StoreInventorySummary(ctx context.Context, storeID string) (domain.StoreInventorySummary, error) {
	if err := authorizeStore(ctx, storeID); err != nil {
		return domain.StoreInventorySummary{}, err
	}
	lines, err := s.repo.ListStoreInventory(ctx, storeID)
	if err != nil {
		return domain.StoreInventorySummary{}, err
	}
	names, err := s.productNames(ctx)
	if err != nil {
		return domain.StoreInventorySummary{}, err
	}

	now := s.now()
	summary := domain.StoreInventorySummary{
		StoreID:     storeID,
		GeneratedAt: now.Format(time.RFC3339),
		Products:    make([]domain.StoreProductSummary, 0, 8),
	}
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		if !line.Quantity.IsPositive() {
			continue
		}
		i, ok := index[line.ProductID]
		if !ok {
			i = len(summary.Products)
			index[line.ProductID] = i
			summary.Products = append(summary.Products, domain.StoreProductSummary{
				ProductID:     line.ProductID,
				ProductName:   names[line.ProductID],
				TotalQuantity: decimal.Zero,
			})
		}
		product := &summary.Products[i]
		product.TotalQuantity = product.TotalQuantity.Add(line.Quantity)
		product.BatchCount++
		if product.EarliestExpiry == nil || line.ExpiryDate.Before(*product.EarliestExpiry) {
			expiry := line.ExpiryDate
			product.EarliestExpiry = &expiry
		}
	}
	for i := range summary.Products {
		earliest := summary.Products[i].EarliestExpiry
		summary.Products[i].ExpiringSoon = earliest != nil && domain.ExpiresWithin(*earliest, now, s.expiringSoon)
	}
	return summary, nil
}

// ProductionSuggestions compares open order demand with allocatable stock and
// quantities still planned, and lists products that would fall short.
func (s *Service) ProductionSuggestions(ctx context.Context) (domain.ProductionSuggestionResponse, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.ProductionSuggestionResponse{}, err
	}

	demand := make(map[string]decimal.Decimal, len(products))
	for _, status := range []string{domain.OrderStatusPending, domain.OrderStatusApproved} {
		orders, err := s.repo.ListOrders(ctx, "", status, 0)
		if err != nil {
			return domain.ProductionSuggestionResponse{}, err
		}
		for _, order := range orders {
			for _, item := range order.Items {
				demand[item.ProductID] = demand[item.ProductID].Add(item.Quantity)
			}
		}
	}

	now := s.now()
	stock := make(map[string]decimal.Decimal, len(products))
	batches, err := s.repo.ListProductBatches(ctx, "")
	if err != nil {
		return domain.ProductionSuggestionResponse{}, err
	}
	for _, batch := range batches {
		if batch.Allocatable(now) {
			stock[batch.ProductID] = stock[batch.ProductID].Add(batch.CurrentQuantity)
		}
	}

	planned := make(map[string]decimal.Decimal, len(products))
	for _, status := range []string{domain.PlanStatusPlanned, domain.PlanStatusInProgress} {
		plans, err := s.repo.ListProductionPlans(ctx, status, 0)
		if err != nil {
			return domain.ProductionSuggestionResponse{}, err
		}
		for _, plan := range plans {
			for _, detail := range plan.Details {
				if detail.Status == domain.DetailStatusPending || detail.Status == domain.DetailStatusInProgress {
					planned[detail.ProductID] = planned[detail.ProductID].Add(detail.PlannedQuantity)
				}
			}
		}
	}

	suggestions := make([]domain.ProductionSuggestion, 0, 8)
	for _, product := range products {
		if !product.Active {
			continue
		}
		shortfall := demand[product.ID].Sub(stock[product.ID]).Sub(planned[product.ID])
		if !shortfall.IsPositive() {
			continue
		}
		suggestions = append(suggestions, domain.ProductionSuggestion{
			ProductID:       product.ID,
			SKU:             product.SKU,
			Name:            product.Name,
			OpenDemand:      demand[product.ID],
			AvailableStock:  stock[product.ID],
			PlannedQuantity: planned[product.ID],
			Shortfall:       shortfall,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Shortfall.Equal(suggestions[j].Shortfall) {
			return suggestions[i].SKU < suggestions[j].SKU
		}
		return suggestions[i].Shortfall.GreaterThan(suggestions[j].Shortfall)
	})

	return domain.ProductionSuggestionResponse{
		GeneratedAt: now.Format(time.RFC3339),
		Suggestions: suggestions,
	}, nil
}

func (s *Service) productNames(ctx context.Context) (map[string]string, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(products))
	for _, product := range products {
		names[product.ID] = product.Name
	}
	return names, nil
}
