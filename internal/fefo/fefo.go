// Package fefo plans first-expired, first-out draws over batches. It is pure:
// callers lock and load candidate lots, then apply the returned draws.
package fefo

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"centralkitchen/backend/internal/store"
)

// Lot is a candidate batch. A zero Expiry means the lot never expires and sorts last.
type Lot struct {
	ID        string
	Code      string
	Expiry    time.Time
	Received  time.Time
	Available decimal.Decimal
}

type Draw struct {
	LotID    string
	Code     string
	Quantity decimal.Decimal
}

// Compare orders lots by expiry, then received time, then code, then id.
func Compare(a, b Lot) int {
	switch {
	case a.Expiry.IsZero() && !b.Expiry.IsZero():
		return 1
	case !a.Expiry.IsZero() && b.Expiry.IsZero():
		return -1
	}
	if c := a.Expiry.Compare(b.Expiry); c != 0 {
		return c
	}
	if c := a.Received.Compare(b.Received); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Code, b.Code); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func Sort(lots []Lot) {
	slices.SortStableFunc(lots, Compare)
}

func Total(lots []Lot) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range lots {
		if lot.Available.IsPositive() {
			total = total.Add(lot.Available)
		}
	}
	return total
}

// Plan draws exactly qty from lots in FEFO order. Lots must already be
// filtered for eligibility. The input slice is not modified.
func Plan(lots []Lot, qty decimal.Decimal) ([]Draw, error) {
	if !qty.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	if total := Total(lots); total.LessThan(qty) {
		return nil, fmt.Errorf("%w: need %s, available %s", store.ErrInsufficientStock, qty, total)
	}

	ordered := slices.Clone(lots)
	Sort(ordered)

	draws := make([]Draw, 0, len(ordered))
	remaining := qty
	for _, lot := range ordered {
		if !remaining.IsPositive() {
			break
		}
		if !lot.Available.IsPositive() {
			continue
		}
		take := decimal.Min(remaining, lot.Available)
		draws = append(draws, Draw{LotID: lot.ID, Code: lot.Code, Quantity: take})
		remaining = remaining.Sub(take)
	}
	return draws, nil
}
