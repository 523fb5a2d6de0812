package domain

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PlannedAllocation is one slice of a FEFO plan.
type PlannedAllocation struct {
	LotID        snowflake.ID    `json:"lot_id"`
	LotNumber    string          `json:"lot_number"`
	Qty          decimal.Decimal `json:"qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
}

// Plan is the result of a FEFO computation. It mutates nothing; applying
// it is a separate, transactional step.
type Plan struct {
	Allocations    []PlannedAllocation `json:"allocations"`
	TotalAllocated decimal.Decimal     `json:"total_allocated"`
	Shortfall      decimal.Decimal     `json:"shortfall"`
}

// PlanFEFO greedily consumes lots in first-expiry-first-out order until
// qtyNeeded is satisfied or the lots are exhausted. Lots without an
// expiry sort strictly after every dated lot; ties break on creation
// time. Only ACTIVE lots with remaining stock participate; expired lots
// are dropped when excludeExpired is set.
func PlanFEFO(lots []Lot, qtyNeeded decimal.Decimal, excludeExpired bool, now time.Time) Plan {
	candidates := make([]Lot, 0, len(lots))
	for _, l := range lots {
		// QUARANTINE and DEPLETED never allocate. EXPIRED is a derived
		// state of an otherwise active lot, so it stays allocatable
		// unless the caller excludes expired stock.
		if l.Status == LotStatusQuarantine || l.Status == LotStatusDepleted {
			continue
		}
		if !l.RemainingQty.IsPositive() {
			continue
		}
		if excludeExpired && l.ExpiredAt(now) {
			continue
		}
		candidates = append(candidates, l)
	}

	// (hasExpiry, expiry asc, createdAt asc): the nil expiry sorts as a
	// sentinel after every concrete date, not via driver null ordering.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.HasExpiry() != b.HasExpiry() {
			return a.HasExpiry()
		}
		if a.HasExpiry() && !a.ExpiryDate.Equal(*b.ExpiryDate) {
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	plan := Plan{
		TotalAllocated: decimal.Zero,
		Shortfall:      decimal.Zero,
	}
	remaining := qtyNeeded
	for _, l := range candidates {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, l.RemainingQty)
		plan.Allocations = append(plan.Allocations, PlannedAllocation{
			LotID:        l.ID,
			LotNumber:    l.LotNumber,
			Qty:          take,
			UnitCost:     l.UnitCost,
			ExpiryDate:   l.ExpiryDate,
			RemainingQty: l.RemainingQty.Sub(take),
		})
		plan.TotalAllocated = plan.TotalAllocated.Add(take)
		remaining = remaining.Sub(take)
	}

	if remaining.IsPositive() {
		plan.Shortfall = remaining
	}
	return plan
}
