package domain

import "github.com/shopspring/decimal"

// WACScale is the scale cost values are carried at between operations.
// Rounding to a display currency happens only at presentation.
const WACScale = 4

// WeightedAverage computes Σ(unitCost × remaining) / Σ(remaining) over
// quantity-bearing layers. Zero when nothing carries weight — never an
// error, never NaN.
func WeightedAverage(layers []CostLayer) decimal.Decimal {
	totalQty := decimal.Zero
	totalValue := decimal.Zero
	for _, l := range layers {
		if !l.QtyRemaining.IsPositive() {
			continue
		}
		totalQty = totalQty.Add(l.QtyRemaining)
		totalValue = totalValue.Add(l.UnitCost.Mul(l.QtyRemaining))
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalValue.Div(totalQty).Round(WACScale)
}

// ComputeItemCosting derives the margin breakdown for one priced line.
// marginPct is defined as exactly zero when the line nets to zero.
func ComputeItemCosting(costUnit decimal.Decimal, input CostingInput) ItemCosting {
	costTotal := costUnit.Mul(input.Quantity)
	lineNet := input.UnitPrice.Mul(input.Quantity).
		Add(input.ModifiersPrice).
		Sub(input.Discount)
	marginTotal := lineNet.Sub(costTotal)

	marginPct := decimal.Zero
	if !lineNet.IsZero() {
		marginPct = marginTotal.Div(lineNet).Mul(decimal.NewFromInt(100)).Round(WACScale)
	}

	return ItemCosting{
		CostUnit:    costUnit,
		CostTotal:   costTotal,
		LineNet:     lineNet,
		MarginTotal: marginTotal,
		MarginPct:   marginPct,
	}
}
