package stock

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PlanFEFO selects which batches satisfy requested base units, drawing in
// ascending expiry order with ascending receipt date as tie-break. The
// final draw may take a fraction of a batch; no batch is ever over-drawn.
// When total availability is short, the whole plan fails and nothing is
// consumed: planning never mutates state.
func PlanFEFO(batches []Batch, requested decimal.Decimal) ([]BatchDraw, error) {
	if requested.LessThanOrEqual(decimal.Zero) {
		return nil, NewError(KindInsufficientStock, 0, 0, 0, "requested quantity must be positive")
	}

	candidates := make([]Batch, 0, len(batches))
	for _, b := range batches {
		if b.Quantity.GreaterThan(decimal.Zero) {
			candidates = append(candidates, b)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].Expiry.Equal(candidates[j].Expiry) {
			return candidates[i].Expiry.Before(candidates[j].Expiry)
		}
		if !candidates[i].ReceivedAt.Equal(candidates[j].ReceivedAt) {
			return candidates[i].ReceivedAt.Before(candidates[j].ReceivedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})

	remaining := requested
	var plan []BatchDraw
	for _, b := range candidates {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		draw := decimal.Min(remaining, b.Quantity)
		plan = append(plan, BatchDraw{
			BatchID:  b.ID,
			LotCode:  b.LotCode,
			Expiry:   b.Expiry,
			Quantity: draw,
			UnitCost: b.UnitCost,
		})
		remaining = remaining.Sub(draw)
	}
	if remaining.GreaterThan(decimal.Zero) {
		wh, item := int64(0), int64(0)
		if len(batches) > 0 {
			wh, item = batches[0].WarehouseID, batches[0].ItemID
		}
		return nil, NewError(KindInsufficientStock, wh, item, 0,
			"requested "+requested.String()+", available "+requested.Sub(remaining).String())
	}
	return plan, nil
}

// Available sums the on-hand quantity across batches.
func Available(batches []Batch) decimal.Decimal {
	total := decimal.Zero
	for _, b := range batches {
		if b.Quantity.GreaterThan(decimal.Zero) {
			total = total.Add(b.Quantity)
		}
	}
	return total
}
