package stock

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestPlanFEFOOrdersByExpiry(t *testing.T) {
	batches := []Batch{
		{ID: 1, LotCode: "L-LATE", Expiry: day("2027-06-01"), Quantity: dec("100")},
		{ID: 2, LotCode: "L-EARLY", Expiry: day("2026-12-01"), Quantity: dec("100")},
		{ID: 3, LotCode: "L-MID", Expiry: day("2027-01-15"), Quantity: dec("100")},
	}

	plan, err := PlanFEFO(batches, dec("150"))
	require.NoError(t, err)
	require.Len(t, plan, 2)
	require.Equal(t, "L-EARLY", plan[0].LotCode)
	require.True(t, plan[0].Quantity.Equal(dec("100")))
	require.Equal(t, "L-MID", plan[1].LotCode)
	require.True(t, plan[1].Quantity.Equal(dec("50")))
}

func TestPlanFEFOTieBreaksByReceiptThenID(t *testing.T) {
	expiry := day("2027-03-01")
	batches := []Batch{
		{ID: 9, Expiry: expiry, ReceivedAt: day("2026-02-01"), Quantity: dec("10")},
		{ID: 4, Expiry: expiry, ReceivedAt: day("2026-01-01"), Quantity: dec("10")},
		{ID: 5, Expiry: expiry, ReceivedAt: day("2026-01-01"), Quantity: dec("10")},
	}

	plan, err := PlanFEFO(batches, dec("25"))
	require.NoError(t, err)
	require.Len(t, plan, 3)
	require.Equal(t, int64(4), plan[0].BatchID)
	require.Equal(t, int64(5), plan[1].BatchID)
	require.Equal(t, int64(9), plan[2].BatchID)
	require.True(t, plan[2].Quantity.Equal(dec("5")))
}

func TestPlanFEFOShortageFailsWhole(t *testing.T) {
	batches := []Batch{
		{ID: 1, WarehouseID: 7, ItemID: 3, LotCode: "A", Expiry: day("2026-11-01"), Quantity: dec("10")},
		{ID: 2, WarehouseID: 7, ItemID: 3, LotCode: "B", Expiry: day("2027-02-01"), Quantity: dec("5")},
	}

	plan, err := PlanFEFO(batches, dec("16"))
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Nil(t, plan, "a short plan must not be partially returned")

	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, int64(7), se.WarehouseID)
	require.Equal(t, int64(3), se.ItemID)
}

func TestPlanFEFOSkipsExhaustedBatches(t *testing.T) {
	batches := []Batch{
		{ID: 1, Expiry: day("2026-10-01"), Quantity: decimal.Zero},
		{ID: 2, Expiry: day("2026-12-01"), Quantity: dec("8")},
	}

	plan, err := PlanFEFO(batches, dec("8"))
	require.NoError(t, err)
	require.Len(t, plan, 1)
	require.Equal(t, int64(2), plan[0].BatchID)
}

func TestPlanFEFORejectsNonPositiveRequest(t *testing.T) {
	_, err := PlanFEFO(nil, decimal.Zero)
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = PlanFEFO(nil, dec("-1"))
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAvailableIgnoresNonPositive(t *testing.T) {
	total := Available([]Batch{
		{Quantity: dec("3")},
		{Quantity: decimal.Zero},
		{Quantity: dec("4.5")},
	})
	require.True(t, total.Equal(dec("7.5")), "got %s", total)
}
