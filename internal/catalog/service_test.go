package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-his/meridian-his/internal/stock"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type memoryRepo struct {
	items      map[int64]Item
	revisions  map[int64][]ConversionRevision
	warehouses map[int64]Warehouse
	nextItem   int64
	nextWh     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		items:      make(map[int64]Item),
		revisions:  make(map[int64][]ConversionRevision),
		warehouses: make(map[int64]Warehouse),
	}
}

func (r *memoryRepo) GetItem(ctx context.Context, id int64) (Item, error) {
	it, ok := r.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return it, nil
}

func (r *memoryRepo) ListItems(ctx context.Context, limit, offset int) ([]Item, error) {
	out := make([]Item, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, it)
	}
	return out, nil
}

func (r *memoryRepo) CountItems(ctx context.Context) (int, error) {
	return len(r.items), nil
}

func (r *memoryRepo) CreateItem(ctx context.Context, it Item) (Item, error) {
	r.nextItem++
	it.ID = r.nextItem
	it.CreatedAt = time.Now().UTC()
	r.items[it.ID] = it
	return it, nil
}

func (r *memoryRepo) InsertConversionRevision(ctx context.Context, rev ConversionRevision) error {
	rev.Revision = len(r.revisions[rev.ItemID]) + 1
	r.revisions[rev.ItemID] = append(r.revisions[rev.ItemID], rev)
	it := r.items[rev.ItemID]
	it.PackSize = rev.PackSize
	it.IUFactor = rev.IUFactor
	it.HasIU = rev.HasIU
	r.items[rev.ItemID] = it
	return nil
}

func (r *memoryRepo) ListConversionRevisions(ctx context.Context, itemID int64) ([]ConversionRevision, error) {
	return r.revisions[itemID], nil
}

func (r *memoryRepo) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	wh, ok := r.warehouses[id]
	if !ok {
		return Warehouse{}, ErrWarehouseNotFound
	}
	return wh, nil
}

func (r *memoryRepo) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	out := make([]Warehouse, 0, len(r.warehouses))
	for _, wh := range r.warehouses {
		out = append(out, wh)
	}
	return out, nil
}

func (r *memoryRepo) CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error) {
	r.nextWh++
	w.ID = r.nextWh
	w.CreatedAt = time.Now().UTC()
	r.warehouses[w.ID] = w
	return w, nil
}

func validItem() Item {
	return Item{Code: "AMOX", Name: "Amoxicillin 500mg", BaseUnit: "tablet", PackSize: dec("10")}
}

func TestCreateItemValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	created, err := svc.CreateItem(ctx, validItem())
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, ControlledNone, created.Controlled, "empty class defaults to NONE")

	cases := map[string]func(*Item){
		"missing code":      func(it *Item) { it.Code = " " },
		"missing name":      func(it *Item) { it.Name = "" },
		"missing base unit": func(it *Item) { it.BaseUnit = "" },
		"zero pack size":    func(it *Item) { it.PackSize = decimal.Zero },
		"iu without factor": func(it *Item) { it.HasIU = true },
		"unknown class":     func(it *Item) { it.Controlled = "CLASS_X" },
		"negative reorder":  func(it *Item) { it.ReorderPoint = dec("-1") },
	}
	for name, mutate := range cases {
		it := validItem()
		mutate(&it)
		_, err := svc.CreateItem(ctx, it)
		require.ErrorIs(t, err, ErrValidation, name)
	}
}

func TestSetConversionAppendsRevisions(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	it, err := svc.CreateItem(ctx, validItem())
	require.NoError(t, err)

	require.NoError(t, svc.SetConversion(ctx, it.ID, dec("12"), decimal.Zero, false, 7, "supplier changed blister size"))
	require.NoError(t, svc.SetConversion(ctx, it.ID, dec("24"), decimal.Zero, false, 7, ""))

	history, err := svc.ConversionHistory(ctx, it.ID)
	require.NoError(t, err)
	require.Len(t, history, 2, "corrections append, never overwrite")
	require.True(t, history[0].PackSize.Equal(dec("12")))
	require.True(t, history[1].PackSize.Equal(dec("24")))

	current, err := svc.GetItem(ctx, it.ID)
	require.NoError(t, err)
	require.True(t, current.PackSize.Equal(dec("24")))
}

func TestSetConversionValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	it, err := svc.CreateItem(ctx, validItem())
	require.NoError(t, err)

	require.ErrorIs(t, svc.SetConversion(ctx, it.ID, decimal.Zero, decimal.Zero, false, 7, ""), ErrValidation)
	require.ErrorIs(t, svc.SetConversion(ctx, it.ID, dec("10"), decimal.Zero, true, 7, ""), ErrValidation)
	require.ErrorIs(t, svc.SetConversion(ctx, 999, dec("10"), decimal.Zero, false, 7, ""), ErrItemNotFound)
}

func TestConvertUnits(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	it, err := svc.CreateItem(ctx, Item{
		Code: "EPO", Name: "Epoetin", BaseUnit: "vial",
		PackSize: dec("6"), IUFactor: dec("2000"), HasIU: true,
	})
	require.NoError(t, err)

	base, err := svc.ConvertUnits(ctx, it.ID, dec("3"), stock.UnitPackage)
	require.NoError(t, err)
	require.True(t, base.Equal(dec("18")))

	base, err = svc.ConvertUnits(ctx, it.ID, dec("4000"), stock.UnitIU)
	require.NoError(t, err)
	require.True(t, base.Equal(dec("2")))

	_, err = svc.ConvertUnits(ctx, it.ID, dec("1"), stock.Unit("CARTON"))
	require.ErrorIs(t, err, stock.ErrUnsupportedUnit)
}

func TestCreateWarehouseValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	wh, err := svc.CreateWarehouse(ctx, Warehouse{Code: "MAIN", Name: "Central Pharmacy", Kind: WarehouseMain})
	require.NoError(t, err)
	require.NotZero(t, wh.ID)

	_, err = svc.CreateWarehouse(ctx, Warehouse{Name: "No Code", Kind: WarehouseMain})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateWarehouse(ctx, Warehouse{Code: "X", Name: "Bad Kind", Kind: "GARAGE"})
	require.ErrorIs(t, err, ErrValidation)
}
