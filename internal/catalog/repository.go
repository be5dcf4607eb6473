package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-his/meridian-his/internal/platform/db"
)

// Repository persists catalog master data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, code, name, base_unit, pack_size, iu_factor, has_iu, controlled, reusable, reorder_point, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	var controlled string
	err := row.Scan(&it.ID, &it.Code, &it.Name, &it.BaseUnit, &it.PackSize, &it.IUFactor,
		&it.HasIU, &controlled, &it.Reusable, &it.ReorderPoint, &it.CreatedAt, &it.UpdatedAt)
	it.Controlled = ControlledClass(controlled)
	return it, err
}

func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM catalog_items WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return it, err
}

func (r *Repository) ListItems(ctx context.Context, limit, offset int) ([]Item, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM catalog_items ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repository) CountItems(ctx context.Context) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM catalog_items`).Scan(&total)
	return total, err
}

func (r *Repository) CreateItem(ctx context.Context, it Item) (Item, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO catalog_items
(code, name, base_unit, pack_size, iu_factor, has_iu, controlled, reusable, reorder_point, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		it.Code, it.Name, it.BaseUnit, it.PackSize, it.IUFactor, it.HasIU,
		string(it.Controlled), it.Reusable, it.ReorderPoint).
		Scan(&it.ID, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

// InsertConversionRevision appends a new factor revision and mirrors the
// current factors on the item row inside one transaction.
func (r *Repository) InsertConversionRevision(ctx context.Context, rev ConversionRevision) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var next int
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(revision), 0) + 1 FROM item_conversion_revisions WHERE item_id=$1`,
			rev.ItemID).Scan(&next); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO item_conversion_revisions
(item_id, revision, pack_size, iu_factor, has_iu, effective_from, created_by, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			rev.ItemID, next, rev.PackSize, rev.IUFactor, rev.HasIU, rev.EffectiveFrom, rev.CreatedBy, rev.Note); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE catalog_items SET pack_size=$2, iu_factor=$3, has_iu=$4, updated_at=NOW() WHERE id=$1`,
			rev.ItemID, rev.PackSize, rev.IUFactor, rev.HasIU)
		return err
	})
}

func (r *Repository) ListConversionRevisions(ctx context.Context, itemID int64) ([]ConversionRevision, error) {
	rows, err := r.pool.Query(ctx, `SELECT item_id, revision, pack_size, iu_factor, has_iu, effective_from, created_by, note
FROM item_conversion_revisions WHERE item_id=$1 ORDER BY revision ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var revs []ConversionRevision
	for rows.Next() {
		var rev ConversionRevision
		if err := rows.Scan(&rev.ItemID, &rev.Revision, &rev.PackSize, &rev.IUFactor, &rev.HasIU,
			&rev.EffectiveFrom, &rev.CreatedBy, &rev.Note); err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

func (r *Repository) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	var kind string
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, kind, created_at, updated_at FROM warehouses WHERE id=$1`, id).
		Scan(&w.ID, &w.Code, &w.Name, &kind, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, ErrWarehouseNotFound
	}
	w.Kind = WarehouseKind(kind)
	return w, err
}

func (r *Repository) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, kind, created_at, updated_at FROM warehouses ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Warehouse
	for rows.Next() {
		var w Warehouse
		var kind string
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &kind, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		w.Kind = WarehouseKind(kind)
		list = append(list, w)
	}
	return list, rows.Err()
}

func (r *Repository) CreateWarehouse(ctx context.Context, w Warehouse) (Warehouse, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO warehouses (code, name, kind, created_at, updated_at)
VALUES ($1,$2,$3,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		w.Code, w.Name, string(w.Kind)).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}
