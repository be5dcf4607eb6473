package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-his/meridian-his/internal/platform/db"
)

// Repository persists the ledger and batch projection in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
// Serialization and deadlock failures surface as Conflict so the
// coordinator can replan from fresh state.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	return mapPgError(err)
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization failure, deadlock detected
			return NewError(KindConflict, 0, 0, 0, pgErr.Message)
		case "23505":
			return NewError(KindIntegrityViolation, 0, 0, 0, pgErr.Message)
		}
	}
	return err
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so other modules (movement,
// stock take) can commit ledger effects inside their own unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

const batchColumns = `id, warehouse_id, item_id, lot_code, expiry, unit_cost, quantity, received_at, source_doc_id, updated_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.WarehouseID, &b.ItemID, &b.LotCode, &b.Expiry, &b.UnitCost,
		&b.Quantity, &b.ReceivedAt, &b.SourceDocID, &b.UpdatedAt)
	return b, err
}

func (r *txRepository) BatchesForUpdate(ctx context.Context, warehouseID, itemID int64) ([]Batch, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+batchColumns+` FROM stock_batches
WHERE warehouse_id=$1 AND item_id=$2
ORDER BY expiry ASC, received_at ASC, id ASC
FOR UPDATE`, warehouseID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *txRepository) BatchForUpdate(ctx context.Context, batchID int64) (Batch, error) {
	b, err := scanBatch(r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM stock_batches WHERE id=$1 FOR UPDATE`, batchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, ErrBatchNotFound
	}
	return b, err
}

func (r *txRepository) FindBatchForUpdate(ctx context.Context, warehouseID, itemID int64, lotCode string) (Batch, error) {
	b, err := scanBatch(r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM stock_batches
WHERE warehouse_id=$1 AND item_id=$2 AND lot_code=$3 FOR UPDATE`, warehouseID, itemID, lotCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, ErrBatchNotFound
	}
	return b, err
}

func (r *txRepository) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_batches
(warehouse_id, item_id, lot_code, expiry, unit_cost, quantity, received_at, source_doc_id, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		batch.WarehouseID, batch.ItemID, batch.LotCode, batch.Expiry, batch.UnitCost,
		batch.Quantity, batch.ReceivedAt, nullInt(batch.SourceDocID)).Scan(&id)
	return id, err
}

func (r *txRepository) AddBatchQuantity(ctx context.Context, batchID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.tx.QueryRow(ctx, `UPDATE stock_batches SET quantity = quantity + $2, updated_at = NOW()
WHERE id=$1 RETURNING quantity`, batchID, delta).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrBatchNotFound
	}
	return qty, err
}

func (r *txRepository) InsertEntries(ctx context.Context, entries []LedgerEntry) error {
	for _, e := range entries {
		_, err := r.tx.Exec(ctx, `INSERT INTO stock_ledger
(occurred_at, warehouse_id, item_id, batch_id, delta, kind, document_id, line_seq, actor_id, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			e.OccurredAt, e.WarehouseID, e.ItemID, e.BatchID, e.Delta, string(e.Kind),
			e.DocumentID, e.LineSeq, nullInt(e.ActorID), e.Note)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) EntryKeyExists(ctx context.Context, key EntryKey) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_ledger WHERE document_id=$1 AND line_seq=$2 AND kind=$3)`,
		key.DocumentID, key.LineSeq, string(key.Kind)).Scan(&exists)
	return exists, err
}

// Read side. Queries run on the pool outside any movement transaction.

func (r *Repository) QuantityOnHand(ctx context.Context, warehouseID, itemID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM stock_batches
WHERE warehouse_id=$1 AND item_id=$2`, warehouseID, itemID).Scan(&qty)
	return qty, err
}

func (r *Repository) BatchesFor(ctx context.Context, warehouseID, itemID int64) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM stock_batches
WHERE warehouse_id=$1 AND item_id=$2 AND quantity > 0
ORDER BY expiry ASC, received_at ASC, id ASC`, warehouseID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *Repository) ExpiringWithin(ctx context.Context, days int) ([]ExpiryWarning, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, days)
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM stock_batches
WHERE quantity > 0 AND expiry <= $1
ORDER BY expiry ASC, id ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var warnings []ExpiryWarning
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, ExpiryWarning{
			Batch:         b,
			DaysRemaining: int(time.Until(b.Expiry).Hours() / 24),
		})
	}
	return warnings, rows.Err()
}

func (r *Repository) BelowReorderPoint(ctx context.Context) ([]ReorderWarning, error) {
	rows, err := r.pool.Query(ctx, `SELECT b.warehouse_id, b.item_id, SUM(b.quantity) AS on_hand, i.reorder_point
FROM stock_batches b
JOIN catalog_items i ON i.id = b.item_id
WHERE i.reorder_point > 0
GROUP BY b.warehouse_id, b.item_id, i.reorder_point
HAVING SUM(b.quantity) < i.reorder_point
ORDER BY b.warehouse_id, b.item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var warnings []ReorderWarning
	for rows.Next() {
		var w ReorderWarning
		if err := rows.Scan(&w.WarehouseID, &w.ItemID, &w.OnHand, &w.ReorderPoint); err != nil {
			return nil, err
		}
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

// StockCard lists ledger entries for the key with a running balance.
func (r *Repository) StockCard(ctx context.Context, warehouseID, itemID int64, from, to time.Time, limit int) ([]CardEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	// The running sum covers the key's full history; the date filter only
	// selects which rows are shown, so a from date does not reset the balance.
	rows, err := r.pool.Query(ctx, `SELECT id, occurred_at, batch_id, lot_code, kind, delta, balance, document_id, actor_id, note
FROM (
	SELECT l.id, l.occurred_at, l.batch_id, b.lot_code, l.kind, l.delta,
	SUM(l.delta) OVER (ORDER BY l.occurred_at ASC, l.id ASC) AS balance,
	l.document_id, COALESCE(l.actor_id, 0) AS actor_id, l.note
	FROM stock_ledger l
	JOIN stock_batches b ON b.id = l.batch_id
	WHERE l.warehouse_id=$1 AND l.item_id=$2
) card
WHERE occurred_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY occurred_at ASC, id ASC
LIMIT $5`, warehouseID, itemID, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []CardEntry{}
	for rows.Next() {
		var e CardEntry
		var kind string
		if err := rows.Scan(&e.EntryID, &e.OccurredAt, &e.BatchID, &e.LotCode, &kind, &e.Delta,
			&e.Balance, &e.DocumentID, &e.ActorID, &e.Note); err != nil {
			return nil, err
		}
		e.Kind = MovementKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EntriesByDocument lists the committed ledger entries of one document,
// in line-sequence order. Used to build reversing movements.
func (r *Repository) EntriesByDocument(ctx context.Context, documentID int64) ([]LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, occurred_at, warehouse_id, item_id, batch_id, delta, kind, document_id, line_seq, COALESCE(actor_id, 0), note
FROM stock_ledger WHERE document_id=$1 ORDER BY line_seq ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.WarehouseID, &e.ItemID, &e.BatchID, &e.Delta,
			&kind, &e.DocumentID, &e.LineSeq, &e.ActorID, &e.Note); err != nil {
			return nil, err
		}
		e.Kind = MovementKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReplayBalance recomputes the balance for a key from the ledger alone.
// Audit path: must equal the projection's cached quantity.
func (r *Repository) ReplayBalance(ctx context.Context, warehouseID, itemID, batchID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	var err error
	if batchID != 0 {
		err = r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(delta), 0) FROM stock_ledger
WHERE warehouse_id=$1 AND item_id=$2 AND batch_id=$3`, warehouseID, itemID, batchID).Scan(&qty)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(delta), 0) FROM stock_ledger
WHERE warehouse_id=$1 AND item_id=$2`, warehouseID, itemID).Scan(&qty)
	}
	return qty, err
}

// ActiveKeys lists distinct (warehouse, item) pairs present in the projection,
// used by the integrity job.
func (r *Repository) ActiveKeys(ctx context.Context) ([][2]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT warehouse_id, item_id FROM stock_batches ORDER BY 1, 2`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys [][2]int64
	for rows.Next() {
		var wh, item int64
		if err := rows.Scan(&wh, &item); err != nil {
			return nil, err
		}
		keys = append(keys, [2]int64{wh, item})
	}
	return keys, rows.Err()
}

// RebuildProjection rewrites every batch quantity for the key from the
// ledger running sum. The projection is a cache; this is the proof.
func (r *Repository) RebuildProjection(ctx context.Context, warehouseID, itemID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE stock_batches b
SET quantity = COALESCE((SELECT SUM(l.delta) FROM stock_ledger l WHERE l.batch_id = b.id), 0),
    updated_at = NOW()
WHERE b.warehouse_id=$1 AND b.item_id=$2`, warehouseID, itemID)
	return mapPgError(err)
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
