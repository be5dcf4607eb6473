package stocktake

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-his/meridian-his/internal/platform/db"
	"github.com/meridian-his/meridian-his/internal/stock"
)

// Repository persists stock-take periods in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx    pgx.Tx
	stock stock.TxRepository
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, stock: stock.NewTxRepository(tx)})
	})
	return mapConflict(err)
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return stock.NewError(stock.KindConflict, 0, 0, 0, pgErr.Message)
		case "23505":
			return stock.NewError(stock.KindIntegrityViolation, 0, 0, 0, pgErr.Message)
		}
	}
	return err
}

const periodColumns = `id, warehouse_id, period_from, period_to, status, created_by, COALESCE(completed_by, 0), created_at, COALESCE(completed_at, 'epoch')`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	var status string
	err := row.Scan(&p.ID, &p.WarehouseID, &p.From, &p.To, &status,
		&p.CreatedBy, &p.CompletedBy, &p.CreatedAt, &p.CompletedAt)
	p.Status = PeriodStatus(status)
	return p, err
}

func (r *Repository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	p, err := scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM stocktake_periods WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	return p, err
}

func (r *Repository) ListCounts(ctx context.Context, periodID int64) ([]Count, error) {
	rows, err := r.pool.Query(ctx, countQuery, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCounts(rows)
}

const countQuery = `SELECT period_id, item_id, COALESCE(batch_id, 0), physical_qty, recorded_by, recorded_at
FROM stocktake_counts WHERE period_id=$1 ORDER BY item_id, COALESCE(batch_id, 0)`

func collectCounts(rows pgx.Rows) ([]Count, error) {
	var counts []Count
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.PeriodID, &c.ItemID, &c.BatchID, &c.Physical, &c.RecordedBy, &c.RecordedAt); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *txRepository) InsertPeriod(ctx context.Context, p Period) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stocktake_periods
(warehouse_id, period_from, period_to, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`,
		p.WarehouseID, p.From, p.To, string(p.Status), p.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) PeriodForUpdate(ctx context.Context, id int64) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM stocktake_periods WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	return p, err
}

func (r *txRepository) UpsertCount(ctx context.Context, c Count) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stocktake_counts (period_id, item_id, batch_id, physical_qty, recorded_by, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (period_id, item_id, COALESCE(batch_id, 0))
DO UPDATE SET physical_qty=EXCLUDED.physical_qty, recorded_by=EXCLUDED.recorded_by, recorded_at=EXCLUDED.recorded_at`,
		c.PeriodID, c.ItemID, nullInt(c.BatchID), c.Physical, c.RecordedBy, c.RecordedAt)
	return err
}

func (r *txRepository) CountsForUpdate(ctx context.Context, periodID int64) ([]Count, error) {
	rows, err := r.tx.Query(ctx, countQuery+` FOR UPDATE`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCounts(rows)
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status PeriodStatus, actorID int64, at time.Time) error {
	if status == StatusCompleted {
		_, err := r.tx.Exec(ctx, `UPDATE stocktake_periods SET status=$2, completed_by=$3, completed_at=$4 WHERE id=$1`,
			id, string(status), actorID, at)
		return err
	}
	_, err := r.tx.Exec(ctx, `UPDATE stocktake_periods SET status=$2 WHERE id=$1`, id, string(status))
	return err
}

func (r *txRepository) Stock() stock.TxRepository {
	return r.stock
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
