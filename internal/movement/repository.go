package movement

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

// Repository persists movement documents in PostgreSQL.
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

// WithTx executes the callback inside a repeatable-read transaction that
// spans document state and ledger effects. Store-level serialization
// failures surface as Conflict.
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

const docColumns = `id, number, kind, movement, warehouse_id, COALESCE(dest_warehouse_id, 0), status, COALESCE(reversal_of_id, 0), note, created_by, COALESCE(committed_by, 0), created_at, COALESCE(committed_at, 'epoch')`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	var kind, movement, status string
	err := row.Scan(&d.ID, &d.Number, &kind, &movement, &d.WarehouseID, &d.DestWarehouseID,
		&status, &d.ReversalOfID, &d.Note, &d.CreatedBy, &d.CommittedBy, &d.CreatedAt, &d.CommittedAt)
	d.Kind = DocumentKind(kind)
	d.Movement = stock.MovementKind(movement)
	d.Status = DocumentStatus(status)
	return d, err
}

func (r *Repository) GetDocument(ctx context.Context, id int64) (Document, []Line, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+docColumns+` FROM movement_documents WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, nil, ErrNotFound
	}
	if err != nil {
		return Document{}, nil, err
	}
	lines, err := queryLines(ctx, r.pool, id)
	return doc, lines, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, documentID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, document_id, seq, item_id, lot_code, COALESCE(expiry, 'epoch'), unit_cost, quantity, unit, COALESCE(batch_id, 0), correction, authorization_ref, note
FROM movement_lines WHERE document_id=$1 ORDER BY seq ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		var unit string
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.Seq, &l.ItemID, &l.LotCode, &l.Expiry,
			&l.UnitCost, &l.Quantity, &unit, &l.BatchID, &l.Correction, &l.AuthorizationRef, &l.Note); err != nil {
			return nil, err
		}
		l.Unit = stock.Unit(unit)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *txRepository) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO movement_documents
(number, kind, movement, warehouse_id, dest_warehouse_id, status, reversal_of_id, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		doc.Number, string(doc.Kind), string(doc.Movement), doc.WarehouseID,
		nullInt(doc.DestWarehouseID), string(doc.Status), nullInt(doc.ReversalOfID),
		doc.Note, doc.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLines(ctx context.Context, documentID int64, lines []Line) error {
	for _, l := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO movement_lines
(document_id, seq, item_id, lot_code, expiry, unit_cost, quantity, unit, batch_id, correction, authorization_ref, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			documentID, l.Seq, l.ItemID, l.LotCode, nullTime(l.Expiry), l.UnitCost, l.Quantity,
			string(l.Unit), nullInt(l.BatchID), l.Correction, l.AuthorizationRef, l.Note); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) DocumentForUpdate(ctx context.Context, id int64) (Document, []Line, error) {
	doc, err := scanDocument(r.tx.QueryRow(ctx, `SELECT `+docColumns+` FROM movement_documents WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, nil, ErrNotFound
	}
	if err != nil {
		return Document{}, nil, err
	}
	lines, err := queryLines(ctx, r.tx, id)
	return doc, lines, err
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status DocumentStatus, actorID int64, at time.Time) error {
	if status == StatusCommitted {
		_, err := r.tx.Exec(ctx, `UPDATE movement_documents SET status=$2, committed_by=$3, committed_at=$4 WHERE id=$1`,
			id, string(status), actorID, at)
		return err
	}
	_, err := r.tx.Exec(ctx, `UPDATE movement_documents SET status=$2 WHERE id=$1`, id, string(status))
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

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
