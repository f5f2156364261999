package transfer

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/platform/db"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Repository persists transfers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the transfer and its lines in one transaction.
func (r *Repository) Create(ctx context.Context, t Transfer) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO stock_transfers
(id, number, status, from_warehouse_id, to_warehouse_id, journey_id, purpose, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.Number, t.Status, t.FromWarehouseID, t.ToWarehouseID, t.JourneyID, t.Purpose, t.Note, t.CreatedAt)
	if err != nil {
		return err
	}
	for _, l := range t.Lines {
		_, err = tx.Exec(ctx, `INSERT INTO stock_transfer_lines
(id, transfer_id, product_id, qty, qty_received, note)
VALUES ($1, $2, $3, $4, $5, $6)`,
			l.ID, l.TransferID, l.ProductID, l.Qty, l.QtyReceived, l.Note)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Get loads one transfer with its lines.
func (r *Repository) Get(ctx context.Context, id string) (Transfer, error) {
	var t Transfer
	err := r.pool.QueryRow(ctx, `SELECT id, number, status, from_warehouse_id, to_warehouse_id, journey_id, purpose, note, shipped_at, received_at, created_at
FROM stock_transfers WHERE id=$1`, id).
		Scan(&t.ID, &t.Number, &t.Status, &t.FromWarehouseID, &t.ToWarehouseID, &t.JourneyID, &t.Purpose, &t.Note, &t.ShippedAt, &t.ReceivedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, shared.NotFoundf("transfer %s", id)
		}
		return Transfer{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, transfer_id, product_id, qty, qty_received, note
FROM stock_transfer_lines WHERE transfer_id=$1 ORDER BY product_id`, id)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.TransferID, &l.ProductID, &l.Qty, &l.QtyReceived, &l.Note); err != nil {
			return Transfer{}, err
		}
		t.Lines = append(t.Lines, l)
	}
	return t, rows.Err()
}

// List lists transfer headers, newest first. Lines are not loaded.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Transfer, error) {
	query := `SELECT id, number, status, from_warehouse_id, to_warehouse_id, journey_id, purpose, note, shipped_at, received_at, created_at
FROM stock_transfers WHERE 1=1`
	args := []any{}
	n := 0
	add := func(clause string, value any) {
		n++
		query += ` AND ` + clause + `$` + strconv.Itoa(n)
		args = append(args, value)
	}
	if filter.Status != "" {
		add("status=", filter.Status)
	}
	if filter.JourneyID != "" {
		add("journey_id=", filter.JourneyID)
	}
	if filter.WarehouseID != "" {
		n++
		p := `$` + strconv.Itoa(n)
		query += ` AND (from_warehouse_id=` + p + ` OR to_warehouse_id=` + p + `)`
		args = append(args, filter.WarehouseID)
	}
	n++
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(n)
	args = append(args, filter.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := []Transfer{}
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.ID, &t.Number, &t.Status, &t.FromWarehouseID, &t.ToWarehouseID, &t.JourneyID, &t.Purpose, &t.Note, &t.ShippedAt, &t.ReceivedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// MarkShipped advances the header to SHIPPED. It joins an ambient ledger
// transaction when ctx carries one.
func (r *Repository) MarkShipped(ctx context.Context, id string, shippedAt time.Time, note string) error {
	tag, err := db.QuerierFrom(ctx, r.pool).Exec(ctx, `UPDATE stock_transfers
SET status=$1, shipped_at=$2, note=CASE WHEN $3 <> '' THEN $3 ELSE note END
WHERE id=$4 AND status=$5`,
		StatusShipped, shippedAt, note, id, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Conflictf("transfer %s is not in DRAFT", id)
	}
	return nil
}

// ApplyReceipt adds received quantities to lines and advances the header, in
// one transaction. It joins an ambient ledger transaction when ctx carries
// one.
func (r *Repository) ApplyReceipt(ctx context.Context, id string, received map[string]int64, status Status, receivedAt *time.Time) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		for productID, qty := range received {
			if qty == 0 {
				continue
			}
			tag, err := tx.Exec(ctx, `UPDATE stock_transfer_lines
SET qty_received = qty_received + $1
WHERE transfer_id=$2 AND product_id=$3 AND qty_received + $1 <= qty`,
				qty, id, productID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return shared.Validationf("received qty for product %s exceeds remaining", productID)
			}
		}
		_, err := tx.Exec(ctx, `UPDATE stock_transfers SET status=$1, received_at=COALESCE($2, received_at) WHERE id=$3`,
			status, receivedAt, id)
		return err
	})
}

// MarkCancelled terminates a non-terminal transfer.
func (r *Repository) MarkCancelled(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_transfers SET status=$1
WHERE id=$2 AND status IN ($3, $4, $5)`,
		StatusCancelled, id, StatusDraft, StatusShipped, StatusPartiallyReceived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Conflictf("transfer %s cannot be cancelled", id)
	}
	return nil
}
