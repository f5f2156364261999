package sales

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

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the sale and its lines in one transaction.
func (r *Repository) Create(ctx context.Context, sale Sale) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO sales
(id, number, status, warehouse_id, client_ref, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sale.ID, sale.Number, sale.Status, sale.WarehouseID, sale.ClientRef, sale.Note, sale.CreatedAt)
	if err != nil {
		return err
	}
	for _, l := range sale.Lines {
		_, err = tx.Exec(ctx, `INSERT INTO sale_lines (id, sale_id, product_id, qty)
VALUES ($1, $2, $3, $4)`, l.ID, l.SaleID, l.ProductID, l.Qty)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Get loads one sale with its lines.
func (r *Repository) Get(ctx context.Context, id string) (Sale, error) {
	var sale Sale
	err := r.pool.QueryRow(ctx, `SELECT id, number, status, warehouse_id, client_ref, note, posted_at, created_at
FROM sales WHERE id=$1`, id).
		Scan(&sale.ID, &sale.Number, &sale.Status, &sale.WarehouseID, &sale.ClientRef, &sale.Note, &sale.PostedAt, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, shared.NotFoundf("sale %s", id)
		}
		return Sale{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, product_id, qty
FROM sale_lines WHERE sale_id=$1 ORDER BY product_id`, id)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.SaleID, &l.ProductID, &l.Qty); err != nil {
			return Sale{}, err
		}
		sale.Lines = append(sale.Lines, l)
	}
	return sale, rows.Err()
}

// List lists sale headers, newest first. Lines are not loaded.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Sale, error) {
	query := `SELECT id, number, status, warehouse_id, client_ref, note, posted_at, created_at
FROM sales WHERE 1=1`
	args := []any{}
	n := 0
	if filter.Status != "" {
		n++
		query += ` AND status=$` + strconv.Itoa(n)
		args = append(args, filter.Status)
	}
	if filter.WarehouseID != "" {
		n++
		query += ` AND warehouse_id=$` + strconv.Itoa(n)
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

	sales := []Sale{}
	for rows.Next() {
		var s Sale
		if err := rows.Scan(&s.ID, &s.Number, &s.Status, &s.WarehouseID, &s.ClientRef, &s.Note, &s.PostedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

// MarkPosted advances a DRAFT sale to POSTED. It joins an ambient ledger
// transaction when ctx carries one.
func (r *Repository) MarkPosted(ctx context.Context, id string, postedAt time.Time) error {
	tag, err := db.QuerierFrom(ctx, r.pool).Exec(ctx, `UPDATE sales SET status=$1, posted_at=$2 WHERE id=$3 AND status=$4`,
		StatusPosted, postedAt, id, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Conflictf("sale %s is not in DRAFT", id)
	}
	return nil
}

// MarkCancelled terminates a DRAFT sale.
func (r *Repository) MarkCancelled(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sales SET status=$1 WHERE id=$2 AND status=$3`,
		StatusCancelled, id, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Conflictf("sale %s cannot be cancelled", id)
	}
	return nil
}
