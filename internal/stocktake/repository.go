package stocktake

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

// Repository persists stocktakes in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the stocktake header.
func (r *Repository) Create(ctx context.Context, inv Inventory) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_inventories
(id, number, status, mode, warehouse_id, category_id, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.ID, inv.Number, inv.Status, inv.Mode, inv.WarehouseID, inv.CategoryID, inv.Note, inv.CreatedAt)
	return err
}

// Get loads one stocktake with its lines.
func (r *Repository) Get(ctx context.Context, id string) (Inventory, error) {
	var inv Inventory
	err := r.pool.QueryRow(ctx, `SELECT id, number, status, mode, warehouse_id, category_id, note, posted_at, COALESCE(posted_by, ''), created_at
FROM stock_inventories WHERE id=$1`, id).
		Scan(&inv.ID, &inv.Number, &inv.Status, &inv.Mode, &inv.WarehouseID, &inv.CategoryID, &inv.Note, &inv.PostedAt, &inv.PostedBy, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Inventory{}, shared.NotFoundf("stocktake %s", id)
		}
		return Inventory{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, inventory_id, product_id, expected_qty, counted_qty, delta, status, note
FROM stock_inventory_lines WHERE inventory_id=$1 ORDER BY product_id`, id)
	if err != nil {
		return Inventory{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.InventoryID, &l.ProductID, &l.ExpectedQty, &l.CountedQty, &l.Delta, &l.Status, &l.Note); err != nil {
			return Inventory{}, err
		}
		inv.Lines = append(inv.Lines, l)
	}
	return inv, rows.Err()
}

// List lists stocktake headers, newest first. Lines are not loaded.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Inventory, error) {
	query := `SELECT id, number, status, mode, warehouse_id, category_id, note, posted_at, COALESCE(posted_by, ''), created_at
FROM stock_inventories WHERE 1=1`
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

	inventories := []Inventory{}
	for rows.Next() {
		var inv Inventory
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.Status, &inv.Mode, &inv.WarehouseID, &inv.CategoryID, &inv.Note, &inv.PostedAt, &inv.PostedBy, &inv.CreatedAt); err != nil {
			return nil, err
		}
		inventories = append(inventories, inv)
	}
	return inventories, rows.Err()
}

// InsertLines appends lines in one transaction.
func (r *Repository) InsertLines(ctx context.Context, inventoryID string, lines []Line) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, l := range lines {
		_, err = tx.Exec(ctx, `INSERT INTO stock_inventory_lines
(id, inventory_id, product_id, expected_qty, counted_qty, delta, status, note)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			l.ID, l.InventoryID, l.ProductID, l.ExpectedQty, l.CountedQty, l.Delta, l.Status, l.Note)
		if err != nil {
			if shared.IsUniqueViolation(err) {
				return shared.Conflictf("product %s is already on stocktake %s", l.ProductID, inventoryID)
			}
			return err
		}
	}
	return tx.Commit(ctx)
}

// UpdateScope rewrites the counting scope of a DRAFT document.
func (r *Repository) UpdateScope(ctx context.Context, id string, mode Mode, categoryID *string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_inventories SET mode=$1, category_id=$2 WHERE id=$3 AND status=$4`,
		mode, categoryID, id, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Conflictf("stocktake %s is not in DRAFT", id)
	}
	return nil
}

// UpdateLine writes one line's count state.
func (r *Repository) UpdateLine(ctx context.Context, line Line) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_inventory_lines
SET counted_qty=$1, delta=$2, status=$3, note=$4
WHERE id=$5 AND inventory_id=$6`,
		line.CountedQty, line.Delta, line.Status, line.Note, line.ID, line.InventoryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundf("line %s", line.ID)
	}
	return nil
}

// MarkPosted locks the document and writes the final posting deltas, in one
// transaction. It joins an ambient ledger transaction when ctx carries one.
// The DRAFT guard in the WHERE clause makes double-posting a conflict even
// under concurrent posters.
func (r *Repository) MarkPosted(ctx context.Context, id string, postedAt time.Time, postedBy, note string, deltas map[string]int64) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE stock_inventories
SET status=$1, posted_at=$2, posted_by=$3, note=CASE WHEN $4 <> '' THEN $4 ELSE note END
WHERE id=$5 AND status=$6`,
			StatusPosted, postedAt, postedBy, note, id, StatusDraft)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.Conflictf("stocktake %s is not in DRAFT", id)
		}
		for lineID, delta := range deltas {
			_, err = tx.Exec(ctx, `UPDATE stock_inventory_lines SET delta=$1 WHERE id=$2 AND inventory_id=$3`,
				delta, lineID, id)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkCancelled terminates a DRAFT stocktake.
func (r *Repository) MarkCancelled(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_inventories SET status=$1 WHERE id=$2 AND status=$3`,
		StatusCancelled, id, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Conflictf("stocktake %s cannot be cancelled", id)
	}
	return nil
}
