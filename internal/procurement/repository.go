package procurement

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

// Repository persists purchase orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the order and its lines in one transaction.
func (r *Repository) Create(ctx context.Context, order PurchaseOrder) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO purchase_orders
(id, number, status, warehouse_id, supplier_ref, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID, order.Number, order.Status, order.WarehouseID, order.SupplierRef, order.Note, order.CreatedAt)
	if err != nil {
		return err
	}
	for _, l := range order.Lines {
		_, err = tx.Exec(ctx, `INSERT INTO purchase_order_lines
(id, order_id, product_id, qty_ordered, qty_received)
VALUES ($1, $2, $3, $4, $5)`,
			l.ID, l.OrderID, l.ProductID, l.QtyOrdered, l.QtyReceived)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Get loads one order with its lines.
func (r *Repository) Get(ctx context.Context, id string) (PurchaseOrder, error) {
	var order PurchaseOrder
	err := r.pool.QueryRow(ctx, `SELECT id, number, status, warehouse_id, supplier_ref, note, received_at, created_at
FROM purchase_orders WHERE id=$1`, id).
		Scan(&order.ID, &order.Number, &order.Status, &order.WarehouseID, &order.SupplierRef, &order.Note, &order.ReceivedAt, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, shared.NotFoundf("purchase order %s", id)
		}
		return PurchaseOrder{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, qty_ordered, qty_received
FROM purchase_order_lines WHERE order_id=$1 ORDER BY product_id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.QtyOrdered, &l.QtyReceived); err != nil {
			return PurchaseOrder{}, err
		}
		order.Lines = append(order.Lines, l)
	}
	return order, rows.Err()
}

// List lists order headers, newest first. Lines are not loaded.
func (r *Repository) List(ctx context.Context, filter Filter) ([]PurchaseOrder, error) {
	query := `SELECT id, number, status, warehouse_id, supplier_ref, note, received_at, created_at
FROM purchase_orders WHERE 1=1`
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

	orders := []PurchaseOrder{}
	for rows.Next() {
		var o PurchaseOrder
		if err := rows.Scan(&o.ID, &o.Number, &o.Status, &o.WarehouseID, &o.SupplierRef, &o.Note, &o.ReceivedAt, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
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
			tag, err := tx.Exec(ctx, `UPDATE purchase_order_lines
SET qty_received = qty_received + $1
WHERE order_id=$2 AND product_id=$3 AND qty_received + $1 <= qty_ordered`,
				qty, id, productID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return shared.Validationf("received qty for product %s exceeds remaining", productID)
			}
		}
		_, err := tx.Exec(ctx, `UPDATE purchase_orders SET status=$1, received_at=COALESCE($2, received_at) WHERE id=$3`,
			status, receivedAt, id)
		return err
	})
}

// MarkCancelled terminates an ORDERED purchase order.
func (r *Repository) MarkCancelled(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE purchase_orders SET status=$1 WHERE id=$2 AND status=$3`,
		StatusCancelled, id, StatusOrdered)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Conflictf("purchase order %s cannot be cancelled", id)
	}
	return nil
}
