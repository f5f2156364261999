package stock

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/platform/db"
)

// Repository persists the ledger and balances in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, warehouseID, productID string) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMove(ctx context.Context, move StockMove) error
}

type txRepository struct {
	tx pgx.Tx
}

// ErrBalanceNotFound indicates a missing balance row.
var ErrBalanceNotFound = errors.New("stock balance not found")

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetBalance reads one balance row outside a transaction.
func (r *Repository) GetBalance(ctx context.Context, warehouseID, productID string) (Balance, error) {
	var b Balance
	err := r.pool.QueryRow(ctx, `SELECT warehouse_id, product_id, quantity, updated_at
FROM stock_items WHERE warehouse_id=$1 AND product_id=$2`, warehouseID, productID).
		Scan(&b.WarehouseID, &b.ProductID, &b.Quantity, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{WarehouseID: warehouseID, ProductID: productID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

// GetBalances reads balances for many products of one warehouse.
func (r *Repository) GetBalances(ctx context.Context, warehouseID string, productIDs []string) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, quantity
FROM stock_items WHERE warehouse_id=$1 AND product_id = ANY($2)`, warehouseID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int64, len(productIDs))
	for rows.Next() {
		var productID string
		var qty int64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		result[productID] = qty
	}
	return result, rows.Err()
}

// ListMoves lists ledger entries, newest first.
func (r *Repository) ListMoves(ctx context.Context, filter MoveFilter) ([]StockMove, error) {
	query := `SELECT id, kind, warehouse_id, product_id, qty_delta, ref_type, ref_id, transfer_id, inventory_id, note, created_at
FROM stock_moves WHERE 1=1`
	args := []any{}
	n := 0
	add := func(clause string, value any) {
		n++
		query += ` AND ` + clause + `$` + strconv.Itoa(n)
		args = append(args, value)
	}
	if filter.WarehouseID != "" {
		add("warehouse_id=", filter.WarehouseID)
	}
	if filter.ProductID != "" {
		add("product_id=", filter.ProductID)
	}
	if filter.RefType != "" {
		add("ref_type=", filter.RefType)
	}
	if filter.TransferID != "" {
		add("transfer_id=", filter.TransferID)
	}
	if filter.InventoryID != "" {
		add("inventory_id=", filter.InventoryID)
	}
	if !filter.From.IsZero() {
		add("created_at >= ", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= ", filter.To)
	}
	n++
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(n)
	args = append(args, filter.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	moves := []StockMove{}
	for rows.Next() {
		var m StockMove
		if err := rows.Scan(&m.ID, &m.Kind, &m.WarehouseID, &m.ProductID, &m.QtyDelta, &m.RefType, &m.RefID, &m.TransferID, &m.InventoryID, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, warehouseID, productID string) (Balance, error) {
	var b Balance
	err := r.tx.QueryRow(ctx, `SELECT warehouse_id, product_id, quantity, updated_at
FROM stock_items WHERE warehouse_id=$1 AND product_id=$2 FOR UPDATE`, warehouseID, productID).
		Scan(&b.WarehouseID, &b.ProductID, &b.Quantity, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{WarehouseID: warehouseID, ProductID: productID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_items (warehouse_id, product_id, quantity, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (warehouse_id, product_id)
DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
		balance.WarehouseID, balance.ProductID, balance.Quantity, balance.UpdatedAt)
	return err
}

func (r *txRepository) InsertMove(ctx context.Context, move StockMove) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_moves (id, kind, warehouse_id, product_id, qty_delta, ref_type, ref_id, transfer_id, inventory_id, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		move.ID, move.Kind, move.WarehouseID, move.ProductID, move.QtyDelta, move.RefType, move.RefID, move.TransferID, move.InventoryID, move.Note, move.CreatedAt)
	return err
}
