package masterdata

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Repository reads warehouse/product/category reference data from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetWarehouse loads a warehouse by id, including soft-deleted rows so
// callers can distinguish "missing" from "deleted".
func (r *Repository) GetWarehouse(ctx context.Context, id string) (Warehouse, error) {
	var w Warehouse
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, kind, is_active, deleted_at, created_at
FROM warehouses WHERE id = $1`, id).
		Scan(&w.ID, &w.Code, &w.Name, &w.Kind, &w.IsActive, &w.DeletedAt, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, shared.NotFoundf("warehouse %s", id)
		}
		return Warehouse{}, err
	}
	return w, nil
}

// GetWarehouseByKind returns the first active warehouse of the given kind.
// Used for the singleton TRANSIT waypoint.
func (r *Repository) GetWarehouseByKind(ctx context.Context, kind WarehouseKind) (Warehouse, error) {
	var w Warehouse
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, kind, is_active, deleted_at, created_at
FROM warehouses WHERE kind = $1 AND is_active AND deleted_at IS NULL
ORDER BY created_at ASC LIMIT 1`, kind).
		Scan(&w.ID, &w.Code, &w.Name, &w.Kind, &w.IsActive, &w.DeletedAt, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, shared.NotFoundf("warehouse of kind %s", kind)
		}
		return Warehouse{}, err
	}
	return w, nil
}

// ListWarehouses returns non-deleted warehouses, optionally filtered by kind.
func (r *Repository) ListWarehouses(ctx context.Context, kind *WarehouseKind) ([]Warehouse, error) {
	query := `SELECT id, code, name, kind, is_active, deleted_at, created_at
FROM warehouses WHERE deleted_at IS NULL`
	args := []any{}
	if kind != nil {
		query += ` AND kind = $1`
		args = append(args, *kind)
	}
	query += ` ORDER BY code ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.Kind, &w.IsActive, &w.DeletedAt, &w.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// GetProduct loads a product by id.
func (r *Repository) GetProduct(ctx context.Context, id string) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, sku, name, category_id, is_active, deleted_at
FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.CategoryID, &p.IsActive, &p.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.NotFoundf("product %s", id)
		}
		return Product{}, err
	}
	return p, nil
}

// ListActiveProducts returns active, non-deleted products, optionally scoped
// to a category. Stocktake line generation consumes this.
func (r *Repository) ListActiveProducts(ctx context.Context, categoryID *string, search string, limit int) ([]Product, error) {
	query := `SELECT id, sku, name, category_id, is_active, deleted_at
FROM products WHERE is_active AND deleted_at IS NULL`
	args := []any{}
	n := 0
	if categoryID != nil {
		n++
		query += ` AND category_id = $` + strconv.Itoa(n)
		args = append(args, *categoryID)
	}
	if search != "" {
		n++
		query += ` AND (sku ILIKE $` + strconv.Itoa(n) + ` OR name ILIKE $` + strconv.Itoa(n) + `)`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY sku ASC`
	if limit > 0 {
		n++
		query += ` LIMIT $` + strconv.Itoa(n)
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.CategoryID, &p.IsActive, &p.DeletedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// CategoryExists checks a category id.
func (r *Repository) CategoryExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}
