package delivery

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Repository persists deliveries and their event log in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureForTransfer returns the delivery linked to the transfer, inserting
// it on first contact. The unique index on transfer_id keeps the link 1:1
// under concurrent workers.
func (r *Repository) EnsureForTransfer(ctx context.Context, delivery Delivery) (Delivery, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO deliveries (id, transfer_id, created_at)
VALUES ($1, $2, $3) ON CONFLICT (transfer_id) DO NOTHING`,
		delivery.ID, delivery.TransferID, delivery.CreatedAt)
	if err != nil {
		return Delivery{}, err
	}
	var existing Delivery
	err = r.pool.QueryRow(ctx, `SELECT id, transfer_id, created_at FROM deliveries WHERE transfer_id=$1`,
		delivery.TransferID).Scan(&existing.ID, &existing.TransferID, &existing.CreatedAt)
	if err != nil {
		return Delivery{}, err
	}
	return existing, nil
}

// InsertEvent appends one event row.
func (r *Repository) InsertEvent(ctx context.Context, event Event) error {
	meta, err := json.Marshal(event.Meta)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO delivery_events (id, delivery_id, type, message, meta, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.DeliveryID, event.Type, event.Message, meta, event.CreatedAt)
	return err
}

// GetByTransfer loads the delivery for a transfer with its events, oldest
// first.
func (r *Repository) GetByTransfer(ctx context.Context, transferID string) (Delivery, error) {
	var d Delivery
	err := r.pool.QueryRow(ctx, `SELECT id, transfer_id, created_at FROM deliveries WHERE transfer_id=$1`,
		transferID).Scan(&d.ID, &d.TransferID, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delivery{}, shared.NotFoundf("delivery for transfer %s", transferID)
		}
		return Delivery{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, delivery_id, type, message, meta, created_at
FROM delivery_events WHERE delivery_id=$1 ORDER BY created_at ASC`, d.ID)
	if err != nil {
		return Delivery{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var e Event
		var meta []byte
		if err := rows.Scan(&e.ID, &e.DeliveryID, &e.Type, &e.Message, &meta, &e.CreatedAt); err != nil {
			return Delivery{}, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return Delivery{}, err
			}
		}
		d.Events = append(d.Events, e)
	}
	return d, rows.Err()
}
