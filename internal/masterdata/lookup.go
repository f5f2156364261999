package masterdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// RepositoryPort abstracts the reference-data reads used by Lookup.
type RepositoryPort interface {
	GetWarehouse(ctx context.Context, id string) (Warehouse, error)
	GetWarehouseByKind(ctx context.Context, kind WarehouseKind) (Warehouse, error)
	ListWarehouses(ctx context.Context, kind *WarehouseKind) ([]Warehouse, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	ListActiveProducts(ctx context.Context, categoryID *string, search string, limit int) ([]Product, error)
	CategoryExists(ctx context.Context, id string) (bool, error)
}

// Lookup serves warehouse/product reference reads with a redis read-through
// cache. Concurrent misses for the same key are collapsed via singleflight.
type Lookup struct {
	repo  RepositoryPort
	redis *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// NewLookup constructs Lookup. redis may be nil; caching is then disabled.
func NewLookup(repo RepositoryPort, redisClient *redis.Client, ttl time.Duration) *Lookup {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Lookup{repo: repo, redis: redisClient, ttl: ttl}
}

// Warehouse resolves a warehouse by id.
func (l *Lookup) Warehouse(ctx context.Context, id string) (Warehouse, error) {
	return cached(ctx, l, "md:wh:"+id, func(ctx context.Context) (Warehouse, error) {
		return l.repo.GetWarehouse(ctx, id)
	})
}

// TransitWarehouse resolves the singleton TRANSIT waypoint. Its absence is a
// deployment fault, not a caller mistake.
func (l *Lookup) TransitWarehouse(ctx context.Context) (Warehouse, error) {
	w, err := cached(ctx, l, "md:wh:transit", func(ctx context.Context) (Warehouse, error) {
		return l.repo.GetWarehouseByKind(ctx, KindTransit)
	})
	if err != nil {
		return Warehouse{}, fmt.Errorf("%w: transit warehouse missing: %v", shared.ErrConfiguration, err)
	}
	return w, nil
}

// Product resolves a product by id.
func (l *Lookup) Product(ctx context.Context, id string) (Product, error) {
	return cached(ctx, l, "md:prod:"+id, func(ctx context.Context) (Product, error) {
		return l.repo.GetProduct(ctx, id)
	})
}

// EnsureCategory fails with NotFound when the category id is unknown.
func (l *Lookup) EnsureCategory(ctx context.Context, id string) error {
	ok, err := l.repo.CategoryExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NotFoundf("category %s", id)
	}
	return nil
}

// ActiveProducts lists active products, optionally scoped to a category.
func (l *Lookup) ActiveProducts(ctx context.Context, categoryID *string) ([]Product, error) {
	return l.repo.ListActiveProducts(ctx, categoryID, "", 0)
}

// ListWarehouses passes through to the repository; listings are not cached.
func (l *Lookup) ListWarehouses(ctx context.Context, kind *WarehouseKind) ([]Warehouse, error) {
	return l.repo.ListWarehouses(ctx, kind)
}

// SearchProducts passes through to the repository.
func (l *Lookup) SearchProducts(ctx context.Context, search string, limit int) ([]Product, error) {
	return l.repo.ListActiveProducts(ctx, nil, search, limit)
}

// cached wraps a loader with redis read-through plus singleflight. Cache
// failures degrade to direct reads; they never fail the lookup.
func cached[T any](ctx context.Context, l *Lookup, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if l.redis == nil {
		return load(ctx)
	}
	if raw, err := l.redis.Get(ctx, key).Bytes(); err == nil {
		var value T
		if err := json.Unmarshal(raw, &value); err == nil {
			return value, nil
		}
	}
	result, err, _ := l.group.Do(key, func() (any, error) {
		value, err := load(ctx)
		if err != nil {
			return zero, err
		}
		if raw, err := json.Marshal(value); err == nil {
			l.redis.Set(ctx, key, raw, l.ttl)
		}
		return value, nil
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}
