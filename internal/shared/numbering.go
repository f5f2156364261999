package shared

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the PostgreSQL error code for duplicate keys.
const pgUniqueViolation = "23505"

// numberAttempts bounds the collision retry loop.
const numberAttempts = 5

// NumberGenerator produces human-readable document numbers such as
// TRF-20260115-8F3K2. The random suffix keeps concurrent writers from
// colliding; the unique index on the document table is the backstop.
type NumberGenerator struct {
	clock Clock

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewNumberGenerator constructs a generator with the given clock.
func NewNumberGenerator(clock Clock) *NumberGenerator {
	return &NumberGenerator{
		clock: clock.OrSystem(),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

const suffixAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// Next returns a candidate document number for the given prefix.
func (g *NumberGenerator) Next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	suffix := make([]byte, 5)
	for i := range suffix {
		suffix[i] = suffixAlphabet[g.rnd.Intn(len(suffixAlphabet))]
	}
	return fmt.Sprintf("%s-%s-%s", prefix, g.clock().Format("20060102"), suffix)
}

// WithRetry runs insert with fresh candidate numbers until it succeeds or the
// attempt budget is exhausted. Only unique violations trigger a retry.
func (g *NumberGenerator) WithRetry(ctx context.Context, prefix string, insert func(ctx context.Context, number string) error) (string, error) {
	var lastErr error
	for i := 0; i < numberAttempts; i++ {
		number := g.Next(prefix)
		err := insert(ctx, number)
		if err == nil {
			return number, nil
		}
		if !IsUniqueViolation(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("numbering: exhausted %d attempts for prefix %s: %w", numberAttempts, prefix, lastErr)
}

// IsUniqueViolation reports whether err is a PostgreSQL duplicate-key error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
