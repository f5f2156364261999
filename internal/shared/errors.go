package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a missing warehouse, product, document or line.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates an illegal state transition or a repeated one-shot operation.
	ErrConflict = errors.New("conflict")
	// ErrConfiguration indicates broken deployment invariants, e.g. the missing TRANSIT warehouse.
	ErrConfiguration = errors.New("configuration error")
	// ErrInsufficientStock is the sentinel matched by InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError reports how short a balance is for the requested movement.
type InsufficientStockError struct {
	WarehouseID string
	ProductID   string
	Available   int64
	Requested   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s in warehouse %s: available %d, requested %d",
		e.ProductID, e.WarehouseID, e.Available, e.Requested)
}

// Is lets errors.Is(err, ErrInsufficientStock) match wrapped instances.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// NotFoundf wraps ErrNotFound with a resource description.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Validationf wraps ErrValidation with a reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Conflictf wraps ErrConflict with a reason.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}
