package domain

import "fmt"

// ValidationError reports input that the engine refuses to act on. State is
// left untouched whenever one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

func Invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// StockConflictError is returned when a requested quantity exceeds the
// variant's on-hand stock.
type StockConflictError struct {
	VariantID string
	Requested int
	Available int
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("stock conflict: variant %s requested %d, available %d", e.VariantID, e.Requested, e.Available)
}
