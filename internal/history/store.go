// Package history persists labeled rows in an append-only table.
package history

import (
	"context"
	"errors"

	"skymind/internal/flights"
)

var (
	// ErrSchemaMismatch means the stored columns differ from the expected ones.
	ErrSchemaMismatch = errors.New("history schema mismatch")
	// ErrCorrupt means the stored table could not be parsed.
	ErrCorrupt = errors.New("history store corrupt")
	// ErrLabelMethodMismatch means rows labeled by another method are already stored.
	ErrLabelMethodMismatch = errors.New("history label method mismatch")
)

// Store is an append-only table of labeled rows. Implementations own their
// read-modify-append cycle; a single writer process is assumed.
type Store interface {
	// Append adds rows labeled by method. The first append creates the store
	// and records method; later appends must use the same method.
	Append(ctx context.Context, method string, rows []flights.LabeledRow) error
	// LoadAll returns every stored row in insertion order. found is false,
	// with a nil error, when the store does not exist yet.
	LoadAll(ctx context.Context) (rows []flights.LabeledRow, found bool, err error)
	// Method returns the recorded label method, or "" if none is recorded.
	Method(ctx context.Context) (string, error)
	Close() error
}

func checkMethod(recorded, method string) error {
	if recorded == "" || recorded == method {
		return nil
	}
	return &MethodError{Recorded: recorded, Requested: method}
}

// MethodError details an ErrLabelMethodMismatch.
type MethodError struct {
	Recorded  string
	Requested string
}

func (e *MethodError) Error() string {
	return "history holds rows labeled by " + e.Recorded + ", refusing to append rows labeled by " + e.Requested
}

func (e *MethodError) Unwrap() error { return ErrLabelMethodMismatch }
