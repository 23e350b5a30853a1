// Package sink mirrors labeled rows and predictions to external systems.
package sink

import (
	"context"

	"skymind/internal/flights"
	"skymind/internal/predict"
)

// RowWriter receives labeled rows after they are persisted.
type RowWriter interface {
	WriteRows(ctx context.Context, rows []flights.LabeledRow) error
}

// PredictionWriter receives scored rows of the current snapshot.
type PredictionWriter interface {
	WritePredictions(ctx context.Context, preds []predict.Prediction) error
}

// Writer handles both row kinds.
type Writer interface {
	RowWriter
	PredictionWriter
}

// Discard drops everything.
var Discard Writer = discard{}

type discard struct{}

func (discard) WriteRows(context.Context, []flights.LabeledRow) error          { return nil }
func (discard) WritePredictions(context.Context, []predict.Prediction) error { return nil }
