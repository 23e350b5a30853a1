package sink

import (
	"context"
	"errors"

	"skymind/internal/flights"
	"skymind/internal/predict"
)

// MultiWriter fans rows out to several writers. Every writer is tried; the
// errors are joined.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter skips nil writers.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Len returns the number of fan-out targets.
func (mw *MultiWriter) Len() int { return len(mw.writers) }

func (mw *MultiWriter) WriteRows(ctx context.Context, rows []flights.LabeledRow) error {
	if len(rows) == 0 {
		return nil
	}
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteRows(ctx, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (mw *MultiWriter) WritePredictions(ctx context.Context, preds []predict.Prediction) error {
	if len(preds) == 0 {
		return nil
	}
	var errs []error
	for _, w := range mw.writers {
		if err := w.WritePredictions(ctx, preds); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that has a Close method.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
