package history

import (
	"context"
	"fmt"

	"skymind/internal/flights"
)

// DedupeStore drops incoming rows whose (icao24, last_contact) pair is already
// stored or appears earlier in the same batch. Rows with a null last_contact
// are always kept.
type DedupeStore struct {
	Store
}

// Dedupe wraps s with duplicate suppression on Append.
func Dedupe(s Store) *DedupeStore {
	return &DedupeStore{Store: s}
}

type rowKey struct {
	icao24      string
	lastContact int64
}

func keyOf(r flights.SnapshotRow) (rowKey, bool) {
	if r.LastContact == nil {
		return rowKey{}, false
	}
	return rowKey{icao24: r.ICAO24, lastContact: *r.LastContact}, true
}

func (d *DedupeStore) Append(ctx context.Context, method string, rows []flights.LabeledRow) error {
	_, err := d.AppendNew(ctx, method, rows)
	return err
}

// AppendNew appends the rows not yet seen and reports how many were written.
func (d *DedupeStore) AppendNew(ctx context.Context, method string, rows []flights.LabeledRow) (int, error) {
	existing, _, err := d.Store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("dedupe: %w", err)
	}
	seen := make(map[rowKey]struct{}, len(existing)+len(rows))
	for _, r := range existing {
		if k, ok := keyOf(r.SnapshotRow); ok {
			seen[k] = struct{}{}
		}
	}

	fresh := make([]flights.LabeledRow, 0, len(rows))
	for _, r := range rows {
		k, ok := keyOf(r.SnapshotRow)
		if ok {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		}
		fresh = append(fresh, r)
	}
	if err := d.Store.Append(ctx, method, fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}
