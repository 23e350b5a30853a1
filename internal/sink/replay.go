package sink

import (
	"context"
	"time"

	"skymind/internal/flights"
)

// Replay feeds stored rows to w one polling batch at a time. Rows sharing a
// timestamp form a batch. A speed > 0 sleeps between batches for the recorded
// gap divided by speed; speed <= 0 replays without delay.
func Replay(ctx context.Context, rows []flights.LabeledRow, w RowWriter, speed float64) (int, error) {
	batches := 0
	var prev time.Time
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && rows[end].Timestamp.Equal(rows[start].Timestamp) {
			end++
		}
		ts := rows[start].Timestamp
		if !prev.IsZero() && speed > 0 {
			diff := ts.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				t := time.NewTimer(diff)
				select {
				case <-ctx.Done():
					t.Stop()
					return batches, ctx.Err()
				case <-t.C:
				}
			}
		}
		if err := w.WriteRows(ctx, rows[start:end]); err != nil {
			return batches, err
		}
		batches++
		prev = ts
		start = end
	}
	return batches, nil
}
