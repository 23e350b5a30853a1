package predict

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skymind/internal/flights"
)

// cruiseHistory builds rows labeled by the cruise thresholds on a grid.
func cruiseHistory() []flights.LabeledRow {
	var rows []flights.LabeledRow
	for v := 0.0; v <= 300; v += 15 {
		for alt := 0.0; alt <= 12000; alt += 600 {
			rows = append(rows, flights.LabeledRow{
				SnapshotRow: flights.SnapshotRow{Velocity: flights.Ptr(v), GeoAltitude: flights.Ptr(alt)},
				Delay:       v >= 60 && alt > 1000,
			})
		}
	}
	return rows
}

func TestTrainLearnsSeparableRule(t *testing.T) {
	history := cruiseHistory()
	model, rep, err := Train(history, DefaultOptions())
	require.NoError(t, err)

	n := len(history)
	assert.Equal(t, n, rep.TrainRows+rep.TestRows)
	assert.GreaterOrEqual(t, rep.Accuracy, 0.9)

	assert.True(t, model.Predict(250, 10000))
	assert.False(t, model.Predict(10, 10000))
	assert.False(t, model.Predict(250, 100))
}

func TestTrainIsReproducible(t *testing.T) {
	history := cruiseHistory()
	m1, r1, err := Train(history, DefaultOptions())
	require.NoError(t, err)
	m2, r2, err := Train(history, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		v, alt := rng.Float64()*300, rng.Float64()*12000
		require.Equal(t, m1.Predict(v, alt), m2.Predict(v, alt))
	}
}

func TestTrainDropsRowsWithoutFeatures(t *testing.T) {
	history := cruiseHistory()
	history = append(history,
		flights.LabeledRow{SnapshotRow: flights.SnapshotRow{Velocity: flights.Ptr(10.0)}},
		flights.LabeledRow{SnapshotRow: flights.SnapshotRow{GeoAltitude: flights.Ptr(10.0)}},
	)
	_, rep, err := Train(history, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Dropped)
	assert.Equal(t, len(history)-2, rep.TrainRows+rep.TestRows)
}

func TestTrainInsufficientHistory(t *testing.T) {
	one := []flights.LabeledRow{{SnapshotRow: flights.SnapshotRow{Velocity: flights.Ptr(1.0), GeoAltitude: flights.Ptr(1.0)}}}
	_, _, err := Train(one, DefaultOptions())
	assert.ErrorIs(t, err, ErrInsufficientHistory)
	_, _, err = Train(nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestTrainRejectsBadOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.TestFraction = 1
	_, _, err := Train(cruiseHistory(), opts)
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.Trees = 0
	_, _, err = Train(cruiseHistory(), opts)
	assert.Error(t, err)
}

func TestSingleClassHistory(t *testing.T) {
	var rows []flights.LabeledRow
	for i := 0; i < 10; i++ {
		rows = append(rows, flights.LabeledRow{
			SnapshotRow: flights.SnapshotRow{Velocity: flights.Ptr(float64(i)), GeoAltitude: flights.Ptr(100.0)},
			Delay:       true,
		})
	}
	m, rep, err := Train(rows, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1.0, rep.Accuracy)
	assert.True(t, m.Predict(500, 500))
}

func TestSplitSizes(t *testing.T) {
	samples := make([]sample, 10)
	train, test := split(samples, 0.3, rand.New(rand.NewSource(42)))
	assert.Len(t, test, 3)
	assert.Len(t, train, 7)

	train, test = split(make([]sample, 2), 0.9, rand.New(rand.NewSource(42)))
	assert.Len(t, test, 1)
	assert.Len(t, train, 1)
}

func TestScore(t *testing.T) {
	model, _, err := Train(cruiseHistory(), DefaultOptions())
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	current := []flights.SnapshotRow{
		{ICAO24: "fast", Velocity: flights.Ptr(240.0), GeoAltitude: flights.Ptr(11000.0)},
		{ICAO24: "missing", Velocity: flights.Ptr(240.0)},
		{ICAO24: "taxi", Velocity: flights.Ptr(5.0), GeoAltitude: flights.Ptr(20.0)},
	}
	preds := model.Score(current, now)
	require.Len(t, preds, 2)
	assert.Equal(t, "fast", preds[0].Row.ICAO24)
	assert.Equal(t, LabelDelayed, preds[0].Label)
	assert.True(t, preds[0].Delayed)
	assert.Equal(t, "taxi", preds[1].Row.ICAO24)
	assert.Equal(t, LabelNotDelayed, preds[1].Label)
	assert.Equal(t, now, preds[1].PredictedAt)
}

func TestCacheReusesModelUntilHistoryGrows(t *testing.T) {
	c := NewCache()
	history := cruiseHistory()

	m1, _, cached, err := c.Train(history, DefaultOptions())
	require.NoError(t, err)
	assert.False(t, cached)

	m2, _, cached, err := c.Train(history, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Same(t, m1, m2)

	grown := append(append([]flights.LabeledRow{}, history...), history[0])
	m3, _, cached, err := c.Train(grown, DefaultOptions())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.NotSame(t, m1, m3)
	assert.NotEqual(t, m1.Fingerprint(), m3.Fingerprint())
}

func TestFingerprintDependsOnLabelsAndOptions(t *testing.T) {
	history := cruiseHistory()
	base := Fingerprint(history, DefaultOptions())

	flipped := append([]flights.LabeledRow{}, history...)
	flipped[0].Delay = !flipped[0].Delay
	assert.NotEqual(t, base, Fingerprint(flipped, DefaultOptions()))

	opts := DefaultOptions()
	opts.Seed = 7
	assert.NotEqual(t, base, Fingerprint(history, opts))
	assert.Equal(t, base, Fingerprint(history, DefaultOptions()))
}
