package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skymind/internal/cache"
	"skymind/internal/flights"
	"skymind/internal/history"
	"skymind/internal/label"
	"skymind/internal/logging"
	"skymind/internal/metrics"
	"skymind/internal/opensky"
	"skymind/internal/predict"
)

var polledAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	snap  flights.Snapshot
	err   error
	calls int
}

func (f *fakeFetcher) FetchAll(context.Context) (flights.Snapshot, error) {
	f.calls++
	return f.snap, f.err
}

func state(icao, country string, velocity, alt *float64) flights.SnapshotRow {
	r := flights.SnapshotRow{ICAO24: icao, Velocity: velocity, GeoAltitude: alt, LastContact: flights.Ptr(int64(1700000000))}
	if country != "" {
		r.OriginCountry = flights.Ptr(country)
	}
	return r
}

func snapshot(rows ...flights.SnapshotRow) flights.Snapshot {
	return flights.Snapshot{Time: polledAt.Unix(), PolledAt: polledAt, Rows: rows}
}

func threeRows() flights.Snapshot {
	return snapshot(
		state("a1", "India", flights.Ptr(50.0), flights.Ptr(1500.0)),
		state("a2", "India", flights.Ptr(70.0), flights.Ptr(500.0)),
		state("a3", "India", flights.Ptr(80.0), flights.Ptr(2000.0)),
	)
}

type recordingSink struct {
	rows  []flights.LabeledRow
	preds []predict.Prediction
	err   error
}

func (s *recordingSink) WriteRows(_ context.Context, rows []flights.LabeledRow) error {
	s.rows = append(s.rows, rows...)
	return s.err
}

func (s *recordingSink) WritePredictions(_ context.Context, preds []predict.Prediction) error {
	s.preds = append(s.preds, preds...)
	return s.err
}

func newCSV(t *testing.T) *history.CSVStore {
	t.Helper()
	return history.NewCSVStore(filepath.Join(t.TempDir(), "flight_data.csv"), history.StrategyAppend)
}

func texts(r *Report) []string {
	out := make([]string, len(r.Messages))
	for i, m := range r.Messages {
		out[i] = m.Text
	}
	return out
}

func TestAnalyzeCruiseRulePersists(t *testing.T) {
	ctx := context.Background()
	store := newCSV(t)
	m := metrics.New()
	p := New(&fakeFetcher{snap: threeRows()}, store,
		WithMetrics(m), WithLogger(logging.Discard()), WithStoreLabel(store.Path()))

	rep, err := p.Analyze(ctx, Request{Country: "India"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, rep.Outcome)
	assert.Equal(t, 3, rep.Matched)
	assert.Equal(t, 3, rep.Persisted)
	assert.NotEmpty(t, rep.RunID)

	got := []bool{rep.Rows[0].Delay, rep.Rows[1].Delay, rep.Rows[2].Delay}
	assert.Equal(t, []bool{false, false, true}, got)
	assert.Contains(t, texts(rep), "Fetched 3 flights from India")
	assert.Contains(t, texts(rep), fmt.Sprintf("Data saved/appended to `%s`", store.Path()))

	stored, found, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, rep.Rows, stored)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.PersistedRows))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LabeledRows.WithLabelValues("cruise", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LabeledRows.WithLabelValues("cruise", "false")))
}

func TestAnalyzeSlowRule(t *testing.T) {
	p := New(&fakeFetcher{snap: threeRows()}, newCSV(t), WithRule(label.Slow), WithLogger(logging.Discard()))
	rep, err := p.Analyze(context.Background(), Request{Country: "India"})
	require.NoError(t, err)
	for _, r := range rep.Rows {
		assert.True(t, r.Delay)
	}
	assert.Equal(t, "slow", rep.Rule)
}

func TestAnalyzeSubstringMode(t *testing.T) {
	snap := snapshot(
		state("a1", "India", flights.Ptr(50.0), flights.Ptr(1500.0)),
		state("a2", "Indonesia", flights.Ptr(70.0), flights.Ptr(500.0)),
		state("a3", "France", flights.Ptr(80.0), flights.Ptr(2000.0)),
	)
	p := New(&fakeFetcher{snap: snap}, newCSV(t), WithLogger(logging.Discard()))
	rep, err := p.Analyze(context.Background(), Request{Country: "ind", Mode: flights.ModeSubstring})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Matched)

	rep, err = p.Analyze(context.Background(), Request{Country: "ind"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, rep.Outcome, "exact mode is the default")
}

func TestAnalyzeWhereFilter(t *testing.T) {
	p := New(&fakeFetcher{snap: threeRows()}, newCSV(t), WithLogger(logging.Discard()))
	rep, err := p.Analyze(context.Background(), Request{Country: "India", Where: "velocity >= 70"})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Matched)

	_, err = p.Analyze(context.Background(), Request{Country: "India", Where: "velocity +"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = p.Analyze(context.Background(), Request{Country: "India", Mode: "regex"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAnalyzeFetchFailure(t *testing.T) {
	store := newCSV(t)
	p := New(&fakeFetcher{err: &opensky.StatusError{Code: http.StatusTooManyRequests}}, store, WithLogger(logging.Discard()))
	rep, err := p.Analyze(context.Background(), Request{Country: "India"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFetchFailed, rep.Outcome)
	require.Len(t, rep.Messages, 1)
	assert.Equal(t, Status{Level: LevelError, Text: "Failed to fetch live flight data."}, rep.Messages[0])

	_, found, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	assert.False(t, found, "nothing written")
}

func TestAnalyzeEmptyResults(t *testing.T) {
	p := New(&fakeFetcher{snap: snapshot()}, newCSV(t), WithLogger(logging.Discard()))
	rep, err := p.Analyze(context.Background(), Request{Country: "India"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoData, rep.Outcome)
	assert.Equal(t, []string{"No flights found for India at this moment."}, texts(rep))
	assert.Equal(t, LevelWarning, rep.Messages[0].Level)

	p = New(&fakeFetcher{snap: threeRows()}, newCSV(t), WithLogger(logging.Discard()))
	rep, err = p.Analyze(context.Background(), Request{Country: "Germany"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, rep.Outcome)
}

func TestAnalyzeExcludesRowsWithoutFeatures(t *testing.T) {
	snap := snapshot(
		state("a1", "India", nil, flights.Ptr(1500.0)),
		state("a2", "India", flights.Ptr(70.0), nil),
	)
	store := newCSV(t)
	p := New(&fakeFetcher{snap: snap}, store, WithLogger(logging.Discard()))
	rep, err := p.Analyze(context.Background(), Request{Country: "India"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoFeatures, rep.Outcome)
	assert.Equal(t, 2, rep.Excluded)
	assert.Equal(t, 0, rep.Persisted)
	assert.Contains(t, texts(rep), "No valid data in latest fetch to predict delays.")

	snap.Rows = append(snap.Rows, state("a3", "India", flights.Ptr(80.0), flights.Ptr(2000.0)))
	p = New(&fakeFetcher{snap: snap}, store, WithLogger(logging.Discard()))
	rep, err = p.Analyze(context.Background(), Request{Country: "India"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, rep.Outcome)
	assert.Equal(t, 1, rep.Persisted)
	assert.Equal(t, 2, rep.Excluded)
}

func TestAnalyzeLabelMethodMismatch(t *testing.T) {
	store := newCSV(t)
	ctx := context.Background()
	_, err := New(&fakeFetcher{snap: threeRows()}, store, WithLogger(logging.Discard())).
		Analyze(ctx, Request{Country: "India"})
	require.NoError(t, err)

	_, err = New(&fakeFetcher{snap: threeRows()}, store, WithRule(label.Slow), WithLogger(logging.Discard())).
		Analyze(ctx, Request{Country: "India"})
	assert.ErrorIs(t, err, history.ErrLabelMethodMismatch)
}

func seedHistory(t *testing.T, store history.Store) {
	t.Helper()
	var rows []flights.LabeledRow
	for v := 20.0; v <= 300; v += 20 {
		for _, alt := range []float64{200, 800, 1500, 5000, 11000} {
			r := state(fmt.Sprintf("h%.0f-%.0f", v, alt), "India", flights.Ptr(v), flights.Ptr(alt))
			rows = append(rows, flights.LabeledRow{
				SnapshotRow: r,
				Delay:       label.Cruise.Delayed(v, alt),
				Timestamp:   polledAt.Add(-time.Hour),
			})
		}
	}
	require.NoError(t, store.Append(context.Background(), "cruise", rows))
}

func TestAnalyzeWithPredictor(t *testing.T) {
	store := newCSV(t)
	seedHistory(t, store)
	sinkW := &recordingSink{}
	m := metrics.New()
	now := polledAt.Add(time.Minute)

	p := New(&fakeFetcher{snap: threeRows()}, store,
		WithPrediction(predict.DefaultOptions(), predict.NewCache()),
		WithSink(sinkW), WithMetrics(m), WithClock(func() time.Time { return now }),
		WithLogger(logging.Discard()))

	rep, err := p.Analyze(context.Background(), Request{Country: "India"})
	require.NoError(t, err)
	require.NotNil(t, rep.Training)
	require.Len(t, rep.Predictions, 3)
	acc, ok := rep.Accuracy()
	require.True(t, ok)
	assert.GreaterOrEqual(t, acc, 0.8)
	assert.Equal(t, acc, testutil.ToFloat64(m.ModelAccuracy))

	var accMsg string
	for _, txt := range texts(rep) {
		if strings.HasPrefix(txt, "Model accuracy on historical data: ") {
			accMsg = txt
		}
	}
	require.NotEmpty(t, accMsg)
	assert.True(t, strings.HasSuffix(accMsg, "%"))

	for _, pr := range rep.Predictions {
		assert.Equal(t, now, pr.PredictedAt)
		assert.Contains(t, []string{predict.LabelDelayed, predict.LabelNotDelayed}, pr.Label)
	}
	assert.Len(t, sinkW.rows, 3)
	assert.Len(t, sinkW.preds, 3)

	table := rep.Table()
	require.Len(t, table, 3)
	assert.Equal(t, "2025-03-01 12:01:00", table[0].Timestamp)
	assert.Equal(t, "50.00", table[0].Velocity)

	// Predictions never reach the history table.
	stored, _, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	for _, r := range stored[len(stored)-3:] {
		assert.Equal(t, label.Cruise.Delayed(*r.Velocity, *r.GeoAltitude), r.Delay)
	}
}

func TestAnalyzePredictorInsufficientHistory(t *testing.T) {
	snap := snapshot(state("a1", "India", flights.Ptr(50.0), flights.Ptr(1500.0)))
	p := New(&fakeFetcher{snap: snap}, newCSV(t),
		WithPrediction(predict.DefaultOptions(), nil), WithLogger(logging.Discard()))
	rep, err := p.Analyze(context.Background(), Request{Country: "India"})
	require.NoError(t, err)
	assert.Nil(t, rep.Training)
	assert.Contains(t, texts(rep), "Not enough history to train the delay model yet.")
	assert.Equal(t, OutcomeOK, rep.Outcome)
}

func TestAnalyzeSinkFailureIsWarning(t *testing.T) {
	p := New(&fakeFetcher{snap: threeRows()}, newCSV(t),
		WithSink(&recordingSink{err: errors.New("broker down")}), WithLogger(logging.Discard()))
	rep, err := p.Analyze(context.Background(), Request{Country: "India"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, rep.Outcome)
	assert.Equal(t, LevelWarning, rep.Messages[len(rep.Messages)-1].Level)
}

func TestAnalyzeDedupe(t *testing.T) {
	store := history.Dedupe(newCSV(t))
	p := New(&fakeFetcher{snap: threeRows()}, store, WithLogger(logging.Discard()))
	rep, err := p.Analyze(context.Background(), Request{Country: "India"})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Persisted)

	rep, err = p.Analyze(context.Background(), Request{Country: "India"})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Persisted)
}

func TestCountriesUsesCache(t *testing.T) {
	f := &fakeFetcher{snap: snapshot(
		state("a", "India", nil, nil),
		state("b", "France", nil, nil),
		state("c", "", nil, nil),
		state("d", "India", nil, nil),
	)}
	m := metrics.New()
	p := New(f, newCSV(t), WithCache(cache.New(cache.DefaultTTL)), WithMetrics(m), WithLogger(logging.Discard()))

	got, err := p.Countries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"France", "India"}, got)

	_, err = p.Countries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
}

type unreachableBackend struct{}

func (unreachableBackend) Get(context.Context) (cache.Entry, bool, error) {
	return cache.Entry{}, false, errors.New("redis down")
}

func (unreachableBackend) Set(context.Context, cache.Entry, time.Duration) error {
	return errors.New("redis down")
}

func (unreachableBackend) Clear(context.Context) error { return nil }

func TestCountriesWhenCacheBackendIsDown(t *testing.T) {
	f := &fakeFetcher{snap: snapshot(state("a", "India", nil, nil), state("b", "France", nil, nil))}
	m := metrics.New()
	c := cache.New(cache.DefaultTTL, cache.WithBackend(unreachableBackend{}), cache.WithLogger(logging.Discard()), cache.WithMetrics(m))
	p := New(f, newCSV(t), WithCache(c), WithMetrics(m), WithLogger(logging.Discard()))

	got, err := p.Countries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"France", "India"}, got)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheErrors.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheErrors.WithLabelValues("set")))
}

func TestCountriesFetchError(t *testing.T) {
	p := New(&fakeFetcher{err: opensky.ErrFetchFailed}, newCSV(t), WithLogger(logging.Discard()))
	_, err := p.Countries(context.Background())
	assert.ErrorIs(t, err, opensky.ErrFetchFailed)
}

func TestHistoryLimit(t *testing.T) {
	store := newCSV(t)
	p := New(&fakeFetcher{snap: threeRows()}, store, WithLogger(logging.Discard()))

	rows, err := p.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = p.Analyze(context.Background(), Request{Country: "India"})
	require.NoError(t, err)
	rows, err = p.History(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a3", rows[1].ICAO24)

	rows, err = p.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestAnalyzeAgainstOpenSkyStub(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"time":1700000000,"states":[
			["abc123","AIC101  ","India",1700000000,1700000001,77.1,28.5,10000.0,false,230.0,90.0,0.0,null,10200.0,"1234",false,0],
			["def456","AFR12   ","France",1700000000,1700000001,2.3,48.8,10000.0,false,230.0,90.0,0.0,null,10200.0,"4321",false,0]
		]}`)
	}))
	defer srv.Close()

	client := opensky.NewClient(opensky.WithBaseURL(srv.URL), opensky.WithClock(func() time.Time { return polledAt }))
	store := newCSV(t)
	p := New(client, store, WithLogger(logging.Discard()))

	rep, err := p.Analyze(context.Background(), Request{Country: "India"})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Fetched)
	assert.Equal(t, 1, rep.Matched)
	require.Len(t, rep.Rows, 1)
	assert.True(t, rep.Rows[0].Delay)
	assert.Equal(t, polledAt, rep.Rows[0].Timestamp)
}
