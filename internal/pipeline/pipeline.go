// Package pipeline wires fetch, filter, label, persist and predict into the
// operations the CLI, TUI and HTTP server expose.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"skymind/internal/cache"
	"skymind/internal/flights"
	"skymind/internal/history"
	"skymind/internal/label"
	"skymind/internal/metrics"
	"skymind/internal/predict"
	"skymind/internal/sink"
)

// ErrInvalidRequest marks caller mistakes such as an unknown filter mode.
var ErrInvalidRequest = errors.New("invalid request")

// Fetcher returns one upstream snapshot.
type Fetcher interface {
	FetchAll(ctx context.Context) (flights.Snapshot, error)
}

// Request selects what one analyze run looks at. Empty Mode uses the
// pipeline default.
type Request struct {
	Country string             `json:"country"`
	Mode    flights.FilterMode `json:"mode"`
	Where   string             `json:"where,omitempty"`
}

type Option func(*Pipeline)

// WithCache serves Countries from c.
func WithCache(c *cache.Cache) Option { return func(p *Pipeline) { p.cache = c } }

// WithRule sets the rule whose labels are persisted.
func WithRule(r label.Rule) Option { return func(p *Pipeline) { p.rule = r } }

// WithPrediction enables training on history and scoring the current
// snapshot. models may be nil to retrain on every run.
func WithPrediction(opts predict.Options, models *predict.Cache) Option {
	return func(p *Pipeline) {
		p.predict = true
		p.predictOpts = opts
		p.models = models
	}
}

// WithSink mirrors persisted rows and predictions to w.
func WithSink(w sink.Writer) Option { return func(p *Pipeline) { p.sink = w } }

func WithMetrics(m *metrics.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.log = l } }

func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// WithDefaultMode sets the filter mode used when a request names none.
func WithDefaultMode(m flights.FilterMode) Option { return func(p *Pipeline) { p.mode = m } }

// WithStoreLabel names the store in status messages, e.g. the CSV path.
func WithStoreLabel(s string) Option { return func(p *Pipeline) { p.storeLabel = s } }

// Pipeline runs the fetch -> filter -> label -> persist -> predict flow.
type Pipeline struct {
	fetcher     Fetcher
	store       history.Store
	cache       *cache.Cache
	rule        label.Rule
	mode        flights.FilterMode
	predict     bool
	predictOpts predict.Options
	models      *predict.Cache
	sink        sink.Writer
	metrics     *metrics.Metrics
	log         *slog.Logger
	now         func() time.Time
	storeLabel  string
}

// New returns a pipeline labeling with the cruise rule and no predictor.
func New(fetcher Fetcher, store history.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:    fetcher,
		store:      store,
		rule:       label.Cruise,
		mode:       flights.ModeExact,
		sink:       sink.Discard,
		log:        slog.Default(),
		now:        time.Now,
		storeLabel: "history store",
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Rule returns the persisted label method.
func (p *Pipeline) Rule() label.Rule { return p.rule }

// Countries lists the distinct origin countries of the (possibly cached)
// current snapshot.
func (p *Pipeline) Countries(ctx context.Context) ([]string, error) {
	var (
		snap      flights.Snapshot
		fromCache bool
		err       error
	)
	if p.cache != nil {
		snap, fromCache, err = p.cache.GetOrRefresh(ctx, p.fetcher.FetchAll)
	} else {
		snap, err = p.fetcher.FetchAll(ctx)
	}
	if err != nil {
		return nil, err
	}
	if fromCache && p.metrics != nil {
		p.metrics.CacheHits.Inc()
	}
	p.log.Debug("countries", "rows", snap.Len(), "cached", fromCache)
	return flights.Countries(snap), nil
}

// History returns the last limit stored rows (all when limit <= 0).
func (p *Pipeline) History(ctx context.Context, limit int) ([]flights.LabeledRow, error) {
	rows, _, err := p.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []flights.LabeledRow{}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

// Analyze runs one full pass for req. Upstream failures and empty results
// are reported through the Report's Outcome and Messages with a nil error;
// invalid requests and storage failures are returned as errors.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*Report, error) {
	mode := req.Mode
	if mode == "" {
		mode = p.mode
	}
	mode, err := flights.ParseFilterMode(string(mode))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	where, err := flights.CompileWhere(req.Where)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	rep := &Report{
		RunID:   uuid.NewString(),
		Country: req.Country,
		Mode:    mode,
		Rule:    p.rule.Name(),
		Outcome: OutcomeOK,
		Rows:    []flights.LabeledRow{},
	}
	log := p.log.With("run_id", rep.RunID, "country", req.Country)

	snap, err := p.fetcher.FetchAll(ctx)
	if err != nil {
		log.Warn("fetch failed", "err", err)
		rep.Outcome = OutcomeFetchFailed
		rep.add(LevelError, "Failed to fetch live flight data.")
		return rep, nil
	}
	rep.PolledAt = snap.PolledAt
	rep.Fetched = snap.Len()

	matched := flights.Where(flights.Filter(snap, req.Country, mode), where)
	rep.Matched = matched.Len()
	if matched.Empty() {
		rep.Outcome = OutcomeNoMatch
		if snap.Empty() {
			rep.Outcome = OutcomeNoData
		}
		rep.add(LevelWarning, "No flights found for %s at this moment.", req.Country)
		return rep, nil
	}
	rep.add(LevelSuccess, "Fetched %d flights from %s", rep.Matched, req.Country)

	labeled, excluded := label.Apply(p.rule, matched.Rows, snap.PolledAt)
	rep.Rows = labeled
	rep.Labeled = len(labeled)
	rep.Excluded = len(excluded)
	p.countLabels(labeled, len(excluded))

	if len(labeled) == 0 {
		rep.Outcome = OutcomeNoFeatures
		rep.add(LevelWarning, "No valid data in latest fetch to predict delays.")
		return rep, nil
	}
	if rep.Excluded > 0 {
		rep.add(LevelInfo, "Skipped %d flights without velocity or geo_altitude", rep.Excluded)
	}

	persisted, err := p.persist(ctx, labeled)
	if err != nil {
		return nil, err
	}
	rep.Persisted = persisted
	rep.StorePath = p.storeLabel
	rep.add(LevelInfo, "Data saved/appended to `%s`", p.storeLabel)
	if p.metrics != nil {
		p.metrics.PersistedRows.Add(float64(persisted))
	}

	if err := p.sink.WriteRows(ctx, labeled); err != nil {
		log.Error("sink rows failed", "err", err)
		rep.add(LevelWarning, "Mirroring rows to sinks failed: %v", err)
	}

	if p.predict {
		if err := p.runPredictor(ctx, rep, matched.Rows, log); err != nil {
			return nil, err
		}
	}

	log.Info("analyze done",
		"outcome", rep.Outcome,
		"fetched", rep.Fetched,
		"matched", rep.Matched,
		"labeled", rep.Labeled,
		"persisted", rep.Persisted,
	)
	return rep, nil
}

func (p *Pipeline) persist(ctx context.Context, rows []flights.LabeledRow) (int, error) {
	if d, ok := p.store.(*history.DedupeStore); ok {
		n, err := d.AppendNew(ctx, p.rule.Name(), rows)
		if err != nil {
			return 0, fmt.Errorf("persist: %w", err)
		}
		return n, nil
	}
	if err := p.store.Append(ctx, p.rule.Name(), rows); err != nil {
		return 0, fmt.Errorf("persist: %w", err)
	}
	return len(rows), nil
}

func (p *Pipeline) runPredictor(ctx context.Context, rep *Report, current []flights.SnapshotRow, log *slog.Logger) error {
	hist, _, err := p.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	var (
		model  *predict.Model
		report predict.Report
		cached bool
	)
	if p.models != nil {
		model, report, cached, err = p.models.Train(hist, p.predictOpts)
	} else {
		model, report, err = predict.Train(hist, p.predictOpts)
	}
	if errors.Is(err, predict.ErrInsufficientHistory) {
		rep.add(LevelWarning, "Not enough history to train the delay model yet.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	rep.Training = &report
	rep.add(LevelInfo, "Model accuracy on historical data: %s%%", strconv.FormatFloat(report.Accuracy*100, 'f', 2, 64))
	if p.metrics != nil {
		p.metrics.ModelAccuracy.Set(report.Accuracy)
	}
	log.Debug("model ready", "train", report.TrainRows, "test", report.TestRows, "cached", cached)

	rep.Predictions = model.Score(current, p.now())
	if len(rep.Predictions) == 0 {
		rep.Outcome = OutcomeNoFeatures
		rep.add(LevelWarning, "No valid data in latest fetch to predict delays.")
		return nil
	}
	if err := p.sink.WritePredictions(ctx, rep.Predictions); err != nil {
		log.Error("sink predictions failed", "err", err)
		rep.add(LevelWarning, "Mirroring predictions to sinks failed: %v", err)
	}
	return nil
}

func (p *Pipeline) countLabels(rows []flights.LabeledRow, excluded int) {
	if p.metrics == nil {
		return
	}
	for _, r := range rows {
		p.metrics.LabeledRows.WithLabelValues(p.rule.Name(), strconv.FormatBool(r.Delay)).Inc()
	}
	p.metrics.ExcludedRows.Add(float64(excluded))
}
