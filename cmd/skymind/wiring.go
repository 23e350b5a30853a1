package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"skymind/internal/cache"
	"skymind/internal/config"
	"skymind/internal/flights"
	"skymind/internal/history"
	"skymind/internal/label"
	"skymind/internal/metrics"
	"skymind/internal/opensky"
	"skymind/internal/pipeline"
	"skymind/internal/predict"
	"skymind/internal/sink"
)

// app holds everything built from the configuration for one command.
type app struct {
	pipeline *pipeline.Pipeline
	store    history.Store
	sinks    *sink.MultiWriter
	metrics  *metrics.Metrics
	rule     label.Rule
	mode     flights.FilterMode
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newApp wires the pipeline. printOnly forces a stdout JSON sink in place of
// the configured external sinks.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, printOnly bool) (*app, error) {
	a := &app{metrics: metrics.New()}

	rule, err := label.Lookup(cfg.Label.Rule)
	if err != nil {
		return nil, err
	}
	a.rule = rule
	if a.mode, err = flights.ParseFilterMode(cfg.Filter.Mode); err != nil {
		return nil, err
	}

	client := opensky.NewClient(
		opensky.WithBaseURL(cfg.OpenSky.BaseURL),
		opensky.WithTimeout(cfg.OpenSky.Timeout),
		opensky.WithMetrics(a.metrics),
		opensky.WithLogger(log),
	)

	fetchCache, err := a.newCache(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	store, storeLabel, err := newStore(ctx, cfg.History)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	sinks, err := newSinks(cfg.Sinks, log, printOnly)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sinks = sinks
	a.closers = append(a.closers, sinks.Close)

	opts := []pipeline.Option{
		pipeline.WithCache(fetchCache),
		pipeline.WithRule(rule),
		pipeline.WithDefaultMode(a.mode),
		pipeline.WithSink(sinks),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithLogger(log),
		pipeline.WithStoreLabel(storeLabel),
	}
	if cfg.Label.Predict {
		var models *predict.Cache
		if cfg.Predictor.CacheModels {
			models = predict.NewCache()
		}
		opts = append(opts, pipeline.WithPrediction(cfg.Predictor.Options, models))
	}
	a.pipeline = pipeline.New(client, store, opts...)
	return a, nil
}

func (a *app) newCache(ctx context.Context, cfg *config.Config, log *slog.Logger) (*cache.Cache, error) {
	opts := []cache.Option{cache.WithLogger(log), cache.WithMetrics(a.metrics)}
	if cfg.Cache.RedisAddr == "" {
		return cache.New(cfg.OpenSky.FetchTTL, opts...), nil
	}
	rc, err := cache.NewRedisClient(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rc.Close)
	log.Info("fetch cache backed by redis", "addr", cfg.Cache.RedisAddr)
	opts = append(opts, cache.WithBackend(cache.NewRedisBackend(rc, cfg.Cache.Key)))
	return cache.New(cfg.OpenSky.FetchTTL, opts...), nil
}

// newStore opens the configured history backend and returns a label for
// status messages.
func newStore(ctx context.Context, h config.History) (history.Store, string, error) {
	var (
		store history.Store
		name  string
	)
	switch h.Backend {
	case config.BackendCSV:
		strategy, err := history.ParseStrategy(h.Strategy)
		if err != nil {
			return nil, "", err
		}
		store, name = history.NewCSVStore(h.Path, strategy), h.Path
	case config.BackendSQLite:
		s, err := history.OpenSQLite(h.Path, h.Table)
		if err != nil {
			return nil, "", err
		}
		store, name = s, fmt.Sprintf("%s (table %s)", h.Path, s.Table())
	case config.BackendPostgres:
		s, err := history.OpenPostgres(ctx, h.DSN, h.Table)
		if err != nil {
			return nil, "", err
		}
		store, name = s, "postgres table "+s.Table()
	default:
		return nil, "", fmt.Errorf("unknown history backend %q", h.Backend)
	}
	if h.Dedupe {
		store = history.Dedupe(store)
	}
	return store, name, nil
}

func newSinks(cfg config.Sinks, log *slog.Logger, printOnly bool) (*sink.MultiWriter, error) {
	if printOnly {
		return sink.NewMultiWriter(sink.NewJSONWriter(os.Stdout)), nil
	}
	var ws []sink.Writer
	if cfg.Stdout {
		ws = append(ws, sink.NewStdoutWriter())
	}
	if cfg.File != "" {
		fw, err := sink.NewFileWriter(cfg.File)
		if err != nil {
			return nil, err
		}
		ws = append(ws, fw)
	}
	if cfg.Greptime.Endpoint != "" {
		gw, err := sink.NewGreptimeWriter(sink.GreptimeConfig{
			Endpoint:        cfg.Greptime.Endpoint,
			Database:        cfg.Greptime.Database,
			StateTable:      cfg.Greptime.StateTable,
			PredictionTable: cfg.Greptime.PredictionTable,
		}, log)
		if err != nil {
			return nil, err
		}
		ws = append(ws, gw)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kw, err := sink.NewKafkaWriter(sink.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, log)
		if err != nil {
			return nil, err
		}
		ws = append(ws, kw)
	}
	return sink.NewMultiWriter(ws...), nil
}
