package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"skymind/internal/config"
	"skymind/internal/history"
	"skymind/internal/logging"
	"skymind/internal/pipeline"
	"skymind/internal/sink"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.History.Path = filepath.Join(t.TempDir(), "flight_data.csv")
	return cfg
}

func openSkyStub(t *testing.T) *httptest.Server {
	t.Helper()
	state := []any{"abc123", "DLH1  ", "Germany", 1700000000, 1700000000, 8.5, 50.0, 10000.0, false, 230.0, 90.0, 0.0, nil, 10500.0, "1000", false, 0}
	slow := []any{"def456", "BAW2", "United Kingdom", 1700000000, 1700000001, -0.4, 51.4, 500.0, false, 80.0, 270.0, 0.0, nil, 600.0, nil, false, 0}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"time": 1700000000, "states": [][]any{state, slow}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewStoreCSV(t *testing.T) {
	cfg := testConfig(t)
	store, label, err := newStore(context.Background(), cfg.History)
	if err != nil {
		t.Fatalf("newStore returned error: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*history.CSVStore); !ok {
		t.Fatalf("expected *history.CSVStore, got %T", store)
	}
	if label != cfg.History.Path {
		t.Fatalf("label = %q, want %q", label, cfg.History.Path)
	}
}

func TestNewStoreSQLiteDedupe(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Backend = config.BackendSQLite
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	cfg.History.Dedupe = true
	store, label, err := newStore(context.Background(), cfg.History)
	if err != nil {
		t.Fatalf("newStore returned error: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*history.DedupeStore); !ok {
		t.Fatalf("expected *history.DedupeStore, got %T", store)
	}
	if !strings.Contains(label, "flight_history") {
		t.Fatalf("label %q does not name the table", label)
	}
}

func TestNewStoreBadStrategy(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Strategy = "merge"
	if _, _, err := newStore(context.Background(), cfg.History); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestNewSinksPrintOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sinks.Kafka.Brokers = []string{"localhost:9092"}
	mw, err := newSinks(cfg.Sinks, logging.Discard(), true)
	if err != nil {
		t.Fatalf("newSinks returned error: %v", err)
	}
	defer mw.Close()
	if mw.Len() != 1 {
		t.Fatalf("expected only the stdout sink, got %d", mw.Len())
	}
}

func TestNewSinksNoneConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sinks.Stdout = false
	mw, err := newSinks(cfg.Sinks, logging.Discard(), false)
	if err != nil {
		t.Fatalf("newSinks returned error: %v", err)
	}
	if mw.Len() != 0 {
		t.Fatalf("expected no sinks, got %d", mw.Len())
	}
}

func TestNewSinksGreptimeBadEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sinks.Greptime.Endpoint = "host:notaport"
	if _, err := newSinks(cfg.Sinks, logging.Discard(), false); err == nil {
		t.Fatal("expected error for malformed endpoint")
	}
}

func TestNewAppUnknownRule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Label.Rule = "fastest"
	if _, err := newApp(context.Background(), cfg, logging.Discard(), false); err == nil {
		t.Fatal("expected error for unknown rule")
	}
}

func TestAppAnalyzePersists(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sinks.Stdout = false
	cfg.OpenSky.BaseURL = openSkyStub(t).URL

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logging.Discard(), false)
	if err != nil {
		t.Fatalf("newApp returned error: %v", err)
	}
	defer a.Close()

	rep, err := a.pipeline.Analyze(ctx, pipeline.Request{Country: "Germany"})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if rep.Outcome != pipeline.OutcomeOK || rep.Persisted != 1 {
		t.Fatalf("unexpected report: outcome=%s persisted=%d", rep.Outcome, rep.Persisted)
	}
	if _, err := os.Stat(cfg.History.Path); err != nil {
		t.Fatalf("history file not written: %v", err)
	}

	countries, err := a.pipeline.Countries(ctx)
	if err != nil {
		t.Fatalf("Countries returned error: %v", err)
	}
	if len(countries) != 2 {
		t.Fatalf("expected 2 countries, got %v", countries)
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]pipeline.TableRow{{ICAO24: "abc123", Callsign: "DLH1", Delay: "Delayed"}})
	for _, want := range append([]string{"abc123", "Delayed"}, pipeline.TableColumns...) {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestPrintMessages(t *testing.T) {
	var buf bytes.Buffer
	printMessages(&buf, []pipeline.Status{{Level: pipeline.LevelWarning, Text: "No flights found"}})
	if !strings.Contains(buf.String(), "[warning] No flights found") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestReplayPrintOnlyWritesJSON(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenSky.BaseURL = openSkyStub(t).URL
	ctx := context.Background()
	a, err := newApp(ctx, cfg, logging.Discard(), false)
	if err != nil {
		t.Fatalf("newApp returned error: %v", err)
	}
	defer a.Close()
	if _, err := a.pipeline.Analyze(ctx, pipeline.Request{Country: "United Kingdom"}); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	rows, found, err := a.store.LoadAll(ctx)
	if err != nil || !found {
		t.Fatalf("LoadAll: found=%v err=%v", found, err)
	}

	var buf bytes.Buffer
	batches, err := sink.Replay(ctx, rows, sink.NewJSONWriter(&buf), 1000)
	if err != nil {
		t.Fatalf("Replay returned error: %v", err)
	}
	if batches != 1 || !strings.Contains(buf.String(), "def456") {
		t.Fatalf("batches=%d output=%q", batches, buf.String())
	}
}

func TestPrintCountriesEmptyWarns(t *testing.T) {
	var out, errOut bytes.Buffer
	if err := printCountries(&out, &errOut, nil, false); err != nil {
		t.Fatalf("printCountries returned error: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no stdout, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), noCountriesWarning) {
		t.Fatalf("warning missing from stderr: %q", errOut.String())
	}

	out.Reset()
	errOut.Reset()
	if err := printCountries(&out, &errOut, nil, true); err != nil {
		t.Fatalf("printCountries returned error: %v", err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Fatalf("expected empty JSON array, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), noCountriesWarning) {
		t.Fatalf("warning missing from stderr: %q", errOut.String())
	}
}

func TestPrintCountriesList(t *testing.T) {
	var out, errOut bytes.Buffer
	if err := printCountries(&out, &errOut, []string{"France", "India"}, false); err != nil {
		t.Fatalf("printCountries returned error: %v", err)
	}
	if out.String() != "France\nIndia\n" {
		t.Fatalf("unexpected stdout %q", out.String())
	}
	if errOut.Len() != 0 {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}
}
