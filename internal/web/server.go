// Package web serves the JSON API, the HTML page and /metrics.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"skymind/internal/flights"
	"skymind/internal/metrics"
	"skymind/internal/opensky"
	"skymind/internal/pipeline"
)

//go:embed templates/index.html
var content embed.FS

const defaultHistoryLimit = 100

// Service is the subset of the pipeline the server calls.
type Service interface {
	Countries(ctx context.Context) ([]string, error)
	Analyze(ctx context.Context, req pipeline.Request) (*pipeline.Report, error)
	History(ctx context.Context, limit int) ([]flights.LabeledRow, error)
}

type Server struct {
	svc       Service
	metrics   *metrics.Metrics
	log       *slog.Logger
	accessLog io.Writer
	rule      string
	tpl       *template.Template
}

// NewServer builds the router. m may be nil, in which case /metrics is not
// served. Access logs go to accessLog in combined log format.
func NewServer(svc Service, m *metrics.Metrics, log *slog.Logger, accessLog io.Writer, rule string) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	if accessLog == nil {
		accessLog = io.Discard
	}
	return &Server{svc: svc, metrics: m, log: log, accessLog: accessLog, rule: rule, tpl: tpl}
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/countries", s.handleCountries).Methods(http.MethodGet)
	r.HandleFunc("/api/analyze", s.handleAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

// Handler returns the router wrapped with access logging.
func (s *Server) Handler() http.Handler {
	return handlers.CombinedLoggingHandler(s.accessLog, s.router())
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Rule    string
		Modes   []flights.FilterMode
		Columns []string
	}{
		Rule:    s.rule,
		Modes:   []flights.FilterMode{flights.ModeExact, flights.ModeSubstring},
		Columns: pipeline.TableColumns,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.Error("render index", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := s.svc.Countries(r.Context())
	if err != nil {
		s.log.Warn("countries failed", "err", err)
		status := http.StatusInternalServerError
		if errors.Is(err, opensky.ErrFetchFailed) {
			status = http.StatusBadGateway
		}
		writeError(w, status, "Could not fetch live data or no countries available.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"countries": countries})
}

type analyzeResponse struct {
	*pipeline.Report
	Table []pipeline.TableRow `json:"table"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Country == "" {
		writeError(w, http.StatusBadRequest, "country is required")
		return
	}
	rep, err := s.svc.Analyze(r.Context(), req)
	if errors.Is(err, pipeline.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.Error("analyze failed", "country", req.Country, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Report: rep, Table: rep.Table()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	rows, err := s.svc.History(r.Context(), limit)
	if err != nil {
		s.log.Error("history failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":  rows,
		"table": pipeline.HistoryTable(rows),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
