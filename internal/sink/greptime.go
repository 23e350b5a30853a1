package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"

	"skymind/internal/flights"
	"skymind/internal/predict"
)

// Default GreptimeDB table names.
const (
	DefaultStateTable      = "flight_states"
	DefaultPredictionTable = "flight_predictions"
	defaultGreptimePort    = 4001
)

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeConfig locates the database. Endpoint is host or host:port.
type GreptimeConfig struct {
	Endpoint        string
	Database        string
	StateTable      string
	PredictionTable string
}

// GreptimeWriter inserts rows through the GreptimeDB gRPC ingester.
type GreptimeWriter struct {
	client          greptimeClient
	stateTable      string
	predictionTable string
	log             *slog.Logger
}

// NewGreptimeWriter connects a gRPC ingester client.
func NewGreptimeWriter(cfg GreptimeConfig, log *slog.Logger) (*GreptimeWriter, error) {
	host, port, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	gcfg := greptime.NewConfig(host).WithPort(port)
	if cfg.Database != "" {
		gcfg = gcfg.WithDatabase(cfg.Database)
	}
	client, err := greptime.NewClient(gcfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return newGreptimeWriter(client, cfg, log), nil
}

func newGreptimeWriter(client greptimeClient, cfg GreptimeConfig, log *slog.Logger) *GreptimeWriter {
	if cfg.StateTable == "" {
		cfg.StateTable = DefaultStateTable
	}
	if cfg.PredictionTable == "" {
		cfg.PredictionTable = DefaultPredictionTable
	}
	if log == nil {
		log = slog.Default()
	}
	return &GreptimeWriter{
		client:          client,
		stateTable:      cfg.StateTable,
		predictionTable: cfg.PredictionTable,
		log:             log.With(slog.String("component", "greptime_writer")),
	}
}

func splitEndpoint(endpoint string) (string, int, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", 0, fmt.Errorf("greptime endpoint is empty")
	}
	host, portStr, found := strings.Cut(endpoint, ":")
	if !found {
		return host, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("greptime endpoint %q: bad port: %w", endpoint, err)
	}
	return host, port, nil
}

// WriteRows inserts labeled rows into the state table. The polling timestamp
// is the time index; icao24 and origin_country are tags.
func (w *GreptimeWriter) WriteRows(ctx context.Context, rows []flights.LabeledRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.stateTable)
	if err != nil {
		return err
	}
	cols := []struct {
		name string
		tag  bool
		typ  types.ColumnType
	}{
		{"icao24", true, types.STRING},
		{"origin_country", true, types.STRING},
		{"callsign", false, types.STRING},
		{"time_position", false, types.INT64},
		{"last_contact", false, types.INT64},
		{"longitude", false, types.FLOAT64},
		{"latitude", false, types.FLOAT64},
		{"baro_altitude", false, types.FLOAT64},
		{"on_ground", false, types.BOOLEAN},
		{"velocity", false, types.FLOAT64},
		{"true_track", false, types.FLOAT64},
		{"vertical_rate", false, types.FLOAT64},
		{"sensors", false, types.STRING},
		{"geo_altitude", false, types.FLOAT64},
		{"squawk", false, types.STRING},
		{"spi", false, types.BOOLEAN},
		{"position_source", false, types.INT64},
		{"delay", false, types.BOOLEAN},
	}
	for _, c := range cols {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}

	for _, r := range rows {
		var sensors any
		if r.Sensors != nil {
			b, _ := json.Marshal(r.Sensors)
			sensors = string(b)
		}
		var posSource any
		if r.PositionSource != nil {
			posSource = int64(*r.PositionSource)
		}
		err := tbl.AddRow(
			r.ICAO24,
			r.Country(),
			value(r.Callsign),
			value(r.TimePosition),
			value(r.LastContact),
			value(r.Longitude),
			value(r.Latitude),
			value(r.BaroAltitude),
			value(r.OnGround),
			value(r.Velocity),
			value(r.TrueTrack),
			value(r.VerticalRate),
			sensors,
			value(r.GeoAltitude),
			value(r.Squawk),
			value(r.SPI),
			posSource,
			r.Delay,
			r.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("greptime row %s: %w", r.ICAO24, err)
		}
	}
	return w.write(ctx, w.stateTable, tbl, len(rows))
}

// WritePredictions inserts scored rows into the prediction table.
func (w *GreptimeWriter) WritePredictions(ctx context.Context, preds []predict.Prediction) error {
	if len(preds) == 0 {
		return nil
	}
	tbl, err := table.New(w.predictionTable)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("icao24", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("origin_country", types.STRING); err != nil {
		return err
	}
	for _, c := range []struct {
		name string
		typ  types.ColumnType
	}{
		{"callsign", types.STRING},
		{"velocity", types.FLOAT64},
		{"geo_altitude", types.FLOAT64},
		{"delayed", types.BOOLEAN},
		{"label", types.STRING},
	} {
		if err := tbl.AddFieldColumn(c.name, c.typ); err != nil {
			return err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}
	for _, p := range preds {
		err := tbl.AddRow(
			p.Row.ICAO24,
			p.Row.Country(),
			value(p.Row.Callsign),
			value(p.Row.Velocity),
			value(p.Row.GeoAltitude),
			p.Delayed,
			p.Label,
			p.PredictedAt,
		)
		if err != nil {
			return fmt.Errorf("greptime prediction %s: %w", p.Row.ICAO24, err)
		}
	}
	return w.write(ctx, w.predictionTable, tbl, len(preds))
}

func (w *GreptimeWriter) write(ctx context.Context, name string, tbl *table.Table, n int) error {
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log.Error("write failed", "table", name, "err", err)
		return fmt.Errorf("greptime write %s: %w", name, err)
	}
	w.log.Debug("wrote rows", "table", name, "rows", n)
	return nil
}

// value unwraps a nullable column for AddRow; nil pointers become untyped nil.
func value[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
