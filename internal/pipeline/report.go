package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"skymind/internal/flights"
	"skymind/internal/predict"
)

// Outcome summarizes how an analyze run ended.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeNoData      Outcome = "no_data"
	OutcomeNoMatch     Outcome = "no_match"
	OutcomeNoFeatures  Outcome = "no_features"
)

// Level grades a status message for the presentation layer.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Status is one user-facing message.
type Status struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// TimestampLayout formats prediction and polling times for display.
const TimestampLayout = "2006-01-02 15:04:05"

// Report is the result of one analyze run.
type Report struct {
	RunID       string               `json:"run_id"`
	Country     string               `json:"country"`
	Mode        flights.FilterMode   `json:"mode"`
	Rule        string               `json:"rule"`
	Outcome     Outcome              `json:"outcome"`
	Messages    []Status             `json:"messages"`
	PolledAt    time.Time            `json:"polled_at"`
	Fetched     int                  `json:"fetched"`
	Matched     int                  `json:"matched"`
	Labeled     int                  `json:"labeled"`
	Excluded    int                  `json:"excluded"`
	Persisted   int                  `json:"persisted"`
	StorePath   string               `json:"store,omitempty"`
	Rows        []flights.LabeledRow `json:"rows"`
	Predictions []predict.Prediction `json:"predictions,omitempty"`
	Training    *predict.Report      `json:"training,omitempty"`
}

func (r *Report) add(level Level, format string, args ...any) {
	r.Messages = append(r.Messages, Status{Level: level, Text: fmt.Sprintf(format, args...)})
}

// Accuracy returns the held-out accuracy when a model was trained.
func (r *Report) Accuracy() (float64, bool) {
	if r.Training == nil {
		return 0, false
	}
	return r.Training.Accuracy, true
}

// TableRow is one line of the presentation table.
type TableRow struct {
	ICAO24        string `json:"icao24"`
	Callsign      string `json:"callsign"`
	OriginCountry string `json:"origin_country"`
	Velocity      string `json:"velocity"`
	GeoAltitude   string `json:"geo_altitude"`
	Delay         string `json:"delay"`
	Timestamp     string `json:"timestamp"`
}

// TableColumns are the headers matching TableRow.
var TableColumns = []string{"icao24", "callsign", "origin_country", "velocity", "geo_altitude", "delay", "timestamp"}

// Cells returns the row in TableColumns order.
func (t TableRow) Cells() []string {
	return []string{t.ICAO24, t.Callsign, t.OriginCountry, t.Velocity, t.GeoAltitude, t.Delay, t.Timestamp}
}

// Table shows predictions when the run produced any, otherwise the rule labels.
func (r *Report) Table() []TableRow {
	if len(r.Predictions) > 0 {
		out := make([]TableRow, 0, len(r.Predictions))
		for _, p := range r.Predictions {
			out = append(out, tableRow(p.Row, p.Label, p.PredictedAt))
		}
		return out
	}
	return HistoryTable(r.Rows)
}

// HistoryTable renders stored rows with their rule labels.
func HistoryTable(rows []flights.LabeledRow) []TableRow {
	out := make([]TableRow, 0, len(rows))
	for _, l := range rows {
		lbl := predict.LabelNotDelayed
		if l.Delay {
			lbl = predict.LabelDelayed
		}
		out = append(out, tableRow(l.SnapshotRow, lbl, l.Timestamp))
	}
	return out
}

func tableRow(r flights.SnapshotRow, delay string, at time.Time) TableRow {
	return TableRow{
		ICAO24:        r.ICAO24,
		Callsign:      strings.TrimSpace(str(r.Callsign)),
		OriginCountry: str(r.OriginCountry),
		Velocity:      num(r.Velocity),
		GeoAltitude:   num(r.GeoAltitude),
		Delay:         delay,
		Timestamp:     at.Format(TimestampLayout),
	}
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func num(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}
