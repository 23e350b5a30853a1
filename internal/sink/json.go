package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"skymind/internal/flights"
	"skymind/internal/predict"
)

// Record kinds tag each JSON line and Kafka message.
const (
	KindState      = "state"
	KindPrediction = "prediction"
)

type stateRecord struct {
	Kind string `json:"kind"`
	flights.LabeledRow
}

type predictionRecord struct {
	Kind          string    `json:"kind"`
	ICAO24        string    `json:"icao24"`
	Callsign      *string   `json:"callsign"`
	OriginCountry *string   `json:"origin_country"`
	Velocity      *float64  `json:"velocity"`
	GeoAltitude   *float64  `json:"geo_altitude"`
	Delayed       bool      `json:"delayed"`
	Label         string    `json:"label"`
	PredictedAt   time.Time `json:"predicted_at"`
}

func newPredictionRecord(p predict.Prediction) predictionRecord {
	return predictionRecord{
		Kind:          KindPrediction,
		ICAO24:        p.Row.ICAO24,
		Callsign:      p.Row.Callsign,
		OriginCountry: p.Row.OriginCountry,
		Velocity:      p.Row.Velocity,
		GeoAltitude:   p.Row.GeoAltitude,
		Delayed:       p.Delayed,
		Label:         p.Label,
		PredictedAt:   p.PredictedAt,
	}
}

// JSONWriter prints one JSON object per line.
type JSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONWriter writes JSON lines to out.
func NewJSONWriter(out io.Writer) *JSONWriter {
	return &JSONWriter{enc: json.NewEncoder(out)}
}

// NewStdoutWriter writes JSON lines to os.Stdout.
func NewStdoutWriter() *JSONWriter { return NewJSONWriter(os.Stdout) }

func (w *JSONWriter) WriteRows(_ context.Context, rows []flights.LabeledRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range rows {
		if err := w.enc.Encode(stateRecord{Kind: KindState, LabeledRow: r}); err != nil {
			return err
		}
	}
	return nil
}

func (w *JSONWriter) WritePredictions(_ context.Context, preds []predict.Prediction) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range preds {
		if err := w.enc.Encode(newPredictionRecord(p)); err != nil {
			return err
		}
	}
	return nil
}
