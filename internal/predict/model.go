// Package predict trains a bagged decision-tree classifier on stored history
// and scores the latest snapshot with it.
package predict

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"skymind/internal/flights"
)

// Labels shown for a prediction.
const (
	LabelDelayed    = "Delayed"
	LabelNotDelayed = "Not Delayed"
)

// ErrInsufficientHistory is returned when fewer than two usable rows exist.
var ErrInsufficientHistory = errors.New("not enough history to train")

// Options controls training.
type Options struct {
	Trees          int     `yaml:"trees" json:"trees"`
	Seed           int64   `yaml:"seed" json:"seed"`
	TestFraction   float64 `yaml:"test_fraction" json:"test_fraction"`
	MaxDepth       int     `yaml:"max_depth" json:"max_depth"`
	MinSamplesLeaf int     `yaml:"min_samples_leaf" json:"min_samples_leaf"`
}

// DefaultOptions returns 100 trees, seed 42 and a 70/30 split.
func DefaultOptions() Options {
	return Options{Trees: 100, Seed: 42, TestFraction: 0.3, MinSamplesLeaf: 1}
}

func (o Options) validate() error {
	if o.Trees <= 0 {
		return fmt.Errorf("trees must be positive, got %d", o.Trees)
	}
	if o.TestFraction <= 0 || o.TestFraction >= 1 {
		return fmt.Errorf("test fraction must be in (0,1), got %v", o.TestFraction)
	}
	if o.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative, got %d", o.MaxDepth)
	}
	return nil
}

// Report describes one training run. Accuracy is a diagnostic only.
type Report struct {
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
	Dropped   int     `json:"dropped"`
	Accuracy  float64 `json:"accuracy"`
}

// Model is a trained delay classifier.
type Model struct {
	forest      *forest
	opts        Options
	fingerprint uint64
}

// Fingerprint identifies the training table and options the model came from.
func (m *Model) Fingerprint() uint64 { return m.fingerprint }

// Prediction is the model's output for one current row.
type Prediction struct {
	Row         flights.SnapshotRow `json:"row"`
	Delayed     bool                `json:"delayed"`
	Label       string              `json:"label"`
	PredictedAt time.Time           `json:"predicted_at"`
}

// Train fits a model on history. Rows without velocity or geo_altitude are
// dropped; labels are the rows' stored delay flags.
func Train(history []flights.LabeledRow, opts Options) (*Model, Report, error) {
	if err := opts.validate(); err != nil {
		return nil, Report{}, err
	}
	samples, dropped := toSamples(history)
	if len(samples) < 2 {
		return nil, Report{Dropped: dropped}, fmt.Errorf("%w: %d usable rows", ErrInsufficientHistory, len(samples))
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	train, test := split(samples, opts.TestFraction, rng)

	params := treeParams{maxDepth: opts.MaxDepth, minSamplesLeaf: max(opts.MinSamplesLeaf, 1)}
	f := fitForest(train, opts.Trees, params, rand.New(rand.NewSource(opts.Seed)))

	correct := 0
	for _, s := range test {
		if f.predict(s.x) == s.y {
			correct++
		}
	}
	report := Report{
		TrainRows: len(train),
		TestRows:  len(test),
		Dropped:   dropped,
		Accuracy:  float64(correct) / float64(len(test)),
	}
	return &Model{forest: f, opts: opts, fingerprint: Fingerprint(history, opts)}, report, nil
}

// Predict classifies a single feature pair.
func (m *Model) Predict(velocity, geoAltitude float64) bool {
	return m.forest.predict([numFeatures]float64{velocity, geoAltitude})
}

// Score classifies the current rows. Rows lacking a feature are skipped.
func (m *Model) Score(rows []flights.SnapshotRow, now time.Time) []Prediction {
	out := make([]Prediction, 0, len(rows))
	for _, r := range rows {
		v, alt, ok := r.Features()
		if !ok {
			continue
		}
		delayed := m.Predict(v, alt)
		out = append(out, Prediction{
			Row:         r,
			Delayed:     delayed,
			Label:       labelFor(delayed),
			PredictedAt: now,
		})
	}
	return out
}

func labelFor(delayed bool) string {
	if delayed {
		return LabelDelayed
	}
	return LabelNotDelayed
}

func toSamples(rows []flights.LabeledRow) ([]sample, int) {
	out := make([]sample, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		v, alt, ok := r.Features()
		if !ok {
			dropped++
			continue
		}
		out = append(out, sample{x: [numFeatures]float64{v, alt}, y: r.Delay})
	}
	return out, dropped
}

// split shuffles samples with rng and holds out ceil(frac*n) of them, always
// leaving at least one training sample.
func split(samples []sample, frac float64, rng *rand.Rand) (train, test []sample) {
	n := len(samples)
	nTest := int(math.Ceil(frac * float64(n)))
	if nTest >= n {
		nTest = n - 1
	}
	perm := rng.Perm(n)
	test = make([]sample, 0, nTest)
	train = make([]sample, 0, n-nTest)
	for i, idx := range perm {
		if i < nTest {
			test = append(test, samples[idx])
		} else {
			train = append(train, samples[idx])
		}
	}
	return train, test
}
