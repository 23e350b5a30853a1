package predict

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"

	"skymind/internal/flights"
)

// Fingerprint hashes the feature columns and labels of a training table
// together with the options. Appending rows changes it.
func Fingerprint(rows []flights.LabeledRow, opts Options) uint64 {
	d := xxhash.New()
	var buf [8]byte
	put := func(u uint64) {
		binary.LittleEndian.PutUint64(buf[:], u)
		_, _ = d.Write(buf[:])
	}
	put(uint64(opts.Trees))
	put(uint64(opts.Seed))
	put(math.Float64bits(opts.TestFraction))
	put(uint64(opts.MaxDepth))
	put(uint64(opts.MinSamplesLeaf))
	put(uint64(len(rows)))
	for _, r := range rows {
		v, alt, ok := r.Features()
		if !ok {
			put(0)
			continue
		}
		put(math.Float64bits(v))
		put(math.Float64bits(alt))
		if r.Delay {
			put(1)
		} else {
			put(2)
		}
	}
	return d.Sum64()
}

// Cache keeps the last trained model and reuses it while the training table
// is unchanged.
type Cache struct {
	mu     sync.Mutex
	key    uint64
	model  *Model
	report Report
}

// NewCache returns an empty model cache.
func NewCache() *Cache { return &Cache{} }

// Train returns the cached model when history and opts hash to the same
// fingerprint as the previous call, and trains a new one otherwise.
func (c *Cache) Train(history []flights.LabeledRow, opts Options) (*Model, Report, bool, error) {
	key := Fingerprint(history, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model != nil && c.key == key {
		return c.model, c.report, true, nil
	}
	m, rep, err := Train(history, opts)
	if err != nil {
		return nil, rep, false, err
	}
	c.key, c.model, c.report = key, m, rep
	return m, rep, false, nil
}
