// Package label derives the delay flag of a snapshot row.
package label

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"skymind/internal/flights"
)

// ErrUnknownRule is returned by Lookup for an unregistered rule name.
var ErrUnknownRule = errors.New("unknown delay rule")

// Rule decides the delay flag from the two feature values.
type Rule interface {
	Name() string
	Delayed(velocity, geoAltitude float64) bool
}

// CruiseRule flags rows that are fast and high: velocity >= MinVelocity and
// geo_altitude > MinAltitude. Its positive class is "airborne at speed",
// which is not what "delayed" means in ordinary usage.
type CruiseRule struct {
	MinVelocity float64
	MinAltitude float64
}

// Cruise is the cruise rule with the stock thresholds (60 m/s, 1000 m).
var Cruise = CruiseRule{MinVelocity: 60, MinAltitude: 1000}

func (CruiseRule) Name() string { return "cruise" }

func (r CruiseRule) Delayed(velocity, geoAltitude float64) bool {
	return velocity >= r.MinVelocity && geoAltitude > r.MinAltitude
}

// SlowRule flags rows slower than MaxVelocity.
type SlowRule struct {
	MaxVelocity float64
}

// Slow is the slow rule with the stock threshold (100 m/s).
var Slow = SlowRule{MaxVelocity: 100}

func (SlowRule) Name() string { return "slow" }

func (r SlowRule) Delayed(velocity, _ float64) bool {
	return velocity < r.MaxVelocity
}

var registry = map[string]Rule{
	"cruise": Cruise,
	"rule_a": Cruise,
	"slow":   Slow,
	"rule_b": Slow,
}

// Lookup returns the rule registered under name (case-insensitive).
func Lookup(name string) (Rule, error) {
	r, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownRule, name, strings.Join(Names(), ", "))
	}
	return r, nil
}

// Names lists the registered rule names and aliases.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Apply labels every row that has both velocity and geo_altitude. Rows missing
// either are returned in excluded and are never given a default label.
func Apply(rule Rule, rows []flights.SnapshotRow, polledAt time.Time) (labeled []flights.LabeledRow, excluded []flights.SnapshotRow) {
	labeled = make([]flights.LabeledRow, 0, len(rows))
	for _, r := range rows {
		v, alt, ok := r.Features()
		if !ok {
			excluded = append(excluded, r)
			continue
		}
		labeled = append(labeled, flights.LabeledRow{
			SnapshotRow: r,
			Delay:       rule.Delayed(v, alt),
			Timestamp:   polledAt.UTC(),
		})
	}
	return labeled, excluded
}
