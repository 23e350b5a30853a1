package flights

import (
	"fmt"
	"sort"
	"strings"
)

// FilterMode selects how a country name is matched against origin_country.
type FilterMode string

const (
	// ModeExact keeps rows whose origin_country equals the country byte for byte.
	ModeExact FilterMode = "exact"
	// ModeSubstring keeps rows whose origin_country contains the country, ignoring case.
	ModeSubstring FilterMode = "substring"
)

// ParseFilterMode validates a mode name. An empty name selects ModeExact.
func ParseFilterMode(s string) (FilterMode, error) {
	switch FilterMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeExact:
		return ModeExact, nil
	case ModeSubstring:
		return ModeSubstring, nil
	}
	return "", fmt.Errorf("unknown filter mode %q (want exact or substring)", s)
}

// Filter returns the rows of snap whose origin country matches country.
// Rows with a null origin_country never match. An empty result is not an error.
func Filter(snap Snapshot, country string, mode FilterMode) Snapshot {
	out := Snapshot{Time: snap.Time, PolledAt: snap.PolledAt, Rows: make([]SnapshotRow, 0)}
	needle := strings.ToLower(country)
	for _, r := range snap.Rows {
		if r.OriginCountry == nil {
			continue
		}
		var ok bool
		switch mode {
		case ModeSubstring:
			ok = strings.Contains(strings.ToLower(*r.OriginCountry), needle)
		default:
			ok = *r.OriginCountry == country
		}
		if ok {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Countries returns the sorted distinct non-null origin countries of snap.
func Countries(snap Snapshot) []string {
	seen := make(map[string]struct{})
	for _, r := range snap.Rows {
		if r.OriginCountry == nil {
			continue
		}
		seen[*r.OriginCountry] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
