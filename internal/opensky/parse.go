package opensky

import (
	"math"

	"skymind/internal/flights"
)

// ParseStates coerces raw state vectors into fixed-width rows. Short vectors
// are padded with nulls and extra trailing fields are ignored, so every row
// carries exactly the snapshot column set.
func ParseStates(states [][]any) []flights.SnapshotRow {
	rows := make([]flights.SnapshotRow, 0, len(states))
	for _, s := range states {
		rows = append(rows, parseState(pad(s)))
	}
	return rows
}

func pad(s []any) []any {
	if len(s) >= flights.StateWidth {
		return s[:flights.StateWidth]
	}
	out := make([]any, flights.StateWidth)
	copy(out, s)
	return out
}

func parseState(s []any) flights.SnapshotRow {
	r := flights.SnapshotRow{
		Callsign:       stringVal(s[1]),
		OriginCountry:  stringVal(s[2]),
		TimePosition:   intVal(s[3]),
		LastContact:    intVal(s[4]),
		Longitude:      floatVal(s[5]),
		Latitude:       floatVal(s[6]),
		BaroAltitude:   floatVal(s[7]),
		OnGround:       boolVal(s[8]),
		Velocity:       floatVal(s[9]),
		TrueTrack:      floatVal(s[10]),
		VerticalRate:   floatVal(s[11]),
		Sensors:        intsVal(s[12]),
		GeoAltitude:    floatVal(s[13]),
		Squawk:         stringVal(s[14]),
		SPI:            boolVal(s[15]),
		PositionSource: smallIntVal(s[16]),
	}
	if id := stringVal(s[0]); id != nil {
		r.ICAO24 = *id
	}
	return r
}

func stringVal(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

func floatVal(v any) *float64 {
	if f, ok := v.(float64); ok && !math.IsNaN(f) {
		return &f
	}
	return nil
}

func intVal(v any) *int64 {
	if f, ok := v.(float64); ok {
		i := int64(f)
		return &i
	}
	return nil
}

func smallIntVal(v any) *int {
	if f, ok := v.(float64); ok {
		i := int(f)
		return &i
	}
	return nil
}

func boolVal(v any) *bool {
	if b, ok := v.(bool); ok {
		return &b
	}
	return nil
}

func intsVal(v any) []int {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(arr))
	for _, e := range arr {
		if f, ok := e.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}
