package flights

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// RowEnv is the environment a where expression is evaluated against.
// Null numeric fields read as 0; use the has_* flags to tell them apart.
type RowEnv struct {
	ICAO24         string  `expr:"icao24"`
	Callsign       string  `expr:"callsign"`
	OriginCountry  string  `expr:"origin_country"`
	Longitude      float64 `expr:"longitude"`
	Latitude       float64 `expr:"latitude"`
	BaroAltitude   float64 `expr:"baro_altitude"`
	GeoAltitude    float64 `expr:"geo_altitude"`
	Velocity       float64 `expr:"velocity"`
	TrueTrack      float64 `expr:"true_track"`
	VerticalRate   float64 `expr:"vertical_rate"`
	OnGround       bool    `expr:"on_ground"`
	Squawk         string  `expr:"squawk"`
	SPI            bool    `expr:"spi"`
	PositionSource int     `expr:"position_source"`

	HasVelocity    bool `expr:"has_velocity"`
	HasGeoAltitude bool `expr:"has_geo_altitude"`
	HasPosition    bool `expr:"has_position"`
}

// Predicate reports whether a row passes a compiled where expression.
type Predicate func(SnapshotRow) bool

// CompileWhere compiles a boolean expression such as
// `velocity > 200 && !on_ground`. An empty source matches every row.
func CompileWhere(src string) (Predicate, error) {
	if strings.TrimSpace(src) == "" {
		return func(SnapshotRow) bool { return true }, nil
	}
	program, err := expr.Compile(src, expr.Env(RowEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile where %q: %w", src, err)
	}
	return func(r SnapshotRow) bool {
		return evalWhere(program, r)
	}, nil
}

func evalWhere(program *vm.Program, r SnapshotRow) bool {
	out, err := expr.Run(program, envFor(r))
	if err != nil {
		return false
	}
	b, ok := out.(bool)
	return ok && b
}

// Where returns the rows of snap accepted by pred.
func Where(snap Snapshot, pred Predicate) Snapshot {
	out := Snapshot{Time: snap.Time, PolledAt: snap.PolledAt, Rows: make([]SnapshotRow, 0, len(snap.Rows))}
	for _, r := range snap.Rows {
		if pred(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

func envFor(r SnapshotRow) RowEnv {
	env := RowEnv{
		ICAO24:         r.ICAO24,
		Callsign:       strings.TrimSpace(deref(r.Callsign)),
		OriginCountry:  deref(r.OriginCountry),
		Longitude:      deref(r.Longitude),
		Latitude:       deref(r.Latitude),
		BaroAltitude:   deref(r.BaroAltitude),
		GeoAltitude:    deref(r.GeoAltitude),
		Velocity:       deref(r.Velocity),
		TrueTrack:      deref(r.TrueTrack),
		VerticalRate:   deref(r.VerticalRate),
		OnGround:       deref(r.OnGround),
		Squawk:         deref(r.Squawk),
		SPI:            deref(r.SPI),
		PositionSource: deref(r.PositionSource),
		HasVelocity:    r.Velocity != nil,
		HasGeoAltitude: r.GeoAltitude != nil,
		HasPosition:    r.Latitude != nil && r.Longitude != nil,
	}
	return env
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
