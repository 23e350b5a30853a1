// Aircraft state rows as published by the OpenSky /states/all endpoint
package flights

import "time"

// Columns is the fixed column order of a snapshot row. It mirrors the upstream
// state vector layout and must never be reordered.
var Columns = []string{
	"icao24",
	"callsign",
	"origin_country",
	"time_position",
	"last_contact",
	"longitude",
	"latitude",
	"baro_altitude",
	"on_ground",
	"velocity",
	"true_track",
	"vertical_rate",
	"sensors",
	"geo_altitude",
	"squawk",
	"spi",
	"position_source",
}

// LabeledColumns is the column order of a stored history row.
var LabeledColumns = append(append([]string{}, Columns...), "delay", "timestamp")

// StateWidth is the number of fields in one upstream state vector.
const StateWidth = 17

// SnapshotRow is one aircraft state at one poll. Every field except ICAO24 is
// nullable; nil means the upstream did not report a value.
type SnapshotRow struct {
	ICAO24         string   `json:"icao24"`
	Callsign       *string  `json:"callsign"`
	OriginCountry  *string  `json:"origin_country"`
	TimePosition   *int64   `json:"time_position"`
	LastContact    *int64   `json:"last_contact"`
	Longitude      *float64 `json:"longitude"`
	Latitude       *float64 `json:"latitude"`
	BaroAltitude   *float64 `json:"baro_altitude"`
	OnGround       *bool    `json:"on_ground"`
	Velocity       *float64 `json:"velocity"`
	TrueTrack      *float64 `json:"true_track"`
	VerticalRate   *float64 `json:"vertical_rate"`
	Sensors        []int    `json:"sensors"`
	GeoAltitude    *float64 `json:"geo_altitude"`
	Squawk         *string  `json:"squawk"`
	SPI            *bool    `json:"spi"`
	PositionSource *int     `json:"position_source"`
}

// Features returns the two model inputs. ok is false when either is null.
func (r SnapshotRow) Features() (velocity, geoAltitude float64, ok bool) {
	if r.Velocity == nil || r.GeoAltitude == nil {
		return 0, 0, false
	}
	return *r.Velocity, *r.GeoAltitude, true
}

// Country returns the origin country or "" when it is null.
func (r SnapshotRow) Country() string {
	if r.OriginCountry == nil {
		return ""
	}
	return *r.OriginCountry
}

// LabeledRow is a snapshot row with a derived delay flag and the poll time.
type LabeledRow struct {
	SnapshotRow
	Delay     bool      `json:"delay"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is one poll's worth of rows.
type Snapshot struct {
	Time     int64         `json:"time"`
	PolledAt time.Time     `json:"polled_at"`
	Rows     []SnapshotRow `json:"rows"`
}

// Empty reports whether the snapshot holds no rows.
func (s Snapshot) Empty() bool { return len(s.Rows) == 0 }

// Len returns the number of rows.
func (s Snapshot) Len() int { return len(s.Rows) }

// Ptr returns a pointer to v. Handy for building rows in code and tests.
func Ptr[T any](v T) *T { return &v }
