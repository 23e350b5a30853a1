package history

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"skymind/internal/flights"
)

// encodeRow renders a row as CSV cells in flights.LabeledColumns order.
func encodeRow(r flights.LabeledRow) []cell {
	return []cell{
		textCell(r.ICAO24),
		fmtString(r.Callsign),
		fmtString(r.OriginCountry),
		fmtInt64(r.TimePosition),
		fmtInt64(r.LastContact),
		fmtFloat(r.Longitude),
		fmtFloat(r.Latitude),
		fmtFloat(r.BaroAltitude),
		fmtBool(r.OnGround),
		fmtFloat(r.Velocity),
		fmtFloat(r.TrueTrack),
		fmtFloat(r.VerticalRate),
		fmtInts(r.Sensors),
		fmtFloat(r.GeoAltitude),
		fmtString(r.Squawk),
		fmtBool(r.SPI),
		fmtInt(r.PositionSource),
		textCell(strconv.FormatBool(r.Delay)),
		textCell(r.Timestamp.UTC().Format(time.RFC3339Nano)),
	}
}

// decodeRow parses cells produced by encodeRow. String columns keep the
// null/empty distinction; other columns treat any empty cell as null.
func decodeRow(cells []cell) (flights.LabeledRow, error) {
	rec := texts(cells)
	if len(rec) != len(flights.LabeledColumns) {
		return flights.LabeledRow{}, fmt.Errorf("expected %d fields, got %d", len(flights.LabeledColumns), len(rec))
	}
	var (
		r   flights.LabeledRow
		err error
	)
	p := cellParser{rec: rec}
	r.ICAO24 = rec[0]
	r.Callsign = parseString(cells[1])
	r.OriginCountry = parseString(cells[2])
	r.TimePosition = p.int64(3)
	r.LastContact = p.int64(4)
	r.Longitude = p.float(5)
	r.Latitude = p.float(6)
	r.BaroAltitude = p.float(7)
	r.OnGround = p.bool(8)
	r.Velocity = p.float(9)
	r.TrueTrack = p.float(10)
	r.VerticalRate = p.float(11)
	r.Sensors = p.ints(12)
	r.GeoAltitude = p.float(13)
	r.Squawk = parseString(cells[14])
	r.SPI = p.bool(15)
	r.PositionSource = p.int(16)
	if p.err != nil {
		return flights.LabeledRow{}, p.err
	}
	if r.Delay, err = strconv.ParseBool(strings.TrimSpace(rec[17])); err != nil {
		return flights.LabeledRow{}, fmt.Errorf("column delay: %w", err)
	}
	if r.Timestamp, err = parseTimestamp(rec[18]); err != nil {
		return flights.LabeledRow{}, fmt.Errorf("column timestamp: %w", err)
	}
	return r, nil
}

// cellParser records the first parse error and keeps going.
type cellParser struct {
	rec []string
	err error
}

func (p *cellParser) fail(i int, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("column %s: %w", flights.LabeledColumns[i], err)
	}
}

func (p *cellParser) float(i int) *float64 {
	s := strings.TrimSpace(p.rec[i])
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(i, err)
		return nil
	}
	return &v
}

func (p *cellParser) int64(i int) *int64 {
	s := strings.TrimSpace(p.rec[i])
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Tables written by float-typed tools carry "1700000000.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			p.fail(i, err)
			return nil
		}
		v = int64(f)
	}
	return &v
}

func (p *cellParser) int(i int) *int {
	v := p.int64(i)
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func (p *cellParser) bool(i int) *bool {
	s := strings.TrimSpace(p.rec[i])
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(i, err)
		return nil
	}
	return &v
}

func (p *cellParser) ints(i int) []int {
	s := strings.TrimSpace(p.rec[i])
	if s == "" {
		return nil
	}
	var out []int
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		p.fail(i, err)
		return nil
	}
	return out
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
}

func parseString(c cell) *string {
	if c.null {
		return nil
	}
	s := c.text
	return &s
}

func fmtString(s *string) cell {
	if s == nil {
		return nullCell()
	}
	return textCell(*s)
}

func fmtFloat(f *float64) cell {
	if f == nil {
		return nullCell()
	}
	return textCell(strconv.FormatFloat(*f, 'f', -1, 64))
}

func fmtInt64(i *int64) cell {
	if i == nil {
		return nullCell()
	}
	return textCell(strconv.FormatInt(*i, 10))
}

func fmtInt(i *int) cell {
	if i == nil {
		return nullCell()
	}
	return textCell(strconv.Itoa(*i))
}

func fmtBool(b *bool) cell {
	if b == nil {
		return nullCell()
	}
	return textCell(strconv.FormatBool(*b))
}

func fmtInts(v []int) cell {
	if v == nil {
		return nullCell()
	}
	b, _ := json.Marshal(v)
	return textCell(string(b))
}
