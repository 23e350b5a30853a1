package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"skymind/internal/flights"
)

// Dialect names the SQL flavour behind a SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DefaultTable is the history table name used when none is configured.
const DefaultTable = "flight_history"

const metaTable = "skymind_meta"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const (
	pgMaxOpenConns = 10
	pgMaxIdleConns = 2
	pgConnLifetime = time.Hour
	pgPingTimeout  = 5 * time.Second
)

// SQLStore keeps history in a SQL table ordered by an auto-increment seq column.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// NewSQLStore wraps an open database. The table is created on first append.
func NewSQLStore(db *sql.DB, dialect Dialect, table string) (*SQLStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid history table name %q", table)
	}
	switch dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return nil, fmt.Errorf("unknown sql dialect %q", dialect)
	}
	return &SQLStore{db: db, dialect: dialect, table: table}, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file.
func OpenSQLite(path, table string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s, err := NewSQLStore(db, DialectSQLite, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres opens a pgx-backed pool and checks the connection.
func OpenPostgres(ctx context.Context, dsn, table string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("history: empty postgres DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetMaxIdleConns(pgMaxIdleConns)
	db.SetConnMaxLifetime(pgConnLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pgPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s, err := NewSQLStore(db, DialectPostgres, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Table returns the history table name.
func (s *SQLStore) Table() string { return s.table }

func (s *SQLStore) Close() error { return s.db.Close() }

// bind returns the n-th (1-based) placeholder.
func (s *SQLStore) bind(n int) string {
	if s.dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *SQLStore) createTableSQL() string {
	seq, flt, ts := "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL", "TIMESTAMP"
	if s.dialect == DialectPostgres {
		seq, flt, ts = "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION", "TIMESTAMPTZ"
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq             %s,
	icao24          TEXT NOT NULL,
	callsign        TEXT,
	origin_country  TEXT,
	time_position   BIGINT,
	last_contact    BIGINT,
	longitude       %[3]s,
	latitude        %[3]s,
	baro_altitude   %[3]s,
	on_ground       BOOLEAN,
	velocity        %[3]s,
	true_track      %[3]s,
	vertical_rate   %[3]s,
	sensors         TEXT,
	geo_altitude    %[3]s,
	squawk          TEXT,
	spi             BOOLEAN,
	position_source INTEGER,
	delay           BOOLEAN NOT NULL,
	"timestamp"     %[4]s NOT NULL
)`, s.table, seq, flt, ts)
}

func (s *SQLStore) ensureMeta(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+metaTable+` (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}
	return nil
}

func (s *SQLStore) methodKey() string { return "label_method:" + s.table }

func (s *SQLStore) Method(ctx context.Context) (string, error) {
	if err := s.ensureMeta(ctx); err != nil {
		return "", err
	}
	var method string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM `+metaTable+` WHERE name = `+s.bind(1), s.methodKey()).Scan(&method)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read label method: %w", err)
	}
	return method, nil
}

func (s *SQLStore) tableExists(ctx context.Context) (bool, error) {
	q := `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	if s.dialect == DialectPostgres {
		q = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, s.table).Scan(&n); err != nil {
		return false, fmt.Errorf("check history table: %w", err)
	}
	return n > 0, nil
}

// checkColumns compares the stored column set with the expected one.
func (s *SQLStore) checkColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT * FROM `+s.table+` WHERE 1 = 0`)
	if err != nil {
		return fmt.Errorf("inspect history table: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("inspect history table: %w", err)
	}
	want := append([]string{"seq"}, flights.LabeledColumns...)
	if !slices.Equal(cols, want) {
		return fmt.Errorf("%w: table %s has columns %v", ErrSchemaMismatch, s.table, cols)
	}
	return nil
}

func (s *SQLStore) Append(ctx context.Context, method string, rows []flights.LabeledRow) error {
	if len(rows) == 0 {
		return nil
	}
	recorded, err := s.Method(ctx)
	if err != nil {
		return err
	}
	if err := checkMethod(recorded, method); err != nil {
		return err
	}

	exists, err := s.tableExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		if err := s.checkColumns(ctx); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback()

	if !exists {
		if _, err := tx.ExecContext(ctx, s.createTableSQL()); err != nil {
			return fmt.Errorf("create history table: %w", err)
		}
	}
	if recorded == "" {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO `+metaTable+` (name, value) VALUES (`+s.bind(1)+`, `+s.bind(2)+`) ON CONFLICT (name) DO NOTHING`,
			s.methodKey(), method)
		if err != nil {
			return fmt.Errorf("record label method: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, s.insertSQL())
	if err != nil {
		return fmt.Errorf("prepare history insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, insertArgs(r)...); err != nil {
			return fmt.Errorf("insert history row %s: %w", r.ICAO24, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history tx: %w", err)
	}
	return nil
}

func (s *SQLStore) quotedColumns() string {
	cols := make([]string, len(flights.LabeledColumns))
	for i, c := range flights.LabeledColumns {
		cols[i] = `"` + c + `"`
	}
	return strings.Join(cols, ", ")
}

func (s *SQLStore) insertSQL() string {
	marks := make([]string, len(flights.LabeledColumns))
	for i := range marks {
		marks[i] = s.bind(i + 1)
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, s.table, s.quotedColumns(), strings.Join(marks, ", "))
}

func insertArgs(r flights.LabeledRow) []any {
	var sensors any
	if r.Sensors != nil {
		b, _ := json.Marshal(r.Sensors)
		sensors = string(b)
	}
	return []any{
		r.ICAO24, nullable(r.Callsign), nullable(r.OriginCountry),
		nullable(r.TimePosition), nullable(r.LastContact),
		nullable(r.Longitude), nullable(r.Latitude), nullable(r.BaroAltitude),
		nullable(r.OnGround), nullable(r.Velocity), nullable(r.TrueTrack),
		nullable(r.VerticalRate), sensors, nullable(r.GeoAltitude),
		nullable(r.Squawk), nullable(r.SPI), nullable(r.PositionSource),
		r.Delay, r.Timestamp.UTC(),
	}
}

// nullable turns a nil pointer into an untyped SQL NULL.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func (s *SQLStore) LoadAll(ctx context.Context) ([]flights.LabeledRow, bool, error) {
	exists, err := s.tableExists(ctx)
	if err != nil || !exists {
		return nil, false, err
	}
	if err := s.checkColumns(ctx); err != nil {
		return nil, false, err
	}

	q := fmt.Sprintf(`SELECT %s FROM %s ORDER BY seq`, s.quotedColumns(), s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, false, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := []flights.LabeledRow{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("query history: %w", err)
	}
	return out, true, nil
}

func scanRow(rows *sql.Rows) (flights.LabeledRow, error) {
	var (
		r                                      flights.LabeledRow
		callsign, country, sensors, squawk     sql.NullString
		timePos, lastContact                   sql.NullInt64
		lon, lat, baro, vel, track, vrate, geo sql.NullFloat64
		onGround, spi                          sql.NullBool
		posSource                              sql.NullInt64
	)
	err := rows.Scan(&r.ICAO24, &callsign, &country, &timePos, &lastContact,
		&lon, &lat, &baro, &onGround, &vel, &track, &vrate, &sensors, &geo,
		&squawk, &spi, &posSource, &r.Delay, &r.Timestamp)
	if err != nil {
		return r, err
	}
	r.Callsign = fromNull(callsign.String, callsign.Valid)
	r.OriginCountry = fromNull(country.String, country.Valid)
	r.TimePosition = fromNull(timePos.Int64, timePos.Valid)
	r.LastContact = fromNull(lastContact.Int64, lastContact.Valid)
	r.Longitude = fromNull(lon.Float64, lon.Valid)
	r.Latitude = fromNull(lat.Float64, lat.Valid)
	r.BaroAltitude = fromNull(baro.Float64, baro.Valid)
	r.OnGround = fromNull(onGround.Bool, onGround.Valid)
	r.Velocity = fromNull(vel.Float64, vel.Valid)
	r.TrueTrack = fromNull(track.Float64, track.Valid)
	r.VerticalRate = fromNull(vrate.Float64, vrate.Valid)
	r.GeoAltitude = fromNull(geo.Float64, geo.Valid)
	r.Squawk = fromNull(squawk.String, squawk.Valid)
	r.SPI = fromNull(spi.Bool, spi.Valid)
	if posSource.Valid {
		r.PositionSource = flights.Ptr(int(posSource.Int64))
	}
	if sensors.Valid {
		if err := json.Unmarshal([]byte(sensors.String), &r.Sensors); err != nil {
			return r, fmt.Errorf("sensors: %w", err)
		}
	}
	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}

func fromNull[T any](v T, valid bool) *T {
	if !valid {
		return nil
	}
	return &v
}
