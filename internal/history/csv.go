package history

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"skymind/internal/flights"
)

// Strategy selects how the CSV store adds rows to an existing file.
type Strategy string

const (
	// StrategyAppend checks the header and appends raw records.
	StrategyAppend Strategy = "append"
	// StrategyRewrite loads the whole table, concatenates and rewrites it.
	StrategyRewrite Strategy = "rewrite"
)

// ParseStrategy maps a config value to a Strategy; "" means append.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyAppend:
		return StrategyAppend, nil
	case StrategyRewrite:
		return StrategyRewrite, nil
	}
	return "", fmt.Errorf("unknown history strategy %q (want append or rewrite)", s)
}

// CSVStore keeps history in a flat CSV file with a header row.
type CSVStore struct {
	path     string
	strategy Strategy

	mu sync.Mutex
}

// NewCSVStore returns a store at path. Nothing touches disk until the first call.
func NewCSVStore(path string, strategy Strategy) *CSVStore {
	if strategy == "" {
		strategy = StrategyAppend
	}
	return &CSVStore{path: path, strategy: strategy}
}

// Path returns the CSV file location.
func (s *CSVStore) Path() string { return s.path }

func (s *CSVStore) metaPath() string { return s.path + ".meta.yaml" }

type csvMeta struct {
	LabelMethod string   `yaml:"label_method"`
	Columns     []string `yaml:"columns"`
}

func (s *CSVStore) Method(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readMethod()
}

func (s *CSVStore) readMethod() (string, error) {
	data, err := os.ReadFile(s.metaPath())
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read history meta: %w", err)
	}
	var m csvMeta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("%w: meta %s: %v", ErrCorrupt, s.metaPath(), err)
	}
	return m.LabelMethod, nil
}

func (s *CSVStore) writeMethod(method string) error {
	data, err := yaml.Marshal(csvMeta{LabelMethod: method, Columns: flights.LabeledColumns})
	if err != nil {
		return err
	}
	return os.WriteFile(s.metaPath(), data, 0o644)
}

func (s *CSVStore) Append(ctx context.Context, method string, rows []flights.LabeledRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recorded, err := s.readMethod()
	if err != nil {
		return err
	}
	if err := checkMethod(recorded, method); err != nil {
		return err
	}

	exists, err := s.exists()
	if err != nil {
		return err
	}
	switch {
	case !exists:
		err = s.replace(rows)
	case s.strategy == StrategyRewrite:
		var existing []flights.LabeledRow
		existing, _, err = s.load()
		if err == nil {
			err = s.replace(append(existing, rows...))
		}
	default:
		err = s.appendRaw(rows)
	}
	if err != nil {
		return err
	}
	if recorded == "" {
		return s.writeMethod(method)
	}
	return nil
}

func (s *CSVStore) LoadAll(ctx context.Context) ([]flights.LabeledRow, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *CSVStore) Close() error { return nil }

// exists reports whether the file holds anything; a zero-length file counts as absent.
func (s *CSVStore) exists() (bool, error) {
	fi, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat history: %w", err)
	}
	return fi.Size() > 0, nil
}

func (s *CSVStore) load() ([]flights.LabeledRow, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open history: %w", err)
	}

	rr := newRecordReader(data)
	header, err := rr.Read()
	if errors.Is(err, io.EOF) {
		return nil, false, nil
	}
	if err := checkHeader(texts(header), err); err != nil {
		return nil, false, err
	}

	rows := []flights.LabeledRow{}
	for {
		rec, err := rr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		row, err := decodeRow(rec)
		if err != nil {
			return nil, false, fmt.Errorf("%w: line %d: %v", ErrCorrupt, rr.Line(), err)
		}
		rows = append(rows, row)
	}
	return rows, true, nil
}

func readHeader(r *csv.Reader) error {
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return err
	}
	return checkHeader(header, err)
}

func checkHeader(header []string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if !slices.Equal(header, flights.LabeledColumns) {
		return fmt.Errorf("%w: got columns %v", ErrSchemaMismatch, header)
	}
	return nil
}

func (s *CSVStore) appendRaw(rows []flights.LabeledRow) error {
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if err := readHeader(r); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: missing header", ErrCorrupt)
		}
		return err
	}
	if err := endWithNewline(f); err != nil {
		return err
	}

	w := newRecordWriter(f)
	for _, row := range rows {
		if err := w.Write(encodeRow(row)); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return f.Sync()
}

// endWithNewline terminates a final record left without a line break.
func endWithNewline(f *os.File) error {
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, fi.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte{'\n'})
	return err
}

// replace writes header plus rows to a temp file and renames it over the store.
func (s *CSVStore) replace(rows []flights.LabeledRow) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create history: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := newRecordWriter(tmp)
	err = w.Write(headerCells())
	for _, row := range rows {
		if err != nil {
			break
		}
		err = w.Write(encodeRow(row))
	}
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
