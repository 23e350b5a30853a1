package history

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"skymind/internal/flights"
)

// cell is one CSV field. A null cell is written bare and empty; a non-null
// empty string is written as a quoted "" so the two read back apart, the
// same convention PostgreSQL uses for COPY ... CSV.
type cell struct {
	text string
	null bool
}

func nullCell() cell { return cell{null: true} }

func textCell(s string) cell { return cell{text: s} }

// recordWriter writes records with the quoting rules of encoding/csv, except
// that non-null empty fields are always quoted.
type recordWriter struct {
	w *bufio.Writer
}

func newRecordWriter(w io.Writer) *recordWriter {
	return &recordWriter{w: bufio.NewWriter(w)}
}

func (rw *recordWriter) Write(rec []cell) error {
	for i, c := range rec {
		if i > 0 {
			if err := rw.w.WriteByte(','); err != nil {
				return err
			}
		}
		if c.null {
			continue
		}
		if !needsQuotes(c.text) {
			if _, err := rw.w.WriteString(c.text); err != nil {
				return err
			}
			continue
		}
		if err := rw.w.WriteByte('"'); err != nil {
			return err
		}
		if _, err := rw.w.WriteString(strings.ReplaceAll(c.text, `"`, `""`)); err != nil {
			return err
		}
		if err := rw.w.WriteByte('"'); err != nil {
			return err
		}
	}
	return rw.w.WriteByte('\n')
}

func (rw *recordWriter) Flush() error { return rw.w.Flush() }

func needsQuotes(s string) bool {
	if s == "" || s == `\.` {
		return true
	}
	if strings.ContainsAny(s, ",\"\r\n") {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}

func headerCells() []cell {
	cells := make([]cell, 0, len(flights.LabeledColumns))
	for _, name := range flights.LabeledColumns {
		cells = append(cells, textCell(name))
	}
	return cells
}

// recordReader parses a whole file with encoding/csv and recovers, from the
// raw bytes, whether each empty field was quoted.
type recordReader struct {
	r          *csv.Reader
	data       []byte
	lineStarts []int
}

func newRecordReader(data []byte) *recordReader {
	starts := []int{0}
	for i, b := range data {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	return &recordReader{r: r, data: data, lineStarts: starts}
}

// Read returns the next record. Empty fields that were not quoted are null.
func (rr *recordReader) Read() ([]cell, error) {
	rec, err := rr.r.Read()
	if err != nil {
		return nil, err
	}
	cells := make([]cell, len(rec))
	for i, text := range rec {
		cells[i] = cell{text: text, null: text == "" && !rr.quoted(i)}
	}
	return cells, nil
}

func (rr *recordReader) quoted(field int) bool {
	line, col := rr.r.FieldPos(field)
	if line < 1 || line > len(rr.lineStarts) {
		return false
	}
	pos := rr.lineStarts[line-1] + col - 1
	return pos >= 0 && pos < len(rr.data) && rr.data[pos] == '"'
}

// Line reports the line the last record started on.
func (rr *recordReader) Line() int {
	line, _ := rr.r.FieldPos(0)
	return line
}

func texts(cells []cell) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.text
	}
	return out
}
