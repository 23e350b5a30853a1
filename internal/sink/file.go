package sink

import (
	"os"
)

// FileWriter appends JSON lines to a file. Both record kinds share the file
// and are told apart by their kind field.
type FileWriter struct {
	*JSONWriter
	f *os.File
}

// NewFileWriter opens path for appending, creating it if needed.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWriter{JSONWriter: NewJSONWriter(f), f: f}, nil
}

func (w *FileWriter) Close() error { return w.f.Close() }
