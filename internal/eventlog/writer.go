// Package eventlog records the event stream as JSON lines and plays it back.
package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"modelardb-sim/internal/events"
)

// Writer receives encoded events.
type Writer interface {
	Write(events.Envelope) error
}

// FileWriter writes events to a JSONL file.
type FileWriter struct {
	file *os.File
	enc  *json.Encoder
}

// NewFileWriter creates or truncates path.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileWriter{file: f, enc: json.NewEncoder(f)}, nil
}

// Write appends one event line.
func (f *FileWriter) Write(e events.Envelope) error {
	return f.enc.Encode(e)
}

// Close closes the file.
func (f *FileWriter) Close() error {
	return f.file.Close()
}

// JSONStdoutWriter prints events as JSON lines.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// Write prints one event.
func (w *JSONStdoutWriter) Write(e events.Envelope) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// MultiWriter fans events out to several writers. Every writer sees every
// event even if an earlier one fails.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a MultiWriter.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Write sends an event to all writers.
func (mw *MultiWriter) Write(e events.Envelope) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Write(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
