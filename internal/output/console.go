package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"teavmc/internal/diagnostics"
)

// ProblemsHeader precedes the diagnostics in the text report.
const ProblemsHeader = "Problems:"

type ConsoleSink struct {
	writer io.Writer
	format string // "text", "ndjson"
	mu     sync.Mutex

	headerWritten bool
}

func NewConsoleSink(w io.Writer, format string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}
	return &ConsoleSink{writer: w, format: format}
}

func (s *ConsoleSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(v)
}

func (s *ConsoleSink) writeLocked(v any) error {
	switch s.format {
	case "ndjson":
		encoder := json.NewEncoder(s.writer)
		switch t := v.(type) {
		case Event:
			if err := encoder.Encode(t); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		case diagnostics.Diagnostic:
			if err := encoder.Encode(eventFromDiagnostic(t)); err != nil {
				return err
			}
			return flushIfPossible(s.writer)
		default:
			return nil
		}
	case "text":
		d, ok := v.(diagnostics.Diagnostic)
		if !ok {
			// Lifecycle events are not part of the text report.
			return nil
		}
		if !s.headerWritten {
			if _, err := color.New(color.Bold).Fprintln(s.writer, ProblemsHeader); err != nil {
				return err
			}
			s.headerWritten = true
		}
		if _, err := fmt.Fprintln(s.writer, d.Message); err != nil {
			return err
		}
		return flushIfPossible(s.writer)
	default:
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
}

func (s *ConsoleSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format != "text" && s.format != "ndjson" {
		return fmt.Errorf("unsupported console format: %s", s.format)
	}
	return flushIfPossible(s.writer)
}

type flusher interface {
	Flush() error
}

// flushIfPossible flushes buffered writers (bufio.Writer and similar) so
// report lines appear as soon as they are written.
func flushIfPossible(w io.Writer) error {
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
