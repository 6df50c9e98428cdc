package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"teavmc/internal/diagnostics"
)

// Report is the aggregate JSON document written by a json FileSink.
type Report struct {
	RunID      string                   `json:"run_id"`
	MainClass  string                   `json:"main_class"`
	Status     string                   `json:"status"`
	Problems   []diagnostics.Diagnostic `json:"problems"`
	DurationMS int64                    `json:"duration_ms"`
	ExitCode   int                      `json:"exit_code"`
	Error      string                   `json:"error,omitempty"`
}

type FileSink struct {
	path   string
	format string
	file   *os.File
	mu     sync.Mutex
	report Report
}

func NewFileSink(path string, format string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("output path required")
	}

	if format == "" {
		ext := strings.ToLower(filepath.Ext(path))
		switch ext {
		case ".json":
			format = "json"
		case ".ndjson", ".jsonl":
			format = "ndjson"
		default:
			return nil, fmt.Errorf("cannot infer output format from file extension %q", ext)
		}
	}

	if format != "json" && format != "ndjson" {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	return &FileSink{
		path:   path,
		format: format,
		file:   f,
		report: Report{Problems: []diagnostics.Diagnostic{}},
	}, nil
}

func (s *FileSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.format {
	case "json":
		switch t := v.(type) {
		case Event:
			switch t.Type {
			case EventRunStarted:
				s.report.RunID = t.RunID
				s.report.MainClass = t.MainClass
			case EventRunFinished:
				s.report.Status = t.Status
				s.report.DurationMS = t.DurationMS
				s.report.ExitCode = t.ExitCode
				s.report.Error = t.Error
			}
		case diagnostics.Diagnostic:
			s.report.Problems = append(s.report.Problems, t)
		}
		return nil
	case "ndjson":
		encoder := json.NewEncoder(s.file)
		switch t := v.(type) {
		case Event:
			return encoder.Encode(t)
		case diagnostics.Diagnostic:
			return encoder.Encode(eventFromDiagnostic(t))
		default:
			return nil
		}
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.format == "json" {
		encoder := json.NewEncoder(s.file)
		encoder.SetIndent("", "  ")
		err = encoder.Encode(s.report)
	}

	if closeErr := s.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
