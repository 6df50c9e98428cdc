package output

import "teavmc/internal/diagnostics"

// Event types, in the order a run emits them.
const (
	EventRunStarted  = "run.started"
	EventProblem     = "problem"
	EventRunFinished = "run.finished"
)

// Event is a lifecycle record for NDJSON streaming output.
//
// A run emits run.started, one problem event per diagnostic in reporting
// order, then run.finished.
type Event struct {
	Type      string `json:"type"`
	RunID     string `json:"run_id,omitempty"`
	MainClass string `json:"main_class,omitempty"`
	*diagnostics.Diagnostic
	Status     string `json:"status,omitempty"`
	Problems   int    `json:"problems,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	ExitCode   int    `json:"exit_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

func eventFromDiagnostic(d diagnostics.Diagnostic) Event {
	return Event{Type: EventProblem, Diagnostic: &d}
}
