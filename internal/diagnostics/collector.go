// Package diagnostics turns the problems a compiler reports into flat,
// human-readable records.
package diagnostics

import "strings"

// TextConsumer receives the text fragments of one rendered problem.
type TextConsumer interface {
	Append(text string)
}

// Problem is a compiler-reported issue that knows how to render itself.
type Problem interface {
	Render(c TextConsumer)
}

// DefaultTextConsumer concatenates everything appended to it.
type DefaultTextConsumer struct {
	b strings.Builder
}

func (c *DefaultTextConsumer) Append(text string) { c.b.WriteString(text) }
func (c *DefaultTextConsumer) Text() string       { return c.b.String() }

// Diagnostic is one rendered problem.
type Diagnostic struct {
	Message string `json:"message"`
}

// Collect renders each problem with a fresh consumer and returns the results
// in reporting order. Severity is not interpreted. A nil entry carries no
// text to render and is skipped, so the result may be shorter than problems.
func Collect(problems []Problem) []Diagnostic {
	out := make([]Diagnostic, 0, len(problems))
	for _, p := range problems {
		if p == nil {
			continue
		}
		var cons DefaultTextConsumer
		p.Render(&cons)
		out = append(out, Diagnostic{Message: cons.Text()})
	}
	return out
}
