package compiler

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"teavmc/internal/diagnostics"
)

var problemHeader = regexp.MustCompile(`^\[?(ERROR|WARNING)\]?:?\s+(.*)$`)

// problem is one runner-reported issue. Continuation lines (indented lines
// following the header, usually call locations) are kept with it.
type problem struct {
	Severity string
	Lines    []string
}

func (p *problem) Render(c diagnostics.TextConsumer) {
	c.Append(p.Severity)
	c.Append(": ")
	c.Append(strings.Join(p.Lines, "; "))
}

// parseProblems extracts problems from runner output in the order printed.
// Lines have no length limit. Other lines go to the debug log.
func parseProblems(output []byte, log logrus.FieldLogger) []diagnostics.Problem {
	var (
		out     []diagnostics.Problem
		current *problem
	)
	r := bufio.NewReader(bytes.NewReader(output))
	for {
		raw, err := r.ReadString('\n')
		if raw != "" {
			line := strings.TrimRight(raw, "\r\n")
			current = parseLine(line, current, &out, log)
		}
		if err != nil {
			// bytes.Reader only ever ends with io.EOF.
			break
		}
	}
	return out
}

func parseLine(line string, current *problem, out *[]diagnostics.Problem, log logrus.FieldLogger) *problem {
	if m := problemHeader.FindStringSubmatch(line); m != nil {
		p := &problem{Severity: m[1], Lines: []string{strings.TrimSpace(m[2])}}
		*out = append(*out, p)
		return p
	}
	trimmed := strings.TrimSpace(line)
	if current != nil && trimmed != "" && (line[0] == ' ' || line[0] == '\t') {
		current.Lines = append(current.Lines, trimmed)
		return current
	}
	if trimmed != "" && log != nil {
		log.Debug(trimmed)
	}
	return nil
}
