package compiler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"teavmc/internal/classpath"
	"teavmc/internal/diagnostics"
)

// JavaTool runs the TeaVM runner in a local JVM.
type JavaTool struct {
	// Java is the java executable; "java" resolves through PATH.
	Java string
	Log  logrus.FieldLogger

	problems []diagnostics.Problem
}

var _ Tool = (*JavaTool)(nil)

func NewJavaTool(java string, log logrus.FieldLogger) *JavaTool {
	if java == "" {
		java = "java"
	}
	return &JavaTool{Java: java, Log: log}
}

func (t *JavaTool) Generate(ctx context.Context, cfg Config, loader classpath.Loader) error {
	t.problems = nil

	if err := os.MkdirAll(cfg.TargetDirectory, 0o755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	cp := strings.Join(loader.ClassPath(), string(os.PathListSeparator))
	args := append([]string{"-cp", cp, RunnerClass}, cfg.Args()...)
	if t.Log != nil {
		t.Log.WithField("java", t.Java).Debugf("Running %s %s", RunnerClass, strings.Join(cfg.Args(), " "))
	}

	cmd := exec.CommandContext(ctx, t.Java, args...)
	out, runErr := cmd.CombinedOutput()

	t.problems = parseProblems(out, t.Log)
	return runnerError(ctx, runErr, t.problems, out)
}

func (t *JavaTool) Problems() []diagnostics.Problem {
	return t.problems
}
