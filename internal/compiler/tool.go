// Package compiler is the boundary to the external TeaVM compiler.
//
// Tools run the TeaVM command-line runner with the project classpath and
// pass the compilation settings as runner options:
//
//	--targetdir <dir> --targetfile <name> [--cachedir <dir>]
//	[--minify] [--incremental] [--sourcemaps] [--copy-sources]
//	--optimization=<simple|advanced|full>
//	--sourcedir=<dir>... --sourcejar=<jar>...
//	<main class>
//
// The runner reports problems on its output as ERROR/WARNING headed lines.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"teavmc/internal/classpath"
	"teavmc/internal/diagnostics"
	"teavmc/internal/sources"
)

// RunnerClass is the entry point of the TeaVM command-line runner.
const RunnerClass = "org.teavm.cli.TeaVMRunner"

// ErrRunnerFailed is returned when the runner exits unsuccessfully without
// reporting any problem.
var ErrRunnerFailed = errors.New("teavm runner failed")

type OptimizationLevel string

const (
	OptimizationSimple   OptimizationLevel = "simple"
	OptimizationAdvanced OptimizationLevel = "advanced"
	OptimizationFull     OptimizationLevel = "full"
)

// ParseOptimizationLevel accepts a level name, case-insensitively.
func ParseOptimizationLevel(raw string) (OptimizationLevel, error) {
	switch lvl := OptimizationLevel(strings.ToLower(strings.TrimSpace(raw))); lvl {
	case OptimizationSimple, OptimizationAdvanced, OptimizationFull:
		return lvl, nil
	default:
		return "", fmt.Errorf("unsupported optimization level: %s (must be one of: simple, advanced, full)", raw)
	}
}

// Config is the complete description of one compilation run.
type Config struct {
	MainClass       string
	TargetDirectory string
	TargetFileName  string
	CacheDirectory  string

	Obfuscate    bool
	Incremental  bool
	CopySources  bool
	SourceMaps   bool
	Optimization OptimizationLevel

	Sources []sources.Provider
}

// Args renders the runner options for c, main class last.
func (c Config) Args() []string {
	args := []string{
		"--targetdir", c.TargetDirectory,
		"--targetfile", c.TargetFileName,
	}
	if c.CacheDirectory != "" {
		args = append(args, "--cachedir", c.CacheDirectory)
	}
	if c.Obfuscate {
		args = append(args, "--minify")
	}
	if c.Incremental {
		args = append(args, "--incremental")
	}
	if c.SourceMaps {
		args = append(args, "--sourcemaps")
	}
	if c.CopySources {
		args = append(args, "--copy-sources")
	}
	if c.Optimization != "" {
		args = append(args, "--optimization="+string(c.Optimization))
	}
	for _, p := range c.Sources {
		switch p.Kind {
		case sources.KindArchive:
			args = append(args, "--sourcejar="+p.Path)
		default:
			args = append(args, "--sourcedir="+p.Path)
		}
	}
	return append(args, c.MainClass)
}

// Tool runs one compilation. A Tool is used for a single run: Problems
// reflects the most recent Generate call.
type Tool interface {
	Generate(ctx context.Context, cfg Config, loader classpath.Loader) error
	Problems() []diagnostics.Problem
}

// runnerError decides whether an unsuccessful runner exit is an invocation
// failure. Reported problems mean the compilation completed.
func runnerError(ctx context.Context, runErr error, problems []diagnostics.Problem, output []byte) error {
	if runErr == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if len(problems) > 0 {
		return nil
	}
	return fmt.Errorf("%w: %v: %s", ErrRunnerFailed, runErr, tail(output, 20))
}

func tail(output []byte, n int) string {
	lines := strings.Split(strings.TrimRight(string(output), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
