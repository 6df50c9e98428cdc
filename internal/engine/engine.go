package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"teavmc/internal/classpath"
	"teavmc/internal/compiler"
	"teavmc/internal/config"
	"teavmc/internal/diagnostics"
	"teavmc/internal/log"
	"teavmc/internal/output"
	"teavmc/internal/sources"
)

var (
	// ErrMissingMainClass is returned before any work is done when the entry
	// point is empty or blank.
	ErrMissingMainClass = errors.New("main class is required")

	// ErrGatherClasspath wraps failures to build the execution context.
	ErrGatherClasspath = errors.New("gather classpath information")
)

// Exit code contract:
// 0 = compilation completed (diagnostics may have been reported)
// 1 = diagnostics reported and --fail-on-problems is set
// 2 = the compiler invocation failed
// 3 = configuration or execution context error (compiler did not run)
const (
	ExitOK         = 0
	ExitProblems   = 1
	ExitInvocation = 2
	ExitConfig     = 3
)

// Result describes one compilation run.
type Result struct {
	RunID       string
	State       State
	Diagnostics []diagnostics.Diagnostic
	Duration    time.Duration
}

type Engine struct {
	Tool compiler.Tool

	// Host is the parent of every execution context; it stands for the
	// compiler distribution classpath. May be nil.
	Host classpath.Loader

	Log    logrus.FieldLogger
	Clock  clockwork.Clock
	Stdout io.Writer

	// newLoader is a test seam for execution context construction.
	// If nil, Engine builds a classpath.URLLoader.
	newLoader func(dependencies, artifacts []string, parent classpath.Loader) (classpath.Loader, error)
}

func NewEngine(tool compiler.Tool, host classpath.Loader) *Engine {
	return &Engine{
		Tool:  tool,
		Host:  host,
		Log:   log.Logger,
		Clock: clockwork.NewRealClock(),
	}
}

func (e *Engine) logger() logrus.FieldLogger {
	if e.Log == nil {
		return log.Logger
	}
	return e.Log
}

func (e *Engine) clock() clockwork.Clock {
	if e.Clock == nil {
		return clockwork.NewRealClock()
	}
	return e.Clock
}

func (e *Engine) buildLoader(dependencies, artifacts []string) (classpath.Loader, error) {
	if e.newLoader != nil {
		return e.newLoader(dependencies, artifacts, e.Host)
	}
	l, err := classpath.NewURLLoader(dependencies, artifacts, e.Host)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Compile runs one compilation: it resolves the source providers, builds the
// execution context, invokes the tool and writes every collected diagnostic
// to sink in reporting order. The execution context is released exactly once
// on every path out of Compile. Errors from the tool are returned unchanged.
func (e *Engine) Compile(ctx context.Context, cfg *config.Config, sink output.Sink) (res *Result, err error) {
	if e.Tool == nil {
		return nil, errors.New("engine has no compiler tool")
	}

	start := e.clock().Now()
	res = &Result{RunID: uuid.NewString(), State: StateConfiguring}
	logger := e.logger().WithField("run_id", res.RunID)

	defer func() {
		res.Duration = e.clock().Since(start)
		if r := recover(); r != nil {
			res.State = StateFailed
			panic(r)
		}
		switch {
		case err != nil:
			res.State = StateFailed
		case res.State == StateCleanup:
			res.State = StateDone
		}
	}()

	mainClass := strings.TrimSpace(cfg.Project.MainClass)
	emit(logger, sink, output.Event{Type: output.EventRunStarted, RunID: res.RunID, MainClass: mainClass})
	if mainClass == "" {
		return res, ErrMissingMainClass
	}

	cc := cfg.CompilerConfig()
	cc.MainClass = mainClass
	cc.Sources = append(sources.Resolve(cfg.Project.SourceDirs), sources.Resolve(cfg.Project.TeaVMSources)...)
	logger.WithField("sources", len(cc.Sources)).Debug("resolved source providers")

	if cc.CacheDirectory != "" {
		if mkErr := os.MkdirAll(cc.CacheDirectory, 0o755); mkErr != nil {
			logger.WithError(mkErr).WithField("dir", cc.CacheDirectory).Warn("could not create cache directory")
		}
	}

	res.State = StateContextBuilding
	loader, err := e.buildLoader(cfg.Classpath.Runtime, cfg.Classpath.Artifacts)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrGatherClasspath, err)
	}
	defer func() {
		if err == nil {
			res.State = StateCleanup
		}
		release(logger, loader)
	}()

	locs := loader.URLs()
	urls := make([]string, 0, len(locs))
	for _, loc := range locs {
		urls = append(urls, loc.URL)
	}
	logger.WithField("urls", urls).Info("using classpath URLs")

	resource := strings.ReplaceAll(mainClass, ".", "/") + ".class"
	if loc, ok := loader.Find(resource); ok {
		logger.WithField("location", loc.Path).Debug("found main class")
	} else {
		logger.WithField("main_class", mainClass).Warn("main class not found on the project classpath")
	}

	res.State = StateInvoking
	logger.WithFields(logrus.Fields{
		"main_class": mainClass,
		"target":     cc.TargetDirectory,
	}).Info("compiling")
	if err = e.Tool.Generate(ctx, cc, loader); err != nil {
		return res, err
	}

	res.State = StateCollecting
	res.Diagnostics = diagnostics.Collect(e.Tool.Problems())
	for _, d := range res.Diagnostics {
		emit(logger, sink, d)
	}
	return res, nil
}

// release closes the execution context. A close failure never changes the
// outcome of the run.
func release(logger logrus.FieldLogger, loader classpath.Loader) {
	if err := loader.Close(); err != nil {
		logger.WithError(err).Warn("failed to release execution context")
	}
}

func emit(logger logrus.FieldLogger, sink output.Sink, v any) {
	if sink == nil {
		return
	}
	if err := sink.Write(v); err != nil {
		logger.WithError(err).Debug("output sink write failed")
	}
}

func setupOutputManager(cfg *config.Config, stdout io.Writer) (*output.Manager, error) {
	outMgr := output.NewManager()

	if err := outMgr.AddSink(output.NewConsoleSink(stdout, cfg.Output.ConsoleFormat)); err != nil {
		outMgr.Close()
		return nil, err
	}

	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

func exitCodeForRun(err error, problems int, failOnProblems bool) int {
	switch {
	case errors.Is(err, ErrMissingMainClass), errors.Is(err, ErrGatherClasspath):
		return ExitConfig
	case err != nil:
		return ExitInvocation
	case problems > 0 && failOnProblems:
		return ExitProblems
	default:
		return ExitOK
	}
}

// Run compiles once with the configured outputs and returns the process exit
// code.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	logger := e.logger()

	outMgr, err := setupOutputManager(cfg, e.Stdout)
	if err != nil {
		logger.WithError(err).Error("error creating output sinks")
		return ExitConfig
	}
	defer func() {
		if err := outMgr.Close(); err != nil {
			logger.WithError(err).Warn("error closing output sinks")
		}
	}()

	res, err := e.Compile(ctx, cfg, outMgr)
	if res == nil {
		logger.WithError(err).Error("compilation did not start")
		return ExitConfig
	}

	code := exitCodeForRun(err, len(res.Diagnostics), cfg.Output.FailOnProblems)
	finished := output.Event{
		Type:       output.EventRunFinished,
		RunID:      res.RunID,
		Status:     res.State.String(),
		Problems:   len(res.Diagnostics),
		DurationMS: res.Duration.Milliseconds(),
		ExitCode:   code,
	}
	if err != nil {
		finished.Error = err.Error()
		logger.WithError(err).WithField("run_id", res.RunID).Error("compilation failed")
	} else {
		logger.WithFields(logrus.Fields{
			"run_id":   res.RunID,
			"problems": len(res.Diagnostics),
			"duration": res.Duration,
		}).Info("compilation finished")
	}
	_ = outMgr.Write(finished)
	return code
}
