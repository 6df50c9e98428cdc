package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"teavmc/internal/classpath"
	"teavmc/internal/compiler"
	"teavmc/internal/config"
	"teavmc/internal/diagnostics"
	"teavmc/internal/output"
	"teavmc/internal/sources"
)

type textProblem string

func (p textProblem) Render(c diagnostics.TextConsumer) { c.Append(string(p)) }

type fakeTool struct {
	generate func(ctx context.Context, cfg compiler.Config, loader classpath.Loader) error
	problems []diagnostics.Problem

	calls int
	got   compiler.Config
}

func (f *fakeTool) Generate(ctx context.Context, cfg compiler.Config, loader classpath.Loader) error {
	f.calls++
	f.got = cfg
	if f.generate != nil {
		return f.generate(ctx, cfg, loader)
	}
	return nil
}

func (f *fakeTool) Problems() []diagnostics.Problem { return f.problems }

type spyLoader struct {
	urls     []classpath.Location
	closes   int
	closeErr error
}

func (l *spyLoader) URLs() []classpath.Location             { return l.urls }
func (l *spyLoader) ClassPath() []string                    { return nil }
func (l *spyLoader) Find(string) (classpath.Location, bool) { return classpath.Location{}, false }
func (l *spyLoader) Parent() classpath.Loader               { return nil }
func (l *spyLoader) Close() error                           { l.closes++; return l.closeErr }

type recordingSink struct {
	values []any
}

func (s *recordingSink) Write(v any) error { s.values = append(s.values, v); return nil }
func (s *recordingSink) Close() error      { return nil }

func (s *recordingSink) diagnostics() []string {
	var out []string
	for _, v := range s.values {
		if d, ok := v.(diagnostics.Diagnostic); ok {
			out = append(out, d.Message)
		}
	}
	return out
}

type loaderCall struct {
	dependencies []string
	artifacts    []string
	parent       classpath.Loader
}

func newTestEngine(tool compiler.Tool, spy *spyLoader, calls *[]loaderCall) (*Engine, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	e := &Engine{
		Tool:  tool,
		Log:   logger,
		Clock: clockwork.NewFakeClock(),
	}
	e.newLoader = func(dependencies, artifacts []string, parent classpath.Loader) (classpath.Loader, error) {
		if calls != nil {
			*calls = append(*calls, loaderCall{dependencies: dependencies, artifacts: artifacts, parent: parent})
		}
		return spy, nil
	}
	return e, hook
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.Project.MainClass = "com.example.Main"
	cfg.Project.BuildDir = filepath.Join(t.TempDir(), "build")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	return cfg
}

func TestCompile_MissingMainClass(t *testing.T) {
	for _, mainClass := range []string{"", "   "} {
		tool := &fakeTool{}
		spy := &spyLoader{}
		var calls []loaderCall
		e, _ := newTestEngine(tool, spy, &calls)

		cfg := newTestConfig(t)
		cfg.Project.MainClass = mainClass

		res, err := e.Compile(context.Background(), cfg, nil)
		if !errors.Is(err, ErrMissingMainClass) {
			t.Fatalf("expected ErrMissingMainClass, got %v", err)
		}
		if len(calls) != 0 || spy.closes != 0 || tool.calls != 0 {
			t.Fatalf("expected no work: loaders=%d closes=%d generate=%d", len(calls), spy.closes, tool.calls)
		}
		if res.State != StateFailed {
			t.Fatalf("expected failed state, got %s", res.State)
		}
	}
}

func TestCompile_Success(t *testing.T) {
	tmp := t.TempDir()
	srcDir := filepath.Join(tmp, "src")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	srcJar := filepath.Join(tmp, "lib-sources.jar")
	if err := os.WriteFile(srcJar, []byte("jar"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	tool := &fakeTool{}
	spy := &spyLoader{}
	var calls []loaderCall
	e, _ := newTestEngine(tool, spy, &calls)
	host := &spyLoader{}
	e.Host = host

	cfg := newTestConfig(t)
	cfg.Project.SourceDirs = []string{srcDir}
	cfg.Project.TeaVMSources = []string{srcJar}
	cfg.Classpath.Runtime = []string{"a.jar", "b.jar"}
	cfg.Classpath.Artifacts = []string{"app.jar"}

	res, err := e.Compile(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if res.State != StateDone {
		t.Fatalf("expected done, got %s", res.State)
	}
	if res.RunID == "" {
		t.Fatalf("expected run id")
	}
	if spy.closes != 1 {
		t.Fatalf("expected exactly one release, got %d", spy.closes)
	}
	if host.closes != 0 {
		t.Fatalf("host loader must not be released by a run")
	}

	if len(calls) != 1 {
		t.Fatalf("expected one loader, got %d", len(calls))
	}
	if strings.Join(calls[0].dependencies, ",") != "a.jar,b.jar" || strings.Join(calls[0].artifacts, ",") != "app.jar" {
		t.Fatalf("unexpected loader inputs: %+v", calls[0])
	}
	if calls[0].parent != classpath.Loader(host) {
		t.Fatalf("expected host loader as parent")
	}

	want := []sources.Provider{sources.Directory(srcDir), sources.Archive(srcJar)}
	if len(tool.got.Sources) != len(want) {
		t.Fatalf("unexpected sources: %+v", tool.got.Sources)
	}
	for i := range want {
		if tool.got.Sources[i] != want[i] {
			t.Fatalf("source %d: got %+v want %+v", i, tool.got.Sources[i], want[i])
		}
	}
	if tool.got.MainClass != "com.example.Main" || tool.got.Optimization != compiler.OptimizationFull {
		t.Fatalf("unexpected compiler config: %+v", tool.got)
	}
	if _, err := os.Stat(cfg.Output.CacheDirectory); err != nil {
		t.Fatalf("expected cache directory to be created: %v", err)
	}
}

func TestCompile_TrimsMainClass(t *testing.T) {
	tool := &fakeTool{}
	e, _ := newTestEngine(tool, &spyLoader{}, nil)
	cfg := newTestConfig(t)
	cfg.Project.MainClass = "  com.example.Main\t"

	if _, err := e.Compile(context.Background(), cfg, nil); err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if tool.got.MainClass != "com.example.Main" {
		t.Fatalf("got main class %q", tool.got.MainClass)
	}
}

func TestCompile_ToolErrorPropagatesUnchanged(t *testing.T) {
	sentinel := errors.New("compiler exploded")
	tool := &fakeTool{
		generate: func(context.Context, compiler.Config, classpath.Loader) error { return sentinel },
		problems: []diagnostics.Problem{textProblem("ERROR: ignored")},
	}
	spy := &spyLoader{}
	e, _ := newTestEngine(tool, spy, nil)
	sink := &recordingSink{}

	res, err := e.Compile(context.Background(), newTestConfig(t), sink)
	if err != sentinel {
		t.Fatalf("expected the tool error unchanged, got %v", err)
	}
	if spy.closes != 1 {
		t.Fatalf("expected exactly one release, got %d", spy.closes)
	}
	if res.State != StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	if got := sink.diagnostics(); len(got) != 0 {
		t.Fatalf("expected no diagnostics after a failed invocation, got %v", got)
	}
}

func TestCompile_ReleasesOnPanic(t *testing.T) {
	tool := &fakeTool{
		generate: func(context.Context, compiler.Config, classpath.Loader) error { panic("boom") },
	}
	spy := &spyLoader{}
	e, _ := newTestEngine(tool, spy, nil)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_, _ = e.Compile(context.Background(), newTestConfig(t), nil)
	}()

	if spy.closes != 1 {
		t.Fatalf("expected exactly one release, got %d", spy.closes)
	}
}

func TestCompile_ReleaseErrorIsSuppressed(t *testing.T) {
	tool := &fakeTool{problems: []diagnostics.Problem{textProblem("WARNING: w")}}
	spy := &spyLoader{closeErr: errors.New("close failed")}
	e, hook := newTestEngine(tool, spy, nil)

	res, err := e.Compile(context.Background(), newTestConfig(t), nil)
	if err != nil {
		t.Fatalf("expected release error to be suppressed, got %v", err)
	}
	if res.State != StateDone || len(res.Diagnostics) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "release execution context") {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected a warning for the release failure")
	}
}

func TestCompile_LoaderFailure(t *testing.T) {
	tool := &fakeTool{}
	e, _ := newTestEngine(tool, nil, nil)
	cause := errors.New("bad classpath")
	e.newLoader = func([]string, []string, classpath.Loader) (classpath.Loader, error) {
		return nil, cause
	}

	res, err := e.Compile(context.Background(), newTestConfig(t), nil)
	if !errors.Is(err, ErrGatherClasspath) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped classpath error, got %v", err)
	}
	if !strings.Contains(err.Error(), "gather classpath information") {
		t.Fatalf("unexpected message: %v", err)
	}
	if tool.calls != 0 {
		t.Fatalf("tool must not run without an execution context")
	}
	if res.State != StateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
}

func TestCompile_MalformedClasspathEntry(t *testing.T) {
	tool := &fakeTool{}
	logger, _ := logtest.NewNullLogger()
	e := &Engine{Tool: tool, Log: logger}

	cfg := newTestConfig(t)
	cfg.Classpath.Runtime = []string{"ok.jar", ""}

	_, err := e.Compile(context.Background(), cfg, nil)
	if !errors.Is(err, classpath.ErrMalformedLocation) || !errors.Is(err, ErrGatherClasspath) {
		t.Fatalf("expected malformed location error, got %v", err)
	}
	if tool.calls != 0 {
		t.Fatalf("tool must not run")
	}
}

func TestCompile_LogsClasspathURLs(t *testing.T) {
	spy := &spyLoader{urls: []classpath.Location{
		{Path: "/deps/a.jar", URL: "file:///deps/a.jar"},
		{Path: "/build/classes", URL: "file:///build/classes"},
	}}
	e, hook := newTestEngine(&fakeTool{}, spy, nil)
	if _, err := e.Compile(context.Background(), newTestConfig(t), nil); err != nil {
		t.Fatalf("Compile error: %v", err)
	}

	for _, entry := range hook.AllEntries() {
		if entry.Message != "using classpath URLs" {
			continue
		}
		if entry.Level != logrus.InfoLevel {
			t.Fatalf("expected info level, got %s", entry.Level)
		}
		urls, _ := entry.Data["urls"].([]string)
		if strings.Join(urls, ",") != "file:///deps/a.jar,file:///build/classes" {
			t.Fatalf("unexpected urls: %v", entry.Data["urls"])
		}
		return
	}
	t.Fatalf("expected a classpath URLs log entry")
}

func TestCompile_WarnsWhenMainClassMissingFromClasspath(t *testing.T) {
	e, hook := newTestEngine(&fakeTool{}, &spyLoader{}, nil)
	if _, err := e.Compile(context.Background(), newTestConfig(t), nil); err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "main class not found") {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("expected a warning for the missing main class")
	}
}

func TestCompile_DiagnosticsInOrder(t *testing.T) {
	msgs := []string{"ERROR: one", "WARNING: two", "ERROR: three"}
	var problems []diagnostics.Problem
	for _, m := range msgs {
		problems = append(problems, textProblem(m))
	}
	e, _ := newTestEngine(&fakeTool{problems: problems}, &spyLoader{}, nil)
	sink := &recordingSink{}

	res, err := e.Compile(context.Background(), newTestConfig(t), sink)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if got := sink.diagnostics(); strings.Join(got, "|") != strings.Join(msgs, "|") {
		t.Fatalf("got %v want %v", got, msgs)
	}
	if len(res.Diagnostics) != len(msgs) {
		t.Fatalf("expected %d diagnostics, got %d", len(msgs), len(res.Diagnostics))
	}
	ev, ok := sink.values[0].(output.Event)
	if !ok || ev.Type != output.EventRunStarted || ev.RunID != res.RunID {
		t.Fatalf("expected run.started first, got %#v", sink.values[0])
	}
}

func TestCompile_DurationUsesClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tool := &fakeTool{
		generate: func(context.Context, compiler.Config, classpath.Loader) error {
			clock.Advance(1500 * time.Millisecond)
			return nil
		},
	}
	e, _ := newTestEngine(tool, &spyLoader{}, nil)
	e.Clock = clock

	res, err := e.Compile(context.Background(), newTestConfig(t), nil)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	if res.Duration != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %v", res.Duration)
	}
}

func TestRun_ExitCodes(t *testing.T) {
	tests := []struct {
		name           string
		mainClass      string
		problems       []string
		generateErr    error
		loaderErr      error
		failOnProblems bool
		want           int
		wantStdout     string
	}{
		{name: "clean", mainClass: "com.example.Main", want: ExitOK},
		{name: "problems reported", mainClass: "com.example.Main", problems: []string{"ERROR: a", "WARNING: b"}, want: ExitOK, wantStdout: "Problems:\nERROR: a\nWARNING: b\n"},
		{name: "fail on problems", mainClass: "com.example.Main", problems: []string{"ERROR: a"}, failOnProblems: true, want: ExitProblems, wantStdout: "Problems:\nERROR: a\n"},
		{name: "fail on problems without problems", mainClass: "com.example.Main", failOnProblems: true, want: ExitOK},
		{name: "invocation error", mainClass: "com.example.Main", generateErr: compiler.ErrRunnerFailed, want: ExitInvocation},
		{name: "missing main class", want: ExitConfig},
		{name: "loader error", mainClass: "com.example.Main", loaderErr: errors.New("nope"), want: ExitConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var problems []diagnostics.Problem
			for _, p := range tt.problems {
				problems = append(problems, textProblem(p))
			}
			tool := &fakeTool{
				problems: problems,
				generate: func(context.Context, compiler.Config, classpath.Loader) error { return tt.generateErr },
			}
			e, _ := newTestEngine(tool, &spyLoader{}, nil)
			if tt.loaderErr != nil {
				e.newLoader = func([]string, []string, classpath.Loader) (classpath.Loader, error) { return nil, tt.loaderErr }
			}
			var stdout bytes.Buffer
			e.Stdout = &stdout

			cfg := newTestConfig(t)
			cfg.Project.MainClass = tt.mainClass
			cfg.Output.FailOnProblems = tt.failOnProblems

			if got := e.Run(context.Background(), cfg); got != tt.want {
				t.Fatalf("exit code: got %d want %d", got, tt.want)
			}
			if stdout.String() != tt.wantStdout {
				t.Fatalf("stdout: got %q want %q", stdout.String(), tt.wantStdout)
			}
		})
	}
}

func TestRun_WritesJSONReport(t *testing.T) {
	tool := &fakeTool{problems: []diagnostics.Problem{textProblem("WARNING: unused")}}
	e, _ := newTestEngine(tool, &spyLoader{}, nil)
	e.Stdout = &bytes.Buffer{}

	cfg := newTestConfig(t)
	cfg.Output.Out = filepath.Join(t.TempDir(), "report.json")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	if code := e.Run(context.Background(), cfg); code != ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}

	raw, err := os.ReadFile(cfg.Output.Out)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	var report output.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, raw)
	}
	if report.RunID == "" || report.MainClass != "com.example.Main" || report.Status != "done" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Problems) != 1 || report.Problems[0].Message != "WARNING: unused" {
		t.Fatalf("unexpected problems: %+v", report.Problems)
	}
}

func TestRun_NDJSONConsole(t *testing.T) {
	tool := &fakeTool{problems: []diagnostics.Problem{textProblem("ERROR: a")}}
	e, _ := newTestEngine(tool, &spyLoader{}, nil)
	var stdout bytes.Buffer
	e.Stdout = &stdout

	cfg := newTestConfig(t)
	cfg.Output.ConsoleFormat = "ndjson"

	if code := e.Run(context.Background(), cfg); code != ExitOK {
		t.Fatalf("expected exit 0, got %d", code)
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 events, got %d: %s", len(lines), stdout.String())
	}
	var types []string
	for _, line := range lines {
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		types = append(types, ev["type"].(string))
	}
	if strings.Join(types, ",") != "run.started,problem,run.finished" {
		t.Fatalf("unexpected event order: %v", types)
	}
}

func TestRun_EndToEndWithJavaStub(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test uses a shell script java stub")
	}
	tests := []struct {
		name       string
		output     string
		wantStdout string
	}{
		{name: "no problems", wantStdout: ""},
		{name: "warning", output: "WARNING: method never called", wantStdout: "Problems:\nWARNING: method never called\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := t.TempDir()
			java := filepath.Join(tmp, "java")
			script := `#!/bin/sh
dir=""
file=""
while [ $# -gt 0 ]; do
  case "$1" in
    --targetdir) dir="$2"; shift ;;
    --targetfile) file="$2"; shift ;;
  esac
  shift
done
printf 'main();\n' > "$dir/$file"
`
			if tt.output != "" {
				script += "echo \"" + tt.output + "\"\n"
			}
			if err := os.WriteFile(java, []byte(script), 0o755); err != nil {
				t.Fatalf("WriteFile java stub failed: %v", err)
			}

			logger, _ := logtest.NewNullLogger()
			e := NewEngine(compiler.NewJavaTool(java, logger), nil)
			e.Log = logger
			var stdout bytes.Buffer
			e.Stdout = &stdout

			cfg := newTestConfig(t)
			if code := e.Run(context.Background(), cfg); code != ExitOK {
				t.Fatalf("expected exit 0, got %d", code)
			}

			js, err := os.ReadFile(filepath.Join(cfg.Output.TargetDirectory, "app.js"))
			if err != nil {
				t.Fatalf("expected generated app.js: %v", err)
			}
			if string(js) != "main();\n" {
				t.Fatalf("unexpected app.js: %q", js)
			}
			if stdout.String() != tt.wantStdout {
				t.Fatalf("unexpected report: %q", stdout.String())
			}
		})
	}
}

func TestExitCodeForRun(t *testing.T) {
	if got := exitCodeForRun(errors.Join(ErrGatherClasspath, errors.New("x")), 0, false); got != ExitConfig {
		t.Fatalf("got %d", got)
	}
	if got := exitCodeForRun(context.Canceled, 3, true); got != ExitInvocation {
		t.Fatalf("got %d", got)
	}
	if got := exitCodeForRun(nil, 3, true); got != ExitProblems {
		t.Fatalf("got %d", got)
	}
}

func TestState_String(t *testing.T) {
	if StateContextBuilding.String() != "context_building" || State(99).String() != "unknown" {
		t.Fatalf("unexpected state names")
	}
}
