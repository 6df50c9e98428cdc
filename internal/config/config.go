package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"teavmc/internal/compiler"
)

const (
	DefaultBuildDir       = "build"
	DefaultTargetFileName = "app.js"

	targetSubdir = "teavm"
	cacheSubdir  = "teavm-cache"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep the CLI
	// flags in internal/cli/compile.go and the environment fallbacks in
	// env.go in sync.
	Project   Project
	Classpath Classpath
	Compiler  Compiler
	Output    Output
	Runtime   Runtime
}

type Project struct {
	// MainClass is the fully-qualified entry point class (see --main-class).
	// Required; the compile run fails before doing any work without it.
	MainClass string

	// BuildDir is the build output root the default target and cache
	// directories live under (see --build-dir).
	BuildDir string

	// SourceDirs are the project's declared source roots (see --source-dir).
	SourceDirs []string

	// TeaVMSources are additional source-bearing paths appended after
	// SourceDirs (see --teavm-sources).
	TeaVMSources []string
}

type Classpath struct {
	// Runtime is the resolved runtime dependency file set (see --runtime-classpath).
	Runtime []string

	// Artifacts are the project's published artifact files, searched after
	// Runtime (see --artifacts).
	Artifacts []string

	// Compiler is the TeaVM distribution classpath the runner itself loads
	// from (see --compiler-classpath, TEAVM_CLASSPATH).
	Compiler []string
}

type Compiler struct {
	Obfuscate    bool
	Incremental  bool
	CopySources  bool
	SourceMaps   bool
	Optimization string
}

type Output struct {
	// TargetDirectory receives the generated files. Defaults to <build-dir>/teavm.
	TargetDirectory string

	// TargetFileName is the generated script name (see --target-file).
	TargetFileName string

	// CacheDirectory is handed to the compiler untouched. Defaults to
	// <build-dir>/teavm-cache.
	CacheDirectory string

	// ConsoleFormat controls the stdout report (see --console-format).
	// Allowed values: text, ndjson.
	ConsoleFormat string

	// Out writes a structured report to this path (see --out).
	Out string

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string

	// FailOnProblems turns a non-empty diagnostics report into a failing exit code.
	FailOnProblems bool
}

type Runtime struct {
	// Runner selects where the compiler runs (see --runner).
	// Allowed values: local, docker.
	Runner string

	// Java is the java executable for the local runner (see --java, JAVA_HOME).
	Java string

	// Image is the container image for the docker runner (see --image).
	Image string

	// EnvFile is an optional dotenv file read before flags are resolved.
	EnvFile string

	// LogFormat selects the log formatter: text or json.
	LogFormat string

	Verbose bool
}

func New() *Config {
	return &Config{
		Project: Project{
			BuildDir: DefaultBuildDir,
		},
		Compiler: Compiler{
			Obfuscate:    true,
			Incremental:  true,
			Optimization: string(compiler.OptimizationFull),
		},
		Output: Output{
			TargetFileName: DefaultTargetFileName,
			ConsoleFormat:  "text",
		},
		Runtime: Runtime{
			Runner:    "local",
			Java:      "java",
			Image:     compiler.DefaultImage,
			EnvFile:   ".env",
			LogFormat: "text",
		},
	}
}

// Validate normalizes the configuration and rejects unsupported values.
// The entry point is deliberately not checked here: the compile run owns
// that check.
func (c *Config) Validate() error {
	c.Project.MainClass = strings.TrimSpace(c.Project.MainClass)

	c.Project.BuildDir = strings.TrimSpace(c.Project.BuildDir)
	if c.Project.BuildDir == "" {
		c.Project.BuildDir = DefaultBuildDir
	}
	if strings.TrimSpace(c.Output.TargetDirectory) == "" {
		c.Output.TargetDirectory = filepath.Join(c.Project.BuildDir, targetSubdir)
	}
	if strings.TrimSpace(c.Output.CacheDirectory) == "" {
		c.Output.CacheDirectory = filepath.Join(c.Project.BuildDir, cacheSubdir)
	}
	c.Output.TargetFileName = strings.TrimSpace(c.Output.TargetFileName)
	if c.Output.TargetFileName == "" {
		c.Output.TargetFileName = DefaultTargetFileName
	}
	if strings.ContainsAny(c.Output.TargetFileName, `/\`) {
		return fmt.Errorf("--target-file must be a file name, not a path: %s", c.Output.TargetFileName)
	}

	c.Classpath.Compiler = dropEmpty(c.Classpath.Compiler)

	lvl, err := compiler.ParseOptimizationLevel(c.Compiler.Optimization)
	if err != nil {
		return fmt.Errorf("invalid --optimization value: %w", err)
	}
	c.Compiler.Optimization = string(lvl)

	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, ndjson)", c.Output.ConsoleFormat)
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return fmt.Errorf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	c.Runtime.Runner = normalizeEnumValue(c.Runtime.Runner)
	if c.Runtime.Runner == "" {
		c.Runtime.Runner = "local"
	}
	if c.Runtime.Runner != "local" && c.Runtime.Runner != "docker" {
		return fmt.Errorf("unsupported --runner: %s (must be one of: local, docker)", c.Runtime.Runner)
	}
	if c.Runtime.Runner == "docker" && strings.TrimSpace(c.Runtime.Image) == "" {
		return errors.New("--image must not be empty when --runner=docker")
	}

	c.Runtime.LogFormat = normalizeEnumValue(c.Runtime.LogFormat)
	if c.Runtime.LogFormat == "" {
		c.Runtime.LogFormat = "text"
	}
	if c.Runtime.LogFormat != "text" && c.Runtime.LogFormat != "json" {
		return fmt.Errorf("unsupported --log-format: %s (must be one of: text, json)", c.Runtime.LogFormat)
	}

	return nil
}

// CompilerConfig returns the scalar part of a compilation run; the engine
// fills in the source providers.
func (c *Config) CompilerConfig() compiler.Config {
	return compiler.Config{
		MainClass:       c.Project.MainClass,
		TargetDirectory: c.Output.TargetDirectory,
		TargetFileName:  c.Output.TargetFileName,
		CacheDirectory:  c.Output.CacheDirectory,
		Obfuscate:       c.Compiler.Obfuscate,
		Incremental:     c.Compiler.Incremental,
		CopySources:     c.Compiler.CopySources,
		SourceMaps:      c.Compiler.SourceMaps,
		Optimization:    compiler.OptimizationLevel(c.Compiler.Optimization),
	}
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func dropEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if p := strings.TrimSpace(v); p != "" {
			out = append(out, p)
		}
	}
	return out
}
