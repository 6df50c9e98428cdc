package flags

// Package flags defines canonical CLI flag names shared across the CLI and
// config. IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Project.MainClass, flags.FlagMainClass, "", "...")
//	arg := "--" + flags.FlagMainClass
const (
	// Project
	FlagMainClass    = "main-class"
	FlagBuildDir     = "build-dir"
	FlagSourceDir    = "source-dir"
	FlagTeaVMSources = "teavm-sources"

	// Classpath
	FlagRuntimeClasspath  = "runtime-classpath"
	FlagArtifacts         = "artifacts"
	FlagCompilerClasspath = "compiler-classpath"

	// Compiler
	FlagObfuscate    = "obfuscate"
	FlagIncremental  = "incremental"
	FlagCopySources  = "copy-sources"
	FlagSourceMaps   = "source-maps"
	FlagOptimization = "optimization"

	// Output
	FlagTargetDir      = "target-dir"
	FlagTargetFile     = "target-file"
	FlagCacheDir       = "cache-dir"
	FlagConsoleFormat  = "console-format"
	FlagOut            = "out"
	FlagOutFormat      = "out-format"
	FlagFailOnProblems = "fail-on-problems"

	// Runtime
	FlagRunner    = "runner"
	FlagJava      = "java"
	FlagImage     = "image"
	FlagEnvFile   = "env-file"
	FlagLogFormat = "log-format"
	FlagVerbose   = "verbose"
)
