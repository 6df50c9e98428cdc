package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"teavmc/internal/classpath"
	"teavmc/internal/compiler"
	"teavmc/internal/config"
	"teavmc/internal/engine"
	"teavmc/internal/flags"
	"teavmc/internal/log"
)

var cfg = config.New()

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile an application to JavaScript",
	Long: `Compile an application's classes to JavaScript with the TeaVM runner.

Source roots given with --source-dir are used first, followed by
--teavm-sources. Each entry that is a .jar file is passed to the compiler as a
source archive; every other entry is passed as a source directory.

The project classpath is --runtime-classpath followed by --artifacts. It is
searched before the compiler classpath (--compiler-classpath or
TEAVM_CLASSPATH), which must contain the TeaVM CLI distribution.

Environment:
	TEAVMC_MAIN_CLASS  main class when --main-class is not given
	TEAVM_CLASSPATH    compiler classpath when --compiler-classpath is not given
	JAVA_HOME          java executable for --runner=local unless --java is given
	TEAVMC_IMAGE       container image for --runner=docker unless --image is given
	Variables may also be set in a dotenv file (see --env-file).

Output:
	With --console-format=text (default), problems are printed after a
	"Problems:" header, one per line; nothing is printed when there are none.
	With --console-format=ndjson, stdout carries one JSON event per line:
	run.started, one "problem" event per reported problem, then run.finished.
	Logs always go to stderr.

Exit codes:
	0 = compilation completed
	1 = problems reported and --fail-on-problems is set
	2 = the compiler could not be run or failed without reporting problems
	3 = configuration or classpath error (compiler did not run)

Examples:
	teavmc compile --main-class com.example.Main \
		--runtime-classpath build/classes/java/main \
		--compiler-classpath teavm-cli.jar

	# Run the compiler in a container
	teavmc compile --runner docker --main-class com.example.Main ...
`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runCompile(cmd, cfg))
	},
}

func runCompile(cmd *cobra.Command, c *config.Config) int {
	if err := prepareConfig(cmd, c); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return engine.ExitConfig
	}
	log.Init(log.Level(c.Runtime.Verbose), c.Runtime.LogFormat == "text")

	host, err := classpath.NewHostLoader(c.Classpath.Compiler)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --%s: %v\n", flags.FlagCompilerClasspath, err)
		return engine.ExitConfig
	}
	defer host.Close()
	if len(c.Classpath.Compiler) == 0 {
		log.Logger.Warnf("no compiler classpath given (--%s or %s); the runner must be on the project classpath", flags.FlagCompilerClasspath, config.EnvCompilerClasspath)
	}

	tool, closeTool, err := newTool(c, log.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return engine.ExitConfig
	}
	defer closeTool()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return engine.NewEngine(tool, host).Run(ctx, c)
}

// prepareConfig layers the dotenv file and environment under the explicit
// flags, then validates the result.
func prepareConfig(cmd *cobra.Command, c *config.Config) error {
	if err := config.LoadEnvFile(c.Runtime.EnvFile, cmd.Flags().Changed(flags.FlagEnvFile)); err != nil {
		return err
	}
	config.ApplyEnv(c, cmd.Flags().Changed)
	return c.Validate()
}

func newTool(c *config.Config, logger logrus.FieldLogger) (compiler.Tool, func(), error) {
	switch c.Runtime.Runner {
	case "docker":
		cli, err := compiler.NewDockerClientFromEnv()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create docker client: %w", err)
		}
		return compiler.NewDockerTool(cli, c.Runtime.Image, logger), func() { _ = cli.Close() }, nil
	default:
		return compiler.NewJavaTool(c.Runtime.Java, logger), func() {}, nil
	}
}

func bindCompileFlags(cmd *cobra.Command, c *config.Config) {
	// Project
	cmd.Flags().StringVar(&c.Project.MainClass, flags.FlagMainClass, "", "Fully-qualified main class (env: TEAVMC_MAIN_CLASS)")
	cmd.Flags().StringVar(&c.Project.BuildDir, flags.FlagBuildDir, config.DefaultBuildDir, "Build directory the default target and cache directories live under")
	cmd.Flags().StringArrayVar(&c.Project.SourceDirs, flags.FlagSourceDir, nil, "Project source root (repeatable)")
	cmd.Flags().StringArrayVar(&c.Project.TeaVMSources, flags.FlagTeaVMSources, nil, "Additional source directory or source jar, used after --source-dir (repeatable)")

	// Classpath
	cmd.Flags().StringArrayVar(&c.Classpath.Runtime, flags.FlagRuntimeClasspath, nil, "Runtime classpath entry: class directory or jar (repeatable)")
	cmd.Flags().StringArrayVar(&c.Classpath.Artifacts, flags.FlagArtifacts, nil, "Project artifact file, searched after --runtime-classpath (repeatable)")
	cmd.Flags().StringArrayVar(&c.Classpath.Compiler, flags.FlagCompilerClasspath, nil, "TeaVM distribution classpath entry (repeatable; env: TEAVM_CLASSPATH)")

	// Compiler
	cmd.Flags().BoolVar(&c.Compiler.Obfuscate, flags.FlagObfuscate, c.Compiler.Obfuscate, "Minify the generated JavaScript")
	cmd.Flags().BoolVar(&c.Compiler.Incremental, flags.FlagIncremental, c.Compiler.Incremental, "Reuse the compiler cache between runs")
	cmd.Flags().BoolVar(&c.Compiler.CopySources, flags.FlagCopySources, c.Compiler.CopySources, "Copy sources next to the generated files")
	cmd.Flags().BoolVar(&c.Compiler.SourceMaps, flags.FlagSourceMaps, c.Compiler.SourceMaps, "Generate source maps")
	cmd.Flags().StringVar(&c.Compiler.Optimization, flags.FlagOptimization, c.Compiler.Optimization, "Optimization level: simple|advanced|full")

	// Output
	cmd.Flags().StringVar(&c.Output.TargetDirectory, flags.FlagTargetDir, "", "Directory for generated files (default: <build-dir>/teavm)")
	cmd.Flags().StringVar(&c.Output.TargetFileName, flags.FlagTargetFile, c.Output.TargetFileName, "Generated script file name")
	cmd.Flags().StringVar(&c.Output.CacheDirectory, flags.FlagCacheDir, "", "Compiler cache directory (default: <build-dir>/teavm-cache)")
	cmd.Flags().StringVar(&c.Output.ConsoleFormat, flags.FlagConsoleFormat, c.Output.ConsoleFormat, "Console output format: text|ndjson")
	cmd.Flags().StringVar(&c.Output.Out, flags.FlagOut, "", "Write a structured report to this path")
	cmd.Flags().StringVar(&c.Output.OutFormat, flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	cmd.Flags().BoolVar(&c.Output.FailOnProblems, flags.FlagFailOnProblems, false, "Exit with code 1 when problems are reported")

	// Runtime
	cmd.Flags().StringVar(&c.Runtime.Runner, flags.FlagRunner, c.Runtime.Runner, "Where the compiler runs: local|docker")
	cmd.Flags().StringVar(&c.Runtime.Java, flags.FlagJava, c.Runtime.Java, "java executable for --runner=local (default: $JAVA_HOME/bin/java, then PATH)")
	cmd.Flags().StringVar(&c.Runtime.Image, flags.FlagImage, c.Runtime.Image, "Container image for --runner=docker (env: TEAVMC_IMAGE)")
	cmd.Flags().StringVar(&c.Runtime.EnvFile, flags.FlagEnvFile, c.Runtime.EnvFile, "dotenv file to load; a missing default file is ignored")
	cmd.Flags().StringVar(&c.Runtime.LogFormat, flags.FlagLogFormat, c.Runtime.LogFormat, "Log format on stderr: text|json")
}

func init() {
	rootCmd.AddCommand(compileCmd)

	// MAINTAINER NOTE: keep these flags in sync with config.Config and the
	// environment fallbacks in internal/config/env.go.
	bindCompileFlags(compileCmd, cfg)
}
