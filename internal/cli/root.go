package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"teavmc/internal/flags"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "teavmc",
	Short: "Compile JVM bytecode to JavaScript with TeaVM",
	Long: `teavmc drives the TeaVM compiler over a project's compiled classes.

It resolves the project's source providers, builds a classpath-scoped
execution context, runs the TeaVM runner and reports the problems it found.

Examples:
	# Show available commands and global flags
	teavmc --help

	# Compile an application
	teavmc compile --main-class com.example.Main --runtime-classpath build/classes

	# Print build info
	teavmc version`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&cfg.Runtime.Verbose, flags.FlagVerbose, false, "Enable debug logging (prints the runner command line and its raw output)")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
