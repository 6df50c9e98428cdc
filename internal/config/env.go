package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"

	"teavmc/internal/flags"
)

// Environment variables consulted when the matching flag is not set.
const (
	EnvMainClass         = "TEAVMC_MAIN_CLASS"
	EnvCompilerClasspath = "TEAVM_CLASSPATH"
	EnvJavaHome          = "JAVA_HOME"
	EnvImage             = "TEAVMC_IMAGE"
)

// LoadEnvFile loads a dotenv file into the process environment without
// overriding variables that are already set. A missing file is only an error
// when required is true.
func LoadEnvFile(path string, required bool) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv fills settings that were not given explicitly from the
// environment. changed reports whether a flag was set on the command line;
// explicit flags always win.
func ApplyEnv(c *Config, changed func(flag string) bool) {
	if changed == nil {
		changed = func(string) bool { return false }
	}

	if strings.TrimSpace(c.Project.MainClass) == "" {
		if v := strings.TrimSpace(os.Getenv(EnvMainClass)); v != "" {
			c.Project.MainClass = v
		}
	}

	if len(c.Classpath.Compiler) == 0 {
		if v := strings.TrimSpace(os.Getenv(EnvCompilerClasspath)); v != "" {
			c.Classpath.Compiler = filepath.SplitList(v)
		}
	}

	if !changed(flags.FlagJava) {
		if home := strings.TrimSpace(os.Getenv(EnvJavaHome)); home != "" {
			bin := "java"
			if runtime.GOOS == "windows" {
				bin = "java.exe"
			}
			c.Runtime.Java = filepath.Join(home, "bin", bin)
		}
	}

	if !changed(flags.FlagImage) {
		if v := strings.TrimSpace(os.Getenv(EnvImage)); v != "" {
			c.Runtime.Image = v
		}
	}
}
