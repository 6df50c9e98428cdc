package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger writes to stderr; stdout is reserved for the diagnostics report.
var Logger = logrus.New()

func Init(level logrus.Level, pretty bool) {
	Logger.Out = os.Stderr

	if pretty {
		Logger.Formatter = &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "02-01-2006 15:04:05",
		}
	} else {
		Logger.Formatter = &logrus.JSONFormatter{}
	}

	Logger.SetLevel(level)
}

// Level maps the --verbose flag to a log level.
func Level(verbose bool) logrus.Level {
	if verbose {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}
