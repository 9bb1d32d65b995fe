// Package supervisorlog constructs the process-wide logger.
package supervisorlog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// BuildInfo carries version metadata into every log line.
type BuildInfo struct {
	Version string
	Commit  string
}

// New returns a logger pre-loaded with build-info fields. Debug mode (either
// debug=true or $DEBUG=TRUE) logs JSON to <configDir>/supervisor.log at
// debug level; otherwise it's a quiet text logger at warn level on stderr.
func New(configDir string, debug bool, info BuildInfo) *logrus.Entry {
	var log *logrus.Logger
	if debug || os.Getenv("DEBUG") == "TRUE" {
		log = newDebugLogger(configDir)
	} else {
		log = newQuietLogger()
	}

	return log.WithFields(logrus.Fields{
		"debug":   debug,
		"version": info.Version,
		"commit":  info.Commit,
	})
}

func getLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return logrus.DebugLevel
	}
	return level
}

func newDebugLogger(configDir string) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(getLogLevel())
	log.Formatter = &logrus.JSONFormatter{}
	file, err := os.OpenFile(filepath.Join(configDir, "supervisor.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		fmt.Println("unable to log to file")
		os.Exit(1)
	}
	log.SetOutput(file)
	return log
}

func newQuietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	log.SetLevel(logrus.WarnLevel)
	return log
}
