package server

import (
	"bufio"
	"context"

	"github.com/acarl005/stripansi"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nstack/wraith-supervisor/internal/engine"
)

// LogCopier spawns a detached task that copies a container's log stream to
// a file on disk, stripping ANSI escape codes as it goes, via a
// bufio.Scanner over the container's combined stdout/stderr stream.
//
// Log-copy failures are warned, never fatal, and never change the
// server's state.
type LogCopier interface {
	Copy(ctx context.Context, eng engine.Engine, containerID, logPath string, log *logrus.Entry)
}

// FileLogCopier is the production LogCopier: each call opens (or rotates
// into) a lumberjack-managed file and runs the copy loop in its own
// goroutine, fire-and-forget. Every server gets its own independent,
// uncancelled copy task for its lifetime; nothing cancels it but process
// exit.
type FileLogCopier struct {
	MaxSizeMB  int
	MaxBackups int
}

// NewFileLogCopier returns a FileLogCopier with the pack's conventional
// rotation sizes (100MB / 3 backups, as used for the only other
// log-writing game-server manager in the pack).
func NewFileLogCopier() *FileLogCopier {
	return &FileLogCopier{MaxSizeMB: 100, MaxBackups: 3}
}

func (c *FileLogCopier) Copy(ctx context.Context, eng engine.Engine, containerID, logPath string, log *logrus.Entry) {
	go func() {
		stream, err := eng.Logs(ctx, containerID)
		if err != nil {
			log.WithError(err).Warn("log copy: could not attach to container logs")
			return
		}
		defer stream.Close()

		out := &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
		}
		defer out.Close()

		scanner := bufio.NewScanner(stream)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			clean := stripansi.Strip(scanner.Text())
			if _, err := out.Write([]byte(clean + "\n")); err != nil {
				log.WithError(err).Warn("log copy: failed to write to log file")
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.WithError(err).Warn("log copy: stream ended with an error")
		}
	}()
}
