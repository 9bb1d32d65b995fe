// Package supervisor implements the top-level event loop: the start-up
// sequence, the poll/command select loop, and the translation of shell
// commands into cluster operations.
package supervisor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nstack/wraith-supervisor/internal/cluster"
	"github.com/nstack/wraith-supervisor/internal/config"
	"github.com/nstack/wraith-supervisor/internal/engine"
	"github.com/nstack/wraith-supervisor/internal/restore"
	"github.com/nstack/wraith-supervisor/internal/server"
	"github.com/nstack/wraith-supervisor/internal/shell"
)

// Supervisor drives one cluster against one config file for the life of
// the process.
type Supervisor struct {
	configPath string
	cluster    *cluster.Cluster
	engine     engine.Engine
	log        *logrus.Entry

	cfg *config.Config
}

// New constructs a Supervisor. It does not touch disk or the engine.
func New(configPath string, clu *cluster.Cluster, eng engine.Engine, log *logrus.Entry) *Supervisor {
	return &Supervisor{configPath: configPath, cluster: clu, engine: eng, log: log}
}

func buildServers(cfg *config.Config, log *logrus.Entry) []*server.Server {
	filled := cfg.FilledServers()
	out := make([]*server.Server, 0, len(filled))
	for _, fic := range filled {
		out = append(out, server.New(fic, log))
	}
	return out
}

func (s *Supervisor) loadConfig() error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

// Run executes the start-up sequence and then the main select loop until
// shellCommands closes or a StopAll/StopWraith command is handled. It
// returns nil on a clean exit.
func (s *Supervisor) Run(ctx context.Context, shellCommands <-chan shell.Command) error {
	if err := s.loadConfig(); err != nil {
		return err
	}

	restorePath := restore.Path(s.configPath)
	restored := restore.Read(restorePath, s.log)

	s.cluster.LoadServers(buildServers(s.cfg, s.log))
	s.cluster.Deserialize(ctx, restored, s.engine)
	s.poll(ctx)

	ticker := time.NewTicker(pollInterval(s.cfg.PollSeconds))
	defer ticker.Stop()

	for {
		select {
		case cmd, ok := <-shellCommands:
			if !ok {
				return nil
			}
			if done := s.handle(ctx, cmd); done {
				return nil
			}
			s.poll(ctx)

		case <-ticker.C:
			s.poll(ctx)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handle applies one shell command to the cluster. It returns true when the
// loop should exit (StopAll, StopWraith).
func (s *Supervisor) handle(ctx context.Context, cmd shell.Command) bool {
	switch cmd.Kind {
	case shell.StopAll:
		s.cluster.StopAll(ctx, s.engine)
		return true

	case shell.StopWraith:
		records := s.cluster.Serialize()
		if err := restore.Write(restore.Path(s.configPath), records); err != nil {
			s.log.WithError(err).Error("failed to write restore file")
		}
		return true

	case shell.Reload:
		if err := s.loadConfig(); err != nil {
			s.log.WithError(err).Error("failed to reload config")
			return false
		}
		s.cluster.LoadServers(buildServers(s.cfg, s.log))

	case shell.StopOld:
		s.cluster.StopOld(ctx, s.engine)

	case shell.RestartAll:
		s.cluster.StopAll(ctx, s.engine)

	case shell.Restart:
		if srv := s.cluster.Get(cmd.Name); srv != nil {
			if err := srv.Stop(ctx, s.engine); err != nil {
				s.log.WithField("server", cmd.Name).WithError(err).Error("failed to stop server for restart")
			}
		} else {
			s.log.WithField("server", cmd.Name).Warn("no such server")
		}
	}
	return false
}

func (s *Supervisor) poll(ctx context.Context) {
	if s.cluster.Poll(ctx, s.cfg, s.engine, time.Now()) == cluster.DidWork {
		s.log.Info("Done")
	}
}

func pollInterval(seconds float64) time.Duration {
	if seconds <= 0 {
		seconds = 5.0
	}
	return time.Duration(seconds * float64(time.Second))
}
