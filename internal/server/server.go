// Package server implements a single supervised instance: its declared
// configuration, its runtime state, and the start/stop transitions between
// them. Every container a Server manages was created by the supervisor
// itself.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nstack/wraith-supervisor/internal/argbuilder"
	"github.com/nstack/wraith-supervisor/internal/config"
	"github.com/nstack/wraith-supervisor/internal/engine"
)

// RunningState describes a live container.
type RunningState struct {
	ContainerID string
	GamePort    uint16
	StartTime   time.Time
}

// State is a server's runtime state: either not running, or running with
// the fields in Running populated.
type State struct {
	Running *RunningState
}

// NotRunning reports whether the server currently has no known container.
func (s State) NotRunning() bool { return s.Running == nil }

// ErrContainerDidntStart is returned when the engine's create, start or
// post-start inspect call failed.
var ErrContainerDidntStart = errors.New("container didn't start")

// ErrContainerHasNoCreated is returned when the engine's post-start inspect
// succeeded but the response had no created-time field.
var ErrContainerHasNoCreated = errors.New("inspect returned no created time")

// Server is one supervised instance: its identity, its declared
// configuration, and its current runtime state.
type Server struct {
	ID     string
	Config config.FilledInstanceConfig
	State  State
	IsOld  bool

	log *logrus.Entry
}

// New constructs a NotRunning server for the given filled config.
func New(cfg config.FilledInstanceConfig, log *logrus.Entry) *Server {
	return &Server{
		ID:     cfg.ID,
		Config: cfg,
		State:  State{},
		log:    log.WithField("server", cfg.ID),
	}
}

// Start allocates no port itself (the cluster's port-allocation phase
// already picked game_port); it asks the container engine to create and
// start a container for this server, and on success transitions State to
// Running. Precondition: s.State.NotRunning().
func (s *Server) Start(ctx context.Context, gamePort uint16, eng engine.Engine, logCopier LogCopier) error {
	if err := os.MkdirAll(s.Config.GameConfig.LogsDir, 0o755); err != nil {
		s.log.WithError(err).Warn("could not create log directory, continuing without persisted logs")
	}

	env := argbuilder.BuildEnv(s.Config.Name, gamePort, s.Config.GameConfig)
	spec := s.buildSpec(gamePort, env)

	id, err := eng.Create(ctx, spec)
	if err != nil {
		s.log.WithError(err).Error("failed to create container")
		return fmt.Errorf("%w: %v", ErrContainerDidntStart, err)
	}

	if err := eng.Start(ctx, id); err != nil {
		s.log.WithError(err).Error("failed to start container")
		return fmt.Errorf("%w: %v", ErrContainerDidntStart, err)
	}

	st, err := eng.Inspect(ctx, id)
	if err != nil {
		s.log.WithError(err).Error("failed to inspect container after start")
		return fmt.Errorf("%w: %v", ErrContainerDidntStart, err)
	}
	if !st.HasCreated {
		return ErrContainerHasNoCreated
	}

	if logCopier != nil {
		logCopier.Copy(context.Background(), eng, id, filepath.Join(s.Config.GameConfig.LogsDir, s.ID+".log"), s.log)
	}

	s.State = State{Running: &RunningState{
		ContainerID: id,
		GamePort:    gamePort,
		StartTime:   st.Created,
	}}
	s.log.WithFields(logrus.Fields{"container": id, "port": gamePort}).Info("server started")
	return nil
}

func (s *Server) buildSpec(gamePort uint16, env []string) engine.Spec {
	g := s.Config.GameConfig
	mounts := make([]engine.Mount, 0, len(g.Mods)+len(g.ExtraMounts)+1)
	mounts = append(mounts, engine.Mount{Source: g.GameDir, Destination: "/mnt/titanfall"})
	for _, mod := range g.Mods {
		mounts = append(mounts, engine.Mount{
			Source:      mod,
			Destination: "/mnt/mods/" + filepath.Base(mod),
			ReadOnly:    true,
		})
	}
	for _, m := range g.ExtraMounts {
		mounts = append(mounts, engine.Mount{Source: m.Source, Destination: m.Destination, ReadOnly: m.ReadOnly})
	}

	var cpuQuota int64
	if g.Limits.CPUFraction != nil {
		cpuQuota = int64(*g.Limits.CPUFraction * 100000)
	}
	var cpuSet string
	if g.Limits.CPUSet != nil {
		cpuSet = *g.Limits.CPUSet
	}
	var memBytes, vmemBytes int64
	if g.Limits.MemoryBytes != nil {
		memBytes = *g.Limits.MemoryBytes
	}
	if g.Limits.VMemoryBytes != nil {
		vmemBytes = *g.Limits.VMemoryBytes
	}

	return engine.Spec{
		Name:         "supervisor-" + s.ID,
		Image:        g.Image,
		Env:          env,
		Mounts:       mounts,
		PublishPort:  engine.PortPublish{ContainerPort: gamePort, HostPort: gamePort},
		AutoRemove:   true,
		MemoryBytes:  memBytes,
		VMemoryBytes: vmemBytes,
		CPUQuota:     cpuQuota,
		CPUSet:       cpuSet,
		LogDriver:    "local",
	}
}

// Stop asks the engine to stop this server's container (if any), then polls
// Inspect every 100ms until the engine reports it missing. It swallows
// post-success inspect errors (missing means stopped) but reports a failed
// stop without changing state.
func (s *Server) Stop(ctx context.Context, eng engine.Engine) error {
	running := s.State.Running
	if running == nil {
		return nil
	}

	if err := eng.Stop(ctx, running.ContainerID); err != nil {
		s.log.WithError(err).Error("failed to stop container")
		return fmt.Errorf("stop failed: %w", err)
	}

	for {
		_, err := eng.Inspect(ctx, running.ContainerID)
		if errors.Is(err, engine.ErrNotFound) {
			break
		}
		if err != nil {
			// Swallow any other inspect error post-stop-success: the
			// engine already told us the stop succeeded.
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	s.State = State{}
	s.log.Info("server stopped")
	return nil
}
