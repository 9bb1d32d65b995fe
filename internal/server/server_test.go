package server

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstack/wraith-supervisor/internal/config"
	"github.com/nstack/wraith-supervisor/internal/engine"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testServer(t *testing.T) *Server {
	t.Helper()
	fic := config.FilledInstanceConfig{
		ID:   "a",
		Name: "a",
		GameConfig: config.FilledGameConfig{
			Image:   "image",
			GameDir: t.TempDir(),
			LogsDir: t.TempDir(),
			Mods:    []string{"/mods/custom"},
		},
	}
	return New(fic, testLog())
}

func TestStartTransitionsToRunningOnSuccess(t *testing.T) {
	s := testServer(t)
	created := time.Now()
	eng := &engine.MockEngine{
		CreateFunc:  func(ctx context.Context, spec engine.Spec) (string, error) { return "container-1", nil },
		StartFunc:   func(ctx context.Context, id string) error { return nil },
		InspectFunc: func(ctx context.Context, id string) (engine.State, error) {
			return engine.State{Running: true, Created: created, HasCreated: true}, nil
		},
	}

	err := s.Start(context.Background(), 40000, eng, nil)
	require.NoError(t, err)
	require.NotNil(t, s.State.Running)
	assert.Equal(t, "container-1", s.State.Running.ContainerID)
	assert.Equal(t, uint16(40000), s.State.Running.GamePort)
	assert.Equal(t, created, s.State.Running.StartTime)
}

func TestStartFailsWhenCreateFails(t *testing.T) {
	s := testServer(t)
	eng := &engine.MockEngine{
		CreateFunc: func(ctx context.Context, spec engine.Spec) (string, error) {
			return "", assertErr("engine unreachable")
		},
	}

	err := s.Start(context.Background(), 40000, eng, nil)
	require.ErrorIs(t, err, ErrContainerDidntStart)
	assert.Nil(t, s.State.Running)
}

func TestStartFailsWhenInspectHasNoCreatedTime(t *testing.T) {
	s := testServer(t)
	eng := &engine.MockEngine{
		CreateFunc:  func(ctx context.Context, spec engine.Spec) (string, error) { return "container-1", nil },
		StartFunc:   func(ctx context.Context, id string) error { return nil },
		InspectFunc: func(ctx context.Context, id string) (engine.State, error) {
			return engine.State{Running: true, HasCreated: false}, nil
		},
	}

	err := s.Start(context.Background(), 40000, eng, nil)
	require.ErrorIs(t, err, ErrContainerHasNoCreated)
	assert.Nil(t, s.State.Running)
}

func TestBuildSpecMountsGameDirAndMods(t *testing.T) {
	s := testServer(t)
	spec := s.buildSpec(40000, []string{"NS_SERVER_NAME=a"})

	assert.Equal(t, "supervisor-a", spec.Name)
	require.Len(t, spec.Mounts, 2)
	assert.Equal(t, "/mnt/titanfall", spec.Mounts[0].Destination)
	assert.Equal(t, "/mnt/mods/custom", spec.Mounts[1].Destination)
	assert.True(t, spec.Mounts[1].ReadOnly)
	assert.Equal(t, uint16(40000), spec.PublishPort.HostPort)
	assert.True(t, spec.AutoRemove)
}

func TestStopPollsUntilInspectReportsNotFound(t *testing.T) {
	s := testServer(t)
	s.State = State{Running: &RunningState{ContainerID: "container-1", GamePort: 40000}}

	inspectCalls := 0
	eng := &engine.MockEngine{
		StopFunc: func(ctx context.Context, id string) error { return nil },
		InspectFunc: func(ctx context.Context, id string) (engine.State, error) {
			inspectCalls++
			if inspectCalls < 2 {
				return engine.State{Running: true, HasCreated: true}, nil
			}
			return engine.State{}, engine.ErrNotFound
		},
	}

	require.NoError(t, s.Stop(context.Background(), eng))
	assert.Nil(t, s.State.Running)
	assert.GreaterOrEqual(t, inspectCalls, 2)
}

func TestStopOnAlreadyNotRunningIsANoop(t *testing.T) {
	s := testServer(t)
	eng := &engine.MockEngine{}
	require.NoError(t, s.Stop(context.Background(), eng))
}

func TestStopLeavesStateUnchangedWhenEngineRefuses(t *testing.T) {
	s := testServer(t)
	s.State = State{Running: &RunningState{ContainerID: "container-1", GamePort: 40000}}
	eng := &engine.MockEngine{
		StopFunc: func(ctx context.Context, id string) error { return assertErr("stop refused") },
	}

	err := s.Stop(context.Background(), eng)
	require.Error(t, err)
	assert.NotNil(t, s.State.Running, "a refused stop does not change state, since we never observed the container gone")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
