// Package engine narrows a container engine client down to the five
// operations a supervised server needs: create, start, stop, inspect,
// logs. Every container the supervisor manages was created by the
// supervisor itself, so a broader surface (images, volumes, networks,
// pods) has no role here.
package engine

import (
	"context"
	"io"
	"time"
)

// Spec describes a container the supervisor wants created, trimmed to the
// fields the server start path needs.
type Spec struct {
	Name        string
	Image       string
	Env         []string
	Mounts      []Mount
	PublishPort PortPublish
	AutoRemove  bool
	MemoryBytes int64
	VMemoryBytes int64
	CPUQuota    int64 // microseconds per 100000us period; 0 means unset
	CPUSet      string
	LogDriver   string
}

// Mount is a single bind mount from the host into the container.
type Mount struct {
	Source      string
	Destination string
	ReadOnly    bool
}

// PortPublish publishes a single UDP port from the container to the host
// at the same number.
type PortPublish struct {
	ContainerPort uint16
	HostPort      uint16
}

// State is the subset of container inspection state the cluster and server
// care about: whether it's alive, and when it was created (the schedule
// anchor).
type State struct {
	Running bool
	Created time.Time
	// HasCreated is false when the engine's inspect response lacks a
	// created-time field entirely — a corrupt engine response, surfaced by
	// server.Start as ErrContainerHasNoCreated.
	HasCreated bool
}

// Engine is the narrow container-engine abstraction the Server Cluster
// drives. Implementations must be safe for concurrent use: the liveness
// sweep and the start phase of a poll invoke it from multiple goroutines
// at once.
type Engine interface {
	Create(ctx context.Context, spec Spec) (id string, err error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Inspect(ctx context.Context, id string) (State, error)
	// Logs returns a stream of the container's combined stdout/stderr. The
	// caller is responsible for closing it.
	Logs(ctx context.Context, id string) (io.ReadCloser, error)
}

// ErrNotFound is returned by Inspect (and may be returned by Stop) when the
// engine no longer knows about a container id.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "container not found" }
