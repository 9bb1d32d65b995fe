package engine

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/containers/podman/v5/pkg/bindings"
	"github.com/containers/podman/v5/pkg/bindings/containers"
	"github.com/containers/podman/v5/pkg/specgen"
	spec "github.com/opencontainers/runtime-spec/specs-go"
	nettypes "go.podman.io/common/libnetwork/types"
)

// PodmanEngine implements Engine against a Podman REST socket, using the
// bindings package for create/start/stop/inspect/logs.
type PodmanEngine struct {
	conn context.Context
}

// Connect opens a connection to the podman socket (e.g.
// "unix:///run/podman/podman.sock").
func Connect(ctx context.Context, socketPath string) (*PodmanEngine, error) {
	conn, err := bindings.NewConnection(ctx, socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to podman socket: %w", err)
	}
	return &PodmanEngine{conn: conn}, nil
}

func (e *PodmanEngine) Create(ctx context.Context, s Spec) (string, error) {
	gen := specgen.NewSpecGenerator(s.Image, false)
	gen.Name = s.Name
	gen.Env = map[string]string{}
	for _, kv := range s.Env {
		key, value, _ := strings.Cut(kv, "=")
		gen.Env[key] = value
	}

	for _, m := range s.Mounts {
		opts := []string{"rbind"}
		if m.ReadOnly {
			opts = append(opts, "ro")
		} else {
			opts = append(opts, "rw")
		}
		gen.Mounts = append(gen.Mounts, spec.Mount{
			Source:      m.Source,
			Destination: m.Destination,
			Type:        "bind",
			Options:     opts,
		})
	}

	if s.PublishPort.ContainerPort != 0 {
		gen.PortMappings = append(gen.PortMappings, nettypes.PortMapping{
			ContainerPort: s.PublishPort.ContainerPort,
			HostPort:      s.PublishPort.HostPort,
			Protocol:      "udp",
		})
	}

	remove := s.AutoRemove
	gen.Remove = &remove

	limits := &spec.LinuxResources{}
	if s.MemoryBytes > 0 || s.VMemoryBytes > 0 {
		mem := &spec.LinuxMemory{}
		if s.MemoryBytes > 0 {
			mem.Limit = &s.MemoryBytes
		}
		if s.VMemoryBytes > 0 {
			mem.Swap = &s.VMemoryBytes
		}
		limits.Memory = mem
	}
	if s.CPUQuota > 0 {
		period := uint64(100000)
		quota := s.CPUQuota
		limits.CPU = &spec.LinuxCPU{Period: &period, Quota: &quota}
		if s.CPUSet != "" {
			limits.CPU.Cpus = s.CPUSet
		}
	}
	gen.ResourceLimits = limits

	if s.LogDriver != "" {
		gen.LogConfiguration = &specgen.LogConfig{Driver: s.LogDriver}
	}

	resp, err := containers.CreateWithSpec(ctx, gen, nil)
	if err != nil {
		return "", fmt.Errorf("creating container %s: %w", s.Name, err)
	}
	return resp.ID, nil
}

func (e *PodmanEngine) Start(ctx context.Context, id string) error {
	if err := containers.Start(ctx, id, nil); err != nil {
		return fmt.Errorf("starting container %s: %w", id, err)
	}
	return nil
}

func (e *PodmanEngine) Stop(ctx context.Context, id string) error {
	if err := containers.Stop(ctx, id, nil); err != nil {
		return fmt.Errorf("stopping container %s: %w", id, err)
	}
	return nil
}

func (e *PodmanEngine) Inspect(ctx context.Context, id string) (State, error) {
	data, err := containers.Inspect(ctx, id, nil)
	if err != nil {
		if isNotFound(err) {
			return State{}, ErrNotFound
		}
		return State{}, fmt.Errorf("inspecting container %s: %w", id, err)
	}
	if data.State == nil {
		return State{}, nil
	}
	st := State{Running: data.State.Running}
	if !data.Created.IsZero() {
		st.Created = data.Created
		st.HasCreated = true
	}
	return st, nil
}

func (e *PodmanEngine) Logs(ctx context.Context, id string) (io.ReadCloser, error) {
	r, w := io.Pipe()
	stdout := make(chan string)
	stderr := make(chan string)
	done := make(chan error, 1)
	go func() {
		done <- containers.Logs(ctx, id, &containers.LogOptions{Follow: boolPtr(true)}, stdout, stderr)
	}()
	go func() {
		defer w.Close()
		for {
			select {
			case line, ok := <-stdout:
				if !ok {
					stdout = nil
					break
				}
				fmt.Fprintln(w, line)
			case line, ok := <-stderr:
				if !ok {
					stderr = nil
					break
				}
				fmt.Fprintln(w, line)
			case err := <-done:
				if err != nil {
					w.CloseWithError(err)
				}
				return
			}
			if stdout == nil && stderr == nil {
				return
			}
		}
	}()
	return r, nil
}

func boolPtr(b bool) *bool { return &b }

func isNotFound(err error) bool {
	// podman bindings surface a 404 as a generic error whose message
	// contains "no such container" rather than a typed sentinel.
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such container")
}
