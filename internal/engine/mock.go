package engine

import (
	"context"
	"errors"
	"io"
	"sync"
)

// MockEngine implements Engine for testing: every method can be
// overridden via a function field, and every call is recorded for
// assertions.
type MockEngine struct {
	CreateFunc  func(ctx context.Context, spec Spec) (string, error)
	StartFunc   func(ctx context.Context, id string) error
	StopFunc    func(ctx context.Context, id string) error
	InspectFunc func(ctx context.Context, id string) (State, error)
	LogsFunc    func(ctx context.Context, id string) (io.ReadCloser, error)

	mu    sync.Mutex
	Calls []MockCall
}

// MockCall records a single invocation for later verification.
type MockCall struct {
	Method string
	ID     string
}

// ErrMockNotImplemented is returned when a mock function is not set.
var ErrMockNotImplemented = errors.New("mock function not implemented")

func (m *MockEngine) record(method, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, ID: id})
}

func (m *MockEngine) Create(ctx context.Context, spec Spec) (string, error) {
	m.record("Create", spec.Name)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, spec)
	}
	return "", ErrMockNotImplemented
}

func (m *MockEngine) Start(ctx context.Context, id string) error {
	m.record("Start", id)
	if m.StartFunc != nil {
		return m.StartFunc(ctx, id)
	}
	return ErrMockNotImplemented
}

func (m *MockEngine) Stop(ctx context.Context, id string) error {
	m.record("Stop", id)
	if m.StopFunc != nil {
		return m.StopFunc(ctx, id)
	}
	return ErrMockNotImplemented
}

func (m *MockEngine) Inspect(ctx context.Context, id string) (State, error) {
	m.record("Inspect", id)
	if m.InspectFunc != nil {
		return m.InspectFunc(ctx, id)
	}
	return State{}, ErrMockNotImplemented
}

func (m *MockEngine) Logs(ctx context.Context, id string) (io.ReadCloser, error) {
	m.record("Logs", id)
	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, id)
	}
	return nil, ErrMockNotImplemented
}
