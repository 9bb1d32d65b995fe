package cluster

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstack/wraith-supervisor/internal/config"
	"github.com/nstack/wraith-supervisor/internal/engine"
	"github.com/nstack/wraith-supervisor/internal/server"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeEngine is a small, self-contained in-memory container engine: it
// always succeeds at create/start/stop and reports everything it created
// as Running until Stop (or kill, simulating a crash) removes it.
type fakeEngine struct {
	mu       sync.Mutex
	running  map[string]bool
	created  map[string]time.Time
	failStop map[string]bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{running: map[string]bool{}, created: map[string]time.Time{}, failStop: map[string]bool{}}
}

var errStopRefused = errors.New("stop refused")

func (f *fakeEngine) Create(ctx context.Context, spec engine.Spec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cid := spec.Name + "-container"
	f.created[cid] = time.Now()
	return cid, nil
}

func (f *fakeEngine) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[id] = true
	return nil
}

func (f *fakeEngine) Stop(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStop[id] {
		return errStopRefused
	}
	delete(f.running, id)
	return nil
}

func (f *fakeEngine) Inspect(ctx context.Context, id string) (engine.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	running, ok := f.running[id]
	if !ok {
		return engine.State{}, engine.ErrNotFound
	}
	return engine.State{Running: running, Created: f.created[id], HasCreated: true}, nil
}

func (f *fakeEngine) Logs(ctx context.Context, id string) (io.ReadCloser, error) {
	return io.NopCloser(io.LimitReader(nil, 0)), nil
}

// kill marks a container as gone, as if it crashed and the engine reaped it.
func (f *fakeEngine) kill(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, id)
	delete(f.created, id)
}

func newServer(id string, gamePort *uint16) *server.Server {
	fic := config.FilledInstanceConfig{
		ID:       id,
		Name:     id,
		GamePort: gamePort,
		GameConfig: config.FilledGameConfig{
			Image:   "image",
			GameDir: "/tmp",
			LogsDir: "/tmp/logs/" + id,
		},
	}
	return server.New(fic, testLog())
}

func newCronServer(id, schedule string) *server.Server {
	s := newServer(id, nil)
	s.Config.GameConfig.CronSchedule = &schedule
	return s
}

func portOf(p uint16) *uint16 { return &p }

func testConfig(start, end uint16) *config.Config {
	return &config.Config{GamePorts: config.PortRange{Start: start, End: end}}
}

func TestPollFreshStartAutoAllocatesPorts(t *testing.T) {
	eng := newFakeEngine()
	c := New(testLog(), nil)
	c.LoadServers([]*server.Server{newServer("a", nil), newServer("b", nil)})

	result := c.Poll(context.Background(), testConfig(40000, 40002), eng, time.Now())
	require.Equal(t, DidWork, result)

	a := c.Get("a")
	b := c.Get("b")
	require.NotNil(t, a.State.Running)
	require.NotNil(t, b.State.Running)
	assert.Equal(t, uint16(40000), a.State.Running.GamePort)
	assert.Equal(t, uint16(40001), b.State.Running.GamePort)
}

func TestPollPinnedPortConflictSkipsLoser(t *testing.T) {
	eng := newFakeEngine()
	c := New(testLog(), nil)
	c.LoadServers([]*server.Server{newServer("a", nil), newServer("b", nil)})
	c.Poll(context.Background(), testConfig(40000, 40002), eng, time.Now())

	// c pins 40000, already held by "a".
	c.LoadServers([]*server.Server{
		c.Get("a"), c.Get("b"), newServer("c", portOf(40000)),
	})
	c.Poll(context.Background(), testConfig(40000, 40002), eng, time.Now())

	assert.NotNil(t, c.Get("a").State.Running)
	assert.Equal(t, uint16(40000), c.Get("a").State.Running.GamePort)
	assert.Nil(t, c.Get("c").State.Running, "pinned port held by another server, so c stays NotRunning")
}

func TestReloadMarksRemovedRunningServerAsOldAndStopOldPurgesIt(t *testing.T) {
	eng := newFakeEngine()
	c := New(testLog(), nil)
	c.LoadServers([]*server.Server{newServer("a", nil), newServer("b", nil)})
	c.Poll(context.Background(), testConfig(40000, 40002), eng, time.Now())
	require.NotNil(t, c.Get("b").State.Running)
	aContainer := c.Get("a").State.Running.ContainerID

	c.LoadServers([]*server.Server{newServer("a", nil), newServer("newcomer", nil)})

	// a is still present and keeps its running state without restarting.
	require.NotNil(t, c.Get("a").State.Running)
	assert.Equal(t, aContainer, c.Get("a").State.Running.ContainerID)

	// b dropped out of the config but was Running, so it's kept and marked old.
	old := c.Get("b")
	require.NotNil(t, old)
	assert.True(t, old.IsOld)
	assert.NotNil(t, old.State.Running)

	// newcomer is declared but not yet started.
	assert.Nil(t, c.Get("newcomer").State.Running)

	c.Poll(context.Background(), testConfig(40000, 40002), eng, time.Now())
	assert.NotNil(t, c.Get("newcomer").State.Running, "newcomer starts on the next poll")

	c.StopOld(context.Background(), eng)
	assert.Nil(t, c.Get("b"), "stopold removes every is_old server from the cluster")
}

func TestLoadServersDropsAbsentNotRunningServers(t *testing.T) {
	c := New(testLog(), nil)
	c.LoadServers([]*server.Server{newServer("a", nil)})
	c.LoadServers([]*server.Server{newServer("b", nil)})
	assert.Nil(t, c.Get("a"), "a was NotRunning and absent from the new config, so it's dropped, not kept as is_old")
}

func TestPollDetectsCrashAndRestartsInOnePass(t *testing.T) {
	eng := newFakeEngine()
	c := New(testLog(), nil)
	c.LoadServers([]*server.Server{newServer("a", nil)})
	c.Poll(context.Background(), testConfig(40000, 40002), eng, time.Now())

	containerID := c.Get("a").State.Running.ContainerID
	eng.kill(containerID)

	result := c.Poll(context.Background(), testConfig(40000, 40002), eng, time.Now())
	assert.Equal(t, DidWork, result)
	assert.NotNil(t, c.Get("a").State.Running, "a restarts within the same poll it was detected dead in")
}

func TestSerializeOnlyIncludesRunningServers(t *testing.T) {
	eng := newFakeEngine()
	c := New(testLog(), nil)
	c.LoadServers([]*server.Server{newServer("a", nil), newServer("b", nil)})
	c.Poll(context.Background(), testConfig(40000, 40002), eng, time.Now())

	// Stop b so it's NotRunning again.
	require.NoError(t, c.Get("b").Stop(context.Background(), eng))

	records := c.Serialize()
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].Name)
}

func TestDeserializeRoundTripsAgainstSameEngine(t *testing.T) {
	eng := newFakeEngine()
	c1 := New(testLog(), nil)
	c1.LoadServers([]*server.Server{newServer("a", nil), newServer("b", nil)})
	c1.Poll(context.Background(), testConfig(40000, 40002), eng, time.Now())
	records := c1.Serialize()
	require.Len(t, records, 2)

	c2 := New(testLog(), nil)
	c2.LoadServers([]*server.Server{newServer("a", nil), newServer("b", nil)})
	c2.Deserialize(context.Background(), records, eng)

	got := c2.Serialize()
	assert.ElementsMatch(t, records, got)
}

func TestDeserializeSkipsServerNoLongerDeclared(t *testing.T) {
	eng := newFakeEngine()
	c1 := New(testLog(), nil)
	c1.LoadServers([]*server.Server{newServer("a", nil)})
	c1.Poll(context.Background(), testConfig(40000, 40002), eng, time.Now())
	records := c1.Serialize()

	c2 := New(testLog(), nil)
	c2.LoadServers([]*server.Server{}) // "a" no longer declared
	c2.Deserialize(context.Background(), records, eng)
	assert.Empty(t, c2.Serialize())
}

func TestPollCronScheduleRestartsWhenDue(t *testing.T) {
	eng := newFakeEngine()
	c := New(testLog(), nil)
	c.LoadServers([]*server.Server{newCronServer("a", "*/5 * * * * *")})

	now := time.Now()
	c.Poll(context.Background(), testConfig(40000, 40002), eng, now)
	require.NotNil(t, c.Get("a").State.Running)
	firstStart := c.Get("a").State.Running.StartTime

	// At the instant the server started, the next firing is still strictly
	// in the future: nothing to do.
	result := c.Poll(context.Background(), testConfig(40000, 40002), eng, firstStart)
	assert.Equal(t, NoWork, result)
	assert.Equal(t, firstStart, c.Get("a").State.Running.StartTime)

	// Past the next firing: the same poll stops and restarts the server.
	result = c.Poll(context.Background(), testConfig(40000, 40002), eng, firstStart.Add(10*time.Second))
	assert.Equal(t, DidWork, result)
	require.NotNil(t, c.Get("a").State.Running)
	assert.False(t, c.Get("a").State.Running.StartTime.Before(firstStart), "start_time advances on a scheduled restart")
}

func TestPollCronScheduleRetriesWhenStopRefused(t *testing.T) {
	eng := newFakeEngine()
	c := New(testLog(), nil)
	c.LoadServers([]*server.Server{newCronServer("a", "*/5 * * * * *")})

	now := time.Now()
	c.Poll(context.Background(), testConfig(40000, 40002), eng, now)
	running := c.Get("a").State.Running
	require.NotNil(t, running)
	eng.failStop[running.ContainerID] = true

	result := c.Poll(context.Background(), testConfig(40000, 40002), eng, running.StartTime.Add(10*time.Second))
	assert.Equal(t, NoWork, result)
	require.NotNil(t, c.Get("a").State.Running, "a refused stop leaves the server Running to be retried next poll")
	assert.Equal(t, running.ContainerID, c.Get("a").State.Running.ContainerID)
}

func TestStopAllLeavesServersInListButNotRunning(t *testing.T) {
	eng := newFakeEngine()
	c := New(testLog(), nil)
	c.LoadServers([]*server.Server{newServer("a", nil), newServer("b", nil)})
	c.Poll(context.Background(), testConfig(40000, 40002), eng, time.Now())

	c.StopAll(context.Background(), eng)

	require.Len(t, c.Servers(), 2)
	assert.Nil(t, c.Get("a").State.Running)
	assert.Nil(t, c.Get("b").State.Running)
}
