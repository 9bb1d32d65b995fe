// Package cluster implements the Server Cluster control loop: the
// scheduler that owns every declared server, reconciles state toward the
// declaration on each poll, allocates ports, and serializes/restores
// running state across supervisor restarts. A *logrus.Entry is threaded
// through every constructor, errors surface as logged warnings rather than
// propagate, and concurrent fan-out inside a poll is always re-joined
// before the next phase begins.
package cluster

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nstack/wraith-supervisor/internal/config"
	"github.com/nstack/wraith-supervisor/internal/engine"
	"github.com/nstack/wraith-supervisor/internal/schedule"
	"github.com/nstack/wraith-supervisor/internal/server"
)

// PollResult reports whether a poll changed any server's running state.
type PollResult int

const (
	NoWork PollResult = iota
	DidWork
)

// Cluster owns the ordered collection of servers and drives reconciliation.
type Cluster struct {
	servers   []*server.Server
	log       *logrus.Entry
	logCopier server.LogCopier
}

// New returns an empty cluster.
func New(log *logrus.Entry, logCopier server.LogCopier) *Cluster {
	return &Cluster{log: log, logCopier: logCopier}
}

// Servers returns the cluster's current servers in iteration order. Callers
// must not retain the slice across a LoadServers call.
func (c *Cluster) Servers() []*server.Server { return c.servers }

// Get returns the server with the given id, or nil.
func (c *Cluster) Get(id string) *server.Server {
	for _, s := range c.servers {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// LoadServers implements the reload protocol: existing running state is
// carried into matching new entries by id; entries that
// drop out of the new config but are still Running are kept and marked
// IsOld; entries both absent and NotRunning are dropped.
func (c *Cluster) LoadServers(newServers []*server.Server) {
	oldByID := make(map[string]*server.Server, len(c.servers))
	for _, s := range c.servers {
		oldByID[s.ID] = s
	}

	for _, ns := range newServers {
		old, found := oldByID[ns.ID]
		if !found {
			c.log.WithField("server", ns.ID).Debug("loaded new server")
			continue
		}
		ns.State = old.State
		if !reflect.DeepEqual(ns.Config, old.Config) {
			c.log.WithField("server", ns.ID).Warn("server config has changed, this will only apply the next time the server is started")
		}
		delete(oldByID, ns.ID)
	}

	// Whatever remains in oldByID was not present in the new config.
	// Preserve iteration order among the survivors by walking the old
	// slice rather than the map.
	for _, old := range c.servers {
		if _, stillOld := oldByID[old.ID]; !stillOld {
			continue
		}
		if old.State.NotRunning() {
			continue
		}
		c.log.WithField("server", old.ID).Warn(`server is no longer in the config, use "stopold" to stop it`)
		old.IsOld = true
		newServers = append(newServers, old)
	}

	c.servers = newServers
}

// StopOld stops every server marked IsOld and removes it from the cluster.
func (c *Cluster) StopOld(ctx context.Context, eng engine.Engine) {
	var wg sync.WaitGroup
	for _, s := range c.servers {
		if !s.IsOld {
			continue
		}
		wg.Add(1)
		go func(s *server.Server) {
			defer wg.Done()
			if err := s.Stop(ctx, eng); err != nil {
				c.log.WithField("server", s.ID).WithError(err).Error("failed to stop old server")
			}
		}(s)
	}
	wg.Wait()

	kept := c.servers[:0]
	for _, s := range c.servers {
		if !s.IsOld {
			kept = append(kept, s)
		}
	}
	c.servers = kept
}

// StopAll stops every server, leaving them NotRunning in the list.
func (c *Cluster) StopAll(ctx context.Context, eng engine.Engine) {
	var wg sync.WaitGroup
	for _, s := range c.servers {
		wg.Add(1)
		go func(s *server.Server) {
			defer wg.Done()
			if err := s.Stop(ctx, eng); err != nil {
				c.log.WithField("server", s.ID).WithError(err).Error("failed to stop server")
			}
		}(s)
	}
	wg.Wait()
}

// SerializedServer is the minimum identity needed to re-adopt a running
// server across a supervisor restart.
type SerializedServer struct {
	Name        string `json:"name"`
	ContainerID string `json:"container_id"`
	GamePort    uint16 `json:"game_port"`
}

// Serialize returns the identity of every Running server.
func (c *Cluster) Serialize() []SerializedServer {
	out := make([]SerializedServer, 0, len(c.servers))
	for _, s := range c.servers {
		if s.State.Running == nil {
			continue
		}
		out = append(out, SerializedServer{
			Name:        s.ID,
			ContainerID: s.State.Running.ContainerID,
			GamePort:    s.State.Running.GamePort,
		})
	}
	return out
}

// Deserialize restores Running state for every record whose server is
// still declared and whose container the engine confirms is alive.
// Records that can't be matched are warned about and skipped — the
// container may still be running but is now unmanaged.
func (c *Cluster) Deserialize(ctx context.Context, records []SerializedServer, eng engine.Engine) {
	for _, rec := range records {
		s := c.Get(rec.Name)
		if s == nil {
			c.log.WithField("server", rec.Name).Warn("server is no longer in the config, so it won't be restored; it might still be running")
			continue
		}

		st, err := eng.Inspect(ctx, rec.ContainerID)
		if err != nil || !st.Running {
			c.log.WithField("server", rec.Name).Warn("server doesn't appear to be running anymore")
			continue
		}

		s.State = server.State{Running: &server.RunningState{
			ContainerID: rec.ContainerID,
			GamePort:    rec.GamePort,
			StartTime:   st.Created,
		}}
		c.log.WithFields(logrus.Fields{"server": rec.Name, "container": rec.ContainerID}).Debug("restored server")
	}
}

// restartDetails is Phase B's output for one queued server.
type restartDetails struct {
	index    int
	gamePort uint16
}

// Poll runs one reconciliation pass: liveness/schedule sweep, port
// allocation, then start.
func (c *Cluster) Poll(ctx context.Context, cfg *config.Config, eng engine.Engine, now time.Time) PollResult {
	restartQueue := c.phaseA(ctx, eng, now)
	if len(restartQueue) == 0 {
		return NoWork
	}

	toStart := c.phaseB(cfg, restartQueue)
	return c.phaseC(ctx, eng, toStart)
}

// phaseA concurrently inspects every server, enqueuing indices that need a
// (re)start: not-running servers, servers whose container the engine no
// longer knows about, and servers whose cron schedule says it's time to
// restart.
func (c *Cluster) phaseA(ctx context.Context, eng engine.Engine, now time.Time) map[int]bool {
	restartQueue := map[int]bool{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, s := range c.servers {
		wg.Add(1)
		go func(i int, s *server.Server) {
			defer wg.Done()
			if c.checkServer(ctx, eng, s, now) {
				mu.Lock()
				restartQueue[i] = true
				mu.Unlock()
			}
		}(i, s)
	}
	wg.Wait()
	return restartQueue
}

// checkServer inspects (or schedules) a single server and reports whether
// it should be queued for restart.
func (c *Cluster) checkServer(ctx context.Context, eng engine.Engine, s *server.Server, now time.Time) bool {
	running := s.State.Running
	if running == nil {
		return true
	}

	st, err := eng.Inspect(ctx, running.ContainerID)
	if err != nil || !st.Running {
		c.log.WithField("server", s.ID).Warn("server appears to have stopped")
		s.State = server.State{}
		return true
	}

	if s.Config.GameConfig.CronSchedule == nil {
		return false
	}

	sched, err := schedule.Parse(*s.Config.GameConfig.CronSchedule)
	if err != nil {
		c.log.WithField("server", s.ID).WithError(err).Error("invalid cron schedule")
		return false
	}

	next := sched.NextAfter(running.StartTime)
	if next.After(now) {
		return false
	}

	c.log.WithField("server", s.ID).Warn("cron schedule due, restarting")
	if err := s.Stop(ctx, eng); err != nil {
		c.log.WithField("server", s.ID).WithError(err).Error("scheduled stop failed, will retry next poll")
		return false
	}
	return s.State.NotRunning()
}

// phaseB serially allocates a game_port for every queued server, in
// cluster iteration order, so two servers can never be assigned the same
// port within one poll.
func (c *Cluster) phaseB(cfg *config.Config, restartQueue map[int]bool) []restartDetails {
	inUse := map[uint16]bool{}
	for _, s := range c.servers {
		if s.State.Running != nil {
			inUse[s.State.Running.GamePort] = true
		}
	}

	indices := make([]int, 0, len(restartQueue))
	for i := range restartQueue {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := make([]restartDetails, 0, len(indices))
	for _, i := range indices {
		s := c.servers[i]
		port, err := allocatePort(s, cfg, inUse)
		if err != nil {
			c.log.WithField("server", s.ID).Error(err.Error())
			continue
		}
		inUse[port] = true
		out = append(out, restartDetails{index: i, gamePort: port})
	}
	return out
}

func allocatePort(s *server.Server, cfg *config.Config, inUse map[uint16]bool) (uint16, error) {
	if s.Config.GamePort != nil {
		pinned := *s.Config.GamePort
		if inUse[pinned] {
			return 0, fmt.Errorf("specified game port %d is not free", pinned)
		}
		return pinned, nil
	}
	for port := cfg.GamePorts.Start; ; port++ {
		if !inUse[port] {
			return port, nil
		}
		if port == cfg.GamePorts.End {
			break
		}
	}
	return 0, fmt.Errorf("no game ports between %d and %d are free", cfg.GamePorts.Start, cfg.GamePorts.End)
}

// phaseC concurrently starts every server Phase B allocated a port for.
func (c *Cluster) phaseC(ctx context.Context, eng engine.Engine, toStart []restartDetails) PollResult {
	if len(toStart) == 0 {
		return NoWork
	}

	var wg sync.WaitGroup
	for _, rd := range toStart {
		wg.Add(1)
		go func(rd restartDetails) {
			defer wg.Done()
			s := c.servers[rd.index]
			if err := s.Start(ctx, rd.gamePort, eng, c.logCopier); err != nil {
				c.log.WithField("server", s.ID).WithError(err).Error("could not start server")
			}
		}(rd)
	}
	wg.Wait()
	return DidWork
}
