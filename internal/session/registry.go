package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"clinical-dss-be/internal/entity"
	"clinical-dss-be/internal/pkg/apperr"
	"clinical-dss-be/internal/pkg/logger"
)

// Session tracks one live connection and the runs it owns. It holds run
// ids only; run state lives in the registry's run index.
type Session struct {
	Id string

	mu       sync.Mutex
	runIds   map[uuid.UUID]struct{}
	lastSeen time.Time
}

func (s *Session) touch(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = at
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) owns(runId uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runIds[runId]
	return ok
}

func (s *Session) runList() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.runIds))
	for id := range s.runIds {
		out = append(out, id)
	}
	return out
}

// Registry maps connection ids to sessions and enforces the per-session
// cap on simultaneous non-terminal runs. Sessions expire after a TTL of
// inactivity; completed runs linger in the run index for snapshot
// re-fetches until their retention window lapses.
type Registry struct {
	log         logger.ILogger
	maxRuns     int
	sessions    *gocache.Cache
	runs        *gocache.Cache
	onRelease   func(sessionId string)
	onReleaseMu sync.RWMutex
}

func NewRegistry(log logger.ILogger, sessionTTL, runRetention time.Duration, maxRunsPerSession int) *Registry {
	r := &Registry{
		log:      log,
		maxRuns:  maxRunsPerSession,
		sessions: gocache.New(sessionTTL, 10*time.Minute),
		runs:     gocache.New(runRetention, 10*time.Minute),
	}

	// A session that times out is treated like a disconnect: its live runs
	// are cancelled and its event buffer dropped.
	r.sessions.OnEvicted(func(connId string, v interface{}) {
		if s, ok := v.(*Session); ok {
			r.cancelLiveRuns(s)
			r.fireRelease(s.Id)
		}
	})
	return r
}

// SetOnRelease registers the callback invoked when a session goes away.
func (r *Registry) SetOnRelease(fn func(sessionId string)) {
	r.onReleaseMu.Lock()
	defer r.onReleaseMu.Unlock()
	r.onRelease = fn
}

// Admit creates the session for a new connection.
func (r *Registry) Admit(connId string) *Session {
	s := &Session{
		Id:       connId,
		runIds:   make(map[uuid.UUID]struct{}),
		lastSeen: time.Now(),
	}
	r.sessions.SetDefault(connId, s)

	r.log.Info("session", "Session admitted", map[string]interface{}{
		"session_id": connId,
	})
	return s
}

// Touch refreshes a session's TTL, e.g. on ping.
func (r *Registry) Touch(connId string) {
	if s, found := r.Get(connId); found {
		s.touch(time.Now())
		r.sessions.SetDefault(connId, s)
	}
}

func (r *Registry) Get(connId string) (*Session, bool) {
	if v, found := r.sessions.Get(connId); found {
		return v.(*Session), true
	}
	return nil, false
}

// Submit registers a new run against its session, enforcing the cap on
// simultaneous non-terminal runs. No run is created when the cap is hit.
func (r *Registry) Submit(connId string, run *entity.PipelineRun) error {
	s, found := r.Get(connId)
	if !found {
		return apperr.New(apperr.KindNotFound, "unknown session")
	}

	s.mu.Lock()
	live := 0
	for id := range s.runIds {
		if existing, ok := r.run(id); ok && !existing.Terminal() {
			live++
		}
	}
	if live >= r.maxRuns {
		s.mu.Unlock()
		return apperr.New(apperr.KindCapacityExceeded,
			fmt.Sprintf("session already has %d active run(s); wait for completion or cancel", live))
	}
	s.runIds[run.Id] = struct{}{}
	s.mu.Unlock()

	r.runs.SetDefault(run.Id.String(), run)
	return nil
}

// Cancel requests cooperative cancellation of a run owned by the session.
func (r *Registry) Cancel(connId string, runId uuid.UUID) error {
	s, found := r.Get(connId)
	if !found {
		return apperr.New(apperr.KindNotFound, "unknown session")
	}
	if !s.owns(runId) {
		return apperr.New(apperr.KindNotFound, "unknown run")
	}

	run, ok := r.run(runId)
	if !ok {
		return apperr.New(apperr.KindNotFound, "run no longer available")
	}
	run.RequestCancel()

	r.log.Info("session", "Cancel requested", map[string]interface{}{
		"session_id": connId,
		"run_id":     runId.String(),
	})
	return nil
}

// Release tears down the session on disconnect. Live runs are cancelled;
// finished runs stay in the index for their retention window.
func (r *Registry) Release(connId string) {
	s, found := r.Get(connId)
	if !found {
		return
	}

	// Delete fires the eviction hook, which cancels live runs and drops
	// the session's event buffer.
	r.sessions.Delete(connId)

	r.log.Info("session", "Session released", map[string]interface{}{
		"session_id": connId,
		"runs":       len(s.runList()),
	})
}

// Run returns a run snapshot by id for the REST resync surface.
func (r *Registry) Run(runId uuid.UUID) (entity.RunSnapshot, error) {
	run, ok := r.run(runId)
	if !ok {
		return entity.RunSnapshot{}, apperr.New(apperr.KindNotFound, "run not found")
	}
	return run.Snapshot(), nil
}

// ActiveSessions reports the current session count for the health surface.
func (r *Registry) ActiveSessions() int {
	return r.sessions.ItemCount()
}

func (r *Registry) run(runId uuid.UUID) (*entity.PipelineRun, bool) {
	if v, found := r.runs.Get(runId.String()); found {
		return v.(*entity.PipelineRun), true
	}
	return nil, false
}

func (r *Registry) cancelLiveRuns(s *Session) {
	for _, id := range s.runList() {
		if run, ok := r.run(id); ok && !run.Terminal() {
			run.RequestCancel()
		}
	}
}

func (r *Registry) fireRelease(sessionId string) {
	r.onReleaseMu.RLock()
	fn := r.onRelease
	r.onReleaseMu.RUnlock()
	if fn != nil {
		fn(sessionId)
	}
}
