package entity

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"clinical-dss-be/internal/constant"
)

// StageRecord is one appended entry of a run's stage history.
type StageRecord struct {
	Stage     string     `json:"stage"`
	EnteredAt time.Time  `json:"entered_at"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
	Outcome   string     `json:"outcome,omitempty"`
}

// PipelineRun is the state machine instance for one query. The orchestrator
// owns it exclusively for its lifetime; everyone else only sees Snapshot().
type PipelineRun struct {
	Id        uuid.UUID
	SessionId string
	Query     *ClinicalQuery

	mu           sync.Mutex
	currentStage string
	status       string
	history      []StageRecord
	seq          uint64
	cancelFlag   atomic.Bool
}

func NewPipelineRun(sessionId string, query *ClinicalQuery) *PipelineRun {
	return &PipelineRun{
		Id:        uuid.New(),
		SessionId: sessionId,
		Query:     query,
		status:    constant.RunStatusPending,
	}
}

// RunSnapshot is the read-only view handed to the broadcaster and the
// snapshot endpoint.
type RunSnapshot struct {
	Id           uuid.UUID     `json:"id"`
	SessionId    string        `json:"session_id"`
	CurrentStage string        `json:"current_stage"`
	Status       string        `json:"status"`
	History      []StageRecord `json:"stage_history"`
	Seq          uint64        `json:"seq"`
}

func (r *PipelineRun) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := make([]StageRecord, len(r.history))
	copy(history, r.history)
	return RunSnapshot{
		Id:           r.Id,
		SessionId:    r.SessionId,
		CurrentStage: r.currentStage,
		Status:       r.status,
		History:      history,
		Seq:          r.seq,
	}
}

// EnterStage appends a history record and marks the run Running.
func (r *PipelineRun) EnterStage(stage string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentStage = stage
	if r.status == constant.RunStatusPending {
		r.status = constant.RunStatusRunning
	}
	r.history = append(r.history, StageRecord{Stage: stage, EnteredAt: at})
}

// ExitStage closes the latest history record with its outcome.
func (r *PipelineRun) ExitStage(outcome string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return
	}
	last := &r.history[len(r.history)-1]
	last.ExitedAt = &at
	last.Outcome = outcome
}

// NextSeq increments and returns the monotonic event sequence counter.
func (r *PipelineRun) NextSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

// SetTerminal moves the run into a terminal status. Terminal statuses are
// never revisited.
func (r *PipelineRun) SetTerminal(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isTerminalLocked() {
		return
	}
	r.status = status
}

func (r *PipelineRun) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *PipelineRun) Terminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isTerminalLocked()
}

func (r *PipelineRun) isTerminalLocked() bool {
	switch r.status {
	case constant.RunStatusCompleted, constant.RunStatusFailed, constant.RunStatusCancelled:
		return true
	}
	return false
}

// RequestCancel sets the cooperative cancel flag. The orchestrator checks
// it at every stage boundary; an in-flight external call is left to finish.
func (r *PipelineRun) RequestCancel() {
	r.cancelFlag.Store(true)
}

func (r *PipelineRun) CancelRequested() bool {
	return r.cancelFlag.Load()
}
