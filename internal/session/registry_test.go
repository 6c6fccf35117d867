package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinical-dss-be/internal/constant"
	"clinical-dss-be/internal/entity"
	"clinical-dss-be/internal/pkg/apperr"
)

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

func newTestRegistry(maxRuns int) *Registry {
	return NewRegistry(nopLogger{}, 30*time.Minute, time.Hour, maxRuns)
}

func newTestRun(sessionId string) *entity.PipelineRun {
	return entity.NewPipelineRun(sessionId, &entity.ClinicalQuery{RawText: "test query about diabetes"})
}

func TestRegistry_AdmitAndSubmit(t *testing.T) {
	r := newTestRegistry(1)
	r.Admit("conn-1")

	run := newTestRun("conn-1")
	require.NoError(t, r.Submit("conn-1", run))

	snap, err := r.Run(run.Id)
	require.NoError(t, err)
	assert.Equal(t, run.Id, snap.Id)
	assert.Equal(t, "conn-1", snap.SessionId)
}

func TestRegistry_SubmitUnknownSession(t *testing.T) {
	r := newTestRegistry(1)

	err := r.Submit("nope", newTestRun("nope"))

	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRegistry_ConcurrencyCapPerSession(t *testing.T) {
	r := newTestRegistry(1)
	r.Admit("conn-1")

	first := newTestRun("conn-1")
	require.NoError(t, r.Submit("conn-1", first))

	// A second live run exceeds the cap; no run is registered.
	second := newTestRun("conn-1")
	err := r.Submit("conn-1", second)
	require.Error(t, err)
	assert.Equal(t, apperr.KindCapacityExceeded, apperr.KindOf(err))
	_, err = r.Run(second.Id)
	assert.Error(t, err)

	// Once the first run terminates, capacity frees up.
	first.SetTerminal(constant.RunStatusCompleted)
	require.NoError(t, r.Submit("conn-1", second))
}

func TestRegistry_CancelChecksOwnership(t *testing.T) {
	r := newTestRegistry(1)
	r.Admit("conn-1")
	r.Admit("conn-2")

	run := newTestRun("conn-1")
	require.NoError(t, r.Submit("conn-1", run))

	err := r.Cancel("conn-2", run.Id)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.False(t, run.CancelRequested())

	require.NoError(t, r.Cancel("conn-1", run.Id))
	assert.True(t, run.CancelRequested())
}

func TestRegistry_CancelUnknownRun(t *testing.T) {
	r := newTestRegistry(1)
	r.Admit("conn-1")

	err := r.Cancel("conn-1", uuid.New())

	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRegistry_ReleaseCancelsLiveRunsAndNotifies(t *testing.T) {
	r := newTestRegistry(2)

	released := make(chan string, 1)
	r.SetOnRelease(func(sessionId string) { released <- sessionId })

	r.Admit("conn-1")
	live := newTestRun("conn-1")
	done := newTestRun("conn-1")
	require.NoError(t, r.Submit("conn-1", live))
	require.NoError(t, r.Submit("conn-1", done))
	done.SetTerminal(constant.RunStatusCompleted)

	r.Release("conn-1")

	select {
	case id := <-released:
		assert.Equal(t, "conn-1", id)
	case <-time.After(time.Second):
		t.Fatal("release callback never fired")
	}

	assert.True(t, live.CancelRequested())
	assert.False(t, done.CancelRequested(), "terminal runs are left alone")

	// Finished runs stay fetchable for the retention window.
	_, err := r.Run(done.Id)
	assert.NoError(t, err)
	_, found := r.Get("conn-1")
	assert.False(t, found)
}

func TestRegistry_RunNotFound(t *testing.T) {
	r := newTestRegistry(1)

	_, err := r.Run(uuid.New())

	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
