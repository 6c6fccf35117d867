package events

import "time"

// Event defines the contract for audit events emitted to the message bus.
type Event interface {
	// EventType returns the unique code for this event (e.g., "PIPELINE_COMPLETED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// PipelineCompleted is published when a run reaches the completed state.
func PipelineCompleted(runId, sessionId string, confidence float64, evidenceLevel string) Event {
	return BaseEvent{
		Type: "PIPELINE_COMPLETED",
		Data: map[string]interface{}{
			"run_id":         runId,
			"session_id":     sessionId,
			"confidence":     confidence,
			"evidence_level": evidenceLevel,
		},
		OccurredAt: time.Now(),
	}
}

// PipelineFailed is published when a run terminates with a failure.
func PipelineFailed(runId, sessionId, stage, kind string) Event {
	return BaseEvent{
		Type: "PIPELINE_FAILED",
		Data: map[string]interface{}{
			"run_id":     runId,
			"session_id": sessionId,
			"stage":      stage,
			"kind":       kind,
		},
		OccurredAt: time.Now(),
	}
}

// PipelineCancelled is published when a run is cancelled by the client.
func PipelineCancelled(runId, sessionId, stage string) Event {
	return BaseEvent{
		Type: "PIPELINE_CANCELLED",
		Data: map[string]interface{}{
			"run_id":     runId,
			"session_id": sessionId,
			"stage":      stage,
		},
		OccurredAt: time.Now(),
	}
}
