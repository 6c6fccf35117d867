package dto

import (
	"time"

	"github.com/google/uuid"

	"clinical-dss-be/internal/entity"
)

// PatientContextDTO mirrors entity.PatientContext on the wire.
type PatientContextDTO struct {
	Age         int      `json:"age,omitempty" validate:"omitempty,gte=0,lte=130"`
	Gender      string   `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Conditions  []string `json:"conditions,omitempty" validate:"max=20"`
	Medications []string `json:"medications,omitempty" validate:"max=30"`
	Urgency     string   `json:"urgency,omitempty" validate:"omitempty,oneof=routine urgent emergency"`
}

func (d *PatientContextDTO) ToEntity() *entity.PatientContext {
	if d == nil {
		return nil
	}
	return &entity.PatientContext{
		Age:         d.Age,
		Gender:      d.Gender,
		Conditions:  d.Conditions,
		Medications: d.Medications,
		Urgency:     d.Urgency,
	}
}

// InboundMessage is the typed union of everything a client may send over
// the websocket. Type selects the variant; unused fields stay zero.
type InboundMessage struct {
	Type           string             `json:"type" validate:"required"`
	Query          string             `json:"query,omitempty"`
	PatientContext *PatientContextDTO `json:"patient_context,omitempty"`
	RunId          string             `json:"run_id,omitempty"`
	SearchQuery    string             `json:"search_query,omitempty"`
	MaxResults     int                `json:"max_results,omitempty"`
}

// ClinicalQueryRequest is the validated payload of a clinical_query message.
type ClinicalQueryRequest struct {
	Query          string             `json:"query" validate:"required,min=1,max=10000"`
	PatientContext *PatientContextDTO `json:"patient_context,omitempty"`
}

// SourceDTO is one literature source attached to a clinical response,
// ordered by descending relevance.
type SourceDTO struct {
	ExternalId     string    `json:"external_id"`
	Title          string    `json:"title"`
	Authors        []string  `json:"authors,omitempty"`
	Journal        string    `json:"journal"`
	PublishedAt    time.Time `json:"published_at"`
	RelevanceScore float64   `json:"relevance_score"`
	URL            string    `json:"url,omitempty"`
}

// PipelineEvent is the single outbound event envelope. Seq orders delivery
// per run; the broadcaster never reorders or retracts events.
type PipelineEvent struct {
	Type           string                 `json:"type"`
	RunId          uuid.UUID              `json:"run_id"`
	SessionId      string                 `json:"-"`
	Stage          string                 `json:"stage,omitempty"`
	Outcome        string                 `json:"outcome,omitempty"`
	Seq            uint64                 `json:"seq,omitempty"`
	Kind           string                 `json:"kind,omitempty"`
	Message        string                 `json:"message,omitempty"`
	Recommendation *entity.Recommendation `json:"recommendation,omitempty"`
	Sources        []SourceDTO            `json:"sources,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// WelcomeMessage greets a freshly connected session.
type WelcomeMessage struct {
	Type         string    `json:"type"`
	SessionId    string    `json:"session_id"`
	ServerTime   time.Time `json:"server_time"`
	Capabilities []string  `json:"capabilities"`
}

// LiteratureSearchResults answers a standalone literature_search message.
type LiteratureSearchResults struct {
	Type        string      `json:"type"`
	SearchQuery string      `json:"search_query"`
	TotalFound  int         `json:"total_found"`
	Results     []SourceDTO `json:"results"`
	Timestamp   time.Time   `json:"timestamp"`
}

// RunSnapshotResponse is the REST view a client re-fetches after a resync.
type RunSnapshotResponse struct {
	Id           uuid.UUID            `json:"id"`
	Status       string               `json:"status"`
	CurrentStage string               `json:"current_stage"`
	Seq          uint64               `json:"seq"`
	History      []entity.StageRecord `json:"stage_history"`
}
