package entity

import (
	"time"

	"github.com/google/uuid"
)

// PatientContext is the optional structured context accompanying a query.
type PatientContext struct {
	Age         int      `json:"age,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	Conditions  []string `json:"conditions,omitempty"`
	Medications []string `json:"medications,omitempty"`
	Urgency     string   `json:"urgency,omitempty"`
}

// ClinicalQuery is immutable once accepted by the registry.
type ClinicalQuery struct {
	Id             uuid.UUID
	RawText        string
	SanitizedText  string
	PatientContext *PatientContext
	SubmittedAt    time.Time
}
