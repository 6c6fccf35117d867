package entity

import "time"

// EvidenceDocument is a retrieved literature record. Instances are never
// mutated after creation; re-ranking produces new scored copies.
type EvidenceDocument struct {
	ExternalId  string
	Title       string
	Authors     []string
	Journal     string
	PublishedAt time.Time
	Abstract    string
	Relevance   float64
	Embedding   []float32
}

// SupportingEvidence is one graded entry in a recommendation.
type SupportingEvidence struct {
	ExternalId  string    `json:"external_id"`
	Title       string    `json:"title"`
	Journal     string    `json:"journal"`
	PublishedAt time.Time `json:"published_at"`
	Relevance   float64   `json:"relevance_score"`
	StudyType   string    `json:"study_type"`
	KeyFinding  string    `json:"key_finding"`
}

// Recommendation is produced once by the synthesizer at completion.
type Recommendation struct {
	Text              string               `json:"text"`
	Confidence        float64              `json:"confidence"`
	EvidenceLevel     string               `json:"evidence_level"`
	Supporting        []SupportingEvidence `json:"supporting_evidence"`
	RiskAssessment    string               `json:"risk_assessment"`
	Contraindications []string             `json:"contraindications"`
	FollowUpActions   []string             `json:"follow_up_actions"`
	Disclaimer        string               `json:"disclaimer"`
}
