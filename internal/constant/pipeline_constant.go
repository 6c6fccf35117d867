package constant

// Pipeline stages, in execution order.
const (
	StageReceived                = "received"
	StageSanitizing              = "sanitizing"
	StageEntityExtraction        = "entity_extraction"
	StageLiteratureRetrieval     = "literature_retrieval"
	StageEmbedding               = "embedding"
	StageSimilaritySearch        = "similarity_search"
	StageEvidenceRanking         = "evidence_ranking"
	StageRecommendationSynthesis = "recommendation_synthesis"
)

// StageOrder is the fixed sequence a run walks through before Completed.
var StageOrder = []string{
	StageReceived,
	StageSanitizing,
	StageEntityExtraction,
	StageLiteratureRetrieval,
	StageEmbedding,
	StageSimilaritySearch,
	StageEvidenceRanking,
	StageRecommendationSynthesis,
}

// Run statuses.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// Stage outcomes recorded in a run's history.
const (
	StageOutcomeOK            = "ok"
	StageOutcomeCacheHit      = "cache_hit"
	StageOutcomeFailed        = "failed"
	StageOutcomeCancelled     = "cancelled"
	StageOutcomeLowConfidence = "low_confidence"
)

// Client -> core message types.
const (
	MessageTypeClinicalQuery    = "clinical_query"
	MessageTypeLiteratureSearch = "literature_search"
	MessageTypeCancel           = "cancel"
	MessageTypePing             = "ping"
)

// Core -> client message types.
const (
	EventTypeWelcome                 = "welcome"
	EventTypePong                    = "pong"
	EventTypeProcessingStep          = "processing_step"
	EventTypeClinicalResponse        = "clinical_response"
	EventTypeLiteratureSearchStarted = "literature_search_started"
	EventTypeLiteratureSearchResults = "literature_search_results"
	EventTypeError                   = "error"
	EventTypeResync                  = "resync"
)

// External collaborator names, used for guards and log tagging.
const (
	CollaboratorEntityExtraction = "entity_extraction"
	CollaboratorLiterature       = "literature_search"
	CollaboratorEmbedding        = "embedding"
	CollaboratorVectorStore      = "vector_store"
)

// Evidence levels, strongest first.
const (
	EvidenceLevelA = "A"
	EvidenceLevelB = "B"
	EvidenceLevelC = "C"
	EvidenceLevelD = "D"
)
