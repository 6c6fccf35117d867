package contract

import (
	"context"

	"clinical-dss-be/internal/entity"
)

// ScoredEvidence pairs a stored paper with its cosine similarity to a
// query vector.
type ScoredEvidence struct {
	Document   *entity.EvidenceDocument
	Similarity float64
}

type EvidencePaperRepository interface {
	// UpsertBulk stores retrieved papers, updating records that share an
	// external id.
	UpsertBulk(ctx context.Context, docs []*entity.EvidenceDocument) error

	FindByExternalId(ctx context.Context, externalId string) (*entity.EvidenceDocument, error)

	// SearchSimilarWithScore returns the stored papers nearest to the query
	// vector, with cosine similarity, filtered by threshold.
	SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, threshold float64) ([]*ScoredEvidence, error)

	Count(ctx context.Context) (int64, error)
}
