package implementation

import (
	"context"
	"errors"

	"clinical-dss-be/internal/entity"
	"clinical-dss-be/internal/mapper"
	"clinical-dss-be/internal/model"
	"clinical-dss-be/internal/repository/contract"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EvidencePaperRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.EvidencePaperMapper
}

func NewEvidencePaperRepository(db *gorm.DB) contract.EvidencePaperRepository {
	return &EvidencePaperRepositoryImpl{
		db:     db,
		mapper: mapper.NewEvidencePaperMapper(),
	}
}

func (r *EvidencePaperRepositoryImpl) UpsertBulk(ctx context.Context, docs []*entity.EvidenceDocument) error {
	if len(docs) == 0 {
		return nil
	}

	models := r.mapper.ToModels(docs)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			UpdateAll: true,
		}).
		Create(models).Error
}

func (r *EvidencePaperRepositoryImpl) FindByExternalId(ctx context.Context, externalId string) (*entity.EvidenceDocument, error) {
	var m model.EvidencePaper
	err := r.db.WithContext(ctx).Where("external_id = ?", externalId).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

// SearchSimilarWithScore returns papers with similarity scores, filtered by threshold.
// Cosine distance in pgvector is 1 - cosine_similarity, so we compute
// 1 - (embedding_value <=> query_vector) to get the similarity back.
func (r *EvidencePaperRepositoryImpl) SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, threshold float64) ([]*contract.ScoredEvidence, error) {
	if limit <= 0 {
		limit = 10
	}

	type result struct {
		model.EvidencePaper
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	err := r.db.WithContext(ctx).
		Table("evidence_papers").
		Select("evidence_papers.*, 1 - (embedding_value <=> ?) as similarity", queryVector).
		Where("evidence_papers.deleted_at IS NULL").
		Where("1 - (embedding_value <=> ?) >= ?", queryVector, threshold).
		Order("similarity DESC").
		Limit(limit).
		Scan(&results).Error

	if err != nil {
		return nil, err
	}

	scored := make([]*contract.ScoredEvidence, len(results))
	for i, res := range results {
		scored[i] = &contract.ScoredEvidence{
			Document:   r.mapper.ToEntity(&res.EvidencePaper),
			Similarity: res.Similarity,
		}
	}
	return scored, nil
}

func (r *EvidencePaperRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.EvidencePaper{}).Count(&count).Error
	return count, err
}
