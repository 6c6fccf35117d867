package mapper

import (
	"strings"

	"clinical-dss-be/internal/entity"
	"clinical-dss-be/internal/model"

	"github.com/pgvector/pgvector-go"
)

type EvidencePaperMapper struct{}

func NewEvidencePaperMapper() *EvidencePaperMapper {
	return &EvidencePaperMapper{}
}

func (m *EvidencePaperMapper) ToEntity(p *model.EvidencePaper) *entity.EvidenceDocument {
	if p == nil {
		return nil
	}

	var authors []string
	if p.Authors != "" {
		authors = strings.Split(p.Authors, "; ")
	}

	return &entity.EvidenceDocument{
		ExternalId:  p.ExternalId,
		Title:       p.Title,
		Authors:     authors,
		Journal:     p.Journal,
		PublishedAt: p.PublishedAt,
		Abstract:    p.Abstract,
		Embedding:   p.EmbeddingValue.Slice(),
	}
}

func (m *EvidencePaperMapper) ToModel(d *entity.EvidenceDocument) *model.EvidencePaper {
	if d == nil {
		return nil
	}

	return &model.EvidencePaper{
		ExternalId:     d.ExternalId,
		Title:          d.Title,
		Authors:        strings.Join(d.Authors, "; "),
		Journal:        d.Journal,
		PublishedAt:    d.PublishedAt,
		Abstract:       d.Abstract,
		EmbeddingValue: pgvector.NewVector(d.Embedding),
	}
}

func (m *EvidencePaperMapper) ToEntities(papers []*model.EvidencePaper) []*entity.EvidenceDocument {
	entities := make([]*entity.EvidenceDocument, len(papers))
	for i, p := range papers {
		entities[i] = m.ToEntity(p)
	}
	return entities
}

func (m *EvidencePaperMapper) ToModels(docs []*entity.EvidenceDocument) []*model.EvidencePaper {
	models := make([]*model.EvidencePaper, len(docs))
	for i, d := range docs {
		models[i] = m.ToModel(d)
	}
	return models
}
