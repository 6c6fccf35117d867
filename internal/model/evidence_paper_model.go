package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type EvidencePaper struct {
	Id             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ExternalId     string          `gorm:"type:varchar(64);uniqueIndex;not null"`
	Title          string          `gorm:"type:text"`
	Authors        string          `gorm:"type:text"` // semicolon-separated
	Journal        string          `gorm:"type:varchar(255)"`
	PublishedAt    time.Time       `gorm:"index"`
	Abstract       string          `gorm:"type:text"`
	EmbeddingValue pgvector.Vector `gorm:"type:vector(768)"` // nomic-embed-text uses 768 dimensions
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime"`
	DeletedAt      gorm.DeletedAt  `gorm:"index"`
}

func (EvidencePaper) TableName() string {
	return "evidence_papers"
}
