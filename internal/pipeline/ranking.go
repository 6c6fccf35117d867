package pipeline

import (
	"sort"
	"time"

	"clinical-dss-be/internal/entity"
)

const (
	relevanceWeight = 0.7
	recencyWeight   = 0.3

	// Papers older than this window score zero recency.
	recencyWindowYears = 5
)

// RecencyScore maps a publication date to [0, 1]: 1.0 for papers published
// now, decaying linearly to 0 at the window boundary.
func RecencyScore(publishedAt time.Time, now time.Time) float64 {
	if publishedAt.IsZero() || publishedAt.After(now) {
		return 0
	}
	ageYears := now.Sub(publishedAt).Hours() / (24 * 365.25)
	if ageYears >= recencyWindowYears {
		return 0
	}
	return 1 - ageYears/recencyWindowYears
}

// RankEvidence blends similarity and recency into a final score and sorts
// documents best-first. The input is never mutated; scored copies are
// returned with the blended score in Relevance. Ties break on ascending
// ExternalId so identical inputs always rank identically.
func RankEvidence(docs []entity.EvidenceDocument, now time.Time) []entity.EvidenceDocument {
	ranked := make([]entity.EvidenceDocument, len(docs))
	copy(ranked, docs)

	for i := range ranked {
		blended := relevanceWeight*ranked[i].Relevance + recencyWeight*RecencyScore(ranked[i].PublishedAt, now)
		ranked[i].Relevance = blended
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		return ranked[i].ExternalId < ranked[j].ExternalId
	})
	return ranked
}
