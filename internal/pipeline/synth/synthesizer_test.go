package synth

import (
	"fmt"
	"testing"
	"time"

	"clinical-dss-be/internal/constant"
	"clinical-dss-be/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func doc(id string, relevance float64, publishedAt time.Time) entity.EvidenceDocument {
	return entity.EvidenceDocument{
		ExternalId:  id,
		Title:       "Randomized controlled trial of intervention " + id,
		Journal:     "Journal of Internal Medicine",
		PublishedAt: publishedAt,
		Abstract:    "Background text. Conclusion: the intervention reduced adverse outcomes in the study population.",
		Relevance:   relevance,
	}
}

func TestSynthesize_EmptyEvidence(t *testing.T) {
	rec := Synthesize(nil, nil, "some clinical question", fixedNow)

	assert.Equal(t, 0.1, rec.Confidence)
	assert.Equal(t, constant.EvidenceLevelD, rec.EvidenceLevel)
	assert.Empty(t, rec.Supporting)
	assert.NotEmpty(t, rec.Contraindications)
	assert.NotEmpty(t, rec.Disclaimer)
}

func TestSynthesize_Deterministic(t *testing.T) {
	docs := []entity.EvidenceDocument{
		doc("d1", 0.92, fixedNow.AddDate(-1, 0, 0)),
		doc("d2", 0.81, fixedNow.AddDate(-2, 0, 0)),
		doc("d3", 0.55, fixedNow.AddDate(-4, 0, 0)),
	}

	first := Synthesize(docs, nil, "treatment options", fixedNow)
	second := Synthesize(docs, nil, "treatment options", fixedNow)

	assert.Equal(t, first, second)
}

func TestSynthesize_ConfidenceBounds(t *testing.T) {
	var docs []entity.EvidenceDocument
	for i := 0; i < 20; i++ {
		docs = append(docs, doc(fmt.Sprintf("d%02d", i), 0.95, fixedNow))
	}

	rec := Synthesize(docs, nil, "query", fixedNow)

	assert.LessOrEqual(t, rec.Confidence, 0.95)
	assert.Greater(t, rec.Confidence, 0.0)
	assert.Equal(t, constant.EvidenceLevelA, rec.EvidenceLevel)
	assert.Len(t, rec.Supporting, 5)
}

func TestSynthesize_MoreEvidenceNeverLowersConfidence(t *testing.T) {
	base := []entity.EvidenceDocument{
		doc("d1", 0.9, fixedNow.AddDate(-1, 0, 0)),
	}

	prev := Synthesize(base, nil, "query", fixedNow).Confidence
	for i := 2; i <= 10; i++ {
		base = append(base, doc(fmt.Sprintf("d%02d", i), 0.85, fixedNow.AddDate(-1, 0, 0)))
		cur := Synthesize(base, nil, "query", fixedNow).Confidence
		assert.GreaterOrEqual(t, cur, prev, "confidence dropped when adding document %d", i)
		prev = cur
	}
}

func TestSynthesize_EvidenceLevels(t *testing.T) {
	tests := []struct {
		name string
		docs []entity.EvidenceDocument
		want string
	}{
		{
			name: "many recent high-relevance documents reach A",
			docs: []entity.EvidenceDocument{
				doc("d1", 0.95, fixedNow), doc("d2", 0.92, fixedNow), doc("d3", 0.88, fixedNow),
				doc("d4", 0.85, fixedNow), doc("d5", 0.82, fixedNow),
			},
			want: constant.EvidenceLevelA,
		},
		{
			name: "one high-relevance document among three is B",
			docs: []entity.EvidenceDocument{
				doc("d1", 0.93, fixedNow), doc("d2", 0.79, fixedNow), doc("d3", 0.58, fixedNow),
			},
			want: constant.EvidenceLevelB,
		},
		{
			name: "single recent high-relevance document is C",
			docs: []entity.EvidenceDocument{
				doc("d1", 0.9, fixedNow),
			},
			want: constant.EvidenceLevelC,
		},
		{
			name: "single stale moderate document is D",
			docs: []entity.EvidenceDocument{
				doc("d1", 0.6, fixedNow.AddDate(-4, 0, 0)),
			},
			want: constant.EvidenceLevelD,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Synthesize(tt.docs, nil, "query", fixedNow)
			assert.Equal(t, tt.want, rec.EvidenceLevel)
		})
	}
}

func TestSynthesize_SupportingEvidenceMetadata(t *testing.T) {
	docs := []entity.EvidenceDocument{doc("d1", 0.9, fixedNow.AddDate(-1, 0, 0))}
	rec := Synthesize(docs, nil, "medication dosage question", fixedNow)

	require.Len(t, rec.Supporting, 1)
	assert.Equal(t, "d1", rec.Supporting[0].ExternalId)
	assert.Equal(t, "RCT", rec.Supporting[0].StudyType)
	assert.Contains(t, rec.Supporting[0].KeyFinding, "the intervention reduced adverse outcomes")

	// Medication queries add drug-specific follow-ups.
	assert.Contains(t, rec.FollowUpActions, "Verify correct dosage and administration")
	assert.LessOrEqual(t, len(rec.FollowUpActions), 6)
}

func TestSynthesize_UrgentContextRisk(t *testing.T) {
	pc := &entity.PatientContext{Urgency: "emergency"}
	rec := Synthesize([]entity.EvidenceDocument{doc("d1", 0.9, fixedNow)}, pc, "query", fixedNow)

	assert.Contains(t, rec.RiskAssessment, "seek care promptly")
}
