package synth

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"clinical-dss-be/internal/constant"
	"clinical-dss-be/internal/entity"
)

const (
	baseConfidence = 0.3
	maxConfidence  = 0.95

	// Documents at or above this blended score count as high-relevance.
	highRelevanceThreshold = 0.8

	disclaimer = "This system provides general information only and should not replace professional medical advice. Always consult with qualified healthcare providers for clinical decisions."
)

var studyTypes = []struct {
	pattern string
	label   string
}{
	{"randomized controlled trial", "RCT"},
	{"systematic review", "Systematic Review"},
	{"meta-analysis", "Meta-Analysis"},
	{"cohort study", "Cohort Study"},
	{"case-control study", "Case-Control Study"},
	{"case series", "Case Series"},
	{"case report", "Case Report"},
	{"observational study", "Observational Study"},
	{"clinical trial", "Clinical Trial"},
}

var conclusionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)conclusions?[:\-\s]([^.]+)`),
	regexp.MustCompile(`(?i)results?[:\-\s]([^.]+)`),
	regexp.MustCompile(`(?i)findings?[:\-\s]([^.]+)`),
}

var cautionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)contraindicated?[^.]*`),
	regexp.MustCompile(`(?i)not recommended[^.]*`),
	regexp.MustCompile(`(?i)avoid[^.]*`),
	regexp.MustCompile(`(?i)caution[^.]*`),
}

// Synthesize turns ranked evidence into a graded recommendation. It is a
// pure function of its arguments: identical input always yields an
// identical Recommendation. Document Relevance is expected to carry the
// blended ranking score.
func Synthesize(ranked []entity.EvidenceDocument, pc *entity.PatientContext, query string, now time.Time) *entity.Recommendation {
	if len(ranked) == 0 {
		return &entity.Recommendation{
			Text:              "Insufficient evidence found. Please consult with a healthcare provider.",
			Confidence:        0.1,
			EvidenceLevel:     constant.EvidenceLevelD,
			Supporting:        []entity.SupportingEvidence{},
			RiskAssessment:    "Unable to assess risk without supporting evidence.",
			Contraindications: []string{"Consult healthcare provider before any clinical decisions"},
			FollowUpActions:   []string{"Seek professional medical advice"},
			Disclaimer:        disclaimer,
		}
	}

	highCount := 0
	recencySum := 0.0
	for _, doc := range ranked {
		if doc.Relevance >= highRelevanceThreshold {
			highCount++
		}
		recencySum += recencyScore(doc.PublishedAt, now)
	}

	confidence := computeConfidence(len(ranked), highCount, recencySum)
	level := evidenceLevel(confidence, len(ranked), highCount)

	return &entity.Recommendation{
		Text:              buildText(ranked),
		Confidence:        confidence,
		EvidenceLevel:     level,
		Supporting:        supportingEvidence(ranked),
		RiskAssessment:    riskAssessment(level, pc),
		Contraindications: contraindications(ranked),
		FollowUpActions:   followUpActions(query),
		Disclaimer:        disclaimer,
	}
}

// computeConfidence blends high-relevance count, corroborating-document
// count and recency. Every term is a capped count, so adding a document
// can only raise or hold the score, never lower it.
func computeConfidence(total, highCount int, recencySum float64) float64 {
	score := baseConfidence

	// High-relevance contribution, saturating at 3 documents.
	score += 0.4 * minFloat(float64(highCount), 3) / 3

	// Corroboration contribution.
	switch {
	case total >= 5:
		score += 0.3
	case total >= 3:
		score += 0.2
	default:
		score += 0.1
	}

	// Recency-weighted agreement, saturating at 3 recent documents.
	score += 0.2 * minFloat(recencySum, 3) / 3

	return minFloat(score, maxConfidence)
}

func evidenceLevel(confidence float64, total, highCount int) string {
	switch {
	case confidence >= 0.85 && highCount >= 3:
		return constant.EvidenceLevelA
	case confidence >= 0.7 && total >= 3:
		return constant.EvidenceLevelB
	case confidence >= 0.5 && total >= 1:
		return constant.EvidenceLevelC
	default:
		return constant.EvidenceLevelD
	}
}

func recencyScore(publishedAt, now time.Time) float64 {
	if publishedAt.IsZero() || publishedAt.After(now) {
		return 0
	}
	ageYears := now.Sub(publishedAt).Hours() / (24 * 365.25)
	if ageYears >= 5 {
		return 0
	}
	return 1 - ageYears/5
}

func buildText(ranked []entity.EvidenceDocument) string {
	var findings []string
	for _, doc := range topN(ranked, 3) {
		if f := keyFinding(doc); f != "" {
			findings = append(findings, f)
		}
	}

	if len(findings) == 0 {
		return "Based on available evidence, consult with your healthcare provider for personalized recommendations appropriate to your specific clinical situation."
	}

	parts := []string{
		"Based on current medical literature:",
		fmt.Sprintf("Evidence from %d studies suggests:", len(ranked)),
	}
	for i, f := range findings {
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, f))
	}
	parts = append(parts,
		"However, individual patient factors must be considered.",
		"Please discuss these findings with your healthcare provider for personalized medical advice.")
	return strings.Join(parts, " ")
}

func supportingEvidence(ranked []entity.EvidenceDocument) []entity.SupportingEvidence {
	docs := topN(ranked, 5)
	out := make([]entity.SupportingEvidence, len(docs))
	for i, doc := range docs {
		out[i] = entity.SupportingEvidence{
			ExternalId:  doc.ExternalId,
			Title:       doc.Title,
			Journal:     doc.Journal,
			PublishedAt: doc.PublishedAt,
			Relevance:   doc.Relevance,
			StudyType:   studyType(doc),
			KeyFinding:  keyFinding(doc),
		}
	}
	return out
}

func studyType(doc entity.EvidenceDocument) string {
	content := strings.ToLower(doc.Title + " " + doc.Abstract)
	for _, st := range studyTypes {
		if strings.Contains(content, st.pattern) {
			return st.label
		}
	}
	return "Research Study"
}

func keyFinding(doc entity.EvidenceDocument) string {
	for _, p := range conclusionPatterns {
		if m := p.FindStringSubmatch(doc.Abstract); len(m) > 1 {
			return truncate(strings.TrimSpace(m[1]), 200)
		}
	}
	if sentences := strings.SplitN(doc.Abstract, ". ", 2); sentences[0] != "" {
		return truncate(sentences[0], 200)
	}
	return ""
}

func contraindications(ranked []entity.EvidenceDocument) []string {
	out := []string{
		"Consult healthcare provider before making any clinical decisions",
		"Consider individual patient factors and medical history",
		"Verify drug interactions and allergies",
	}

	for _, doc := range topN(ranked, 3) {
		for _, p := range cautionPatterns {
			matches := p.FindAllString(doc.Abstract, 2)
			for _, m := range matches {
				m = strings.TrimSpace(m)
				if len(m) > 10 {
					out = append(out, truncate(m, 150))
				}
			}
		}
	}

	if len(out) > 7 {
		out = out[:7]
	}
	return out
}

func followUpActions(query string) []string {
	actions := []string{
		"Discuss findings with your primary care provider",
		"Schedule appropriate follow-up appointments",
		"Monitor for any adverse effects or changes",
	}

	queryLower := strings.ToLower(query)
	if containsAny(queryLower, "medication", "drug", "treatment") {
		actions = append(actions,
			"Verify correct dosage and administration",
			"Check for drug interactions",
			"Monitor therapeutic response")
	}
	if containsAny(queryLower, "diagnosis", "symptom", "condition") {
		actions = append(actions,
			"Consider additional diagnostic tests if indicated",
			"Monitor symptom progression",
			"Seek immediate care for concerning symptoms")
	}
	if containsAny(queryLower, "surgery", "procedure", "operation") {
		actions = append(actions,
			"Discuss risks and benefits with surgeon",
			"Obtain second opinion if appropriate",
			"Review pre and post-operative care")
	}

	if len(actions) > 6 {
		actions = actions[:6]
	}
	return actions
}

func riskAssessment(level string, pc *entity.PatientContext) string {
	urgencyNote := ""
	if pc != nil && (strings.EqualFold(pc.Urgency, "urgent") || strings.EqualFold(pc.Urgency, "emergency")) {
		urgencyNote = " Given the urgency indicated, seek care promptly."
	}

	switch level {
	case constant.EvidenceLevelA:
		return "Supported by strong, consistent evidence from multiple high-quality studies." + urgencyNote
	case constant.EvidenceLevelB:
		return "Supported by moderate evidence; some uncertainty remains across studies." + urgencyNote
	case constant.EvidenceLevelC:
		return "Supported by limited evidence; interpret with care and corroborate clinically." + urgencyNote
	default:
		return "Evidence is weak or sparse; this information should not drive clinical decisions on its own." + urgencyNote
	}
}

func topN(docs []entity.EvidenceDocument, n int) []entity.EvidenceDocument {
	if len(docs) < n {
		return docs
	}
	return docs[:n]
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
