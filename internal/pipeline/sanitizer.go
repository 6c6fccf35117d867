package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"clinical-dss-be/internal/pkg/apperr"
)

// Patterns that indicate script injection or markup smuggling attempts.
var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe`),
	regexp.MustCompile(`(?i)<object`),
	regexp.MustCompile(`(?i)<embed`),
}

// Patterns that indicate SQL injection attempts.
var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\b.{0,40}\bselect\b`),
	regexp.MustCompile(`(?i)\bdrop\b\s+\btable\b`),
	regexp.MustCompile(`(?i)\bdelete\b\s+\bfrom\b`),
	regexp.MustCompile(`(?i)\binsert\b\s+\binto\b`),
	regexp.MustCompile(`;\s*--`),
}

type Sanitizer struct {
	MinLength int
	MaxLength int
}

func NewSanitizer(minLength, maxLength int) *Sanitizer {
	return &Sanitizer{MinLength: minLength, MaxLength: maxLength}
}

// Sanitize validates a raw clinical query and returns its cleaned form.
// Queries that are too short, too long or carry injection patterns are
// rejected with a validation error.
func (s *Sanitizer) Sanitize(raw string) (string, error) {
	cleaned := strings.ReplaceAll(raw, "\x00", "")
	cleaned = strings.TrimSpace(cleaned)

	if len(cleaned) < s.MinLength {
		return "", apperr.New(apperr.KindValidation,
			fmt.Sprintf("query must be at least %d characters", s.MinLength))
	}
	if len(cleaned) > s.MaxLength {
		return "", apperr.New(apperr.KindValidation,
			fmt.Sprintf("query must be at most %d characters", s.MaxLength))
	}

	for _, p := range xssPatterns {
		if p.MatchString(cleaned) {
			return "", apperr.New(apperr.KindValidation, "query contains disallowed markup")
		}
	}
	for _, p := range sqlPatterns {
		if p.MatchString(cleaned) {
			return "", apperr.New(apperr.KindValidation, "query contains disallowed characters")
		}
	}

	// Collapse runs of whitespace so downstream fingerprinting and search
	// see one canonical form.
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return cleaned, nil
}
