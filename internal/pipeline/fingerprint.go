package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"clinical-dss-be/internal/entity"
)

// Fingerprint derives a stable cache key for a stage's work on a query.
// Two queries that differ only in surrounding whitespace or letter case
// produce the same fingerprint.
func Fingerprint(stage string, query string, pc *entity.PatientContext) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))

	h := sha256.New()
	h.Write([]byte(stage))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	if pc != nil {
		// json.Marshal on a struct emits fields in declaration order, so
		// identical contexts always hash identically.
		ctxBytes, _ := json.Marshal(pc)
		h.Write(ctxBytes)
	}
	return hex.EncodeToString(h.Sum(nil))
}
