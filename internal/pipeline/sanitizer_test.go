package pipeline

import (
	"strings"
	"testing"

	"clinical-dss-be/internal/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizer_AcceptsCleanQuery(t *testing.T) {
	s := NewSanitizer(10, 10000)

	out, err := s.Sanitize("  What are   the symptoms of diabetes?  ")

	require.NoError(t, err)
	assert.Equal(t, "What are the symptoms of diabetes?", out)
}

func TestSanitizer_RejectsInjection(t *testing.T) {
	s := NewSanitizer(10, 10000)

	tests := []struct {
		name  string
		input string
	}{
		{"script tag", "<script>alert(1)</script>"},
		{"javascript scheme", "see javascript:alert(1) for details"},
		{"event handler", "my symptoms onload= something strange"},
		{"iframe", "patient history <iframe src=x> chest pain"},
		{"union select", "diabetes UNION SELECT password FROM users"},
		{"drop table", "symptoms; DROP TABLE patients"},
		{"comment terminator", "chest pain'; --"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Sanitize(tt.input)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestSanitizer_LengthBounds(t *testing.T) {
	s := NewSanitizer(10, 100)

	_, err := s.Sanitize("too short")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = s.Sanitize(strings.Repeat("a", 101))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	out, err := s.Sanitize(strings.Repeat("a", 100))
	require.NoError(t, err)
	assert.Len(t, out, 100)
}

func TestSanitizer_StripsNullBytes(t *testing.T) {
	s := NewSanitizer(10, 10000)

	out, err := s.Sanitize("chest\x00 pain with shortness of breath")

	require.NoError(t, err)
	assert.NotContains(t, out, "\x00")
}
