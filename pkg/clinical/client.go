package clinical

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"clinical-dss-be/internal/pkg/apperr"
)

// Extraction is the result of running medical entity recognition over a
// sanitized clinical query.
type Extraction struct {
	Entities      map[string][]string `json:"entities"`
	SearchTerms   []string            `json:"search_terms"`
	EnhancedQuery string              `json:"enhanced_query"`
}

// Extractor defines the interface to the clinical NER collaborator.
type Extractor interface {
	Extract(ctx context.Context, query string) (*Extraction, error)
}

// HTTPExtractor calls an external medical NLP service that returns
// recognized entities and expanded search terms for a query.
type HTTPExtractor struct {
	BaseURL string
	client  *http.Client
}

func NewHTTPExtractor(baseURL string) Extractor {
	return &HTTPExtractor{
		BaseURL: baseURL,
		client:  http.DefaultClient,
	}
}

type extractRequest struct {
	Text string `json:"text"`
}

func (e *HTTPExtractor) Extract(ctx context.Context, query string) (*Extraction, error) {
	jsonBody, err := json.Marshal(extractRequest{Text: query})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/extract", e.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamTransient, "entity extraction service unreachable", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamTransient, "failed to read extraction response", err)
	}

	if resp.StatusCode != http.StatusOK {
		kind := apperr.KindUpstreamPermanent
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			kind = apperr.KindUpstreamTransient
		}
		return nil, apperr.New(kind, fmt.Sprintf("entity extraction service returned %d", resp.StatusCode))
	}

	var parsed Extraction
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamPermanent, "malformed extraction response", err)
	}

	// The pipeline always needs something to search for. Fall back to the
	// raw query when the service recognizes nothing.
	if len(parsed.SearchTerms) == 0 {
		parsed.SearchTerms = []string{query}
	}
	if parsed.EnhancedQuery == "" {
		parsed.EnhancedQuery = query
	}

	return &parsed, nil
}
