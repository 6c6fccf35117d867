package literature

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"clinical-dss-be/internal/entity"
	"clinical-dss-be/internal/pkg/apperr"
)

// Searcher defines the interface to the literature index collaborator.
type Searcher interface {
	Search(ctx context.Context, terms []string, maxResults int, daysBack int) ([]entity.EvidenceDocument, error)
}

// HTTPSearcher talks to a PubMed-style index in two phases: a search call
// returning document ids, then a fetch call returning full records.
type HTTPSearcher struct {
	BaseURL string
	APIKey  string
	client  *http.Client

	now func() time.Time
}

func NewHTTPSearcher(baseURL, apiKey string) Searcher {
	return &HTTPSearcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client:  http.DefaultClient,
		now:     time.Now,
	}
}

type searchResponse struct {
	IdList []string `json:"id_list"`
}

type fetchResponse struct {
	Articles []articleRecord `json:"articles"`
}

type articleRecord struct {
	Id            string   `json:"id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Journal       string   `json:"journal"`
	PublishedDate string   `json:"published_date"`
	Abstract      string   `json:"abstract"`
}

func (s *HTTPSearcher) Search(ctx context.Context, terms []string, maxResults int, daysBack int) ([]entity.EvidenceDocument, error) {
	ids, err := s.search(ctx, terms, maxResults, daysBack)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.fetch(ctx, ids)
}

func (s *HTTPSearcher) search(ctx context.Context, terms []string, maxResults int, daysBack int) ([]string, error) {
	since := s.now().AddDate(0, 0, -daysBack)

	params := url.Values{}
	params.Set("term", strings.Join(terms, " AND "))
	params.Set("retmax", strconv.Itoa(maxResults))
	params.Set("mindate", since.Format("2006/01/02"))
	if s.APIKey != "" {
		params.Set("api_key", s.APIKey)
	}

	var parsed searchResponse
	if err := s.get(ctx, "/esearch", params, &parsed); err != nil {
		return nil, err
	}
	return parsed.IdList, nil
}

func (s *HTTPSearcher) fetch(ctx context.Context, ids []string) ([]entity.EvidenceDocument, error) {
	params := url.Values{}
	params.Set("id", strings.Join(ids, ","))
	if s.APIKey != "" {
		params.Set("api_key", s.APIKey)
	}

	var parsed fetchResponse
	if err := s.get(ctx, "/efetch", params, &parsed); err != nil {
		return nil, err
	}

	docs := make([]entity.EvidenceDocument, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		publishedAt, err := time.Parse("2006-01-02", a.PublishedDate)
		if err != nil {
			// Records with unparseable dates still carry useful text.
			publishedAt = time.Time{}
		}
		docs = append(docs, entity.EvidenceDocument{
			ExternalId:  a.Id,
			Title:       a.Title,
			Authors:     a.Authors,
			Journal:     a.Journal,
			PublishedAt: publishedAt,
			Abstract:    a.Abstract,
		})
	}
	return docs, nil
}

func (s *HTTPSearcher) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := fmt.Sprintf("%s%s?%s", s.BaseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamTransient, "literature service unreachable", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.KindUpstreamTransient, "failed to read literature response", err)
	}

	if resp.StatusCode != http.StatusOK {
		kind := apperr.KindUpstreamPermanent
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			kind = apperr.KindUpstreamTransient
		}
		return apperr.New(kind, fmt.Sprintf("literature service returned %d", resp.StatusCode))
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return apperr.Wrap(apperr.KindUpstreamPermanent, "malformed literature response", err)
	}
	return nil
}
