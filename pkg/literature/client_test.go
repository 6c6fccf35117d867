package literature

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clinical-dss-be/internal/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSearcher_TwoPhaseSearch(t *testing.T) {
	var searchQuery, fetchIds string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/esearch":
			searchQuery = r.URL.Query().Get("term")
			assert.Equal(t, "20", r.URL.Query().Get("retmax"))
			assert.NotEmpty(t, r.URL.Query().Get("mindate"))
			w.Write([]byte(`{"id_list": ["38001", "38002"]}`))
		case "/efetch":
			fetchIds = r.URL.Query().Get("id")
			w.Write([]byte(`{"articles": [
				{"id": "38001", "title": "Metformin outcomes in CKD", "authors": ["Lee J"], "journal": "Lancet", "published_date": "2024-05-01", "abstract": "..."},
				{"id": "38002", "title": "SGLT2 inhibitors review", "authors": ["Osei K"], "journal": "BMJ", "published_date": "not-a-date", "abstract": "..."}
			]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	s := NewHTTPSearcher(srv.URL, "")
	docs, err := s.Search(context.Background(), []string{"metformin", "chronic kidney disease"}, 20, 1825)

	require.NoError(t, err)
	assert.Equal(t, "metformin AND chronic kidney disease", searchQuery)
	assert.Equal(t, "38001,38002", fetchIds)
	require.Len(t, docs, 2)
	assert.Equal(t, "38001", docs[0].ExternalId)
	assert.Equal(t, "Metformin outcomes in CKD", docs[0].Title)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), docs[0].PublishedAt)
	assert.True(t, docs[1].PublishedAt.IsZero(), "unparseable dates fall back to zero time")
}

func TestHTTPSearcher_EmptyIdListSkipsFetch(t *testing.T) {
	fetchCalled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/esearch":
			w.Write([]byte(`{"id_list": []}`))
		case "/efetch":
			fetchCalled = true
		}
	}))
	defer srv.Close()

	s := NewHTTPSearcher(srv.URL, "")
	docs, err := s.Search(context.Background(), []string{"nonexistent"}, 20, 1825)

	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.False(t, fetchCalled)
}

func TestHTTPSearcher_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   apperr.Kind
	}{
		{"server error is transient", http.StatusInternalServerError, apperr.KindUpstreamTransient},
		{"rate limit is transient", http.StatusTooManyRequests, apperr.KindUpstreamTransient},
		{"bad request is permanent", http.StatusBadRequest, apperr.KindUpstreamPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			s := NewHTTPSearcher(srv.URL, "")
			_, err := s.Search(context.Background(), []string{"x"}, 5, 30)

			require.Error(t, err)
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}
}
