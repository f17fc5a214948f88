package adzuna

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skill-radar/models"
	"skill-radar/scraper"
	"skill-radar/utils"
)

func listing(id int) map[string]any {
	return map[string]any{
		"id":           strconv.Itoa(id),
		"title":        fmt.Sprintf("Go Developer %d", id),
		"redirect_url": fmt.Sprintf("https://www.adzuna.in/details/%d", id),
		"company":      map[string]string{"display_name": "Acme"},
	}
}

func newTestCollector(srv *httptest.Server, perPage, maxPages int) *Collector {
	return New(Options{
		BaseURL:  srv.URL,
		Country:  "in",
		AppID:    "id",
		AppKey:   "key",
		PerPage:  perPage,
		MaxPages: maxPages,
	}, srv.Client(), utils.NewNopLogger())
}

func TestFetchPaginatesUntilCountExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "id", r.URL.Query().Get("app_id"))
		assert.Equal(t, "golang", r.URL.Query().Get("what"))
		assert.Equal(t, "Pune", r.URL.Query().Get("where"))
		assert.Equal(t, "2", r.URL.Query().Get("results_per_page"))
		assert.Equal(t, "1", r.URL.Query().Get("full_time"))

		var results []map[string]any
		switch r.URL.Path {
		case "/in/search/1":
			results = []map[string]any{listing(1), listing(2)}
		case "/in/search/2":
			results = []map[string]any{listing(3)}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"count": 3, "results": results})
	}))
	defer srv.Close()

	c := newTestCollector(srv, 2, 5)
	res, err := c.Fetch(context.Background(), scraper.Query{Term: "golang", Location: "Pune"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	require.Len(t, res.Items, 3)
	assert.Equal(t, "https://www.adzuna.in/details/1", res.Items[0].SourceURL)
	assert.Equal(t, models.ContentJSON, res.Items[0].ContentType)
	assert.Contains(t, res.Items[2].Content, `"Go Developer 3"`)
	assert.Empty(t, res.Failures)
}

func TestFetchStopsOnEmptyPage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"count": 500, "results": []}`))
	}))
	defer srv.Close()

	res, err := newTestCollector(srv, 50, 5).Fetch(context.Background(), scraper.Query{Term: "go"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetchFallbackURLAndSkip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count": 3, "results": [
			{"id": 77, "title": "No redirect"},
			{"id": "5", "redirect_url": "https://www.adzuna.in/details/5"},
			{"title": "Nothing to key on"}
		]}`))
	}))
	defer srv.Close()

	q := scraper.Query{Skip: func(url string) bool { return url == "https://www.adzuna.in/details/5" }}
	res, err := newTestCollector(srv, 50, 1).Fetch(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "adzuna://job/77", res.Items[0].SourceURL)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Message, "without id")
}

func TestFetchErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		kind   models.FetchKind
	}{
		{http.StatusUnauthorized, models.FetchAuth},
		{http.StatusForbidden, models.FetchAuth},
		{http.StatusTooManyRequests, models.FetchRateLimit},
		{http.StatusBadGateway, models.FetchNetwork},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := newTestCollector(srv, 50, 1).Fetch(context.Background(), scraper.Query{Term: "go"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrFetchFailure))
			var fe *models.FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.kind, fe.Kind)
			assert.NotContains(t, fe.URL, "app_key")
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestCollector(srv, 50, 1)
	c.opts.FetchTimeout = 50 * time.Millisecond
	_, err := c.Fetch(context.Background(), scraper.Query{Term: "go"})
	var fe *models.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, models.FetchTimeout, fe.Kind)
}

func TestLaterPageFailureIsItemized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/in/search/2" {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"count": 4, "results": []map[string]any{listing(1), listing(2)}})
	}))
	defer srv.Close()

	res, err := newTestCollector(srv, 2, 3).Fetch(context.Background(), scraper.Query{Term: "go"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "adzuna page 2", res.Failures[0].Item)
}

func TestMissingCredentials(t *testing.T) {
	c := New(Options{BaseURL: "http://unused"}, nil, utils.NewNopLogger())
	_, err := c.Fetch(context.Background(), scraper.Query{Term: "go"})
	assert.True(t, errors.Is(err, models.ErrConfiguration))
}

func TestPerPageCapped(t *testing.T) {
	c := New(Options{PerPage: 500}, nil, utils.NewNopLogger())
	assert.Equal(t, MaxResultsPerPage, c.opts.PerPage)
}

func TestRequestsArePaced(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		n := len(stamps)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"count": 4, "results": []map[string]any{listing(n)}})
	}))
	defer srv.Close()

	c := newTestCollector(srv, 1, 3)
	c.pacer = utils.NewPacer(80 * time.Millisecond)
	res, err := c.Fetch(context.Background(), scraper.Query{Term: "go"})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), 70*time.Millisecond)
	}
}
