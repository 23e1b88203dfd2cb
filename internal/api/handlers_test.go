package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/maltedev/offer-scraper/internal/models"
	"github.com/maltedev/offer-scraper/internal/parser"
	"github.com/maltedev/offer-scraper/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockScraper struct {
	mock.Mock
}

func (m *MockScraper) ScrapeOffer(ctx context.Context, offerID string) ([]models.Record, error) {
	args := m.Called(ctx, offerID)
	records, _ := args.Get(0).([]models.Record)
	return records, args.Error(1)
}

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Save(ctx context.Context, records []models.Record) error {
	return m.Called(ctx, records).Error(0)
}

type MockRecords struct {
	mock.Mock
}

func (m *MockRecords) ListByOffer(ctx context.Context, offerID string) ([]models.Record, error) {
	args := m.Called(ctx, offerID)
	records, _ := args.Get(0).([]models.Record)
	return records, args.Error(1)
}

type staticBacklog struct {
	pending, dead int64
	err           error
}

func (s staticBacklog) Backlog(ctx context.Context) (int64, int64, error) {
	return s.pending, s.dead, s.err
}

func offerPage(variants ...string) string {
	items := make([]string, len(variants))
	for i, v := range variants {
		items[i] = fmt.Sprintf(`{"name":%q,"skuId":%d}`, v, i+1)
	}
	return `<html><script>window.__INIT_DATA={"data":{` +
		`"1":{"componentType":"@ali/tdmod-od-pc-offer-title","data":{"title":"Cotton Tee"}},` +
		`"2":{"componentType":"@ali/tdmod-gyp-pc-sku-selection","data":{"modelSelectionInfo":{"data":[` +
		strings.Join(items, ",") + `]}}}` +
		`}};</script></html>`
}

func record(offerID, sku string) models.Record {
	base := models.NewBaseAttributes()
	base.OfferID = offerID
	return base.Merge(models.VariantOverlay{SKU: sku, Package: models.DefaultPackaging()})
}

func newServer(deps Dependencies) *httptest.Server {
	if deps.Parser == nil {
		deps.Parser = parser.NewExtractor(parser.NewNormalizer(nil, time.Second, nil), nil)
	}
	return httptest.NewServer(NewRouter(NewHandlers(deps, nil), nil))
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestExtract(t *testing.T) {
	srv := newServer(Dependencies{MaxBodyBytes: 4096})
	defer srv.Close()

	t.Run("records from document", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/v1/extract?offer_id=610947572360", "text/html", strings.NewReader(offerPage("S", "M")))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body RecordsResponse
		decode(t, resp, &body)
		assert.Equal(t, 2, body.Count)
		assert.Equal(t, "Cotton Tee", body.Records[0].Title)
		assert.Equal(t, "610947572360", body.Records[1].OfferID)
	})

	t.Run("no variants", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/v1/extract", "text/html", strings.NewReader(offerPage()))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body RecordsResponse
		decode(t, resp, &body)
		assert.Zero(t, body.Count)
		assert.NotNil(t, body.Records)
	})

	tests := []struct {
		name   string
		query  string
		body   string
		status int
	}{
		{"no payload", "", "<html><body>nothing</body></html>", http.StatusUnprocessableEntity},
		{"empty body", "", "", http.StatusBadRequest},
		{"bad offer id", "?offer_id=abc", offerPage("S"), http.StatusBadRequest},
		{"too large", "", strings.Repeat("x", 5000), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/v1/extract"+tt.query, "text/html", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestScrapeOffer(t *testing.T) {
	scr := new(MockScraper)
	sink := new(MockSink)
	srv := newServer(Dependencies{Scraper: scr, Sink: sink})
	defer srv.Close()

	records := []models.Record{record("610947572360", "S")}
	scr.On("ScrapeOffer", mock.Anything, "610947572360").Return(records, nil)
	scr.On("ScrapeOffer", mock.Anything, "200000001").Return(nil, fmt.Errorf("fetch: %w", scraper.ErrBlocked))
	scr.On("ScrapeOffer", mock.Anything, "200000002").Return(nil, errors.New("connection reset"))
	scr.On("ScrapeOffer", mock.Anything, "200000003").Return(nil, nil)
	sink.On("Save", mock.Anything, records).Return(nil).Once()

	resp, err := http.Post(srv.URL+"/api/v1/offers/610947572360", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body RecordsResponse
	decode(t, resp, &body)
	assert.True(t, body.Saved)
	assert.Equal(t, 1, body.Count)

	statuses := map[string]int{
		"200000001": http.StatusServiceUnavailable,
		"200000002": http.StatusBadGateway,
		"200000003": http.StatusOK,
		"12":        http.StatusBadRequest,
	}
	for id, want := range statuses {
		resp, err := http.Post(srv.URL+"/api/v1/offers/"+id, "", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, id)
	}

	sink.AssertExpectations(t)
}

func TestListRecords(t *testing.T) {
	store := new(MockRecords)
	srv := newServer(Dependencies{Records: store})
	defer srv.Close()

	store.On("ListByOffer", mock.Anything, "610947572360").Return([]models.Record{record("610947572360", "S")}, nil)
	store.On("ListByOffer", mock.Anything, "200000001").Return(nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/offers/610947572360/records")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body RecordsResponse
	decode(t, resp, &body)
	assert.Equal(t, "S", body.Records[0].SKU)

	resp, err = http.Get(srv.URL + "/api/v1/offers/200000001/records")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutesWithoutDependencies(t *testing.T) {
	srv := newServer(Dependencies{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/offers/610947572360", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		backlog BacklogReporter
		status  int
		want    string
	}{
		{"no outbox", nil, http.StatusOK, "ok"},
		{"healthy outbox", staticBacklog{pending: 3}, http.StatusOK, "ok"},
		{"pending backlog", staticBacklog{pending: 1001}, http.StatusOK, "warning"},
		{"dead letters", staticBacklog{dead: 101}, http.StatusServiceUnavailable, "error"},
		{"outbox down", staticBacklog{err: errors.New("no db")}, http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(Dependencies{Backlog: tt.backlog})
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/health")
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body map[string]any
			decode(t, resp, &body)
			assert.Equal(t, tt.want, body["status"])
		})
	}
}
