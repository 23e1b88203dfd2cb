package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/offer-scraper/internal/models"
	"github.com/maltedev/offer-scraper/internal/parser"
	"github.com/maltedev/offer-scraper/internal/scraper"
)

const DefaultMaxBodyBytes = 10 << 20

// OfferScraper fetches and extracts a single offer.
type OfferScraper interface {
	ScrapeOffer(ctx context.Context, offerID string) ([]models.Record, error)
}

// DocumentParser extracts records from an HTML document already in hand.
type DocumentParser interface {
	Parse(ctx context.Context, document string) ([]models.Record, error)
}

// RecordReader returns stored rows of an offer.
type RecordReader interface {
	ListByOffer(ctx context.Context, offerID string) ([]models.Record, error)
}

// BacklogReporter exposes outbox counts for the health check.
type BacklogReporter interface {
	Backlog(ctx context.Context) (pending, deadLetter int64, err error)
}

// Dependencies of Handlers. Only Parser is required; routes for missing
// dependencies are not mounted.
type Dependencies struct {
	Scraper      OfferScraper
	Parser       DocumentParser
	Sink         scraper.Sink
	Records      RecordReader
	Backlog      BacklogReporter
	MaxBodyBytes int64
}

type Handlers struct {
	deps   Dependencies
	logger *slog.Logger
}

func NewHandlers(deps Dependencies, logger *slog.Logger) *Handlers {
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		deps:   deps,
		logger: logger.With("component", "api"),
	}
}

// RecordsResponse is returned by every endpoint that yields records.
type RecordsResponse struct {
	OfferID string          `json:"offer_id,omitempty"`
	Count   int             `json:"count"`
	Records []models.Record `json:"records"`
	Saved   bool            `json:"saved,omitempty"`
}

// Extract runs the extractor over the HTML request body. An optional offer_id
// query parameter is stamped on the records.
func (h *Handlers) Extract(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.deps.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		h.respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) == 0 {
		h.respondError(w, http.StatusBadRequest, "document is required")
		return
	}

	offerID := r.URL.Query().Get("offer_id")
	if offerID != "" {
		if offerID, err = scraper.ParseOfferID(offerID); err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	records, err := h.deps.Parser.Parse(r.Context(), string(body))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, parser.ErrPayloadNotFound) || errors.Is(err, parser.ErrPayloadMalformed) {
			status = http.StatusUnprocessableEntity
		}
		h.respondError(w, status, err.Error())
		return
	}
	models.AssignOffer(records, offerID)

	h.respondJSON(w, http.StatusOK, newRecordsResponse(offerID, records))
}

// ScrapeOffer fetches one offer, extracts it and saves the records when a sink
// is configured.
func (h *Handlers) ScrapeOffer(w http.ResponseWriter, r *http.Request) {
	offerID, err := scraper.ParseOfferID(chi.URLParam(r, "offerID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.deps.Scraper.ScrapeOffer(r.Context(), offerID)
	switch {
	case errors.Is(err, scraper.ErrBlocked):
		h.respondError(w, http.StatusServiceUnavailable, "blocked by anti-bot page")
		return
	case err != nil:
		h.logger.Error("failed to scrape offer", "offer_id", offerID, "error", err)
		h.respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp := newRecordsResponse(offerID, records)
	if h.deps.Sink != nil && len(records) > 0 {
		if err := h.deps.Sink.Save(r.Context(), records); err != nil {
			h.logger.Error("failed to save records", "offer_id", offerID, "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to save records")
			return
		}
		resp.Saved = true
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// ListRecords returns the stored rows of an offer.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	offerID, err := scraper.ParseOfferID(chi.URLParam(r, "offerID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.deps.Records.ListByOffer(r.Context(), offerID)
	if err != nil {
		h.logger.Error("failed to list records", "offer_id", offerID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if len(records) == 0 {
		h.respondError(w, http.StatusNotFound, "offer not found")
		return
	}

	h.respondJSON(w, http.StatusOK, newRecordsResponse(offerID, records))
}

// Health reports ok, or the outbox backlog when a reporter is configured.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.deps.Backlog != nil {
		pending, dead, err := h.deps.Backlog.Backlog(r.Context())
		switch {
		case err != nil:
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			status = http.StatusServiceUnavailable
		default:
			health["outbox"] = map[string]int64{"pending": pending, "dead_letter": dead}
			if pending > 1000 {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if dead > 100 {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

func newRecordsResponse(offerID string, records []models.Record) RecordsResponse {
	if records == nil {
		records = []models.Record{}
	}
	return RecordsResponse{OfferID: offerID, Count: len(records), Records: records}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
