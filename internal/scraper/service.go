package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maltedev/offer-scraper/internal/models"
	"github.com/maltedev/offer-scraper/internal/parser"
	"github.com/maltedev/offer-scraper/internal/queue"
	"github.com/maltedev/offer-scraper/internal/ratelimit"
)

// Summary counts the outcome of a Run.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Blocked   int `json:"blocked"`
	Failed    int `json:"failed"`
	Records   int `json:"records"`
}

// Service drives offers through fetch, extract and sink.
type Service struct {
	fetcher   Fetcher
	extractor parser.Parser
	sink      Sink
	limiter   ratelimit.RateLimiter
	workers   int
	logger    *slog.Logger
}

func NewService(fetcher Fetcher, extractor parser.Parser, sink Sink, limiter ratelimit.RateLimiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher:   fetcher,
		extractor: extractor,
		sink:      sink,
		limiter:   limiter,
		workers:   1,
		logger:    logger.With("component", "scraper"),
	}
}

// SetWorkers sets how many offers are processed concurrently. The rate limiter is
// shared between workers.
func (s *Service) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	s.workers = n
}

// ScrapeOffer fetches and extracts one offer without saving it. Zero records with a
// nil error means the page carried nothing usable.
func (s *Service) ScrapeOffer(ctx context.Context, offerID string) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	document, err := s.fetcher.Fetch(ctx, offerID)
	if err != nil {
		s.feedback(false)
		return nil, err
	}
	s.feedback(true)

	records := s.extractor.Extract(ctx, document)
	models.AssignOffer(records, offerID)

	return records, nil
}

// Run processes every offer id. A failed or empty offer is logged and skipped; only
// cancellation of ctx stops the run early.
func (s *Service) Run(ctx context.Context, offerIDs []string) (Summary, error) {
	q := queue.NewInMemoryQueue()
	for i, id := range offerIDs {
		// earlier ids first
		if err := q.Push(queue.NewTask(id, len(offerIDs)-i)); err != nil {
			return Summary{}, fmt.Errorf("failed to queue offer %s: %w", id, err)
		}
	}
	q.Close()

	var (
		mu      sync.Mutex
		summary = Summary{Total: len(offerIDs)}
		wg      sync.WaitGroup
	)

	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := q.Pop(ctx)
				if err != nil {
					return
				}

				outcome, count := s.process(ctx, task.OfferID)

				mu.Lock()
				switch outcome {
				case outcomeSaved:
					summary.Succeeded++
					summary.Records += count
				case outcomeEmpty:
					summary.Skipped++
				case outcomeBlocked:
					summary.Blocked++
				case outcomeFailed:
					summary.Failed++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.logger.Info("run finished",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"skipped", summary.Skipped,
		"blocked", summary.Blocked,
		"failed", summary.Failed,
		"records", summary.Records)

	return summary, ctx.Err()
}

type outcome int

const (
	outcomeSaved outcome = iota
	outcomeEmpty
	outcomeBlocked
	outcomeFailed
	outcomeCanceled
)

func (s *Service) process(ctx context.Context, offerID string) (outcome, int) {
	records, err := s.ScrapeOffer(ctx, offerID)
	switch {
	case ctx.Err() != nil:
		return outcomeCanceled, 0
	case errors.Is(err, ErrBlocked):
		s.logger.Warn("skipping blocked offer", "offer_id", offerID)
		return outcomeBlocked, 0
	case err != nil:
		s.logger.Warn("skipping offer", "offer_id", offerID, "error", err)
		return outcomeFailed, 0
	case len(records) == 0:
		s.logger.Info("no variants found, skipping", "offer_id", offerID)
		return outcomeEmpty, 0
	}

	if err := s.sink.Save(ctx, records); err != nil {
		s.logger.Error("failed to save records", "offer_id", offerID, "error", err)
		return outcomeFailed, 0
	}

	s.logger.Info("saved offer", "offer_id", offerID, "records", len(records))
	return outcomeSaved, len(records)
}

func (s *Service) feedback(success bool) {
	fb, ok := s.limiter.(ratelimit.Feedback)
	if !ok {
		return
	}
	if success {
		fb.RecordSuccess()
	} else {
		fb.RecordError()
	}
}
