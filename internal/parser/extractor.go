package parser

import (
	"context"
	"log/slog"

	"github.com/maltedev/offer-scraper/internal/models"
)

// Extractor runs the locator and normalizer over a fetched page.
type Extractor struct {
	normalizer *Normalizer
	logger     *slog.Logger
}

var _ Parser = (*Extractor)(nil)

func NewExtractor(normalizer *Normalizer, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if normalizer == nil {
		normalizer = NewNormalizer(nil, DefaultDescriptionTimeout, logger)
	}

	return &Extractor{
		normalizer: normalizer,
		logger:     logger.With("component", "extractor"),
	}
}

// Extract returns the records found in document. Locator failures are logged and
// produce an empty result.
func (e *Extractor) Extract(ctx context.Context, document string) []models.Record {
	records, err := e.Parse(ctx, document)
	if err != nil {
		e.logger.Warn("no usable payload in document", "error", err, "bytes", len(document))
		return nil
	}
	return records
}

// Parse is Extract with the locator diagnostic returned instead of logged. A nil
// error with zero records means the page has no variants.
func (e *Extractor) Parse(ctx context.Context, document string) ([]models.Record, error) {
	state, err := Locate(document)
	if err != nil {
		return nil, err
	}
	if state.IsEmpty() {
		return nil, nil
	}

	records := e.normalizer.Normalize(ctx, state)
	e.logger.Debug("normalized offer", "modules", len(state.Modules), "records", len(records))

	return records, nil
}
