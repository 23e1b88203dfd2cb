package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/offer-scraper/internal/database"
	"github.com/maltedev/offer-scraper/internal/models"
)

type EventType string

const (
	// EventTypeOfferExtracted is published once per offer each time its rows are stored.
	EventTypeOfferExtracted EventType = "OFFER_EXTRACTED"

	aggregateOffer = "offer"
	sourceScraper  = "scraper"
)

// OfferExtractedPayload carries every row extracted from one offer page.
type OfferExtractedPayload struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	OfferID   string          `json:"offer_id"`
	Records   []models.Record `json:"records"`
	Source    string          `json:"source"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

type recordWriter interface {
	UpsertWithTx(ctx context.Context, tx pgx.Tx, records []models.Record) error
}

type outboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher stores records and their OFFER_EXTRACTED event in one transaction.
// The relay later moves the event to Redis.
type Publisher struct {
	db      txRunner
	records recordWriter
	outbox  outboxWriter
	stream  string
	logger  *slog.Logger
}

func NewPublisher(db *database.DB, stream string, logger *slog.Logger) *Publisher {
	return newPublisher(db, database.NewRecordRepository(db), database.NewOutboxRepository(db), stream, logger)
}

func newPublisher(db txRunner, records recordWriter, outbox outboxWriter, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = database.DefaultTargetStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		db:      db,
		records: records,
		outbox:  outbox,
		stream:  stream,
		logger:  logger.With("component", "event_publisher"),
	}
}

// Save groups records by offer and commits each offer separately.
func (p *Publisher) Save(ctx context.Context, records []models.Record) error {
	for _, group := range groupByOffer(records) {
		if err := p.PublishOfferExtracted(ctx, group[0].OfferID, group); err != nil {
			return err
		}
	}
	return nil
}

// PublishOfferExtracted upserts records and enqueues their event atomically.
func (p *Publisher) PublishOfferExtracted(ctx context.Context, offerID string, records []models.Record) error {
	payload := &OfferExtractedPayload{
		EventID:   uuid.New().String(),
		EventType: string(EventTypeOfferExtracted),
		Timestamp: time.Now().UTC(),
		OfferID:   offerID,
		Records:   records,
		Source:    sourceScraper,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	event := &database.OutboxEvent{
		AggregateType: aggregateOffer,
		AggregateID:   offerID,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  p.stream,
	}

	err = p.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := p.records.UpsertWithTx(ctx, tx, records); err != nil {
			return err
		}
		return p.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return fmt.Errorf("failed to publish offer %s: %w", offerID, err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"offer_id", offerID,
		"records", len(records),
		"outbox_id", event.ID,
	)
	return nil
}

// groupByOffer splits records into runs sharing an offer id, keeping first-seen order.
func groupByOffer(records []models.Record) [][]models.Record {
	index := make(map[string]int)
	var groups [][]models.Record
	for _, r := range records {
		i, ok := index[r.OfferID]
		if !ok {
			i = len(groups)
			index[r.OfferID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}
