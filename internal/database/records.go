package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/maltedev/offer-scraper/internal/models"
)

var ErrMissingOfferID = errors.New("record has no offer id")

// RecordRepository persists extracted rows keyed by (offer_id, variant_index).
// SKU labels are not unique within an offer, so rows are keyed by position.
type RecordRepository struct {
	db *DB
}

func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// UpsertWithTx writes records inside tx. Each offer's records replace its previous
// rows position by position, and rows beyond the new variant count are removed.
func (r *RecordRepository) UpsertWithTx(ctx context.Context, tx pgx.Tx, records []models.Record) error {
	batch := &pgx.Batch{}
	counts := make(map[string]int)
	var offers []string

	for _, rec := range records {
		if rec.OfferID == "" {
			return fmt.Errorf("%w: sku %q", ErrMissingOfferID, rec.SKU)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode record %s/%s: %w", rec.OfferID, rec.SKU, err)
		}

		index, seen := counts[rec.OfferID]
		if !seen {
			offers = append(offers, rec.OfferID)
		}
		counts[rec.OfferID] = index + 1

		batch.Queue(`
			INSERT INTO offer_record (offer_id, variant_index, sku, title, color, price, stock, record)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (offer_id, variant_index) DO UPDATE SET
				sku = EXCLUDED.sku,
				title = EXCLUDED.title,
				color = EXCLUDED.color,
				price = EXCLUDED.price,
				stock = EXCLUDED.stock,
				record = EXCLUDED.record,
				updated_at = now()`,
			rec.OfferID, index, rec.SKU, rec.Title, rec.Color, rec.Price, rec.Stock, data)
	}

	for _, offerID := range offers {
		batch.Queue(`DELETE FROM offer_record WHERE offer_id = $1 AND variant_index >= $2`,
			offerID, counts[offerID])
	}

	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert records: %w", err)
	}
	return nil
}

// ListByOffer returns the stored rows of one offer in extraction order.
func (r *RecordRepository) ListByOffer(ctx context.Context, offerID string) ([]models.Record, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT record FROM offer_record WHERE offer_id = $1 ORDER BY variant_index`, offerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var rec models.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}
