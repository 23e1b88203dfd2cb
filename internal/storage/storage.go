package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maltedev/offer-scraper/internal/models"
)

// Document is the on-disk layout of a JSONSink file.
type Document struct {
	UpdatedAt time.Time       `json:"updated_at"`
	Records   []models.Record `json:"records"`
}

// JSONSink accumulates records and rewrites its file after every Save.
type JSONSink struct {
	mu       sync.Mutex
	records  []models.Record
	filename string
}

// NewJSONSink opens filename, keeping any records already stored there.
func NewJSONSink(filename string) (*JSONSink, error) {
	s := &JSONSink{filename: filename}

	if err := s.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return s, nil
}

func (s *JSONSink) Save(ctx context.Context, records []models.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, records...)
	return s.save()
}

// Records returns a copy of everything stored so far.
func (s *JSONSink) Records() []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Record(nil), s.records...)
}

// CountByOffer returns the number of stored records per offer id.
func (s *JSONSink) CountByOffer() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, r := range s.records {
		counts[r.OfferID]++
	}
	return counts
}

func (s *JSONSink) save() error {
	data, err := json.MarshalIndent(Document{UpdatedAt: time.Now().UTC(), Records: s.records}, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	// Write to temp file first for atomicity
	tmpFile := s.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpFile, s.filename)
}

func (s *JSONSink) load() error {
	data, err := os.ReadFile(s.filename)
	if err != nil {
		return err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode %s: %w", s.filename, err)
	}
	s.records = doc.Records
	return nil
}
