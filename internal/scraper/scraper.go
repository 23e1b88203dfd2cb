package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/maltedev/offer-scraper/internal/models"
)

const (
	DefaultBaseURL = "https://detail.1688.com/offer/"
	DefaultReferer = "https://www.1688.com/"

	blockedMarker = "unusual traffic"
)

var (
	ErrInvalidOfferID   = errors.New("invalid offer id")
	ErrBlocked          = errors.New("blocked by anti-bot page")
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

var offerIDPattern = regexp.MustCompile(`(?:^|/offer/)(\d{6,})(?:\.html)?(?:[?#].*)?$`)

// Fetcher returns the raw HTML of one offer page.
type Fetcher interface {
	Fetch(ctx context.Context, offerID string) (string, error)
}

// Sink persists normalized records.
type Sink interface {
	Save(ctx context.Context, records []models.Record) error
}

// MultiSink saves to every sink in order and stops at the first error.
type MultiSink []Sink

func (m MultiSink) Save(ctx context.Context, records []models.Record) error {
	for _, sink := range m {
		if err := sink.Save(ctx, records); err != nil {
			return err
		}
	}
	return nil
}

// ParseOfferID accepts a bare numeric id or an offer page URL.
func ParseOfferID(input string) (string, error) {
	input = strings.TrimSpace(input)
	matches := offerIDPattern.FindStringSubmatch(input)
	if len(matches) < 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidOfferID, input)
	}
	return matches[1], nil
}

// OfferURL joins the detail base URL and an offer id.
func OfferURL(baseURL, offerID string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL + offerID + ".html"
}

// IsBlockedPage reports whether body is the traffic notice instead of an offer.
func IsBlockedPage(body string) bool {
	return strings.Contains(body, blockedMarker)
}

// archiveBlocked keeps the served page as blocked_<id>.html for inspection.
func archiveBlocked(dir, offerID, body string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create blocked dir: %w", err)
	}

	path := filepath.Join(dir, "blocked_"+offerID+".html")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("failed to archive blocked page: %w", err)
	}
	return path, nil
}
