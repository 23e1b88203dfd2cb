package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/offer-scraper/internal/browser"
)

// pageRenderer is the part of the browser the fetcher needs.
type pageRenderer interface {
	Render(ctx context.Context, url string, maxRetries int) (string, error)
}

// BrowserFetcher loads offer pages through a headless browser session.
type BrowserFetcher struct {
	renderer   pageRenderer
	baseURL    string
	maxRetries int
	blockedDir string
	logger     *slog.Logger
}

func NewBrowserFetcher(b *browser.Browser, baseURL string, maxRetries int, blockedDir string, logger *slog.Logger) *BrowserFetcher {
	return newBrowserFetcher(b, baseURL, maxRetries, blockedDir, logger)
}

func newBrowserFetcher(r pageRenderer, baseURL string, maxRetries int, blockedDir string, logger *slog.Logger) *BrowserFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserFetcher{
		renderer:   r,
		baseURL:    baseURL,
		maxRetries: maxRetries,
		blockedDir: blockedDir,
		logger:     logger.With("component", "browser_fetcher"),
	}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, offerID string) (string, error) {
	url := OfferURL(f.baseURL, offerID)
	f.logger.Info("rendering offer", "offer_id", offerID, "url", url)

	content, err := f.renderer.Render(ctx, url, f.maxRetries)
	if errors.Is(err, browser.ErrVerificationPage) || (err == nil && IsBlockedPage(content)) {
		path, archiveErr := archiveBlocked(f.blockedDir, offerID, content)
		if archiveErr != nil {
			f.logger.Error("failed to archive blocked page", "offer_id", offerID, "error", archiveErr)
		}
		f.logger.Warn("blocked by verification page", "offer_id", offerID, "archived", path)
		return "", fmt.Errorf("offer %s: %w", offerID, ErrBlocked)
	}
	if err != nil {
		return "", fmt.Errorf("failed to render offer %s: %w", offerID, err)
	}

	return content, nil
}
