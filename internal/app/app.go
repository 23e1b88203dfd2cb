// Package app assembles the scraping pipeline from configuration.
package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/maltedev/offer-scraper/internal/browser"
	"github.com/maltedev/offer-scraper/internal/config"
	"github.com/maltedev/offer-scraper/internal/parser"
	"github.com/maltedev/offer-scraper/internal/ratelimit"
	"github.com/maltedev/offer-scraper/internal/scraper"
)

// Pipeline bundles the service with the parts that outlive a single run.
type Pipeline struct {
	Service   *scraper.Service
	Extractor *parser.Extractor
	browser   *browser.Browser
}

// NewPipeline builds fetcher, limiter and extractor for cfg. Records go to sink,
// which may be nil when callers only use ScrapeOffer.
func NewPipeline(cfg *config.Config, sink scraper.Sink, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Description payloads are plain JSONP, so they always go over HTTP.
	httpFetcher := scraper.NewHTTPFetcher(scraper.HTTPOptions{
		BaseURL:    cfg.Fetcher.BaseURL,
		Referer:    cfg.Fetcher.Referer,
		UserAgents: cfg.Fetcher.UserAgents,
		Timeout:    cfg.Fetcher.Timeout,
		MaxRetries: cfg.Fetcher.MaxRetries,
		RetryDelay: cfg.Fetcher.RetryDelay,
		BlockedDir: cfg.Fetcher.BlockedDir,
	}, logger)

	limiter, err := ratelimit.New(cfg.RateLimit.Strategy, cfg.RateLimit.MinDelay, cfg.RateLimit.MaxDelay, cfg.RateLimit.BucketSize)
	if err != nil {
		return nil, err
	}

	normalizer := parser.NewNormalizer(httpFetcher, cfg.Fetcher.DescriptionTimeout, logger)
	extractor := parser.NewExtractor(normalizer, logger)

	p := &Pipeline{Extractor: extractor}

	var fetcher scraper.Fetcher = httpFetcher
	if cfg.Fetcher.Mode == config.FetchModeBrowser {
		opts := browserOptions(cfg)
		b, err := browser.New(opts, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize browser: %w", err)
		}
		p.browser = b
		fetcher = scraper.NewBrowserFetcher(b, cfg.Fetcher.BaseURL, cfg.Fetcher.MaxRetries, cfg.Fetcher.BlockedDir, logger)
	}

	p.Service = scraper.NewService(fetcher, extractor, sink, limiter, logger)
	return p, nil
}

func (p *Pipeline) Close() error {
	if p.browser == nil {
		return nil
	}
	return p.browser.Close()
}

func browserOptions(cfg *config.Config) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.ProxyServer
	if len(cfg.Fetcher.UserAgents) > 0 {
		opts.UserAgent = cfg.Fetcher.UserAgents[0]
	}
	opts.ExtraHeaders["Referer"] = cfg.Fetcher.Referer
	return opts
}

// ReadOfferIDs reads one id or offer URL per line. Blank lines and lines
// starting with # are ignored; duplicates keep their first position. Lines that
// do not parse are reported in the joined error while the rest are returned.
func ReadOfferIDs(r io.Reader) ([]string, error) {
	var (
		ids  []string
		errs []error
		seen = make(map[string]bool)
	)

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		id, err := scraper.ParseOfferID(text)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return ids, err
	}

	return ids, errors.Join(errs...)
}

// SplitOfferIDs parses a comma separated list with ReadOfferIDs semantics.
func SplitOfferIDs(list string) ([]string, error) {
	return ReadOfferIDs(strings.NewReader(strings.ReplaceAll(list, ",", "\n")))
}
