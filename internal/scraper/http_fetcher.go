package scraper

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

const maxBodyBytes = 16 << 20

// HTTPOptions configures the plain HTTP fetcher.
type HTTPOptions struct {
	BaseURL    string
	Referer    string
	UserAgents []string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	BlockedDir string
}

// requestProfile is the header set of a single request. It is built per call and
// never shared between requests.
type requestProfile struct {
	userAgent string
	referer   string
}

func (p requestProfile) apply(req *http.Request) {
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Referer", p.referer)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,zh-CN;q=0.8,zh;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// HTTPFetcher downloads offer pages and description payloads over plain HTTP.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
	logger *slog.Logger
}

func NewHTTPFetcher(opts HTTPOptions, logger *slog.Logger) *HTTPFetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Referer == "" {
		opts.Referer = DefaultReferer
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPFetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		logger: logger.With("component", "http_fetcher"),
	}
}

// Fetch downloads the offer page. A traffic notice is returned as ErrBlocked and,
// when a blocked dir is configured, archived there.
func (f *HTTPFetcher) Fetch(ctx context.Context, offerID string) (string, error) {
	url := OfferURL(f.opts.BaseURL, offerID)
	f.logger.Info("fetching offer", "offer_id", offerID, "url", url)

	body, err := f.get(ctx, url, f.profile())
	if err != nil {
		return "", fmt.Errorf("failed to fetch offer %s: %w", offerID, err)
	}

	if IsBlockedPage(body) {
		path, archiveErr := archiveBlocked(f.opts.BlockedDir, offerID, body)
		if archiveErr != nil {
			f.logger.Error("failed to archive blocked page", "offer_id", offerID, "error", archiveErr)
		}
		f.logger.Warn("blocked by traffic check", "offer_id", offerID, "archived", path)
		return "", fmt.Errorf("offer %s: %w", offerID, ErrBlocked)
	}

	return body, nil
}

// FetchDescription downloads the secondary description payload.
func (f *HTTPFetcher) FetchDescription(ctx context.Context, url string) (string, error) {
	return f.get(ctx, url, f.profile())
}

func (f *HTTPFetcher) profile() requestProfile {
	ua := ""
	if len(f.opts.UserAgents) > 0 {
		ua = f.opts.UserAgents[rand.Intn(len(f.opts.UserAgents))]
	}
	return requestProfile{userAgent: ua, referer: f.opts.Referer}
}

func (f *HTTPFetcher) get(ctx context.Context, url string, profile requestProfile) (string, error) {
	var lastErr error

	for attempt := 0; attempt < f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := f.opts.RetryDelay * time.Duration(1<<(attempt-1))
			f.logger.Debug("retrying request", "url", url, "attempt", attempt+1, "delay", delay)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		body, retry, err := f.do(ctx, url, profile)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !retry || ctx.Err() != nil {
			break
		}
	}

	return "", lastErr
}

// do performs one request. retry reports whether the failure is worth another attempt.
func (f *HTTPFetcher) do(ctx context.Context, url string, profile requestProfile) (body string, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to build request: %w", err)
	}
	profile.apply(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		retry = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retry, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", true, fmt.Errorf("failed to read body: %w", err)
	}

	decoded, err := decodeBody(resp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		return "", false, err
	}

	return string(decoded), false, nil
}

// decodeBody undoes the content encoding. Setting Accept-Encoding by hand turns off
// the transport's transparent gzip handling, so every advertised encoding is handled here.
func decodeBody(encoding string, raw []byte) ([]byte, error) {
	var reader io.Reader

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(bytes.NewReader(raw))
	case "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			// some servers send raw deflate without the zlib wrapper
			fr := flate.NewReader(bytes.NewReader(raw))
			defer fr.Close()
			reader = fr
		} else {
			defer zr.Close()
			reader = zr
		}
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}

	decoded, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s body: %w", encoding, err)
	}
	return decoded, nil
}
