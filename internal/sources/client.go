package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"boorubot/internal/config"
	"boorubot/internal/logging"
	"boorubot/internal/services"
)

// Client is the HTTP client shared by every adapter. It applies the
// configured user agent, a per-request timeout, and a fixed-delay retry
// loop on transient failures.
type Client struct {
	httpClient *http.Client
	userAgent  string
	attempts   int
	delay      time.Duration
	logger     *slog.Logger
}

// NewClient builds the shared client from configuration.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	attempts := cfg.Sources.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(cfg.Sources.RequestTimeout) * time.Second},
		userAgent:  cfg.Sources.UserAgent,
		attempts:   attempts,
		delay:      time.Duration(cfg.Sources.RetryDelayMS) * time.Millisecond,
		logger:     logger.With(logging.String(logging.FieldComponent, "sources")),
	}
}

// Fetch retrieves a URL and returns the response body, retrying
// transient failures. Responses with 5xx statuses count as transient;
// 4xx statuses fail immediately.
func (c *Client) Fetch(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	target := rawURL
	if len(query) > 0 {
		sep := "?"
		if u, err := url.Parse(rawURL); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		target = rawURL + sep + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		body, err := c.fetchOnce(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !services.IsTransient(err) || attempt == c.attempts {
			break
		}
		c.logger.Debug("retrying request",
			logging.String("url", rawURL),
			logging.Int("attempt", attempt),
			logging.Error(err))
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "sources", "request", target, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "sources", "request", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, services.Wrap(services.ErrTransient, "sources", "request",
			fmt.Sprintf("%s returned %s", target, resp.Status), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, services.Wrap(services.ErrValidation, "sources", "request",
			fmt.Sprintf("%s returned %s", target, resp.Status), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "sources", "read body", target, err)
	}
	return body, nil
}

// FetchJSON retrieves a URL and decodes its JSON body.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, query url.Values, v any) error {
	body, err := c.Fetch(ctx, rawURL, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return services.Wrap(services.ErrTransient, "sources", "decode json", rawURL, err)
	}
	return nil
}

// FetchDoc retrieves a URL and parses its HTML body.
func (c *Client) FetchDoc(ctx context.Context, rawURL string, query url.Values) (*goquery.Document, error) {
	return c.fetchDocDecoded(ctx, rawURL, query, nil)
}

// FetchDocDecoded retrieves a URL whose body uses a legacy charset and
// parses the decoded HTML.
func (c *Client) FetchDocDecoded(ctx context.Context, rawURL string, query url.Values, dec *encoding.Decoder) (*goquery.Document, error) {
	return c.fetchDocDecoded(ctx, rawURL, query, dec)
}

func (c *Client) fetchDocDecoded(ctx context.Context, rawURL string, query url.Values, dec *encoding.Decoder) (*goquery.Document, error) {
	body, err := c.Fetch(ctx, rawURL, query)
	if err != nil {
		return nil, err
	}
	var reader io.Reader = bytes.NewReader(body)
	if dec != nil {
		reader = transform.NewReader(reader, dec)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "sources", "parse html", rawURL, err)
	}
	return doc, nil
}

// Logger exposes the client's logger for adapters.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}
