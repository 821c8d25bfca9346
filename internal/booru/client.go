package booru

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"boorubot/internal/config"
	"boorubot/internal/logging"
	"boorubot/internal/services"
)

// APIPost is one entry of the booru listing API.
type APIPost struct {
	ID             int64  `json:"id"`
	Tags           string `json:"tags"`
	Author         string `json:"author"`
	Source         string `json:"source"`
	Score          int64  `json:"score"`
	MD5            string `json:"md5"`
	FileSize       int64  `json:"file_size"`
	FileExt        string `json:"file_ext"`
	IsShownInIndex bool   `json:"is_shown_in_index"`
	CreatedAt      int64  `json:"created_at"`
	Rating         string `json:"rating"`
	SampleURL      string `json:"sample_url"`
	SampleFileSize int64  `json:"sample_file_size"`
	Status         string `json:"status"`
}

// APITag is one entry of the booru tag API.
type APITag struct {
	Name string `json:"name"`
	Type int    `json:"type"`
}

const (
	clientAttempts = 3
	clientDelay    = 2 * time.Second
)

// Client talks to the booru's JSON listing endpoints. Transient
// failures are retried with a fixed delay, mirroring the information
// source clients.
type Client struct {
	httpClient *http.Client
	baseURL    string
	delay      time.Duration
	logger     *slog.Logger
}

// NewClient builds a listing client from configuration.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(cfg.Booru.RequestTimeout) * time.Second},
		baseURL:    cfg.Booru.BaseURL,
		delay:      clientDelay,
		logger:     logger.With(logging.String(logging.FieldComponent, "booru")),
	}
}

// PostsPage fetches one page of the post listing, newest first.
func (c *Client) PostsPage(ctx context.Context, page int64, limit int) ([]APIPost, error) {
	query := url.Values{
		"page":  []string{strconv.FormatInt(page, 10)},
		"limit": []string{strconv.Itoa(limit)},
	}
	var posts []APIPost
	if err := c.getJSON(ctx, "/post.json", query, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// TagList fetches the tag records matching a name.
func (c *Client) TagList(ctx context.Context, name string) ([]APITag, error) {
	query := url.Values{"name": []string{name}}
	var tags []APITag
	if err := c.getJSON(ctx, "/tag.json", query, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	target := c.baseURL + path + "?" + query.Encode()
	var lastErr error
	for attempt := 1; attempt <= clientAttempts; attempt++ {
		body, err := c.getOnce(ctx, target)
		if err == nil {
			if err := json.Unmarshal(body, v); err != nil {
				return services.Wrap(services.ErrTransient, "booru", "decode json", target, err)
			}
			return nil
		}
		lastErr = err
		if !services.IsTransient(err) || attempt == clientAttempts {
			break
		}
		c.logger.Debug("retrying request",
			logging.String("url", target),
			logging.Int("attempt", attempt),
			logging.Error(err))
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (c *Client) getOnce(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "booru", "request", target, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "booru", "request", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, services.Wrap(services.ErrTransient, "booru", "request",
			fmt.Sprintf("%s returned %s", target, resp.Status), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, services.Wrap(services.ErrValidation, "booru", "request",
			fmt.Sprintf("%s returned %s", target, resp.Status), nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "booru", "read body", target, err)
	}
	return body, nil
}
