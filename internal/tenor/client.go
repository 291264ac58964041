// Package tenor talks to the Tenor GIF API and decodes its result objects.
package tenor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/Proton-105/gifpick-bot/internal/errors"
	"github.com/Proton-105/gifpick-bot/pkg/config"
	"github.com/Proton-105/gifpick-bot/pkg/metrics"
)

const (
	endpointSearch        = "search"
	endpointRegisterShare = "register_share"

	maxResponseBytes = 4 << 20
)

// Page is one page of upstream search results.
type Page struct {
	Results []json.RawMessage
	// Next is the cursor for the following page; empty when upstream reported none.
	Next string
}

type searchResponse struct {
	Results []json.RawMessage `json:"results"`
	Next    cursor            `json:"next"`
}

// cursor accepts both string and numeric "next" values.
type cursor string

func (c *cursor) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = cursor(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode next cursor: %w", err)
	}
	*c = cursor(n.String())

	return nil
}

// Client is the upstream API client. Searches go through a circuit breaker and are never retried.
type Client struct {
	cfg     config.TenorConfig
	http    *http.Client
	breaker *apperrors.CircuitBreaker
	log     *slog.Logger
}

// NewClient builds a Client. A nil httpClient uses a default client bounded by cfg.Timeout.
func NewClient(cfg config.TenorConfig, httpClient *http.Client, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = slog.Default()
	}

	breaker := apperrors.NewCircuitBreaker(apperrors.DefaultBreakerSettings)
	breaker.OnStateChange(func(from, to apperrors.State) {
		log.Warn("tenor circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		breaker: breaker,
		log:     log,
	}
}

// Search fetches one page for query. An empty pos requests the first page.
func (c *Client) Search(ctx context.Context, query, pos string) (*Page, error) {
	params := url.Values{}
	params.Set("key", c.cfg.APIKey)
	params.Set("q", query)
	params.Set("locale", c.cfg.Locale)
	params.Set("limit", strconv.Itoa(c.cfg.Limit))
	if c.cfg.MediaFilter != "" {
		params.Set("media_filter", c.cfg.MediaFilter)
	}
	if c.cfg.AspectRatio != "" {
		params.Set("ar_range", c.cfg.AspectRatio)
	}
	if pos != "" {
		params.Set("pos", pos)
	}

	var page *Page
	start := time.Now()
	err := c.breaker.Call(func() error {
		body, err := c.get(ctx, c.cfg.SearchURL, params)
		if err != nil {
			return err
		}

		var resp searchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}

		page = &Page{Results: resp.Results, Next: string(resp.Next)}
		return nil
	})
	metrics.RecordUpstream(endpointSearch, outcome(err), time.Since(start))

	if err != nil {
		return nil, apperrors.NewExternalAPIError("tenor search", err)
	}

	c.log.DebugContext(ctx, "tenor search completed",
		slog.String("query", query),
		slog.String("pos", pos),
		slog.Int("results", len(page.Results)),
		slog.String("next", page.Next),
	)

	return page, nil
}

// RegisterShare tells upstream that the image was shared for query.
func (c *Client) RegisterShare(ctx context.Context, id, query string) error {
	params := url.Values{}
	params.Set("id", id)
	params.Set("key", c.cfg.APIKey)
	params.Set("q", query)
	params.Set("locale", c.cfg.Locale)

	start := time.Now()
	body, err := c.get(ctx, c.cfg.RegisterShareURL, params)
	metrics.RecordUpstream(endpointRegisterShare, outcome(err), time.Since(start))
	if err != nil {
		return apperrors.NewShareRegistrationError(id, err)
	}

	c.log.DebugContext(ctx, "tenor share registered",
		slog.String("image_id", id),
		slog.String("response", string(body)),
	)

	return nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error embeds the full query string, API key included
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, fmt.Errorf("%s %s: %w", urlErr.Op, endpoint, urlErr.Err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return body, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
