package serper

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"serpforge/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("serpforge.serper")

const DefaultBaseURL = "https://google.serper.dev"

type ClientOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// client-side request rate cap. zero disables the limiter.
	MaxRequestsPerMinute int
}

type Client struct {
	http *resty.Client

	minInterval time.Duration
	mu          sync.Mutex
	lastRequest time.Time
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	client.SetHeader("X-API-KEY", opts.APIKey)
	client.SetHeader("Content-Type", "application/json")

	telemetry.InstrumentResty(client, "serpforge.serper.http")

	var minInterval time.Duration
	if opts.MaxRequestsPerMinute > 0 {
		minInterval = time.Minute / time.Duration(opts.MaxRequestsPerMinute)
	}

	return &Client{
		http:        client,
		minInterval: minInterval,
	}, nil
}

// waits out the client-side rate limit, respecting cancellation
func (c *Client) rateLimit(ctx context.Context) error {
	if c.minInterval == 0 {
		return nil
	}

	c.mu.Lock()
	now := time.Now()
	wait := c.minInterval - now.Sub(c.lastRequest)
	if wait < 0 {
		wait = 0
	}
	c.lastRequest = now.Add(wait)
	c.mu.Unlock()

	if wait == 0 {
		return nil
	}
	slog.DebugContext(ctx, "rate limiting serper request", "wait", wait)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Search issues one query and returns its parsed hits. Failures are
// classified per the package error taxonomy so callers can decide
// between retrying, skipping and aborting.
func (c *Client) Search(ctx context.Context, query Query) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "client:Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("query", query.Text),
		attribute.String("type", string(query.Type)),
	)

	if strings.TrimSpace(query.Text) == "" {
		err := &APIError{Message: "query cannot be empty"}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	err := c.rateLimit(ctx)
	if err != nil {
		return nil, err
	}

	body := requestBody{
		Q:    query.Text,
		Num:  query.MaxResults,
		Gl:   query.Country,
		Hl:   query.Language,
		Page: query.Page,
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(query.Type.path())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "serper request failed")
		if isTimeout(err) {
			return nil, &APIError{Message: "request timed out: " + err.Error(), Transient: true}
		}
		return nil, &APIError{Message: err.Error(), Transient: true}
	}

	if res.IsError() {
		apiErr := classifyStatus(res.StatusCode(), res.Body())
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "serper returned error status")
		return nil, apiErr
	}

	var raw rawResponse
	err = json.Unmarshal(res.Body(), &raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal serper response")
		return nil, &APIError{Message: "invalid json response: " + err.Error()}
	}

	hits := parseHits(ctx, query.Type, raw)
	slog.InfoContext(ctx, "serper search completed",
		"query", query.Text, "type", query.Type, "hits", len(hits))
	return hits, nil
}

func isTimeout(err error) bool {
	t, ok := err.(interface{ Timeout() bool })
	return ok && t.Timeout()
}

func classifyStatus(status int, body []byte) error {
	message := "unknown error"
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		message = parsed.Message
	} else if len(body) > 0 {
		message = string(body)
	}

	switch {
	case status == 401 || status == 403:
		return &AuthError{StatusCode: status, Message: message}
	case status == 429:
		return &RateLimitError{Message: message}
	case status >= 500:
		return &APIError{StatusCode: status, Message: message, Transient: true}
	default:
		return &APIError{StatusCode: status, Message: message}
	}
}

func sourceDomain(entry rawEntry) string {
	if entry.Source != "" {
		return entry.Source
	}
	if entry.DisplayedLink != "" {
		return entry.DisplayedLink
	}
	link, err := url.Parse(entry.Link)
	if err != nil {
		return ""
	}
	return link.Hostname()
}

func parseHits(ctx context.Context, searchType SearchType, raw rawResponse) []Hit {
	var entries []rawEntry
	switch searchType {
	case TypeNews:
		entries = raw.News
	case TypeImages:
		entries = raw.Images
	case TypeVideos:
		entries = raw.Videos
	default:
		entries = raw.Organic
	}

	hits := make([]Hit, 0, len(entries))
	for i, entry := range entries {
		link := entry.Link
		if link == "" && searchType == TypeImages {
			link = entry.ImageURL
		}
		if link == "" {
			slog.WarnContext(ctx, "skipping result without a link", "position", i+1, "title", entry.Title)
			continue
		}

		position := entry.Position
		if position == 0 {
			position = len(hits) + 1
		}
		hits = append(hits, Hit{
			Title:     entry.Title,
			URL:       strings.TrimRight(link, "/"),
			Snippet:   entry.Snippet,
			Position:  position,
			Source:    sourceDomain(entry),
			ImageURL:  entry.ImageURL,
			Date:      entry.Date,
			Sitelinks: entry.Sitelinks,
		})
	}
	return hits
}
