// Package forge coordinates search dispatch, retries and content
// extraction for single queries and batches.
package forge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"serpforge/lib/scraper"
	"serpforge/lib/serper"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("serpforge.forge")

// Searcher dispatches one query to the search API.
type Searcher interface {
	Search(ctx context.Context, query serper.Query) ([]serper.Hit, error)
}

// ContentScraper turns one search hit into a full article.
type ContentScraper interface {
	Scrape(ctx context.Context, target scraper.Target) (*scraper.Article, error)
}

type Options struct {
	// retries after the first attempt, so attempts = MaxRetries+1
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// parallel batch worker cap
	MaxConcurrent int
	// injectable for tests
	Sleep func(ctx context.Context, d time.Duration) error
}

type Forge struct {
	searcher Searcher
	scraper  ContentScraper
	opts     Options
}

func New(searcher Searcher, contentScraper ContentScraper, opts Options) *Forge {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = time.Minute
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Forge{searcher: searcher, scraper: contentScraper, opts: opts}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newID() string {
	id, err := random.String(8)
	if err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return id
}

// backoff grows exponentially from BaseDelay and is capped at MaxDelay.
func (f *Forge) backoff(attempt int) time.Duration {
	delay := f.opts.BaseDelay << attempt
	if delay > f.opts.MaxDelay || delay <= 0 {
		return f.opts.MaxDelay
	}
	return delay
}

// dispatch runs the search with retries. Only transient errors retry;
// auth and bad-request errors fail immediately.
func (f *Forge) dispatch(ctx context.Context, query serper.Query, result *SearchResult) ([]serper.Hit, error) {
	var lastErr error
	for attempt := 0; attempt <= f.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			result.State = StateRetryWait
			wait := f.backoff(attempt - 1)
			slog.WarnContext(ctx, "search failed, retrying",
				"query", query.Text, "attempt", attempt, "wait", wait, "error", lastErr)
			if err := f.opts.Sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		result.State = StateDispatching
		hits, err := f.searcher.Search(ctx, query)
		if err == nil {
			return hits, nil
		}
		lastErr = err
		if !serper.Retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// Search runs one query end to end: dispatch, then extraction for hit
// types that carry page content.
func (f *Forge) Search(ctx context.Context, req Request) (*SearchResult, error) {
	ctx, span := tracer.Start(ctx, "forge:Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("query", req.Query),
		attribute.String("type", string(req.Type)),
	)

	start := time.Now()
	result := &SearchResult{
		RequestID:  newID(),
		Query:      req.Query,
		SearchType: req.Type,
		State:      StatePending,
		Articles:   []*scraper.Article{},
	}

	hits, err := f.dispatch(ctx, serper.Query{
		Text:       req.Query,
		Type:       req.Type,
		MaxResults: req.MaxResults,
		Country:    req.Country,
		Language:   req.Language,
		Page:       req.Page,
	}, result)
	if err != nil {
		result.State = StateFailed
		result.Error = err.Error()
		result.ExecutionTime = time.Since(start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return result, err
	}

	result.TotalResults = len(hits)

	if req.IncludeContent && req.Type.ScrapesContent() {
		result.State = StateExtracting
		f.extractHits(ctx, hits, result)
	} else {
		for _, hit := range hits {
			result.Articles = append(result.Articles, hitArticle(hit))
		}
	}

	result.Success = true
	result.ExecutionTime = time.Since(start)
	switch {
	case len(result.FailedURLs) == 0:
		result.State = StateDone
	default:
		result.State = StatePartialDone
	}

	slog.InfoContext(ctx, "search complete",
		"query", req.Query, "results", result.TotalResults,
		"scraped", result.ScrapedSuccessfully, "failed", len(result.FailedURLs))
	return result, nil
}

// hitArticle builds a metadata-only article from a search hit.
func hitArticle(hit serper.Hit) *scraper.Article {
	return &scraper.Article{
		Title:         hit.Title,
		URL:           hit.URL,
		Source:        hit.Source,
		Snippet:       hit.Snippet,
		FeaturedImage: hit.ImageURL,
		ScrapedAt:     time.Now().UTC(),
	}
}

func (f *Forge) extractHits(ctx context.Context, hits []serper.Hit, result *SearchResult) {
	for _, hit := range hits {
		if ctx.Err() != nil {
			result.FailedURLs = append(result.FailedURLs, hit.URL)
			continue
		}
		article, err := f.scraper.Scrape(ctx, scraper.Target{
			URL:    hit.URL,
			Title:  hit.Title,
			Source: hit.Source,
		})
		if err != nil {
			slog.WarnContext(ctx, "content extraction failed", "url", hit.URL, "error", err)
			result.FailedURLs = append(result.FailedURLs, hit.URL)
			continue
		}
		if article.Snippet == "" {
			article.Snippet = hit.Snippet
		}
		result.Articles = append(result.Articles, article)
		result.ScrapedSuccessfully++
	}
}

// Batch runs many queries and aggregates their results. A fatal error
// on any query, like a rejected API key, aborts the whole run.
func (f *Forge) Batch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	ctx, span := tracer.Start(ctx, "forge:Batch")
	defer span.End()

	queries := dedupQueries(req.Queries)
	if len(queries) == 0 {
		return nil, fmt.Errorf("batch requires at least one query")
	}
	span.SetAttributes(
		attribute.Int("queries", len(queries)),
		attribute.Bool("parallel", req.Parallel),
	)

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	batch := &BatchResult{
		BatchID:        newID(),
		TotalQueries:   len(queries),
		ResultsByQuery: make(map[string]*SearchResult, len(queries)),
		StartedAt:      start.UTC(),
	}

	var err error
	if req.Parallel {
		err = f.runParallel(ctx, queries, req, batch)
	} else {
		err = f.runSequential(ctx, queries, req, batch)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch aborted")
		return nil, err
	}

	for _, result := range batch.ResultsByQuery {
		if result.Success {
			batch.SuccessfulQueries++
		} else {
			batch.FailedQueries++
		}
		batch.TotalResults += result.TotalResults
		batch.TotalScraped += result.ScrapedSuccessfully
	}
	batch.Success = batch.SuccessfulQueries >= 1
	batch.CompletedAt = time.Now().UTC()
	batch.ExecutionTime = time.Since(start)

	slog.InfoContext(ctx, "batch complete",
		"batch_id", batch.BatchID, "queries", batch.TotalQueries,
		"succeeded", batch.SuccessfulQueries, "results", batch.TotalResults)
	return batch, nil
}

func (f *Forge) queryRequest(query string, req BatchRequest) Request {
	return Request{
		Query:          query,
		Type:           req.Type,
		MaxResults:     req.MaxResultsPerQuery,
		IncludeContent: req.IncludeContent,
		Country:        req.Country,
		Language:       req.Language,
	}
}

// timedOutResult records a query the batch deadline cut off.
func timedOutResult(query string, req BatchRequest) *SearchResult {
	return &SearchResult{
		RequestID:  newID(),
		Query:      query,
		SearchType: req.Type,
		State:      StateFailed,
		Error:      "batch timeout",
	}
}

func (f *Forge) runSequential(ctx context.Context, queries []string, req BatchRequest, batch *BatchResult) error {
	for _, query := range queries {
		if ctx.Err() != nil {
			batch.ResultsByQuery[query] = timedOutResult(query, req)
			continue
		}
		result, err := f.Search(ctx, f.queryRequest(query, req))
		if err != nil && serper.Fatal(err) {
			return err
		}
		if err != nil && ctx.Err() != nil {
			result = timedOutResult(query, req)
		}
		batch.ResultsByQuery[query] = result
	}
	return nil
}

func (f *Forge) runParallel(ctx context.Context, queries []string, req BatchRequest, batch *BatchResult) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.opts.MaxConcurrent)

	results := make([]*SearchResult, len(queries))
	for i, query := range queries {
		i, query := i, query
		group.Go(func() error {
			result, err := f.Search(groupCtx, f.queryRequest(query, req))
			if err != nil && serper.Fatal(err) {
				return err
			}
			if err != nil && groupCtx.Err() != nil && !serper.Fatal(err) {
				result = timedOutResult(query, req)
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for i, query := range queries {
		if results[i] == nil {
			results[i] = timedOutResult(query, req)
		}
		batch.ResultsByQuery[query] = results[i]
	}
	return nil
}
