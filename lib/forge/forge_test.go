package forge

import (
	"context"
	"sync"
	"testing"
	"time"

	"serpforge/lib/scraper"
	"serpforge/lib/serper"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	mu    sync.Mutex
	calls int
	// errors returned in order; once drained, hits are returned
	errs []error
	hits []serper.Hit
}

func (f *fakeSearcher) Search(ctx context.Context, query serper.Query) ([]serper.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.hits, nil
}

type fakeScraper struct {
	mu      sync.Mutex
	failing map[string]bool
}

func (f *fakeScraper) Scrape(ctx context.Context, target scraper.Target) (*scraper.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[target.URL] {
		return nil, &scraper.ExtractionFailure{URL: target.URL, Reason: scraper.ReasonTimeout}
	}
	return &scraper.Article{
		Title:   target.Title,
		URL:     target.URL,
		Source:  target.Source,
		Content: "extracted body for " + target.URL,
	}, nil
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func testForge(searcher Searcher, contentScraper ContentScraper) *Forge {
	return New(searcher, contentScraper, Options{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Sleep:      noSleep,
	})
}

var sampleHits = []serper.Hit{
	{Title: "First", URL: "https://a.example.com/post", Snippet: "first snippet", Position: 1, Source: "a.example.com"},
	{Title: "Second", URL: "https://b.example.com/post", Snippet: "second snippet", Position: 2, Source: "b.example.com"},
}

func TestSearchWithoutContent(t *testing.T) {
	f := testForge(&fakeSearcher{hits: sampleHits}, &fakeScraper{})

	result, err := f.Search(context.Background(), Request{Query: "golang", Type: serper.TypeWeb})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, StateDone, result.State)
	require.Equal(t, 2, result.TotalResults)
	require.Equal(t, 0, result.ScrapedSuccessfully)
	require.Len(t, result.Articles, 2)
	require.Equal(t, "first snippet", result.Articles[0].Snippet)
	require.Empty(t, result.Articles[0].Content)
}

func TestSearchWithContent(t *testing.T) {
	f := testForge(&fakeSearcher{hits: sampleHits}, &fakeScraper{})

	result, err := f.Search(context.Background(), Request{
		Query: "golang", Type: serper.TypeWeb, IncludeContent: true,
	})
	require.NoError(t, err)
	require.Equal(t, StateDone, result.State)
	require.Equal(t, 2, result.ScrapedSuccessfully)
	require.Contains(t, result.Articles[0].Content, "extracted body")
}

func TestSearchImagesNeverScrape(t *testing.T) {
	searcher := &fakeSearcher{hits: sampleHits}
	f := testForge(searcher, &fakeScraper{failing: map[string]bool{
		sampleHits[0].URL: true,
		sampleHits[1].URL: true,
	}})

	result, err := f.Search(context.Background(), Request{
		Query: "golang", Type: serper.TypeImages, IncludeContent: true,
	})
	require.NoError(t, err)
	require.Equal(t, StateDone, result.State)
	require.Empty(t, result.FailedURLs)
	require.Len(t, result.Articles, 2)
}

func TestSearchPartialExtraction(t *testing.T) {
	f := testForge(&fakeSearcher{hits: sampleHits}, &fakeScraper{failing: map[string]bool{
		sampleHits[1].URL: true,
	}})

	result, err := f.Search(context.Background(), Request{
		Query: "golang", Type: serper.TypeWeb, IncludeContent: true,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, StatePartialDone, result.State)
	require.Equal(t, 1, result.ScrapedSuccessfully)
	require.Equal(t, []string{sampleHits[1].URL}, result.FailedURLs)
}

func TestSearchRetriesTransientErrors(t *testing.T) {
	searcher := &fakeSearcher{
		errs: []error{
			&serper.RateLimitError{},
			&serper.APIError{StatusCode: 502, Transient: true},
		},
		hits: sampleHits,
	}
	f := testForge(searcher, &fakeScraper{})

	result, err := f.Search(context.Background(), Request{Query: "golang", Type: serper.TypeWeb})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 3, searcher.calls)
}

func TestSearchRetryCap(t *testing.T) {
	searcher := &fakeSearcher{errs: []error{
		&serper.RateLimitError{},
		&serper.RateLimitError{},
		&serper.RateLimitError{},
		&serper.RateLimitError{},
	}}
	f := testForge(searcher, &fakeScraper{})

	result, err := f.Search(context.Background(), Request{Query: "golang", Type: serper.TypeWeb})
	require.Error(t, err)
	require.Equal(t, StateFailed, result.State)
	require.NotEmpty(t, result.Error)
	// MaxRetries=2 means exactly 3 attempts
	require.Equal(t, 3, searcher.calls)
}

func TestSearchAuthErrorNoRetry(t *testing.T) {
	searcher := &fakeSearcher{errs: []error{
		&serper.AuthError{StatusCode: 401},
		&serper.AuthError{StatusCode: 401},
	}}
	f := testForge(searcher, &fakeScraper{})

	_, err := f.Search(context.Background(), Request{Query: "golang", Type: serper.TypeWeb})
	require.Error(t, err)
	require.True(t, serper.Fatal(err))
	require.Equal(t, 1, searcher.calls)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	f := New(&fakeSearcher{}, &fakeScraper{}, Options{
		BaseDelay: time.Second,
		MaxDelay:  time.Second * 5,
	})
	require.Equal(t, time.Second, f.backoff(0))
	require.Equal(t, time.Second*2, f.backoff(1))
	require.Equal(t, time.Second*4, f.backoff(2))
	require.Equal(t, time.Second*5, f.backoff(3))
	require.Equal(t, time.Second*5, f.backoff(30))
}

func TestBatchSequential(t *testing.T) {
	f := testForge(&fakeSearcher{hits: sampleHits[:1]}, &fakeScraper{})

	batch, err := f.Batch(context.Background(), BatchRequest{
		Queries: []string{"one", "two", "three"},
		Type:    serper.TypeWeb,
	})
	require.NoError(t, err)
	require.True(t, batch.Success)
	require.Equal(t, 3, batch.TotalQueries)
	require.Equal(t, 3, batch.SuccessfulQueries)
	require.Equal(t, 0, batch.FailedQueries)
	require.Equal(t, 3, batch.TotalResults)
	require.Len(t, batch.ResultsByQuery, 3)
	for _, query := range []string{"one", "two", "three"} {
		require.Contains(t, batch.ResultsByQuery, query)
	}
}

func TestBatchDeduplicatesQueries(t *testing.T) {
	f := testForge(&fakeSearcher{hits: sampleHits[:1]}, &fakeScraper{})

	batch, err := f.Batch(context.Background(), BatchRequest{
		Queries: []string{"repeat", "other", "repeat", "", "other"},
		Type:    serper.TypeWeb,
	})
	require.NoError(t, err)
	require.Equal(t, 2, batch.TotalQueries)
	require.Len(t, batch.ResultsByQuery, 2)
}

func TestBatchParallel(t *testing.T) {
	f := New(&fakeSearcher{hits: sampleHits}, &fakeScraper{}, Options{
		MaxConcurrent: 2,
		Sleep:         noSleep,
	})

	batch, err := f.Batch(context.Background(), BatchRequest{
		Queries:  []string{"q1", "q2", "q3", "q4"},
		Type:     serper.TypeWeb,
		Parallel: true,
	})
	require.NoError(t, err)
	require.Equal(t, 4, batch.SuccessfulQueries)
	require.Equal(t, 8, batch.TotalResults)
}

func TestBatchIsolatesQueryFailures(t *testing.T) {
	searcher := &fakeSearcher{
		errs: []error{
			&serper.APIError{StatusCode: 400, Message: "bad query"},
		},
		hits: sampleHits[:1],
	}
	f := testForge(searcher, &fakeScraper{})

	batch, err := f.Batch(context.Background(), BatchRequest{
		Queries: []string{"broken", "fine"},
		Type:    serper.TypeWeb,
	})
	require.NoError(t, err)
	require.True(t, batch.Success)
	require.Equal(t, 1, batch.SuccessfulQueries)
	require.Equal(t, 1, batch.FailedQueries)
	require.False(t, batch.ResultsByQuery["broken"].Success)
	require.True(t, batch.ResultsByQuery["fine"].Success)
}

func TestBatchAuthErrorAborts(t *testing.T) {
	searcher := &fakeSearcher{errs: []error{&serper.AuthError{StatusCode: 403}}}
	f := testForge(searcher, &fakeScraper{})

	_, err := f.Batch(context.Background(), BatchRequest{
		Queries: []string{"first", "second"},
		Type:    serper.TypeWeb,
	})
	require.Error(t, err)
	require.True(t, serper.Fatal(err))
	// the run stops before the second query dispatches
	require.Equal(t, 1, searcher.calls)
}

func TestBatchEmptyRejected(t *testing.T) {
	f := testForge(&fakeSearcher{}, &fakeScraper{})
	_, err := f.Batch(context.Background(), BatchRequest{Queries: []string{"", ""}})
	require.Error(t, err)
}

func TestBatchTimeoutMarksRemainingFailed(t *testing.T) {
	searcher := &fakeSearcher{hits: sampleHits[:1]}
	slowSleep := func(ctx context.Context, d time.Duration) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f := New(&slowSearcher{inner: searcher, delay: 60 * time.Millisecond}, &fakeScraper{}, Options{
		Sleep: slowSleep,
	})

	batch, err := f.Batch(context.Background(), BatchRequest{
		Queries: []string{"q1", "q2", "q3"},
		Type:    serper.TypeWeb,
		Timeout: 90 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, batch.ResultsByQuery, 3)
	require.True(t, batch.ResultsByQuery["q1"].Success)

	var timedOut int
	for _, result := range batch.ResultsByQuery {
		if result.State == StateFailed && result.Error == "batch timeout" {
			timedOut++
		}
	}
	require.GreaterOrEqual(t, timedOut, 1)
}

type slowSearcher struct {
	inner Searcher
	delay time.Duration
}

func (s *slowSearcher) Search(ctx context.Context, query serper.Query) ([]serper.Hit, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.inner.Search(ctx, query)
}

func TestSearchResultShape(t *testing.T) {
	f := testForge(&fakeSearcher{hits: sampleHits[:1]}, &fakeScraper{})

	result, err := f.Search(context.Background(), Request{
		Query: "golang", Type: serper.TypeWeb, IncludeContent: true,
	})
	require.NoError(t, err)

	got := result.Articles[0]
	want := &scraper.Article{
		Title:   "First",
		URL:     "https://a.example.com/post",
		Source:  "a.example.com",
		Content: "extracted body for https://a.example.com/post",
		Snippet: "first snippet",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("article mismatch (-want +got):\n%s", diff)
	}
}
