package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"serpforge/lib/scraper/antidetect"
	"serpforge/lib/scraper/proxypool"

	"github.com/stretchr/testify/require"
)

const articlePage = `<!DOCTYPE html>
<html>
<head>
	<title>Container Orchestration In Practice</title>
	<meta name="author" content="Dana Smith">
	<meta property="article:published_time" content="2024-03-15T09:00:00Z">
	<meta property="og:image" content="https://img.example.com/lead.png">
</head>
<body>
	<nav>Home | About | Contact</nav>
	<article>
		<p>Container orchestration frameworks schedule workloads across a
		fleet of machines. The scheduler watches resource usage and moves
		containers when a node becomes unhealthy. Operators describe the
		desired state and the control loop converges on it.</p>
		<p>Rolling deployments replace instances a few at a time so the
		service never goes fully dark. Health probes gate each step of the
		rollout. A failed probe halts the rollout and triggers a rollback
		to the previous revision automatically.</p>
	</article>
	<footer>Copyright 2024</footer>
	<script>analytics.track()</script>
</body>
</html>`

// a rotator that never reaches out for fresh user agent data
func newTestScraper(opts Options) *Scraper {
	if opts.Rotator == nil {
		opts.Rotator = antidetect.NewRotator(antidetect.Options{})
	}
	return New(opts)
}

func servePage(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestScrapeExtractsArticle(t *testing.T) {
	server := servePage(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articlePage)
	})

	s := newTestScraper(Options{
		MinContentLength: 50,
		EnableKeywords:   true,
		EnableSummary:    true,
	})
	article, err := s.Scrape(context.Background(), Target{URL: server.URL})
	require.NoError(t, err)

	require.Equal(t, "Container Orchestration In Practice", article.Title)
	require.Equal(t, "Dana Smith", article.Author)
	require.Equal(t, 2024, article.PublishDate.Year())
	require.Equal(t, "https://img.example.com/lead.png", article.FeaturedImage)
	require.Contains(t, article.Content, "Container orchestration frameworks")
	require.NotContains(t, article.Content, "analytics.track")
	require.NotContains(t, article.Content, "Home | About")
	require.False(t, article.LowQuality)
	require.Greater(t, article.WordCount, 50)
	require.Equal(t, 1, article.ReadingTimeMin)
	require.NotEmpty(t, article.Keywords)
	require.NotEmpty(t, article.Summary)
	require.Equal(t, http.StatusOK, article.StatusCode)
	require.False(t, article.ScrapedAt.IsZero())
}

func TestScrapeFallsBackToTargetTitleAndSource(t *testing.T) {
	server := servePage(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>"+strings.Repeat("word ", 100)+"</p></body></html>")
	})

	s := newTestScraper(Options{MinContentLength: 50})
	article, err := s.Scrape(context.Background(), Target{
		URL:    server.URL,
		Title:  "Fallback Title",
		Source: "example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "Fallback Title", article.Title)
	require.Equal(t, "example.com", article.Source)
}

func TestScrapeShortContentStrict(t *testing.T) {
	server := servePage(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>tiny</p></body></html>")
	})

	s := newTestScraper(Options{MinContentLength: 100, StrictFilter: true})
	_, err := s.Scrape(context.Background(), Target{URL: server.URL})

	var failure *ExtractionFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, ReasonTooShort, failure.Reason)
}

func TestScrapeShortContentLenient(t *testing.T) {
	server := servePage(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>tiny</p></body></html>")
	})

	s := newTestScraper(Options{MinContentLength: 100})
	article, err := s.Scrape(context.Background(), Target{URL: server.URL})
	require.NoError(t, err)
	require.True(t, article.LowQuality)
}

func TestScrapeLongContentTruncatedWhenLenient(t *testing.T) {
	server := servePage(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>"+strings.Repeat("filler text ", 200)+"</p></body></html>")
	})

	s := newTestScraper(Options{MinContentLength: 10, MaxContentLength: 500})
	article, err := s.Scrape(context.Background(), Target{URL: server.URL})
	require.NoError(t, err)
	require.True(t, article.LowQuality)
	require.LessOrEqual(t, len(article.Content), 500)
}

// plain text with no metadata and no sentence breaks scores 0.6:
// base 0.5 plus 0.1 for length over 1000 bytes
func serveMediocrePage(t *testing.T) *httptest.Server {
	return servePage(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>"+strings.Repeat("word ", 300)+"</p></body></html>")
	})
}

func TestScrapeBelowQualityThresholdStrict(t *testing.T) {
	server := serveMediocrePage(t)

	s := newTestScraper(Options{
		MinContentLength: 50,
		StrictFilter:     true,
		QualityThreshold: 0.95,
	})
	_, err := s.Scrape(context.Background(), Target{URL: server.URL})

	var failure *ExtractionFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, ReasonLowQuality, failure.Reason)
}

func TestScrapeBelowQualityThresholdLenient(t *testing.T) {
	server := serveMediocrePage(t)

	s := newTestScraper(Options{
		MinContentLength: 50,
		QualityThreshold: 0.95,
	})
	article, err := s.Scrape(context.Background(), Target{URL: server.URL})
	require.NoError(t, err)
	require.True(t, article.LowQuality)
	require.Less(t, article.QualityScore, 0.95)
}

func TestScrapeTruncatesOnRuneBoundaries(t *testing.T) {
	server := servePage(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><p>"+strings.Repeat("héllo wörld café ", 100)+"</p></body></html>")
	})

	s := newTestScraper(Options{MinContentLength: 10, MaxContentLength: 502})
	article, err := s.Scrape(context.Background(), Target{URL: server.URL})
	require.NoError(t, err)
	require.LessOrEqual(t, len(article.Content), 502)
	require.True(t, utf8.ValidString(article.Content))
	require.True(t, utf8.ValidString(article.Snippet))
	require.True(t, strings.HasSuffix(article.Snippet, "..."))
}

func TestTruncateRunes(t *testing.T) {
	s := "héllo"
	require.Equal(t, s, truncateRunes(s, 10))
	// the é spans bytes 1-2, a limit inside it backs off to 1
	require.Equal(t, "h", truncateRunes(s, 2))
	require.Equal(t, "hé", truncateRunes(s, 3))
	for limit := 0; limit <= len(s); limit++ {
		require.True(t, utf8.ValidString(truncateRunes(s, limit)))
	}
}

func TestScrapeNonHTMLRejected(t *testing.T) {
	server := servePage(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4")
	})

	s := newTestScraper(Options{})
	_, err := s.Scrape(context.Background(), Target{URL: server.URL})

	var failure *ExtractionFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, ReasonNonHTML, failure.Reason)
}

func TestScrapeBadStatus(t *testing.T) {
	server := servePage(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	s := newTestScraper(Options{})
	_, err := s.Scrape(context.Background(), Target{URL: server.URL})

	var failure *ExtractionFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, ReasonBadStatus, failure.Reason)
}

func exhaustedPool(t *testing.T) *proxypool.Pool {
	t.Helper()
	pool, err := proxypool.New([]string{"http://127.0.0.1:1"}, proxypool.Options{MaxFailures: 1})
	require.NoError(t, err)
	endpoint, err := pool.Acquire()
	require.NoError(t, err)
	pool.Report(endpoint, proxypool.Failure)
	return pool
}

func TestScrapePoolExhaustedWithoutDirect(t *testing.T) {
	s := newTestScraper(Options{Proxies: exhaustedPool(t)})
	_, err := s.Scrape(context.Background(), Target{URL: "http://unreachable.invalid"})

	var failure *ExtractionFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, ReasonProxy, failure.Reason)
	require.ErrorIs(t, err, proxypool.ErrPoolExhausted)
}

func TestScrapePoolExhaustedFallsBackDirect(t *testing.T) {
	server := servePage(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>"+strings.Repeat("word ", 100)+"</p></body></html>")
	})

	s := newTestScraper(Options{
		MinContentLength: 50,
		Proxies:          exhaustedPool(t),
		AllowDirect:      true,
	})
	article, err := s.Scrape(context.Background(), Target{URL: server.URL})
	require.NoError(t, err)
	require.Empty(t, article.ProxyUsed)
}

func TestScrapeTimeout(t *testing.T) {
	server := servePage(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	})

	s := newTestScraper(Options{Timeout: 50 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Scrape(ctx, Target{URL: server.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScrapeReportsProxySuccess(t *testing.T) {
	server := servePage(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>"+strings.Repeat("word ", 100)+"</p></body></html>")
	})

	// the test server itself acts as the proxy target for absolute-URL
	// requests, so routing through it succeeds
	pool, err := proxypool.New([]string{server.URL}, proxypool.Options{MaxFailures: 1})
	require.NoError(t, err)

	s := newTestScraper(Options{MinContentLength: 50, Proxies: pool})
	article, err := s.Scrape(context.Background(), Target{URL: server.URL})
	require.NoError(t, err)
	require.NotEmpty(t, article.ProxyUsed)
	require.Equal(t, 1, pool.Healthy())
}
