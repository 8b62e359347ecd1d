// Package scraper fetches pages behind the anti-detection and proxy
// layers and extracts cleaned article content from them.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"serpforge/lib/htmlutil"
	"serpforge/lib/scraper/antidetect"
	"serpforge/lib/scraper/proxypool"
	"serpforge/lib/telemetry"
	"serpforge/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("serpforge.scraper")

type proxyCtxKey struct{}

// routes each request through the proxy chosen for it, if any
func proxyFromContext(req *http.Request) (*url.URL, error) {
	proxy, ok := req.Context().Value(proxyCtxKey{}).(*url.URL)
	if !ok {
		return nil, nil
	}
	return proxy, nil
}

type Options struct {
	Timeout time.Duration

	MinContentLength int
	MaxContentLength int
	// reject out-of-window content instead of flagging it
	StrictFilter bool
	// articles scoring below this are flagged low quality
	QualityThreshold float64

	EnableSentiment bool
	EnableKeywords  bool
	EnableSummary   bool

	// proceed without a proxy when the pool is exhausted
	AllowDirect bool

	Rotator *antidetect.Rotator
	// nil disables proxy rotation entirely
	Proxies *proxypool.Pool
}

type Scraper struct {
	http *resty.Client
	opts Options
}

func New(opts Options) *Scraper {
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 15
	}
	if opts.MinContentLength == 0 {
		opts.MinContentLength = 100
	}
	if opts.MaxContentLength == 0 {
		opts.MaxContentLength = 50000
	}
	if opts.Rotator == nil {
		opts.Rotator = antidetect.NewRotator(antidetect.Options{
			RotateUserAgents: true,
			RotateHeaders:    true,
		})
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	transport := &http.Transport{Proxy: proxyFromContext}
	client.SetTransport(antidetect.NewTransport(transport))
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	telemetry.InstrumentResty(client, "serpforge.scraper.http")

	return &Scraper{http: client, opts: opts}
}

// Target identifies a page to scrape, with whatever the search hit
// already knew about it.
type Target struct {
	URL    string
	Title  string
	Source string
}

// Scrape fetches one page and extracts an Article from it. A returned
// error is always an *ExtractionFailure unless the context was
// cancelled.
func (s *Scraper) Scrape(ctx context.Context, target Target) (*Article, error) {
	ctx, span := tracer.Start(ctx, "scraper:Scrape")
	defer span.End()
	span.SetAttributes(attribute.String("url", target.URL))

	err := s.opts.Rotator.Delay(ctx)
	if err != nil {
		return nil, err
	}

	proxy, proxyUsed, err := s.acquireProxy(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "proxy pool exhausted")
		return nil, &ExtractionFailure{URL: target.URL, Reason: ReasonProxy, Err: err}
	}

	start := time.Now()
	res, fetchErr := s.fetch(ctx, target.URL, proxy)
	elapsed := time.Since(start)

	if fetchErr != nil {
		span.RecordError(fetchErr)
		span.SetStatus(codes.Error, "fetch failed")

		if ctx.Err() != nil {
			// cancellation says nothing about the page or the proxy
			s.reportProxy(ctx, proxy, proxypool.Unreported)
			return nil, ctx.Err()
		}
		s.reportProxy(ctx, proxy, proxypool.Failure)
		reason := ReasonNetwork
		if isTimeout(fetchErr) {
			reason = ReasonTimeout
		}
		return nil, &ExtractionFailure{URL: target.URL, Reason: reason, Err: fetchErr}
	}

	if res.IsError() {
		s.reportProxy(ctx, proxy, proxypool.Failure)
		span.SetStatus(codes.Error, "bad response status")
		return nil, &ExtractionFailure{
			URL:    target.URL,
			Reason: ReasonBadStatus,
			Err:    errors.New(res.Status()),
		}
	}
	s.reportProxy(ctx, proxy, proxypool.Success)

	contentType := res.Header().Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return nil, &ExtractionFailure{
			URL:    target.URL,
			Reason: ReasonNonHTML,
			Err:    errors.New("content type " + contentType),
		}
	}

	article, err := s.extract(ctx, target, res.Body())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		return nil, err
	}

	article.ScrapedAt = time.Now().UTC()
	article.ProxyUsed = proxyUsed
	article.UserAgent = res.Request.Header.Get("User-Agent")
	article.ResponseTime = elapsed
	article.StatusCode = res.StatusCode()

	slog.InfoContext(ctx, "scraped page",
		"url", target.URL, "bytes", len(article.Content), "quality", article.QualityScore)
	return article, nil
}

func (s *Scraper) acquireProxy(ctx context.Context) (*proxypool.Endpoint, string, error) {
	if s.opts.Proxies == nil {
		return nil, "", nil
	}
	endpoint, err := s.opts.Proxies.Acquire()
	if err != nil {
		if errors.Is(err, proxypool.ErrPoolExhausted) && s.opts.AllowDirect {
			slog.WarnContext(ctx, "proxy pool exhausted, fetching directly")
			return nil, "", nil
		}
		return nil, "", err
	}
	return &endpoint, endpoint.URL.String(), nil
}

func (s *Scraper) reportProxy(ctx context.Context, proxy *proxypool.Endpoint, outcome proxypool.Outcome) {
	if proxy == nil || s.opts.Proxies == nil {
		return
	}
	s.opts.Proxies.Report(*proxy, outcome)
}

func (s *Scraper) fetch(ctx context.Context, pageURL string, proxy *proxypool.Endpoint) (*resty.Response, error) {
	if proxy != nil {
		ctx = context.WithValue(ctx, proxyCtxKey{}, proxy.URL)
	}
	return s.http.R().
		SetContext(ctx).
		SetHeaders(s.opts.Rotator.Headers()).
		Get(pageURL)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	t, ok := err.(interface{ Timeout() bool })
	return ok && t.Timeout()
}

const snippetLength = 200

// cuts at a byte limit without splitting a multibyte rune
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func (s *Scraper) extract(ctx context.Context, target Target, body []byte) (*Article, error) {
	ctx, span := tracer.Start(ctx, "scraper:extract")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ExtractionFailure{URL: target.URL, Reason: ReasonNonHTML, Err: err}
	}

	meta := htmlutil.ExtractMetadata(doc)
	htmlutil.StripBoilerplate(doc)
	content := htmlutil.MainText(doc)

	lowQuality := false
	switch {
	case len(content) < s.opts.MinContentLength:
		if s.opts.StrictFilter {
			return nil, &ExtractionFailure{URL: target.URL, Reason: ReasonTooShort}
		}
		lowQuality = true
	case len(content) > s.opts.MaxContentLength:
		if s.opts.StrictFilter {
			return nil, &ExtractionFailure{URL: target.URL, Reason: ReasonTooLong}
		}
		content = truncateRunes(content, s.opts.MaxContentLength)
		lowQuality = true
	}

	title := meta.Title
	if title == "" {
		title = target.Title
	}
	source := target.Source
	if source == "" {
		if link, err := url.Parse(target.URL); err == nil {
			source = link.Hostname()
		}
	}

	snippet := content
	if len(snippet) > snippetLength {
		snippet = truncateRunes(snippet, snippetLength) + "..."
	}
	if snippet == "" {
		snippet = meta.Description
	}

	words := textutil.WordCount(content)
	sentences := textutil.Sentences(content)
	quality := textutil.QualityScore(textutil.QualitySignals{
		ContentLength:  len(content),
		HasTitle:       title != "",
		HasAuthor:      meta.Author != "",
		HasPublishDate: !meta.PublishDate.IsZero(),
		SentenceCount:  len(sentences),
	})
	if s.opts.QualityThreshold > 0 && quality < s.opts.QualityThreshold {
		if s.opts.StrictFilter {
			return nil, &ExtractionFailure{URL: target.URL, Reason: ReasonLowQuality}
		}
		lowQuality = true
	}

	article := &Article{
		Title:          title,
		URL:            target.URL,
		Source:         source,
		Content:        content,
		Snippet:        snippet,
		Author:         meta.Author,
		PublishDate:    meta.PublishDate,
		FeaturedImage:  meta.FeaturedImage,
		Images:         meta.Images,
		WordCount:      words,
		ReadingTimeMin: textutil.ReadingTime(words),
		QualityScore:   quality,
		LowQuality:     lowQuality,
	}

	// optional analyses are independent toggles and never discard the
	// article on failure
	if s.opts.EnableSentiment && content != "" {
		sentiment := textutil.AnalyzeSentiment(content)
		article.Sentiment = &sentiment
	}
	if s.opts.EnableKeywords && content != "" {
		article.Keywords = textutil.Keywords(content)
	}
	if s.opts.EnableSummary && content != "" {
		article.Summary = textutil.Summarize(content)
	}

	return article, nil
}
