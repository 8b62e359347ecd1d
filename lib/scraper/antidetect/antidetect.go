// Package antidetect rotates the browser fingerprint presented by
// outbound page fetches: user agent, header set, referer, plus a
// randomized pacing delay between requests.
package antidetect

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	browser "github.com/EDDYCJY/fake-useragent"
)

// Source supplies the randomness for rotation decisions. Injecting it
// keeps rotation deterministic under test.
type Source interface {
	IntN(n int) int
	Float64() float64
}

type mathRandSource struct {
	rng *rand.Rand
}

func (s mathRandSource) IntN(n int) int   { return s.rng.Intn(n) }
func (s mathRandSource) Float64() float64 { return s.rng.Float64() }

func NewSource(seed int64) Source {
	return mathRandSource{rng: rand.New(rand.NewSource(seed))}
}

// used when fake-useragent's cache is empty or unreachable
var fallbackUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-CA,en;q=0.9",
	"en-AU,en;q=0.9",
}

var referers = []string{
	"https://www.google.com/",
	"https://www.bing.com/",
	"https://duckduckgo.com/",
	"https://www.yahoo.com/",
}

type Options struct {
	RotateUserAgents bool
	RotateHeaders    bool
	// uniform delay window applied before each request
	DelayMin time.Duration
	DelayMax time.Duration
	// optional custom ua pool, replaces fake-useragent when set
	UserAgents []string
	Source     Source
}

type Rotator struct {
	opts Options
	src  Source
}

func NewRotator(opts Options) *Rotator {
	src := opts.Source
	if src == nil {
		src = NewSource(time.Now().UnixNano())
	}
	return &Rotator{opts: opts, src: src}
}

func (r *Rotator) pick(pool []string) string {
	return pool[r.src.IntN(len(pool))]
}

func (r *Rotator) UserAgent() string {
	if len(r.opts.UserAgents) > 0 {
		return r.pick(r.opts.UserAgents)
	}
	if !r.opts.RotateUserAgents {
		return fallbackUserAgents[0]
	}
	ua := browser.Random()
	if ua == "" {
		ua = r.pick(fallbackUserAgents)
	}
	return ua
}

// Headers returns a complete browser-shaped header set for one request.
func (r *Rotator) Headers() map[string]string {
	headers := map[string]string{
		"User-Agent":                r.UserAgent(),
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           acceptLanguages[0],
		"Accept-Encoding":           "gzip, deflate, br",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
	}
	if r.opts.RotateHeaders {
		headers["Accept-Language"] = r.pick(acceptLanguages)
		headers["Referer"] = r.pick(referers)
		headers["DNT"] = "1"
		headers["Sec-Fetch-Dest"] = "document"
		headers["Sec-Fetch-Mode"] = "navigate"
		headers["Sec-Fetch-Site"] = "none"
		headers["Cache-Control"] = "max-age=0"
	}
	return headers
}

// Delay suspends the calling goroutine for a uniform duration in
// [DelayMin, DelayMax]. Only this task waits; cancellation cuts the
// wait short.
func (r *Rotator) Delay(ctx context.Context) error {
	if r.opts.DelayMax <= 0 {
		return nil
	}
	window := r.opts.DelayMax - r.opts.DelayMin
	wait := r.opts.DelayMin
	if window > 0 {
		wait += time.Duration(r.src.Float64() * float64(window))
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewTransport wraps a RoundTripper with the cloudflare bypass used for
// pages behind bot checks.
func NewTransport(base http.RoundTripper) http.RoundTripper {
	return cloudflarebp.AddCloudFlareByPass(base)
}
