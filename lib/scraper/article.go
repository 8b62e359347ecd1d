package scraper

import (
	"fmt"
	"time"

	"serpforge/lib/htmlutil"
	"serpforge/lib/textutil"
)

// Article is one successfully scraped page.
type Article struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Source  string `json:"source"`
	Content string `json:"content,omitempty"`
	Snippet string `json:"snippet,omitempty"`

	Author      string    `json:"author,omitempty"`
	PublishDate time.Time `json:"publish_date,omitempty"`

	FeaturedImage string          `json:"featured_image,omitempty"`
	Images        []htmlutil.Image `json:"images,omitempty"`

	Sentiment *textutil.Sentiment `json:"sentiment,omitempty"`
	Keywords  []string            `json:"keywords,omitempty"`
	Summary   string              `json:"summary,omitempty"`

	WordCount      int     `json:"word_count"`
	ReadingTimeMin int     `json:"reading_time_min"`
	QualityScore   float64 `json:"quality_score"`
	// content fell outside the configured window or under the quality
	// threshold, but strict filtering was off
	LowQuality bool `json:"low_quality,omitempty"`

	ScrapedAt    time.Time     `json:"scraped_at"`
	ProxyUsed    string        `json:"proxy_used,omitempty"`
	UserAgent    string        `json:"user_agent,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
	StatusCode   int           `json:"status_code,omitempty"`
}

type FailReason string

const (
	ReasonNetwork    FailReason = "network"
	ReasonTimeout    FailReason = "timeout"
	ReasonBadStatus  FailReason = "bad-status"
	ReasonNonHTML    FailReason = "non-html"
	ReasonTooShort   FailReason = "too-short"
	ReasonTooLong    FailReason = "too-long"
	ReasonLowQuality FailReason = "low-quality"
	ReasonProxy      FailReason = "proxy-exhausted"
)

// ExtractionFailure reports why one URL could not be turned into an
// Article. It is never fatal to the batch.
type ExtractionFailure struct {
	URL    string
	Reason FailReason
	Err    error
}

func (e *ExtractionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed for %s (%s): %s", e.URL, e.Reason, e.Err.Error())
	}
	return fmt.Sprintf("extraction failed for %s (%s)", e.URL, e.Reason)
}

func (e *ExtractionFailure) Unwrap() error {
	return e.Err
}
