package forge

import (
	"time"

	"serpforge/lib/scraper"
	"serpforge/lib/serper"
)

// QueryState tracks where a single query is in its lifecycle.
type QueryState string

const (
	StatePending     QueryState = "pending"
	StateDispatching QueryState = "dispatching"
	StateRetryWait   QueryState = "retry_wait"
	StateExtracting  QueryState = "extracting"
	StateDone        QueryState = "done"
	// the search succeeded but some pages could not be scraped
	StatePartialDone QueryState = "partial_done"
	StateFailed      QueryState = "failed"
)

// Request is a single search, optionally with content extraction for
// each hit.
type Request struct {
	Query          string
	Type           serper.SearchType
	MaxResults     int
	IncludeContent bool
	Country        string
	Language       string
	Page           int
}

// SearchResult is everything one query produced.
type SearchResult struct {
	RequestID  string            `json:"request_id"`
	Query      string            `json:"query"`
	SearchType serper.SearchType `json:"search_type"`
	State      QueryState        `json:"state"`
	Success    bool              `json:"success"`

	TotalResults        int `json:"total_results"`
	ScrapedSuccessfully int `json:"scraped_successfully"`

	Articles   []*scraper.Article `json:"articles"`
	FailedURLs []string           `json:"failed_urls,omitempty"`

	ExecutionTime time.Duration `json:"execution_time"`
	Error         string        `json:"error,omitempty"`
}

type BatchRequest struct {
	Queries            []string
	Type               serper.SearchType
	MaxResultsPerQuery int
	IncludeContent     bool
	Parallel           bool
	Country            string
	Language           string
	// zero means no batch deadline
	Timeout time.Duration
}

// BatchResult aggregates one SearchResult per deduplicated input query.
type BatchResult struct {
	BatchID string `json:"batch_id"`
	// at least one query succeeded
	Success bool `json:"success"`

	TotalQueries      int `json:"total_queries"`
	SuccessfulQueries int `json:"successful_queries"`
	FailedQueries     int `json:"failed_queries"`
	TotalResults      int `json:"total_results"`
	TotalScraped      int `json:"total_scraped"`

	ResultsByQuery map[string]*SearchResult `json:"results_by_query"`

	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   time.Time     `json:"completed_at"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// dedupQueries drops repeats while keeping first-seen order.
func dedupQueries(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	return out
}
