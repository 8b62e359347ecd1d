// Package serpforge holds the shared configuration surface of the
// search scraping toolkit.
package serpforge

import (
	"fmt"
	"os"
	"strconv"

	"serpforge/lib/configutil"
	"serpforge/lib/scraper/proxypool"

	"dario.cat/mergo"
)

type SerperConfig struct {
	APIKey                string `json:"api_key"`
	BaseURL               string `json:"base_url"`
	TimeoutSeconds        int    `json:"timeout_seconds"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	MaxRetries            int    `json:"max_retries"`
	RetryBaseDelaySeconds int    `json:"retry_base_delay_seconds"`
	RetryMaxDelaySeconds  int    `json:"retry_max_delay_seconds"`
}

type ScrapingConfig struct {
	MaxConcurrent         int `json:"max_concurrent"`
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`
	MaxResultsPerQuery    int `json:"max_results_per_query"`
}

type AntiDetectionConfig struct {
	RotateHeaders    *bool    `json:"rotate_headers"`
	RotateUserAgents *bool    `json:"rotate_user_agents"`
	DelayMinSeconds  float64  `json:"delay_min_seconds"`
	DelayMaxSeconds  float64  `json:"delay_max_seconds"`
	UserAgents       []string `json:"user_agents"`
}

type ProxyConfig struct {
	Enabled                    bool     `json:"enabled"`
	RotationStrategy           string   `json:"rotation_strategy"`
	MaxFailures                int      `json:"max_failures"`
	HealthCheckIntervalSeconds int      `json:"health_check_interval_seconds"`
	ResidentialProxies         []string `json:"residential_proxies"`
	DatacenterProxies          []string `json:"datacenter_proxies"`
	// fall back to a direct connection when every proxy is excluded
	AllowDirect *bool `json:"allow_direct"`
}

// All merges the proxy lists, residential first, dropping repeats.
func (c ProxyConfig) All() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range append(append([]string{}, c.ResidentialProxies...), c.DatacenterProxies...) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

type ExtractionConfig struct {
	SentimentAnalysis *bool   `json:"sentiment_analysis"`
	KeywordExtraction *bool   `json:"keyword_extraction"`
	AutoSummarization *bool   `json:"auto_summarization"`
	MinContentLength  int     `json:"min_content_length"`
	MaxContentLength  int     `json:"max_content_length"`
	StrictFilter      bool    `json:"strict_filter"`
	QualityThreshold  float64 `json:"quality_threshold"`
}

type OutputConfig struct {
	Format    string `json:"format"`
	Directory string `json:"directory"`
	// sqlite path or libsql url, empty disables archiving
	Database string `json:"database"`
}

type Config struct {
	Serper        SerperConfig        `json:"serper"`
	Scraping      ScrapingConfig      `json:"scraping"`
	AntiDetection AntiDetectionConfig `json:"anti_detection"`
	Proxy         ProxyConfig         `json:"proxy"`
	Extraction    ExtractionConfig    `json:"extraction"`
	Output        OutputConfig        `json:"output"`
}

func boolPtr(v bool) *bool { return &v }

// BoolOr resolves an optional toggle against its default.
func BoolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func Default() Config {
	return Config{
		Serper: SerperConfig{
			BaseURL:               "https://google.serper.dev",
			TimeoutSeconds:        30,
			MaxRequestsPerMinute:  60,
			MaxRetries:            3,
			RetryBaseDelaySeconds: 1,
			RetryMaxDelaySeconds:  60,
		},
		Scraping: ScrapingConfig{
			MaxConcurrent:         5,
			RequestTimeoutSeconds: 15,
			MaxResultsPerQuery:    100,
		},
		AntiDetection: AntiDetectionConfig{
			RotateHeaders:    boolPtr(true),
			RotateUserAgents: boolPtr(true),
			DelayMinSeconds:  1,
			DelayMaxSeconds:  4,
		},
		Proxy: ProxyConfig{
			RotationStrategy:           string(proxypool.RoundRobin),
			MaxFailures:                5,
			HealthCheckIntervalSeconds: 300,
			AllowDirect:                boolPtr(true),
		},
		Extraction: ExtractionConfig{
			SentimentAnalysis: boolPtr(true),
			KeywordExtraction: boolPtr(true),
			AutoSummarization: boolPtr(true),
			MinContentLength:  100,
			MaxContentLength:  50000,
		},
		Output: OutputConfig{
			Format:    "json",
			Directory: "./output",
		},
	}
}

// Load reads the config file, fills unset fields with defaults and
// applies environment overrides. A missing file is not an error, the
// defaults plus environment carry it.
func Load(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, err
	}

	defaults := Default()
	err = mergo.Merge(&cfg, defaults)
	if err != nil {
		return cfg, err
	}

	applyEnv(&cfg)

	err = cfg.Validate()
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if key := os.Getenv("SERPER_API_KEY"); key != "" {
		cfg.Serper.APIKey = key
	}
	if raw := os.Getenv("SERPER_TIMEOUT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			cfg.Serper.TimeoutSeconds = v
		}
	}
	if raw := os.Getenv("SERPER_MAX_RETRIES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			cfg.Serper.MaxRetries = v
		}
	}
}

var validFormats = map[string]bool{
	"json":  true,
	"csv":   true,
	"table": true,
}

func (c Config) Validate() error {
	if c.Serper.TimeoutSeconds <= 0 {
		return fmt.Errorf("serper.timeout_seconds must be positive")
	}
	if c.Serper.MaxRetries < 0 {
		return fmt.Errorf("serper.max_retries cannot be negative")
	}
	if c.Scraping.MaxConcurrent <= 0 {
		return fmt.Errorf("scraping.max_concurrent must be positive")
	}
	if c.AntiDetection.DelayMinSeconds > c.AntiDetection.DelayMaxSeconds {
		return fmt.Errorf("anti_detection delay range is inverted: min %v > max %v",
			c.AntiDetection.DelayMinSeconds, c.AntiDetection.DelayMaxSeconds)
	}
	if _, err := proxypool.ParseStrategy(c.Proxy.RotationStrategy); err != nil {
		return err
	}
	if c.Proxy.Enabled && len(c.Proxy.All()) == 0 {
		return fmt.Errorf("proxy rotation is enabled but no proxies are configured")
	}
	if c.Extraction.MinContentLength < 0 ||
		c.Extraction.MaxContentLength <= c.Extraction.MinContentLength {
		return fmt.Errorf("extraction content length window [%d, %d] is invalid",
			c.Extraction.MinContentLength, c.Extraction.MaxContentLength)
	}
	if c.Extraction.QualityThreshold < 0 || c.Extraction.QualityThreshold > 1 {
		return fmt.Errorf("extraction.quality_threshold must be within [0, 1]")
	}
	if !validFormats[c.Output.Format] {
		return fmt.Errorf("output.format %q is not one of json, csv, table", c.Output.Format)
	}
	return nil
}
