package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"serpforge"
	"serpforge/lib/forge"
	"serpforge/lib/scraper"
	"serpforge/lib/scraper/antidetect"
	"serpforge/lib/scraper/proxypool"
	"serpforge/lib/serper"
	"serpforge/lib/serviceutil"
	"serpforge/lib/textutil"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "serp-forge",
	Short: "serp-forge searches the web through the Serper API and scrapes the results.",
}

var (
	flagConfig         *string
	flagOutput         *string
	flagFormat         *string
	flagMaxResults     *int
	flagIncludeContent *bool
	flagProxyRotation  *string
	flagTimeout        *int
	flagCountry        *string
	flagLanguage       *string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flagConfig = flags.String("config", "serpforge.json5", "Path to the configuration file.")
	flagOutput = flags.String("output", "", "Write results to this file instead of stdout.")
	flagFormat = flags.String("format", "", "Output format: json, csv or table.")
	flagMaxResults = flags.Int("max-results", 10, "Maximum results per query.")
	flagIncludeContent = flags.Bool("include-content", true, "Scrape full page content for each result.")
	flagProxyRotation = flags.String("proxy-rotation", "", "Proxy rotation strategy: round_robin, random or failover.")
	flagTimeout = flags.Int("timeout", 0, "Serper request timeout in seconds.")
	flagCountry = flags.String("gl", "", "Country code for search results, e.g. us.")
	flagLanguage = flags.String("hl", "", "Language code for search results, e.g. en.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and layers the global flags on top.
func loadConfig() (serpforge.Config, error) {
	cfg, err := serpforge.Load(*flagConfig)
	if err != nil {
		return cfg, err
	}
	if *flagFormat != "" {
		cfg.Output.Format = *flagFormat
	}
	if *flagProxyRotation != "" {
		cfg.Proxy.RotationStrategy = *flagProxyRotation
	}
	if *flagTimeout > 0 {
		cfg.Serper.TimeoutSeconds = *flagTimeout
	}
	if *flagLanguage != "" && !textutil.ValidLanguageTag(*flagLanguage) {
		return cfg, fmt.Errorf("invalid language code %q", *flagLanguage)
	}
	err = cfg.Validate()
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

func buildForge(cfg serpforge.Config) (*forge.Forge, error) {
	client, err := serper.NewClient(serper.ClientOptions{
		APIKey:               cfg.Serper.APIKey,
		BaseURL:              cfg.Serper.BaseURL,
		Timeout:              time.Duration(cfg.Serper.TimeoutSeconds) * time.Second,
		MaxRequestsPerMinute: cfg.Serper.MaxRequestsPerMinute,
	})
	if err != nil {
		return nil, err
	}

	var pool *proxypool.Pool
	if cfg.Proxy.Enabled {
		strategy, err := proxypool.ParseStrategy(cfg.Proxy.RotationStrategy)
		if err != nil {
			return nil, err
		}
		pool, err = proxypool.New(cfg.Proxy.All(), proxypool.Options{
			Strategy:            strategy,
			MaxFailures:         cfg.Proxy.MaxFailures,
			HealthCheckInterval: time.Duration(cfg.Proxy.HealthCheckIntervalSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
	}

	rotator := antidetect.NewRotator(antidetect.Options{
		RotateUserAgents: serpforge.BoolOr(cfg.AntiDetection.RotateUserAgents, true),
		RotateHeaders:    serpforge.BoolOr(cfg.AntiDetection.RotateHeaders, true),
		DelayMin:         time.Duration(cfg.AntiDetection.DelayMinSeconds * float64(time.Second)),
		DelayMax:         time.Duration(cfg.AntiDetection.DelayMaxSeconds * float64(time.Second)),
		UserAgents:       cfg.AntiDetection.UserAgents,
	})

	contentScraper := scraper.New(scraper.Options{
		Timeout:          time.Duration(cfg.Scraping.RequestTimeoutSeconds) * time.Second,
		MinContentLength: cfg.Extraction.MinContentLength,
		MaxContentLength: cfg.Extraction.MaxContentLength,
		StrictFilter:     cfg.Extraction.StrictFilter,
		QualityThreshold: cfg.Extraction.QualityThreshold,
		EnableSentiment:  serpforge.BoolOr(cfg.Extraction.SentimentAnalysis, true),
		EnableKeywords:   serpforge.BoolOr(cfg.Extraction.KeywordExtraction, true),
		EnableSummary:    serpforge.BoolOr(cfg.Extraction.AutoSummarization, true),
		AllowDirect:      serpforge.BoolOr(cfg.Proxy.AllowDirect, true),
		Rotator:          rotator,
		Proxies:          pool,
	})

	return forge.New(client, contentScraper, forge.Options{
		MaxRetries:    cfg.Serper.MaxRetries,
		BaseDelay:     time.Duration(cfg.Serper.RetryBaseDelaySeconds) * time.Second,
		MaxDelay:      time.Duration(cfg.Serper.RetryMaxDelaySeconds) * time.Second,
		MaxConcurrent: cfg.Scraping.MaxConcurrent,
	}), nil
}

func fatal(message string, err error) {
	serviceutil.Fatal(message, err)
}
