package commands

import (
	"fmt"
	"os"
	"time"

	"serpforge/lib/forge"
	"serpforge/lib/serper"

	"github.com/spf13/cobra"
)

const timePrecision = time.Millisecond

func init() {
	rootCmd.AddCommand(
		newSearchCommand("search", serper.TypeWeb, "Run a web search and scrape the result pages."),
		newSearchCommand("news", serper.TypeNews, "Run a news search and scrape the articles."),
		newSearchCommand("images", serper.TypeImages, "Run an image search. Image results are never content-scraped."),
		newSearchCommand("videos", serper.TypeVideos, "Run a video search. Video results are never content-scraped."),
	)
}

func newSearchCommand(name string, searchType serper.SearchType, short string) *cobra.Command {
	return &cobra.Command{
		Use:   fmt.Sprintf("%s <query>", name),
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig()
			if err != nil {
				fatal("failed to load config", err)
			}
			f, err := buildForge(cfg)
			if err != nil {
				fatal("failed to initialize", err)
			}

			result, err := f.Search(cmd.Context(), forge.Request{
				Query:          args[0],
				Type:           searchType,
				MaxResults:     *flagMaxResults,
				IncludeContent: *flagIncludeContent,
				Country:        *flagCountry,
				Language:       *flagLanguage,
			})
			if err != nil {
				fatal("search failed", err)
			}

			err = writeSearchResult(cfg, result)
			if err != nil {
				fatal("failed to write output", err)
			}
			if !result.Success {
				os.Exit(1)
			}
		},
	}
}
