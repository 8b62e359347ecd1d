package commands

import (
	"bufio"
	"log/slog"
	"os"
	"strings"
	"time"

	"serpforge/lib/forge"
	"serpforge/lib/resultstore"
	"serpforge/lib/serper"

	"github.com/spf13/cobra"
)

var (
	batchQueriesFile *string
	batchParallel    *bool
	batchMaxPerQuery *int
	batchSaveTo      *string
	batchSaveDB      *string
	batchTimeoutSecs *int
	batchSearchType  *string
)

func init() {
	flags := batchCmd.Flags()
	batchQueriesFile = flags.String("queries", "", "File with one search query per line.")
	batchParallel = flags.Bool("parallel", false, "Run queries concurrently.")
	batchMaxPerQuery = flags.Int("max-results-per-query", 10, "Maximum results for each query.")
	batchSaveTo = flags.String("save-to", "", "Write the batch result json to this file.")
	batchSaveDB = flags.String("save-db", "", "Archive the batch to this sqlite path or libsql url.")
	batchTimeoutSecs = flags.Int("batch-timeout", 0, "Abort the batch after this many seconds. Zero disables.")
	batchSearchType = flags.String("type", "web", "Search type: web, news, images or videos.")
	batchCmd.MarkFlagRequired("queries")
	rootCmd.AddCommand(batchCmd)
}

// readQueries loads one query per line, skipping blanks and comments.
func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	return queries, sc.Err()
}

var batchCmd = &cobra.Command{
	Use:   "batch --queries <path/to/queries.txt>",
	Short: "Runs many search queries and aggregates their results.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("failed to load config", err)
		}
		searchType, err := serper.ParseSearchType(*batchSearchType)
		if err != nil {
			fatal("invalid search type", err)
		}
		queries, err := readQueries(*batchQueriesFile)
		if err != nil {
			fatal("failed to read queries file", err)
		}

		f, err := buildForge(cfg)
		if err != nil {
			fatal("failed to initialize", err)
		}

		batch, err := f.Batch(cmd.Context(), forge.BatchRequest{
			Queries:            queries,
			Type:               searchType,
			MaxResultsPerQuery: *batchMaxPerQuery,
			IncludeContent:     *flagIncludeContent,
			Parallel:           *batchParallel,
			Country:            *flagCountry,
			Language:           *flagLanguage,
			Timeout:            time.Duration(*batchTimeoutSecs) * time.Second,
		})
		if err != nil {
			fatal("batch failed", err)
		}

		if *batchSaveTo != "" {
			err := saveBatchJSON(*batchSaveTo, batch)
			if err != nil {
				fatal("failed to save batch result", err)
			}
			slog.Info("saved batch result", "path", *batchSaveTo)
		}

		database := *batchSaveDB
		if database == "" {
			database = cfg.Output.Database
		}
		if database != "" {
			store, err := resultstore.Open(database)
			if err != nil {
				fatal("failed to open result archive", err)
			}
			defer store.Close()
			err = store.Save(cmd.Context(), batch)
			if err != nil {
				fatal("failed to archive batch", err)
			}
			slog.Info("archived batch", "batch_id", batch.BatchID, "db", database)
		}

		err = writeBatchResult(cfg, batch)
		if err != nil {
			fatal("failed to write output", err)
		}
		if !batch.Success {
			os.Exit(1)
		}
	},
}

func saveBatchJSON(path string, batch *forge.BatchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeJSON(f, batch)
}
