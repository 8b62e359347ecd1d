package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"serpforge"
	"serpforge/lib/forge"
	"serpforge/lib/scraper"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

func outputWriter() (io.Writer, func(), error) {
	if *flagOutput == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(*flagOutput)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

type queryArticles struct {
	query    string
	articles []*scraper.Article
}

func flattenBatch(batch *forge.BatchResult) []queryArticles {
	queries := make([]string, 0, len(batch.ResultsByQuery))
	for query := range batch.ResultsByQuery {
		queries = append(queries, query)
	}
	sort.Strings(queries)

	out := make([]queryArticles, 0, len(queries))
	for _, query := range queries {
		out = append(out, queryArticles{
			query:    query,
			articles: batch.ResultsByQuery[query].Articles,
		})
	}
	return out
}

func writeSearchResult(cfg serpforge.Config, result *forge.SearchResult) error {
	out, done, err := outputWriter()
	if err != nil {
		return err
	}
	defer done()

	switch cfg.Output.Format {
	case "json":
		return writeJSON(out, result)
	case "csv":
		return writeCSV(out, []queryArticles{{query: result.Query, articles: result.Articles}})
	case "table":
		writeArticleTable(out, result.Articles)
		fmt.Fprintf(out, "query %q: %d results, %d scraped, %d failed, took %s\n",
			result.Query, result.TotalResults, result.ScrapedSuccessfully,
			len(result.FailedURLs), result.ExecutionTime.Round(timePrecision))
		return nil
	}
	return fmt.Errorf("unknown output format %q", cfg.Output.Format)
}

func writeBatchResult(cfg serpforge.Config, batch *forge.BatchResult) error {
	out, done, err := outputWriter()
	if err != nil {
		return err
	}
	defer done()

	switch cfg.Output.Format {
	case "json":
		return writeJSON(out, batch)
	case "csv":
		return writeCSV(out, flattenBatch(batch))
	case "table":
		writeBatchTable(out, batch)
		return nil
	}
	return fmt.Errorf("unknown output format %q", cfg.Output.Format)
}

func writeJSON(out io.Writer, value any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func writeCSV(out io.Writer, groups []queryArticles) error {
	w := csv.NewWriter(out)
	err := w.Write([]string{
		"query", "title", "url", "source", "author",
		"word_count", "quality_score", "sentiment", "keywords",
	})
	if err != nil {
		return err
	}
	for _, group := range groups {
		for _, article := range group.articles {
			sentiment := ""
			if article.Sentiment != nil {
				sentiment = article.Sentiment.Label
			}
			err := w.Write([]string{
				group.query,
				article.Title,
				article.URL,
				article.Source,
				article.Author,
				strconv.Itoa(article.WordCount),
				strconv.FormatFloat(article.QualityScore, 'f', 2, 64),
				sentiment,
				strings.Join(article.Keywords, " "),
			})
			if err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func writeArticleTable(out io.Writer, articles []*scraper.Article) {
	t := newTable(out)
	t.AppendHeader(table.Row{"#", "Title", "Source", "Words", "Quality", "URL"})
	for i, article := range articles {
		title := article.Title
		if len(title) > 48 {
			title = title[:45] + "..."
		}
		t.AppendRow(table.Row{
			i + 1, title, article.Source, article.WordCount,
			fmt.Sprintf("%.2f", article.QualityScore), article.URL,
		})
	}
	t.Render()
}

func writeBatchTable(out io.Writer, batch *forge.BatchResult) {
	t := newTable(out)
	t.AppendHeader(table.Row{"Query", "State", "Results", "Scraped", "Failed", "Error"})
	for _, group := range flattenBatch(batch) {
		result := batch.ResultsByQuery[group.query]
		t.AppendRow(table.Row{
			result.Query, string(result.State), result.TotalResults,
			result.ScrapedSuccessfully, len(result.FailedURLs), result.Error,
		})
	}
	t.Render()

	fmt.Fprintf(out, "batch %s: %d/%d queries succeeded, %d results, %d scraped, took %s\n",
		batch.BatchID, batch.SuccessfulQueries, batch.TotalQueries,
		batch.TotalResults, batch.TotalScraped,
		batch.ExecutionTime.Round(timePrecision))
}
