// Package resultstore archives batch runs to sqlite or a remote libsql
// database so past scrapes can be inspected later.
package resultstore

import (
	"context"
	"database/sql"
	"encoding/json"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"serpforge/lib/forge"
	"serpforge/lib/scraper"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

// Open picks the driver from the url: libsql/wss/https urls talk to a
// remote database, anything else is treated as a local sqlite path.
func Open(url string) (*Store, error) {
	if url == "" {
		return nil, fmt.Errorf("a database path or url was not specified")
	}

	var database *sql.DB
	var err error
	switch {
	case strings.HasPrefix(url, "libsql://"),
		strings.HasPrefix(url, "wss://"),
		strings.HasPrefix(url, "https://"):
		database, err = sql.Open("libsql", url)
		if err != nil {
			return nil, err
		}
	default:
		_, statErr := os.Stat(url)
		if os.IsNotExist(statErr) && url != ":memory:" {
			f, err := os.Create(url)
			if err != nil {
				return nil, err
			}
			f.Close()
		}
		database, err = sql.Open("sqlite", url)
		if err != nil {
			return nil, err
		}
		// https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
		database.SetMaxOpenConns(1)
		_, err = database.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			return nil, err
		}
	}

	_, err = database.Exec(schema)
	if err != nil {
		return nil, err
	}
	return &Store{db: database}, nil
}

func NewStore(database *sql.DB) (*Store, error) {
	_, err := database.Exec(schema)
	if err != nil {
		return nil, err
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes a whole batch, its per-query results and their articles
// in one transaction.
func (s *Store) Save(ctx context.Context, batch *forge.BatchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (
			id, success, total_queries, successful_queries, failed_queries,
			total_results, total_scraped, started_at, completed_at, execution_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.BatchID, batch.Success,
		batch.TotalQueries, batch.SuccessfulQueries, batch.FailedQueries,
		batch.TotalResults, batch.TotalScraped,
		batch.StartedAt.Unix(), batch.CompletedAt.Unix(),
		batch.ExecutionTime.Milliseconds())
	if err != nil {
		return err
	}

	for _, result := range batch.ResultsByQuery {
		row, err := tx.ExecContext(ctx, `
			INSERT INTO queries (
				batch_id, request_id, query, search_type, state,
				success, total_results, scraped, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			batch.BatchID, result.RequestID, result.Query,
			string(result.SearchType), string(result.State),
			result.Success, result.TotalResults,
			result.ScrapedSuccessfully, result.Error)
		if err != nil {
			return err
		}
		queryID, err := row.LastInsertId()
		if err != nil {
			return err
		}

		for _, article := range result.Articles {
			payload, err := json.Marshal(article)
			if err != nil {
				slog.WarnContext(ctx, "failed to marshal article",
					"url", article.URL, "err", err)
				continue
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO articles (
					query_id, url, title, source, author,
					word_count, quality_score, payload
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				queryID, article.URL, article.Title, article.Source,
				article.Author, article.WordCount, article.QualityScore,
				string(payload))
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

type BatchSummary struct {
	BatchID           string
	Success           bool
	TotalQueries      int
	SuccessfulQueries int
	TotalResults      int
	TotalScraped      int
	StartedAt         time.Time
}

// Recent lists the most recently started batches, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]BatchSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, success, total_queries, successful_queries,
			total_results, total_scraped, started_at
		FROM batches ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BatchSummary
	for rows.Next() {
		var summary BatchSummary
		var startedAt int64
		err := rows.Scan(&summary.BatchID, &summary.Success,
			&summary.TotalQueries, &summary.SuccessfulQueries,
			&summary.TotalResults, &summary.TotalScraped, &startedAt)
		if err != nil {
			return nil, err
		}
		summary.StartedAt = time.Unix(startedAt, 0)
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Articles returns the archived articles of one batch, decoded from
// their stored payloads.
func (s *Store) Articles(ctx context.Context, batchID string) ([]*scraper.Article, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.payload FROM articles a
		JOIN queries q ON q.id = a.query_id
		WHERE q.batch_id = ?
		ORDER BY a.id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*scraper.Article
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var article scraper.Article
		if err := json.Unmarshal([]byte(payload), &article); err != nil {
			slog.WarnContext(ctx, "failed to unmarshal archived article", "err", err)
			continue
		}
		out = append(out, &article)
	}
	return out, rows.Err()
}
