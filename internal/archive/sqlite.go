// Package archive keeps local SQLite snapshots of catalog scrapes.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"boxbluebook/internal/scrape"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	competitor  TEXT NOT NULL,
	url         TEXT NOT NULL,
	products    INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	scraped_at  DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS scraped_products (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       INTEGER NOT NULL REFERENCES scrape_runs(id),
	name         TEXT NOT NULL,
	url          TEXT,
	price_single TEXT,
	price_box    TEXT,
	in_stock     BOOLEAN NOT NULL,
	payload      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS scraped_products_run_idx ON scraped_products (run_id);
`

// Run is one archived catalog scrape.
type Run struct {
	ID         int64         `json:"id"`
	Competitor string        `json:"competitor"`
	URL        string        `json:"url"`
	Products   int           `json:"products"`
	Duration   time.Duration `json:"duration"`
	ScrapedAt  time.Time     `json:"scraped_at"`
}

// Archive is a SQLite file of scrape snapshots.
type Archive struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open creates or opens the archive at path.
func Open(path string, logger zerolog.Logger) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}
	return &Archive{db: db, logger: logger.With().Str("component", "archive").Logger()}, nil
}

// Close closes the database file.
func (a *Archive) Close() error {
	return a.db.Close()
}

// ArchiveCatalog stores one catalog scrape and all its products in a single transaction.
func (a *Archive) ArchiveCatalog(ctx context.Context, res scrape.CatalogResult) error {
	scrapedAt := time.Now().UTC()
	if len(res.Products) > 0 {
		scrapedAt = res.Products[0].ScrapedAt.UTC()
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	out, err := tx.ExecContext(ctx,
		"INSERT INTO scrape_runs (competitor, url, products, duration_ms, scraped_at) VALUES (?, ?, ?, ?, ?)",
		res.Competitor, res.URL, len(res.Products), res.Duration.Milliseconds(), scrapedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scrape run: %w", err)
	}
	runID, err := out.LastInsertId()
	if err != nil {
		return fmt.Errorf("scrape run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO scraped_products (run_id, name, url, price_single, price_box, in_stock, payload) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare product insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range res.Products {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal product: %w", err)
		}
		var single, box sql.NullString
		if p.PriceSingle != nil {
			single = sql.NullString{String: p.PriceSingle.String(), Valid: true}
		}
		if p.PriceBox != nil {
			box = sql.NullString{String: p.PriceBox.String(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, runID, p.Name, p.URL, single, box, p.InStock, string(payload)); err != nil {
			return fmt.Errorf("insert archived product: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	a.logger.Debug().Str("competitor", res.Competitor).Int64("run_id", runID).Int("products", len(res.Products)).Msg("scrape archived")
	return nil
}

// Runs lists archived runs newest first, optionally for one competitor.
func (a *Archive) Runs(ctx context.Context, competitor string, limit int) ([]Run, error) {
	query := "SELECT id, competitor, url, products, duration_ms, scraped_at FROM scrape_runs"
	args := []any{}
	if competitor != "" {
		query += " WHERE competitor = ?"
		args = append(args, competitor)
	}
	query += " ORDER BY scraped_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			r  Run
			ms int64
		)
		if err := rows.Scan(&r.ID, &r.Competitor, &r.URL, &r.Products, &ms, &r.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Products returns the products archived with a run, in insertion order.
func (a *Archive) Products(ctx context.Context, runID int64) ([]scrape.ScrapedProduct, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT payload FROM scraped_products WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("query archived products: %w", err)
	}
	defer rows.Close()

	products := make([]scrape.ScrapedProduct, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan archived product: %w", err)
		}
		var p scrape.ScrapedProduct
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decode archived product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
