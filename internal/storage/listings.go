package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"boxbluebook/internal/compare"
	"boxbluebook/internal/competitor"
	"boxbluebook/internal/scrape"
)

const (
	upsertCompetitorSQL = `INSERT INTO competitors (code, name, base_url, catalog_url)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (code) DO UPDATE
    SET name        = EXCLUDED.name,
        base_url    = EXCLUDED.base_url,
        catalog_url = EXCLUDED.catalog_url;`

	upsertListingSQL = `INSERT INTO competitor_prices (
        cigar_id, competitor_id, price_single, price_box, box_count, in_stock, is_on_sale,
        regular_price, competitor_url, sku, rating, review_count, scraped_at
    )
    SELECT $1, id, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
    FROM competitors
    WHERE code = $2
    ON CONFLICT (cigar_id, competitor_id) DO UPDATE
    SET price_single   = EXCLUDED.price_single,
        price_box      = EXCLUDED.price_box,
        box_count      = EXCLUDED.box_count,
        in_stock       = EXCLUDED.in_stock,
        is_on_sale     = EXCLUDED.is_on_sale,
        regular_price  = EXCLUDED.regular_price,
        competitor_url = EXCLUDED.competitor_url,
        sku            = EXCLUDED.sku,
        rating         = EXCLUDED.rating,
        review_count   = EXCLUDED.review_count,
        scraped_at     = EXCLUDED.scraped_at;`

	listingsForCigarSQL = `SELECT co.code, co.name, cp.price_single::text, cp.price_box::text, cp.box_count,
        cp.in_stock, cp.is_on_sale, cp.regular_price::text, cp.competitor_url, cp.rating,
        cp.review_count, cp.scraped_at
    FROM competitor_prices cp
    JOIN competitors co ON co.id = cp.competitor_id
    WHERE cp.cigar_id = $1;`

	cigarForURLSQL = `SELECT cp.cigar_id
    FROM competitor_prices cp
    JOIN competitors co ON co.id = cp.competitor_id
    WHERE co.code = $1 AND cp.competitor_url = $2
    LIMIT 1;`
)

// EnsureCompetitors registers every competitor so listings can reference it by code.
func (s *Store) EnsureCompetitors(ctx context.Context, competitors []competitor.Competitor) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, c := range competitors {
		batch.Queue(upsertCompetitorSQL, c.Code, c.Name, c.BaseURL, c.CatalogURL)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert competitors: %w", err)
	}
	return nil
}

// UpsertListing stores the latest scraped offer of a competitor for a cigar.
func (s *Store) UpsertListing(ctx context.Context, cigarID uuid.UUID, p scrape.ScrapedProduct) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, upsertListingSQL,
		cigarID,
		p.CompetitorCode,
		decArg(p.PriceSingle),
		decArg(p.PriceBox),
		p.BoxCount,
		p.InStock,
		p.IsOnSale,
		decArg(p.RegularPrice),
		p.URL,
		p.SKU,
		p.Rating,
		p.ReviewCount,
		p.ScrapedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert listing %s/%s: %w", p.CompetitorCode, cigarID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upsert listing: %w", competitor.ErrUnknownCompetitor)
	}
	return nil
}

// ListingsForCigar returns every stored competitor offer for a cigar, in no particular order.
func (s *Store) ListingsForCigar(ctx context.Context, cigarID uuid.UUID) ([]compare.Listing, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, listingsForCigarSQL, cigarID)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	out := make([]compare.Listing, 0)
	for rows.Next() {
		var (
			l                    compare.Listing
			single, box, regular *string
			url                  string
		)
		if err := rows.Scan(
			&l.Code,
			&l.Name,
			&single,
			&box,
			&l.BoxCount,
			&l.InStock,
			&l.IsOnSale,
			&regular,
			&url,
			&l.Rating,
			&l.ReviewCount,
			&l.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		if l.PriceSingle, err = parseOptDec(single, "price_single"); err != nil {
			return nil, err
		}
		if l.PriceBox, err = parseOptDec(box, "price_box"); err != nil {
			return nil, err
		}
		if l.RegularPrice, err = parseOptDec(regular, "regular_price"); err != nil {
			return nil, err
		}
		if url != "" {
			l.URL = &url
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return out, nil
}

// CigarIDForURL resolves the cigar a competitor product URL was previously linked to.
func (s *Store) CigarIDForURL(ctx context.Context, code, url string) (uuid.UUID, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return uuid.Nil, false, err
	}

	var id uuid.UUID
	if err := db.QueryRow(ctx, cigarForURLSQL, code, url).Scan(&id); err != nil {
		if isNoRows(err) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("lookup listing url: %w", err)
	}
	return id, true, nil
}
