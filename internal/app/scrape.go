package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
)

// ScrapeOptions configure a catalog scrape.
type ScrapeOptions struct {
	Competitors []string
	ArchivePath string
	JSON        bool
	Out         io.Writer
}

// Scrape scrapes competitor catalogs, persisting linked listings when a database is configured.
func (a *App) Scrape(ctx context.Context, opts ScrapeOptions) error {
	c, err := a.build(ctx, buildOptions{archivePath: opts.ArchivePath})
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.scraping.RegisterCompetitors(ctx); err != nil {
		return fmt.Errorf("register competitors: %w", err)
	}
	results, reports := c.scraping.ScrapeCatalogs(ctx, opts.Competitors)
	if opts.JSON {
		return writeJSON(opts.Out, results)
	}

	writer := tabwriter.NewWriter(opts.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Competitor\tProducts\tLinked\tDeals\tError")
	failed := 0
	for _, r := range reports {
		if r.Error != "" {
			failed++
		}
		fmt.Fprintf(writer, "%s\t%d\t%d\t%d\t%s\n", r.Competitor, r.Products, r.Linked, r.Deals, sanitizeInline(r.Error))
	}
	writer.Flush()
	if failed == len(reports) && failed > 0 {
		return fmt.Errorf("all %d competitor scrapes failed", failed)
	}
	return nil
}

// ScrapeURLOptions configure a single product scrape.
type ScrapeURLOptions struct {
	URL     string
	CigarID *uuid.UUID
	Out     io.Writer
}

// ScrapeURL scrapes one product page and, with a cigar id, links the listing to it.
func (a *App) ScrapeURL(ctx context.Context, opts ScrapeURLOptions) error {
	c, err := a.build(ctx, buildOptions{requireStore: opts.CigarID != nil})
	if err != nil {
		return err
	}
	defer c.Close()

	product, err := c.scraping.ScrapeURL(ctx, opts.URL, opts.CigarID)
	if err != nil {
		return err
	}
	return writeJSON(opts.Out, product)
}
