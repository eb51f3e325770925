package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"boxbluebook/internal/apperr"
	"boxbluebook/internal/catalog"
	"boxbluebook/internal/importer"
	"boxbluebook/internal/search"
	"boxbluebook/internal/service"
)

// ImportOptions configure a price-list import.
type ImportOptions struct {
	Path    string
	Brand   string
	Country string
	Sheets  []string
	DryRun  bool
	Out     io.Writer
}

// Import loads a manufacturer workbook into the catalog.
func (a *App) Import(ctx context.Context, opts ImportOptions) error {
	parseOpts := importer.Options{Brand: opts.Brand, Country: opts.Country, Sheets: opts.Sheets}

	if opts.DryRun {
		entries, report, err := parseWorkbook(opts.Path, parseOpts)
		if err != nil {
			return err
		}
		fmt.Fprintf(opts.Out, "sheets: %d rows: %d entries: %d duplicates: %d skipped: %d\n",
			report.Sheets, report.Rows, report.Entries, report.Duplicates, report.Skipped)
		for _, e := range entries {
			fmt.Fprintf(opts.Out, "%s | %s | %s | %s\n", e.Brand, e.Line, e.Name, e.Vitola)
		}
		return nil
	}

	c, err := a.build(ctx, buildOptions{requireStore: true})
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := importer.NewImporter(c.store, a.Logger).ImportFile(ctx, opts.Path, parseOpts)
	if err != nil {
		return err
	}
	fmt.Fprintf(opts.Out, "entries: %d created: %d updated: %d failed: %d duplicates: %d skipped: %d\n",
		report.Entries, report.Created, report.Updated, report.Failed, report.Duplicates, report.Skipped)
	return nil
}

// Reindex rebuilds the search indexes from the catalog.
func (a *App) Reindex(ctx context.Context, out io.Writer) error {
	c, err := a.build(ctx, buildOptions{requireStore: true})
	if err != nil {
		return err
	}
	defer c.Close()
	if c.meili == nil {
		return fmt.Errorf("search.host: %w", apperr.ErrConfigurationMissing)
	}

	indexer := search.NewIndexer(c.meili, a.Config.Search.BatchSize, a.Logger)
	report, err := service.NewReindex(c.store, indexer, a.Logger).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "brands: %d lines: %d cigars: %d removed: %d\n", report.Brands, report.Lines, report.Cigars, report.Removed)
	return nil
}

// Migrate applies the bundled schema.
func (a *App) Migrate(ctx context.Context, out io.Writer) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errNoDatabase
	}
	defer closeStore()

	applied, err := store.Migrate(ctx)
	if err != nil {
		return err
	}
	for _, name := range applied {
		fmt.Fprintf(out, "applied %s\n", name)
	}
	return nil
}

func parseWorkbook(path string, opts importer.Options) ([]catalog.Entry, importer.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, importer.Report{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return importer.Parse(f, opts)
}
