package importer

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"boxbluebook/internal/catalog"
)

// EntryWriter persists one normalized price-list row as brand, line and cigar.
type EntryWriter interface {
	UpsertCatalogEntry(ctx context.Context, e catalog.Entry) (uuid.UUID, bool, error)
}

// Importer writes parsed workbooks to the catalog.
type Importer struct {
	store  EntryWriter
	logger zerolog.Logger
}

// NewImporter constructs an importer.
func NewImporter(store EntryWriter, logger zerolog.Logger) *Importer {
	return &Importer{
		store:  store,
		logger: logger.With().Str("component", "importer").Logger(),
	}
}

// ImportFile parses the workbook at path and upserts every entry.
func (i *Importer) ImportFile(ctx context.Context, path string, opts Options) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	entries, report, err := Parse(f, opts)
	if err != nil {
		return report, fmt.Errorf("parse %s: %w", path, err)
	}
	i.logger.Info().Str("file", path).Int("sheets", report.Sheets).Int("entries", report.Entries).
		Int("duplicates", report.Duplicates).Int("skipped", report.Skipped).Msg("workbook parsed")

	return i.Import(ctx, entries, report)
}

// Import upserts entries in order. A failed row is counted and logged; the import continues
// unless the context is cancelled.
func (i *Importer) Import(ctx context.Context, entries []catalog.Entry, report Report) (Report, error) {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		_, created, err := i.store.UpsertCatalogEntry(ctx, e)
		if err != nil {
			report.Failed++
			i.logger.Warn().Err(err).Str("brand", e.Brand).Str("name", e.Name).Msg("catalog upsert failed")
			continue
		}
		if created {
			report.Created++
		} else {
			report.Updated++
		}
	}
	i.logger.Info().Int("created", report.Created).Int("updated", report.Updated).Int("failed", report.Failed).Msg("import finished")
	return report, nil
}
