package cli

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"boxbluebook/internal/app"
)

var (
	scrapeArchive string
	scrapeJSON    bool
	scrapeCigar   string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [competitor...]",
	Short: "Scrape competitor catalogs (all when none are named)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Scrape(cmd.Context(), app.ScrapeOptions{
			Competitors: args,
			ArchivePath: scrapeArchive,
			JSON:        scrapeJSON,
			Out:         cmd.OutOrStdout(),
		})
	},
}

var scrapeURLCmd = &cobra.Command{
	Use:   "scrape-url <url>",
	Short: "Scrape one product page, optionally linking it to a cigar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var cigarID *uuid.UUID
		if scrapeCigar != "" {
			id, err := parseCigarID(scrapeCigar)
			if err != nil {
				return err
			}
			cigarID = &id
		}
		return getApp().ScrapeURL(cmd.Context(), app.ScrapeURLOptions{URL: args[0], CigarID: cigarID, Out: cmd.OutOrStdout()})
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeArchive, "archive", "", "SQLite file to archive raw scrapes into (defaults to archive.path)")
	scrapeCmd.Flags().BoolVar(&scrapeJSON, "json", false, "Print scraped products as JSON")
	scrapeURLCmd.Flags().StringVar(&scrapeCigar, "cigar", "", "Cigar id to link the listing to")
}
