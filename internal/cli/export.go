package cli

import (
	"github.com/spf13/cobra"

	"boxbluebook/internal/app"
	"boxbluebook/internal/pricing"
)

var (
	exportCigar     string
	exportPeriod    string
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int

	importBrand   string
	importCountry string
	importSheets  []string
	importDryRun  bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a cigar's price history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseCigarID(exportCigar)
		if err != nil {
			return err
		}
		pt, err := pricing.ParsePeriodType(exportPeriod)
		if err != nil {
			return err
		}
		opts := app.ExportOptions{
			CigarID:    id,
			PeriodType: pt,
			PNGPath:    exportPNGPath,
			CSVPath:    exportCSVPath,
			MaxPoints:  exportMaxPoints,
			Out:        cmd.OutOrStdout(),
		}
		if opts.From, err = parseOptionalTime("from", exportFrom); err != nil {
			return err
		}
		if opts.To, err = parseOptionalTime("to", exportTo); err != nil {
			return err
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Import a manufacturer price-list workbook into the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Import(cmd.Context(), app.ImportOptions{
			Path:    args[0],
			Brand:   importBrand,
			Country: importCountry,
			Sheets:  importSheets,
			DryRun:  importDryRun,
			Out:     cmd.OutOrStdout(),
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCigar, "cigar", "", "Cigar id")
	exportCmd.Flags().StringVar(&exportPeriod, "period", "daily", "Period type")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start (RFC3339 or YYYY-MM-DD, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End (RFC3339 or YYYY-MM-DD, exclusive)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
	_ = exportCmd.MarkFlagRequired("cigar")

	importCmd.Flags().StringVar(&importBrand, "brand", "", "Brand for workbooks without a brand column")
	importCmd.Flags().StringVar(&importCountry, "country", "", "Country of origin for rows without one")
	importCmd.Flags().StringSliceVar(&importSheets, "sheet", nil, "Only read these sheets")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse and print entries without writing")
}
