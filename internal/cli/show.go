package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"boxbluebook/internal/app"
	"boxbluebook/internal/pricing"
)

var (
	showLimit  int
	showCigar  string
	showPeriod string

	compareJSON bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display a cigar's recent aggregates, or recent deal alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		opts := app.ShowOptions{
			Limit: showLimit,
			Out:   cmd.OutOrStdout(),
		}
		if showCigar != "" {
			id, err := parseCigarID(showCigar)
			if err != nil {
				return err
			}
			pt, err := pricing.ParsePeriodType(showPeriod)
			if err != nil {
				return err
			}
			opts.CigarID = &id
			opts.PeriodType = pt
		}
		return getApp().Show(cmd.Context(), opts)
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare <cigar-id>",
	Short: "Compare retail listings with the secondary market for one cigar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid cigar id %q: %w", args[0], err)
		}
		return getApp().Compare(cmd.Context(), app.CompareOptions{CigarID: id, JSON: compareJSON, Out: cmd.OutOrStdout()})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().StringVar(&showCigar, "cigar", "", "Cigar id whose aggregates to show")
	showCmd.Flags().StringVar(&showPeriod, "period", "daily", "Period type used with --cigar")

	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "Print the comparison as JSON")
}
