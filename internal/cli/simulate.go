package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"boxbluebook/internal/app"
)

var (
	simulatePrice      float64
	simulateCMV        float64
	simulateCigar      string
	simulateCompetitor string
	simulateNote       string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a deal alert for a hypothetical listing",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice <= 0 || simulateCMV <= 0 {
			return errors.New("--price and --cmv must be greater than 0")
		}
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			CigarName:  simulateCigar,
			Competitor: simulateCompetitor,
			Price:      decimal.NewFromFloat(simulatePrice),
			CMV:        decimal.NewFromFloat(simulateCMV),
			Note:       simulateNote,
			Out:        cmd.OutOrStdout(),
		})
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Retail single-cigar price")
	simulateCmd.Flags().Float64Var(&simulateCMV, "cmv", 0, "Current market value per cigar")
	simulateCmd.Flags().StringVar(&simulateCigar, "cigar", "Test Cigar Robusto", "Cigar name shown in the alert")
	simulateCmd.Flags().StringVar(&simulateCompetitor, "competitor", "famous", "Competitor code shown in the alert")
	simulateCmd.Flags().StringVar(&simulateNote, "note", "simulated alert", "Extra line appended to the alert")
}
