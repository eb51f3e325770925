package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"boxbluebook/internal/app"
	"boxbluebook/internal/pricing"
)

var (
	backfillFrom    string
	backfillTo      string
	backfillCigars  []string
	backfillPeriods []string
	backfillWorkers int

	aggregateCigar  string
	aggregatePeriod string
	aggregateAt     string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recompute aggregates over a historical range",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" || backfillTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}
		from, err := parseTime("from", backfillFrom)
		if err != nil {
			return err
		}
		to, err := parseTime("to", backfillTo)
		if err != nil {
			return err
		}
		if !from.Before(to) {
			return fmt.Errorf("--from must be before --to")
		}
		ids, err := parseCigarIDs(backfillCigars)
		if err != nil {
			return err
		}
		periodTypes := make([]pricing.PeriodType, 0, len(backfillPeriods))
		for _, raw := range backfillPeriods {
			pt, err := pricing.ParsePeriodType(raw)
			if err != nil {
				return err
			}
			periodTypes = append(periodTypes, pt)
		}

		opts := app.BackfillOptions{
			From:        from,
			To:          to,
			CigarIDs:    ids,
			PeriodTypes: periodTypes,
			Workers:     backfillWorkers,
			Out:         cmd.OutOrStdout(),
		}
		return getApp().Backfill(cmd.Context(), opts)
	},
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Recompute one cigar's aggregate for the period containing --at",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseCigarID(aggregateCigar)
		if err != nil {
			return err
		}
		pt, err := pricing.ParsePeriodType(aggregatePeriod)
		if err != nil {
			return err
		}
		at, err := parseTime("at", aggregateAt)
		if err != nil {
			return err
		}
		return getApp().Aggregate(cmd.Context(), app.AggregateOptions{CigarID: id, PeriodType: pt, At: at, Out: cmd.OutOrStdout()})
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Start (RFC3339 or YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End (RFC3339 or YYYY-MM-DD, exclusive)")
	backfillCmd.Flags().StringSliceVar(&backfillCigars, "cigar", nil, "Cigar ids to backfill (defaults to every cigar traded since --from)")
	backfillCmd.Flags().StringSliceVar(&backfillPeriods, "period", nil, "Period types (defaults to aggregation.period_types)")
	backfillCmd.Flags().IntVar(&backfillWorkers, "workers", 0, "Concurrent cigar/period chains (defaults to config)")

	aggregateCmd.Flags().StringVar(&aggregateCigar, "cigar", "", "Cigar id")
	aggregateCmd.Flags().StringVar(&aggregatePeriod, "period", "daily", "Period type")
	aggregateCmd.Flags().StringVar(&aggregateAt, "at", "", "Any instant inside the period (RFC3339 or YYYY-MM-DD)")
	_ = aggregateCmd.MarkFlagRequired("cigar")
	_ = aggregateCmd.MarkFlagRequired("at")
}
