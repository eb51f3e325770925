package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"boxbluebook/internal/pricing"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	CigarID    *uuid.UUID
	PeriodType pricing.PeriodType
	Limit      int
	Out        io.Writer
}

// Show prints a cigar's recent aggregates, or the most recent deal alerts when no cigar is given.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	c, err := a.build(ctx, buildOptions{requireStore: true})
	if err != nil {
		return err
	}
	defer c.Close()

	if opts.CigarID != nil {
		return a.showHistory(ctx, c, opts)
	}

	alerts, err := c.store.ListRecentDealAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(opts.Out, "no deal alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(opts.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tCigar\tCompetitor\tPrice\tCMV\tDiscount%\tChannels")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.CigarID,
			alert.Competitor,
			alert.PriceSingle.StringFixed(2),
			alert.CMV.StringFixed(2),
			alert.DiscountPct.StringFixed(2),
			strings.Join(alert.Channels, ","),
		)
	}
	writer.Flush()
	return nil
}

func (a *App) showHistory(ctx context.Context, c *components, opts ShowOptions) error {
	detail, err := c.market.CigarDetail(ctx, *opts.CigarID)
	if err != nil {
		return err
	}
	history, err := c.market.History(ctx, *opts.CigarID, pricing.HistoryQuery{PeriodType: opts.PeriodType, Limit: opts.Limit})
	if err != nil {
		return err
	}

	fmt.Fprintf(opts.Out, "%s (%s)\n", detail.FullName, history.PeriodType)
	if history.Summary == nil {
		fmt.Fprintln(opts.Out, "no aggregates found")
		return nil
	}
	s := history.Summary
	fmt.Fprintf(opts.Out, "CMV %s (%s)  high %s  low %s  transactions %d  volume %d\n",
		s.CurrentCMV.StringFixed(2), s.CurrentConfidence, s.PeriodHigh.StringFixed(2), s.PeriodLow.StringFixed(2), s.TotalTransactions, s.TotalVolume)

	writer := tabwriter.NewWriter(opts.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Period\tAvg\tMin\tMax\tCMV\tVolume")
	for _, p := range history.Data {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%d\n",
			p.Date.Format(time.DateOnly),
			p.AvgPrice.StringFixed(2),
			p.MinPrice.StringFixed(2),
			p.MaxPrice.StringFixed(2),
			p.CMV.StringFixed(2),
			p.Volume,
		)
	}
	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
