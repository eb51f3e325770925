package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/compare"
)

// CompareOptions configure the compare command.
type CompareOptions struct {
	CigarID uuid.UUID
	JSON    bool
	Out     io.Writer
}

// Compare prints the retail and market price comparison of one cigar.
func (a *App) Compare(ctx context.Context, opts CompareOptions) error {
	c, err := a.build(ctx, buildOptions{requireStore: true})
	if err != nil {
		return err
	}
	defer c.Close()

	cmp, err := c.assembler.Compare(ctx, opts.CigarID)
	if err != nil {
		return err
	}
	if opts.JSON {
		return writeJSON(opts.Out, cmp)
	}
	printComparison(opts.Out, cmp)
	return nil
}

func printComparison(out io.Writer, cmp *compare.PriceComparison) {
	fmt.Fprintf(out, "%s\n", cmp.Cigar.Name)
	fmt.Fprintf(out, "MSRP single: %s  box: %s\n", formatOptional(cmp.Cigar.MSRPSingle), formatOptional(cmp.Cigar.MSRPBox))

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Competitor\tSingle\tBox\tCount\tStock\tSale")
	for _, l := range cmp.Competitors {
		count := "-"
		if l.BoxCount != nil {
			count = fmt.Sprint(*l.BoxCount)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.Name, formatOptional(l.PriceSingle), formatOptional(l.PriceBox), count, yesNo(l.InStock), yesNo(l.IsOnSale))
	}
	writer.Flush()

	if cmp.BestPrice != nil {
		fmt.Fprintf(out, "Best: %s at %s (saves %d%%)\n", cmp.BestPrice.Competitor, cmp.BestPrice.PriceSingle.StringFixed(2), cmp.BestPrice.SavingsPercent)
	}
	mv := cmp.MarketValue
	lastSale := "-"
	if mv.LastSale != nil {
		lastSale = fmt.Sprintf("%s on %s via %s", mv.LastSale.Price.StringFixed(2), mv.LastSale.Date.Format("2006-01-02"), strings.ToLower(string(mv.LastSale.Source)))
	}
	fmt.Fprintf(out, "Market: avg sale %s  90d trend %s%%  last sale %s\n", formatOptional(mv.AvgSale), formatOptional(mv.Trend90d), lastSale)
	fmt.Fprintf(out, "Prices cached %d minutes ago\n", cmp.CacheAgeMinutes)
}

func formatOptional(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
