package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"boxbluebook/internal/alerting"
)

// SimulateOptions describe a hypothetical listing to alert on.
type SimulateOptions struct {
	CigarName  string
	Competitor string
	Price      decimal.Decimal
	CMV        decimal.Decimal
	Note       string
	Out        io.Writer
}

// SimulateAlert pushes a deal notification for the given prices through the configured channel
// without touching storage.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}
	if !opts.CMV.IsPositive() {
		return errors.New("--cmv must be positive")
	}

	deals := a.newDeals(nil, a.newNotifier())
	discount, err := deals.Simulate(ctx, opts.CigarName, opts.Competitor, opts.Price, opts.CMV, opts.Note)
	if err != nil {
		return err
	}

	threshold := decimal.NewFromFloat(a.Config.Alerting.ThresholdPct)
	_, isDeal := alerting.IsDeal(opts.Price, opts.CMV, threshold)
	fmt.Fprintf(opts.Out, "discount %s%% threshold %s%% deal=%v\n", discount.StringFixed(2), threshold.StringFixed(2), isDeal)
	return nil
}
