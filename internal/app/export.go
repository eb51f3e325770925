package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	chart "github.com/wcharczuk/go-chart/v2"

	"boxbluebook/internal/pricing"
)

// ExportOptions hold parameters for exporting a price history.
type ExportOptions struct {
	CigarID    uuid.UUID
	PeriodType pricing.PeriodType
	From       *time.Time
	To         *time.Time
	PNGPath    string
	CSVPath    string
	MaxPoints  int
	Out        io.Writer
}

// Export renders a cigar's aggregate history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
		return errors.New("from must be before to")
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	c, err := a.build(ctx, buildOptions{requireStore: true})
	if err != nil {
		return err
	}
	defer c.Close()

	history, err := c.market.History(ctx, opts.CigarID, pricing.HistoryQuery{
		PeriodType: opts.PeriodType,
		From:       opts.From,
		To:         opts.To,
		Limit:      pricing.MaxHistoryLimit,
	})
	if err != nil {
		return err
	}
	if len(history.Data) == 0 {
		a.Logger.Info().Str("cigar_id", opts.CigarID.String()).Msg("no aggregates found for export window")
		return nil
	}

	points := chronological(history.Data)
	points = downsample(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(history.Data)).Int("exported", len(points)).Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, points); err != nil {
			return err
		}
		fmt.Fprintf(opts.Out, "wrote %s\n", opts.CSVPath)
	}
	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, points); err != nil {
			return err
		}
		fmt.Fprintf(opts.Out, "wrote %s\n", opts.PNGPath)
	}
	return nil
}

// chronological reverses newest-first history points.
func chronological(points []pricing.HistoryPoint) []pricing.HistoryPoint {
	out := make([]pricing.HistoryPoint, len(points))
	for i, p := range points {
		out[len(points)-1-i] = p
	}
	return out
}

func downsample(points []pricing.HistoryPoint, max int) []pricing.HistoryPoint {
	if max <= 1 || len(points) <= max {
		return points
	}

	result := make([]pricing.HistoryPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeHistoryCSV(path string, points []pricing.HistoryPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"period_start", "avg_price", "min_price", "max_price", "cmv", "volume"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, p := range points {
		record := []string{
			p.Date.Format(time.DateOnly),
			p.AvgPrice.StringFixed(2),
			p.MinPrice.StringFixed(2),
			p.MaxPrice.StringFixed(2),
			p.CMV.StringFixed(2),
			fmt.Sprint(p.Volume),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeHistoryPNG(path string, points []pricing.HistoryPoint) error {
	if len(points) < 2 {
		return errors.New("a chart needs at least two periods")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	cmv := make([]float64, len(points))
	low := make([]float64, len(points))
	high := make([]float64, len(points))
	volume := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Date
		cmv[i] = p.CMV.InexactFloat64()
		low[i] = p.MinPrice.InexactFloat64()
		high[i] = p.MaxPrice.InexactFloat64()
		volume[i] = float64(p.Volume)
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "$%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price per cigar",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name: "Volume",
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "CMV", XValues: x, YValues: cmv},
			chart.TimeSeries{Name: "Low", XValues: x, YValues: low},
			chart.TimeSeries{Name: "High", XValues: x, YValues: high},
			chart.TimeSeries{Name: "Volume", XValues: x, YValues: volume, YAxis: chart.YAxisSecondary},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
