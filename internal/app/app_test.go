package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/apperr"
	"boxbluebook/internal/catalog"
	"boxbluebook/internal/compare"
	"boxbluebook/internal/config"
	"boxbluebook/internal/pricing"
)

func testApp(t *testing.T) *App {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	cfg.Database.DSN = ""
	return NewApp(cfg, zerolog.Nop())
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func historyPoints(n int) []pricing.HistoryPoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]pricing.HistoryPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		v := decimal.NewFromInt(int64(10 + i))
		points = append(points, pricing.HistoryPoint{
			Date: start.AddDate(0, 0, i), AvgPrice: v, MinPrice: v.Sub(decimal.NewFromInt(1)), MaxPrice: v.Add(decimal.NewFromInt(1)), CMV: v, Volume: i + 1,
		})
	}
	return points
}

func TestChronologicalAndDownsample(t *testing.T) {
	points := chronological(historyPoints(10))
	if !points[0].Date.Before(points[9].Date) {
		t.Fatalf("expected oldest first, got %s..%s", points[0].Date, points[9].Date)
	}

	sampled := downsample(points, 4)
	if len(sampled) != 4 || sampled[0].Date != points[0].Date || sampled[3].Date != points[9].Date {
		t.Fatalf("expected endpoints kept, got %+v", sampled)
	}
	if got := downsample(points, 20); len(got) != 10 {
		t.Fatalf("expected no downsampling, got %d", len(got))
	}
}

func TestWriteHistoryFiles(t *testing.T) {
	dir := t.TempDir()
	points := chronological(historyPoints(3))

	csvPath := filepath.Join(dir, "out", "history.csv")
	if err := writeHistoryCSV(csvPath, points); err != nil {
		t.Fatalf("csv: %v", err)
	}
	raw, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 4 || lines[0] != "period_start,avg_price,min_price,max_price,cmv,volume" || lines[1] != "2024-01-01,10.00,9.00,11.00,10.00,1" {
		t.Fatalf("unexpected csv %q", lines)
	}

	pngPath := filepath.Join(dir, "history.png")
	if err := writeHistoryPNG(pngPath, points); err != nil {
		t.Fatalf("png: %v", err)
	}
	if info, err := os.Stat(pngPath); err != nil || info.Size() == 0 {
		t.Fatalf("expected png written, err=%v", err)
	}
	if err := writeHistoryPNG(pngPath, points[:1]); err == nil {
		t.Fatal("expected error for single point chart")
	}
}

func TestPrintComparison(t *testing.T) {
	url := "https://www.famous-smoke.com/padron-1964-exclusivo-cigars"
	count := 25
	cmp := &compare.PriceComparison{
		Cigar: catalog.Identity{ID: uuid.New(), Name: "Padron 1964 Anniversary Exclusivo", MSRPSingle: dec("19.50")},
		Competitors: []compare.Listing{
			{Code: "famous", Name: "Famous Smoke Shop", PriceSingle: dec("17.25"), PriceBox: dec("431.25"), BoxCount: &count, InStock: true, URL: &url},
		},
		BestPrice:       &compare.BestPrice{Competitor: "famous", PriceSingle: decimal.RequireFromString("17.25"), SavingsPercent: 0},
		MarketValue:     compare.MarketValue{AvgSale: dec("21")},
		CacheAgeMinutes: 42,
	}

	var buf bytes.Buffer
	printComparison(&buf, cmp)
	out := buf.String()
	for _, want := range []string{"Padron 1964 Anniversary Exclusivo", "MSRP single: 19.50  box: -", "Famous Smoke Shop", "Best: famous at 17.25", "avg sale 21.00", "last sale -", "42 minutes"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestSimulateAlert(t *testing.T) {
	a := testApp(t)
	var buf bytes.Buffer

	a.Config.Alerting.Enabled = false
	if err := a.SimulateAlert(context.Background(), SimulateOptions{Price: decimal.NewFromInt(8), CMV: decimal.NewFromInt(10), Out: &buf}); err == nil {
		t.Fatal("expected error when alerting disabled")
	}

	a.Config.Alerting.Enabled = true
	a.Config.Alerting.Telegram.Enabled = false
	a.Config.Alerting.ThresholdPct = 15
	err := a.SimulateAlert(context.Background(), SimulateOptions{
		CigarName: "Padron 1964 Exclusivo", Competitor: "famous",
		Price: decimal.NewFromInt(8), CMV: decimal.NewFromInt(10), Out: &buf,
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if got := buf.String(); got != "discount 20.00% threshold 15.00% deal=true\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestStoreCommandsNeedDatabase(t *testing.T) {
	a := testApp(t)
	a.Config.Database.DSN = ""
	err := a.Compare(context.Background(), CompareOptions{CigarID: uuid.New(), Out: &bytes.Buffer{}})
	if !errors.Is(err, apperr.ErrConfigurationMissing) {
		t.Fatalf("expected configuration missing, got %v", err)
	}
	if err := a.Migrate(context.Background(), &bytes.Buffer{}); !errors.Is(err, apperr.ErrConfigurationMissing) {
		t.Fatalf("expected configuration missing from migrate, got %v", err)
	}
	sale := RecordSaleOptions{
		CigarID:   uuid.New(),
		Source:    pricing.SourceManual,
		Quantity:  1,
		UnitPrice: decimal.NewFromInt(400),
		Date:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Out:       &bytes.Buffer{},
	}
	if err := a.RecordSale(context.Background(), sale); !errors.Is(err, apperr.ErrConfigurationMissing) {
		t.Fatalf("expected configuration missing from record-sale, got %v", err)
	}
}

func TestNewSaleTransaction(t *testing.T) {
	base := RecordSaleOptions{
		CigarID:   uuid.New(),
		Source:    pricing.SourceEbay,
		Quantity:  2,
		UnitPrice: decimal.RequireFromString("412.499"),
		Date:      time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC),
		Verified:  true,
	}

	tx, err := newSaleTransaction(base)
	if err != nil {
		t.Fatalf("newSaleTransaction: %v", err)
	}
	if tx.Type != pricing.TypeSale || tx.Condition != pricing.ConditionUnknown {
		t.Fatalf("expected defaulted type and condition, got %s/%s", tx.Type, tx.Condition)
	}
	if !tx.UnitPrice.Equal(decimal.RequireFromString("412.50")) || !tx.TotalPrice.Equal(decimal.RequireFromString("825")) {
		t.Fatalf("unexpected prices %s / %s", tx.UnitPrice, tx.TotalPrice)
	}
	if !tx.Verified || !tx.TransactionDate.Equal(base.Date) {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	cases := map[string]func(o *RecordSaleOptions){
		"missing cigar":     func(o *RecordSaleOptions) { o.CigarID = uuid.Nil },
		"unknown source":    func(o *RecordSaleOptions) { o.Source = "craigslist" },
		"unknown type":      func(o *RecordSaleOptions) { o.Type = "raffle" },
		"unknown condition": func(o *RecordSaleOptions) { o.Condition = "mint" },
		"zero quantity":     func(o *RecordSaleOptions) { o.Quantity = 0 },
		"zero price":        func(o *RecordSaleOptions) { o.UnitPrice = decimal.Zero },
		"negative price":    func(o *RecordSaleOptions) { o.UnitPrice = decimal.NewFromInt(-5) },
		"missing date":      func(o *RecordSaleOptions) { o.Date = time.Time{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := base
			mutate(&opts)
			if _, err := newSaleTransaction(opts); !errors.Is(err, apperr.ErrMalformedInput) {
				t.Fatalf("expected malformed input, got %v", err)
			}
		})
	}
}
