package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"boxbluebook/internal/apperr"
	"boxbluebook/internal/catalog"
	"boxbluebook/internal/compare"
	"boxbluebook/internal/pricing"
)

// closedAddr returns a loopback address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestRedisCacheUnavailable(t *testing.T) {
	c := NewRedisCache(Options{Addr: closedAddr(t), Prefix: "test:", DialTimeout: 200 * time.Millisecond, MaxRetries: -1}, zerolog.Nop())
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var dst map[string]string
	if _, err := c.Get(ctx, "k", &dst); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable on get, got %v", err)
	}
	if err := c.Set(ctx, "k", map[string]string{"a": "b"}, time.Minute); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable on set, got %v", err)
	}
	if err := c.Ping(ctx); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable on ping, got %v", err)
	}
}

func TestRedisCacheSetRejectsUnmarshalable(t *testing.T) {
	c := NewRedisCache(Options{Addr: closedAddr(t)}, zerolog.Nop())
	defer c.Close()

	err := c.Set(context.Background(), "k", make(chan int), time.Minute)
	if err == nil || errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected a marshal error, got %v", err)
	}
}

func TestRedisCacheDeleteNothing(t *testing.T) {
	c := NewRedisCache(Options{Addr: closedAddr(t)}, zerolog.Nop())
	defer c.Close()
	if err := c.Delete(context.Background()); err != nil {
		t.Fatalf("empty delete should be a no-op, got %v", err)
	}
}

func sampleComparison() compare.PriceComparison {
	single := decimal.RequireFromString("18.50")
	box := decimal.RequireFromString("412.00")
	count := 25
	url := "https://shop.example/cigar"
	trend := decimal.RequireFromString("-3.25")
	return compare.PriceComparison{
		Cigar: catalog.Identity{
			ID:         uuid.MustParse("7b1c4f0e-3c55-4a4b-8d55-4a0f7c6b8e21"),
			Name:       "Padron 1964 Anniversary Exclusivo",
			Brand:      "Padron",
			Line:       "1964 Anniversary",
			Vitola:     "Exclusivo",
			MSRPSingle: &single,
		},
		Competitors: []compare.Listing{{
			Code:        "foxcigar",
			Name:        "Fox Cigar",
			PriceSingle: &single,
			PriceBox:    &box,
			BoxCount:    &count,
			InStock:     true,
			URL:         &url,
			ScrapedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		}},
		BestPrice: &compare.BestPrice{Competitor: "foxcigar", PriceSingle: single, SavingsPercent: 4},
		MarketValue: compare.MarketValue{
			Trend90d: &trend,
			LastSale: &pricing.LastSale{
				Price:  decimal.RequireFromString("399.99"),
				Source: pricing.SourceEbay,
				Date:   time.Date(2024, 2, 27, 0, 0, 0, 0, time.UTC),
			},
		},
	}
}

func TestRedisCacheComparisonRoundTrip(t *testing.T) {
	for _, unquoted := range []bool{false, true} {
		t.Run(fmt.Sprintf("unquoted=%v", unquoted), func(t *testing.T) {
			prev := decimal.MarshalJSONWithoutQuotes
			decimal.MarshalJSONWithoutQuotes = unquoted
			defer func() { decimal.MarshalJSONWithoutQuotes = prev }()

			srv := newRESPServer(t)
			c := NewRedisCache(Options{Addr: srv.Addr(), Prefix: "bbb:"}, zerolog.Nop())
			defer c.Close()
			ctx := context.Background()

			if err := c.Ping(ctx); err != nil {
				t.Fatalf("ping: %v", err)
			}
			want := sampleComparison()
			if err := c.Set(ctx, "compare:x", want, time.Minute); err != nil {
				t.Fatalf("set: %v", err)
			}
			if _, ok := srv.Raw("bbb:compare:x"); !ok {
				t.Fatal("value not stored under the prefixed key")
			}

			var got compare.PriceComparison
			ok, err := c.Get(ctx, "compare:x", &got)
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}

			if got.Cigar.ID != want.Cigar.ID || got.Cigar.Name != want.Cigar.Name {
				t.Fatalf("cigar id changed: %s", got.Cigar.ID)
			}
			if got.Cigar.MSRPSingle == nil || !got.Cigar.MSRPSingle.Equal(*want.Cigar.MSRPSingle) || got.Cigar.MSRPBox != nil {
				t.Fatalf("msrp not preserved: %v / %v", got.Cigar.MSRPSingle, got.Cigar.MSRPBox)
			}
			if len(got.Competitors) != 1 {
				t.Fatalf("expected one listing, got %d", len(got.Competitors))
			}
			l := got.Competitors[0]
			if !l.PriceBox.Equal(*want.Competitors[0].PriceBox) || *l.BoxCount != 25 || *l.URL != "https://shop.example/cigar" {
				t.Fatalf("listing not preserved: %+v", l)
			}
			if l.RegularPrice != nil || l.Rating != nil || l.ReviewCount != nil {
				t.Fatalf("nil pointers should stay nil: %+v", l)
			}
			if !l.ScrapedAt.Equal(want.Competitors[0].ScrapedAt) {
				t.Fatalf("scraped_at changed: %s", l.ScrapedAt)
			}
			if got.BestPrice == nil || !got.BestPrice.PriceSingle.Equal(want.BestPrice.PriceSingle) || got.BestPrice.SavingsPercent != 4 {
				t.Fatalf("best price not preserved: %+v", got.BestPrice)
			}
			mv := got.MarketValue
			if mv.AvgSale != nil || mv.Trend90d == nil || !mv.Trend90d.Equal(*want.MarketValue.Trend90d) {
				t.Fatalf("market value not preserved: %+v", mv)
			}
			if mv.LastSale == nil || !mv.LastSale.Price.Equal(want.MarketValue.LastSale.Price) || mv.LastSale.Source != pricing.SourceEbay {
				t.Fatalf("last sale not preserved: %+v", mv.LastSale)
			}

			if err := c.Delete(ctx, "compare:x"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if ok, err := c.Get(ctx, "compare:x", &got); err != nil || ok {
				t.Fatalf("expected a miss after delete, ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestRedisCacheDropsUndecodableEntry(t *testing.T) {
	srv := newRESPServer(t)
	c := NewRedisCache(Options{Addr: srv.Addr(), Prefix: "bbb:"}, zerolog.Nop())
	defer c.Close()

	srv.Put("bbb:compare:bad", "{not json")
	var got compare.PriceComparison
	ok, err := c.Get(context.Background(), "compare:bad", &got)
	if err != nil || ok {
		t.Fatalf("expected a miss, ok=%v err=%v", ok, err)
	}
	if _, still := srv.Raw("bbb:compare:bad"); still {
		t.Fatal("undecodable entry was not deleted")
	}
}
