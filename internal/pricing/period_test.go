package pricing

import (
	"errors"
	"testing"
	"time"

	"boxbluebook/internal/apperr"
)

func TestPeriodBounds(t *testing.T) {
	// Wednesday afternoon
	at := time.Date(2024, 5, 15, 17, 30, 0, 0, time.UTC)
	cases := []struct {
		pt         PeriodType
		start, end string
	}{
		{PeriodDaily, "2024-05-15", "2024-05-16"},
		{PeriodWeekly, "2024-05-13", "2024-05-20"},
		{PeriodMonthly, "2024-05-01", "2024-06-01"},
		{PeriodQuarterly, "2024-04-01", "2024-07-01"},
		{PeriodYearly, "2024-01-01", "2025-01-01"},
	}
	for _, c := range cases {
		p := c.pt.Bounds(at)
		if got := p.Start.Format(time.DateOnly); got != c.start {
			t.Fatalf("%s start = %s, want %s", c.pt, got, c.start)
		}
		if got := p.End.Format(time.DateOnly); got != c.end {
			t.Fatalf("%s end = %s, want %s", c.pt, got, c.end)
		}
		if !p.Contains(at) || p.Contains(p.End) || !p.Contains(p.Start) {
			t.Fatalf("%s: half-open containment broken", c.pt)
		}
	}
}

func TestPeriodWeeklySunday(t *testing.T) {
	p := PeriodWeekly.Bounds(time.Date(2024, 5, 19, 23, 0, 0, 0, time.UTC))
	if p.Start.Weekday() != time.Monday || p.Start.Format(time.DateOnly) != "2024-05-13" {
		t.Fatalf("sunday should belong to the week starting 2024-05-13, got %s", p.Start)
	}
}

func TestPeriodBoundsUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	// 2024-05-15 22:00 local is 2024-05-16 03:00 UTC
	p := PeriodDaily.Bounds(time.Date(2024, 5, 15, 22, 0, 0, 0, loc))
	if p.Start.Format(time.DateOnly) != "2024-05-16" {
		t.Fatalf("start = %s, want 2024-05-16", p.Start)
	}
}

func TestPeriodPreviousNext(t *testing.T) {
	p := PeriodMonthly.Bounds(time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))
	prev := p.Previous()
	if prev.Start.Format(time.DateOnly) != "2024-02-01" || !prev.End.Equal(p.Start) {
		t.Fatalf("previous = %v..%v", prev.Start, prev.End)
	}
	if next := p.Next(); !next.Start.Equal(p.End) || next.Start.Format(time.DateOnly) != "2024-04-01" {
		t.Fatalf("next = %v", next.Start)
	}
	q := PeriodQuarterly.Bounds(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)).Previous()
	if q.Start.Format(time.DateOnly) != "2023-10-01" {
		t.Fatalf("previous quarter = %s", q.Start)
	}
}

func TestCovering(t *testing.T) {
	from := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC)
	periods := Covering(PeriodDaily, from, to)
	if len(periods) != 3 {
		t.Fatalf("len = %d, want 3", len(periods))
	}
	if Covering(PeriodDaily, to, from) != nil {
		t.Fatal("inverted range should be empty")
	}
}

func TestParsePeriodType(t *testing.T) {
	if pt, err := ParsePeriodType(" Weekly "); err != nil || pt != PeriodWeekly {
		t.Fatalf("ParsePeriodType = %q, %v", pt, err)
	}
	if _, err := ParsePeriodType("hourly"); !errors.Is(err, apperr.ErrMalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}
}
