package pricing

import (
	"fmt"
	"strings"
	"time"

	"boxbluebook/internal/apperr"
)

// PeriodType is the width of an aggregation bucket.
type PeriodType string

// Period types.
const (
	PeriodDaily     PeriodType = "daily"
	PeriodWeekly    PeriodType = "weekly"
	PeriodMonthly   PeriodType = "monthly"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodYearly    PeriodType = "yearly"
)

// PeriodTypes lists every supported bucket width, narrowest first.
var PeriodTypes = []PeriodType{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly}

// ParsePeriodType validates a period type name.
func ParsePeriodType(s string) (PeriodType, error) {
	pt := PeriodType(strings.ToLower(strings.TrimSpace(s)))
	if !pt.Valid() {
		return "", fmt.Errorf("period type %q: %w", s, apperr.ErrMalformedInput)
	}
	return pt, nil
}

// Valid reports whether pt is a supported period type.
func (pt PeriodType) Valid() bool {
	for _, known := range PeriodTypes {
		if pt == known {
			return true
		}
	}
	return false
}

// Period is a half-open UTC window [Start, End).
type Period struct {
	Type  PeriodType
	Start time.Time
	End   time.Time
}

// Bounds returns the period of type pt containing t. Weeks start on Monday.
// An unknown type is treated as daily.
func (pt PeriodType) Bounds(t time.Time) Period {
	t = t.UTC()
	year, month, day := t.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)

	var start, end time.Time
	switch pt {
	case PeriodWeekly:
		offset := (int(midnight.Weekday()) + 6) % 7
		start = midnight.AddDate(0, 0, -offset)
		end = start.AddDate(0, 0, 7)
	case PeriodMonthly:
		start = time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
	case PeriodQuarterly:
		firstMonth := time.Month(((int(month)-1)/3)*3 + 1)
		start = time.Date(year, firstMonth, 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 3, 0)
	case PeriodYearly:
		start = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(1, 0, 0)
	default:
		start = midnight
		end = start.AddDate(0, 0, 1)
	}
	return Period{Type: pt, Start: start, End: end}
}

// Previous returns the period immediately before p.
func (p Period) Previous() Period {
	return p.Type.Bounds(p.Start.Add(-time.Nanosecond))
}

// Next returns the period immediately after p.
func (p Period) Next() Period {
	return p.Type.Bounds(p.End)
}

// Contains reports whether t falls inside the half-open window.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Covering returns the consecutive periods of type pt overlapping [from, to).
func Covering(pt PeriodType, from, to time.Time) []Period {
	if !from.Before(to) {
		return nil
	}
	periods := make([]Period, 0)
	for p := pt.Bounds(from); p.Start.Before(to); p = p.Next() {
		periods = append(periods, p)
	}
	return periods
}
