package pricing

import "fmt"

// Confidence is the ordinal quality rating attached to a CMV.
type Confidence string

// Confidence levels, lowest first.
const (
	ConfidenceInsufficient Confidence = "insufficient_data"
	ConfidenceLow          Confidence = "low"
	ConfidenceMedium       Confidence = "medium"
	ConfidenceHigh         Confidence = "high"
)

// Rank orders confidence levels; unknown values rank below insufficient_data.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceInsufficient:
		return 0
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether c is at or above min on the ordinal scale.
func (c Confidence) AtLeast(min Confidence) bool {
	return c.Rank() >= min.Rank()
}

// ConfidencePolicy holds the transaction-count thresholds at which confidence steps up.
type ConfidencePolicy struct {
	LowMin    int `mapstructure:"low_min"`
	MediumMin int `mapstructure:"medium_min"`
	HighMin   int `mapstructure:"high_min"`
}

// DefaultConfidencePolicy returns the production thresholds.
func DefaultConfidencePolicy() ConfidencePolicy {
	return ConfidencePolicy{LowMin: 3, MediumMin: 8, HighMin: 20}
}

// Validate checks the thresholds are positive and strictly ascending.
func (p ConfidencePolicy) Validate() error {
	if p.LowMin <= 0 {
		return fmt.Errorf("confidence low_min must be greater than zero")
	}
	if p.MediumMin <= p.LowMin || p.HighMin <= p.MediumMin {
		return fmt.Errorf("confidence thresholds must be ascending: low_min < medium_min < high_min")
	}
	return nil
}

// Level maps a transaction count onto the confidence scale.
func (p ConfidencePolicy) Level(count int) Confidence {
	switch {
	case count < p.LowMin:
		return ConfidenceInsufficient
	case count < p.MediumMin:
		return ConfidenceLow
	case count < p.HighMin:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}
