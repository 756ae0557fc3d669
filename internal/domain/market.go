package domain

import "time"

// Market is the metadata snapshot the gate needs to judge lifecycle state.
// EndAt is nil when the provider did not supply a parseable end date; a
// missing end date must never be treated as "closed".
type Market struct {
	ID            string
	Title         string
	Slug          string
	EndAt         *time.Time
	Active        bool
	Closed        bool
	Outcomes      []string
	OutcomePrices []float64
}

// IsPastEnd reports whether the market's scheduled end time has passed.
// Markets without an end time are treated as open.
func (m Market) IsPastEnd(now time.Time) bool {
	return m.EndAt != nil && now.After(*m.EndAt)
}
