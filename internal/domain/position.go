package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Direction is the side of a trade. Only explicit buy/sell values exist;
// trades with any other side token are rejected at extraction.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// ParseDirection normalizes a raw side token ("BUY", "buy", "Sell", ...) into
// a Direction. ok is false for anything that is not an explicit buy or sell.
func ParseDirection(side string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case "buy":
		return DirectionBuy, true
	case "sell":
		return DirectionSell, true
	default:
		return "", false
	}
}

// Position is one observed trade normalized for comparison. Positions are
// created per poll cycle, immutable, and discarded after grouping.
type Position struct {
	Wallet      string // normalized, case-stable identity
	MarketID    string
	MarketTitle string
	MarketSlug  string
	OutcomeIdx  int
	Direction   Direction
	Size        float64 // USD notional, > 0
	Price       float64 // in [0,1]
	ObservedAt  time.Time
	TradeID     string
}

// RawTrade is a trade record as returned by the data-api, before
// normalization. Field shapes are deliberately tolerant: size and price may
// arrive as JSON numbers or strings, timestamps as epoch seconds, epoch
// milliseconds, or ISO-8601.
type RawTrade struct {
	ConditionID  string    `json:"conditionId"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	EventSlug    string    `json:"eventSlug"`
	Outcome      string    `json:"outcome"`
	OutcomeIndex int       `json:"outcomeIndex"`
	Side         string    `json:"side"`
	Size         FlexFloat `json:"size"`
	Price        FlexFloat `json:"price"`
	Timestamp    FlexTime  `json:"timestamp"`
	TxHash       string    `json:"transactionHash"`
	ProxyWallet  string    `json:"proxyWallet"`
}

// FlexFloat decodes a JSON number or a numeric string.
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("domain: parse flex float %q: %w", s, err)
	}
	*f = FlexFloat(v)
	return nil
}

// FlexTime decodes a timestamp that may be epoch seconds, epoch milliseconds,
// or an ISO-8601 string with a trailing Z. Values above ~1e10 are treated as
// milliseconds. The result is always UTC.
type FlexTime struct {
	time.Time
}

// msEpochThreshold separates epoch-seconds from epoch-milliseconds values.
// 1e10 seconds is year 2286, so anything larger must be milliseconds.
const msEpochThreshold = 1e10

// UnmarshalJSON implements json.Unmarshaler.
func (t *FlexTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}

	if strings.HasPrefix(s, `"`) {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("domain: parse flex time: %w", err)
		}
		// Numeric strings still occur in some feeds.
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			t.Time = epochToUTC(v)
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("domain: parse flex time %q: %w", raw, err)
		}
		t.Time = parsed.UTC()
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("domain: parse flex time %q: %w", s, err)
	}
	t.Time = epochToUTC(v)
	return nil
}

func epochToUTC(v float64) time.Time {
	if v > msEpochThreshold {
		return time.UnixMilli(int64(v)).UTC()
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
