package polymarket

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/polysignal/walletwatch/internal/domain"
)

// APIMarket is the Gamma API market shape. Gamma encodes list-valued fields
// (outcomes, outcomePrices, clobTokenIds) as JSON strings inside the JSON
// document, so they are decoded in a second pass.
type APIMarket struct {
	ID            string `json:"id"`
	ConditionID   string `json:"conditionId"`
	Question      string `json:"question"`
	Slug          string `json:"slug"`
	EndDate       string `json:"endDate"`
	Active        bool   `json:"active"`
	Closed        bool   `json:"closed"`
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
	ClobTokenIDs  string `json:"clobTokenIds"`
}

// ToDomainMarket converts the API shape to a domain.Market. Unparseable
// embedded lists become empty slices; an unparseable end date is left nil so
// the market counts as open.
func (m *APIMarket) ToDomainMarket() domain.Market {
	out := domain.Market{
		ID:     m.ConditionID,
		Title:  m.Question,
		Slug:   m.Slug,
		Active: m.Active,
		Closed: m.Closed,
	}
	if out.ID == "" {
		out.ID = m.ID
	}

	if m.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			utc := t.UTC()
			out.EndAt = &utc
		}
	}

	out.Outcomes = decodeStringList(m.Outcomes)
	for _, raw := range decodeStringList(m.OutcomePrices) {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			p = 0
		}
		out.OutcomePrices = append(out.OutcomePrices, p)
	}
	return out
}

// TokenIDs returns the CLOB token ids in outcome order.
func (m *APIMarket) TokenIDs() []string {
	return decodeStringList(m.ClobTokenIDs)
}

func decodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	return list
}

// wsCommand is the subscribe payload for the CLOB market channel.
type wsCommand struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}

// wsBookMessage is a full order book snapshot on the market channel.
type wsBookMessage struct {
	EventType string    `json:"event_type"`
	AssetID   string    `json:"asset_id"`
	Bids      []wsLevel `json:"bids"`
	Asks      []wsLevel `json:"asks"`
}

type wsLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// wsLastTradeMessage carries the most recent trade price for an asset.
type wsLastTradeMessage struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
}
