// Package extractor converts raw data-api trade records into validated
// positions. Extraction is pure: a record either yields a Position or is
// dropped, with no side effects either way.
package extractor

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polysignal/walletwatch/internal/domain"
)

// NormalizeWallet canonicalizes a wallet identifier. Hex addresses go to
// their EIP-55 checksum form so case differences collapse; anything else
// (proxy wallet handles) is lowercased verbatim.
func NormalizeWallet(s string) string {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		return common.HexToAddress(s).Hex()
	}
	return strings.ToLower(s)
}

// Extract validates raw and builds the Position attributed to wallet. The
// boolean is false when the record is malformed: unknown direction token,
// missing market id, non-positive size, or a price outside (0, 1].
func Extract(raw domain.RawTrade, wallet string) (domain.Position, bool) {
	dir, ok := domain.ParseDirection(raw.Side)
	if !ok {
		return domain.Position{}, false
	}
	if raw.ConditionID == "" {
		return domain.Position{}, false
	}

	size := float64(raw.Size)
	price := float64(raw.Price)
	if size <= 0 || price <= 0 || price > 1 {
		return domain.Position{}, false
	}

	observed := raw.Timestamp.Time
	if observed.IsZero() {
		return domain.Position{}, false
	}

	return domain.Position{
		Wallet:      NormalizeWallet(wallet),
		MarketID:    raw.ConditionID,
		MarketTitle: raw.Title,
		MarketSlug:  raw.Slug,
		OutcomeIdx:  raw.OutcomeIndex,
		Direction:   dir,
		Size:        size,
		Price:       price,
		ObservedAt:  observed.UTC(),
		TradeID:     raw.TxHash,
	}, true
}
