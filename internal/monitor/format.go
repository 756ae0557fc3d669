package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/polysignal/walletwatch/internal/domain"
	"github.com/polysignal/walletwatch/internal/gate"
)

// shortAddr compresses a wallet identifier for display: 0x1234...abcd.
func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// traderLine renders one consensus member, with display name and win rate
// when the roster knows them.
func traderLine(wallet string, roster map[string]domain.WatchedWallet) string {
	w, ok := roster[wallet]
	if !ok {
		return shortAddr(wallet)
	}
	name := w.DisplayName
	if name == "" {
		name = shortAddr(wallet)
	}
	if w.WinRate > 0 {
		return fmt.Sprintf("%s (win rate %.0f%%)", name, w.WinRate*100)
	}
	return name
}

// formatAlert builds the end-user consensus alert.
func formatAlert(sig domain.CandidateSignal, dec gate.Decision, roster map[string]domain.WatchedWallet) (title, body string) {
	side := strings.ToUpper(string(sig.Direction))
	title = fmt.Sprintf("%d wallets %s on %s", len(sig.Wallets), side, sig.MarketTitle)

	var b strings.Builder

	outcome := fmt.Sprintf("outcome #%d", sig.OutcomeIdx)
	fmt.Fprintf(&b, "%s %s @ avg %.3f\n", side, outcome, sig.AvgPrice)

	if dec.PriceKnown {
		fmt.Fprintf(&b, "Current price: %.3f (%s)\n", dec.Quote.Value, dec.Quote.Source)
	} else {
		b.WriteString("Current price: N/A\n")
	}

	fmt.Fprintf(&b, "Combined size: $%.2f\n", sig.TotalUSD)

	b.WriteString("Traders:\n")
	for _, w := range sig.Wallets {
		fmt.Fprintf(&b, "  - %s\n", traderLine(w, roster))
	}

	if sig.MarketSlug != "" {
		fmt.Fprintf(&b, "https://polymarket.com/event/%s\n", sig.MarketSlug)
	}
	fmt.Fprintf(&b, "%s", sig.LastSeen.UTC().Format("2006-01-02 15:04:05 UTC"))

	return title, b.String()
}

// formatSuppression builds the operations-channel note for a suppressed
// signal.
func formatSuppression(sig domain.CandidateSignal, reason gate.Reason) (title, body string) {
	title = fmt.Sprintf("Suppressed: %s", reason)
	body = fmt.Sprintf("%s — %d wallets %s outcome #%d ($%.2f)",
		sig.MarketTitle, len(sig.Wallets), strings.ToUpper(string(sig.Direction)), sig.OutcomeIdx, sig.TotalUSD)
	return title, body
}

// formatStartupSummary builds the ops message announcing the monitor's
// configuration.
func formatStartupSummary(rosterSize, minConsensus int, window, pollInterval time.Duration) (title, body string) {
	title = "Wallet monitor started"
	body = fmt.Sprintf(
		"Watching %d wallets\nConsensus threshold: %d distinct wallets in %s\nPoll interval: %s",
		rosterSize, minConsensus, window, pollInterval)
	return title, body
}
