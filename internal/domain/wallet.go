package domain

import "context"

// WatchedWallet is one roster entry. The roster is read-only for this
// service; curation happens elsewhere.
type WatchedWallet struct {
	Address     string
	DisplayName string
	WinRate     float64 // in [0,1]; 0 when unknown
}

// WalletStore provides the tracked-wallet roster.
type WalletStore interface {
	// ListActive returns every wallet the polling loop should watch.
	ListActive(ctx context.Context) ([]WatchedWallet, error)
}
