// Package store provides wallet roster sources that do not need a database.
package store

import (
	"context"

	"github.com/polysignal/walletwatch/internal/domain"
)

// StaticWalletStore serves a fixed roster from configuration. Used when no
// database is configured; ListActive never fails.
type StaticWalletStore struct {
	wallets []domain.WatchedWallet
}

// NewStaticWalletStore creates a store over the given roster.
func NewStaticWalletStore(wallets []domain.WatchedWallet) *StaticWalletStore {
	return &StaticWalletStore{wallets: wallets}
}

// ListActive returns the configured roster.
func (s *StaticWalletStore) ListActive(context.Context) ([]domain.WatchedWallet, error) {
	out := make([]domain.WatchedWallet, len(s.wallets))
	copy(out, s.wallets)
	return out, nil
}

var _ domain.WalletStore = (*StaticWalletStore)(nil)
