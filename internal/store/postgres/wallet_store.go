package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polysignal/walletwatch/internal/domain"
)

// WalletStore implements domain.WalletStore using PostgreSQL. The roster is
// curated out of band; this service only reads it.
type WalletStore struct {
	pool *pgxpool.Pool
}

// NewWalletStore creates a WalletStore backed by the given connection pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// ListActive returns every wallet flagged active, ordered by win rate so the
// strongest wallets head the roster in logs and summaries.
func (s *WalletStore) ListActive(ctx context.Context) ([]domain.WatchedWallet, error) {
	const query = `
		SELECT address, COALESCE(display_name, ''), COALESCE(win_rate, 0)
		FROM watched_wallets
		WHERE active
		ORDER BY win_rate DESC NULLS LAST, address`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.WatchedWallet
	for rows.Next() {
		var w domain.WatchedWallet
		if err := rows.Scan(&w.Address, &w.DisplayName, &w.WinRate); err != nil {
			return nil, fmt.Errorf("postgres: scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate wallets: %w", err)
	}
	return wallets, nil
}

var _ domain.WalletStore = (*WalletStore)(nil)
