package ledger

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Repository handles pool state, holder, and share-event persistence.
// Database: vault.db (pool_state, holders, share_events tables).
//
// All mutating methods take a *sql.Tx: the orchestrator owns the
// transaction and composes ledger writes with the other core modules.
// Plain read methods use the connection directly and are safe for the
// HTTP read surface.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// GetPoolState reads the pool totals outside any transaction
func (r *Repository) GetPoolState() (*PoolState, error) {
	return scanPoolState(r.db.QueryRow(
		"SELECT total_shares, total_managed_asset, updated_at FROM pool_state WHERE id = 1"))
}

// GetPoolStateTx reads the pool totals inside the caller's transaction
func (r *Repository) GetPoolStateTx(tx *sql.Tx) (*PoolState, error) {
	return scanPoolState(tx.QueryRow(
		"SELECT total_shares, total_managed_asset, updated_at FROM pool_state WHERE id = 1"))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPoolState(row rowScanner) (*PoolState, error) {
	var sharesStr, assetStr string
	var updatedAt int64
	if err := row.Scan(&sharesStr, &assetStr, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to get pool state: %w", err)
	}

	shares, err := fixedmath.ParseAmount(sharesStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt total_shares %q: %w", sharesStr, err)
	}
	asset, err := fixedmath.ParseAmount(assetStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt total_managed_asset %q: %w", assetStr, err)
	}

	return &PoolState{
		TotalShares:       shares,
		TotalManagedAsset: asset,
		UpdatedAt:         updatedAt,
	}, nil
}

// SetPoolStateTx writes new pool totals inside the caller's transaction
func (r *Repository) SetPoolStateTx(tx *sql.Tx, totalShares, totalManagedAsset *big.Int, now int64) error {
	_, err := tx.Exec(
		"UPDATE pool_state SET total_shares = ?, total_managed_asset = ?, updated_at = ? WHERE id = 1",
		totalShares.String(), totalManagedAsset.String(), now)
	if err != nil {
		return fmt.Errorf("failed to update pool state: %w", err)
	}
	return nil
}

// GetHolderShares returns an account's share balance, zero if unknown
func (r *Repository) GetHolderShares(account string) (*big.Int, error) {
	return r.getHolderShares(r.db.QueryRow(
		"SELECT shares FROM holders WHERE account = ?", account))
}

// GetHolderSharesTx returns an account's share balance inside the caller's transaction
func (r *Repository) GetHolderSharesTx(tx *sql.Tx, account string) (*big.Int, error) {
	return r.getHolderShares(tx.QueryRow(
		"SELECT shares FROM holders WHERE account = ?", account))
}

func (r *Repository) getHolderShares(row rowScanner) (*big.Int, error) {
	var sharesStr string
	err := row.Scan(&sharesStr)
	if err == sql.ErrNoRows {
		return fixedmath.Zero(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holder shares: %w", err)
	}

	shares, err := fixedmath.ParseAmount(sharesStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt holder shares %q: %w", sharesStr, err)
	}
	return shares, nil
}

// SetHolderSharesTx upserts an account's share balance inside the caller's transaction
func (r *Repository) SetHolderSharesTx(tx *sql.Tx, account string, shares *big.Int, now int64) error {
	_, err := tx.Exec(`
		INSERT INTO holders (account, shares, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			shares = excluded.shares,
			updated_at = excluded.updated_at
	`, account, shares.String(), now)
	if err != nil {
		return fmt.Errorf("failed to set holder shares for %s: %w", account, err)
	}
	return nil
}

// InsertShareEventTx appends one audit journal row inside the caller's transaction
func (r *Repository) InsertShareEventTx(tx *sql.Tx, event ShareEvent) error {
	var account interface{}
	if event.Account != "" {
		account = event.Account
	}

	_, err := tx.Exec(`
		INSERT INTO share_events (kind, account, shares, asset, exchange_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.Kind, account, event.Shares.String(), event.Asset.String(),
		event.ExchangeRate.String(), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert share event: %w", err)
	}
	return nil
}

// ListShareEvents returns recent journal rows, newest first.
// An empty account returns events for all accounts.
func (r *Repository) ListShareEvents(account string, limit int) ([]ShareEvent, error) {
	query := "SELECT id, kind, COALESCE(account, ''), shares, asset, exchange_rate, created_at FROM share_events"
	args := []interface{}{}
	if account != "" {
		query += " WHERE account = ?"
		args = append(args, account)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list share events: %w", err)
	}
	defer rows.Close()

	events := make([]ShareEvent, 0)
	for rows.Next() {
		var e ShareEvent
		var sharesStr, assetStr, rateStr string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Account, &sharesStr, &assetStr, &rateStr, &e.CreatedAt); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan share event row")
			continue
		}
		if e.Shares, err = fixedmath.ParseAmount(sharesStr); err != nil {
			return nil, fmt.Errorf("corrupt event shares %q: %w", sharesStr, err)
		}
		if e.Asset, err = fixedmath.ParseAmount(assetStr); err != nil {
			return nil, fmt.Errorf("corrupt event asset %q: %w", assetStr, err)
		}
		if e.ExchangeRate, err = fixedmath.ParseAmount(rateStr); err != nil {
			return nil, fmt.Errorf("corrupt event rate %q: %w", rateStr, err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating share events: %w", err)
	}

	return events, nil
}

// CountHolders returns the number of accounts with a non-zero share balance
func (r *Repository) CountHolders() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM holders WHERE shares != '0'").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count holders: %w", err)
	}
	return count, nil
}
