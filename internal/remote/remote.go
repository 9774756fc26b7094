// Package remote abstracts the balance backends an account directory
// fans out to: the authoritative SQL store, or a relay towards the
// process that owns it.
package remote

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/iho/playerbank/internal/domain"
)

// Profile carries a remote's identifier and backend parameters. It is
// supplied once at configure time and never mutated afterwards.
type Profile struct {
	ID         string          `json:"id"`
	Parameters json.RawMessage `json:"parameters"`
}

// Snapshot is a display-only view of a stored account, as returned by
// wealth ranking queries.
type Snapshot struct {
	Identity domain.Identity            `json:"identity"`
	Balances map[string]decimal.Decimal `json:"balances"`
}

// Remote stores and retrieves account data and authorizes
// transactions against it. FetchAccount returning (nil, nil) means
// the remote holds no data for the identity; that is not an error.
// HandleWithdraw and HandleDeposit rely on the calling account for
// per-account serialization and must not lock accounts themselves.
type Remote interface {
	domain.TransactionRemote

	// ID returns the remote's configured identifier.
	ID() string

	// Configure validates and applies a profile. It fails fast on
	// missing required parameters and is safe to call once only.
	Configure(profile Profile) error

	// StoreAccount persists the balances this remote owns.
	StoreAccount(ctx context.Context, account *domain.Account) error

	// FetchAccount retrieves the account ledger for an identity.
	FetchAccount(ctx context.Context, identity domain.Identity) (*domain.Data, error)

	// FetchWealthyAccounts returns the top accounts by the given
	// currency's balance, descending, bounded by the remote's
	// configured limit.
	FetchWealthyAccounts(ctx context.Context, currency domain.Currency) ([]Snapshot, error)
}
