// Package bank owns the account directory and the registries it
// consults: registered currencies and configured remotes.
package bank

import (
	"fmt"
	"sync"

	"github.com/iho/playerbank/internal/domain"
	"github.com/iho/playerbank/internal/remote"
)

// CurrencyRegistry maps currency identifiers to registered
// currencies. Registration happens at startup; lookups are hot-path.
type CurrencyRegistry struct {
	mu         sync.RWMutex
	currencies map[string]domain.Currency
	majorID    string
	minorID    string
}

// NewCurrencyRegistry returns an empty registry.
func NewCurrencyRegistry() *CurrencyRegistry {
	return &CurrencyRegistry{currencies: make(map[string]domain.Currency)}
}

// Register adds a currency. Identifiers are unique per registry.
func (r *CurrencyRegistry) Register(currency domain.Currency) error {
	if currency.ID == "" {
		return fmt.Errorf("currency without identifier: %w", domain.ErrUnknownCurrency)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.currencies[currency.ID]; ok {
		return fmt.Errorf("%w: %q", domain.ErrCurrencyRegistered, currency.ID)
	}
	r.currencies[currency.ID] = currency
	return nil
}

// Get looks a currency up by identifier.
func (r *CurrencyRegistry) Get(id string) (domain.Currency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	currency, ok := r.currencies[id]
	return currency, ok
}

// Resolve is Get shaped as a domain.CurrencyResolver.
func (r *CurrencyRegistry) Resolve(id string) (domain.Currency, bool) {
	return r.Get(id)
}

// All returns every registered currency.
func (r *CurrencyRegistry) All() []domain.Currency {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Currency, 0, len(r.currencies))
	for _, currency := range r.currencies {
		out = append(out, currency)
	}
	return out
}

// SetMajor marks the primary display currency.
func (r *CurrencyRegistry) SetMajor(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.currencies[id]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownCurrency, id)
	}
	r.majorID = id
	return nil
}

// Major returns the primary display currency, if set.
func (r *CurrencyRegistry) Major() (domain.Currency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	currency, ok := r.currencies[r.majorID]
	return currency, ok
}

// SetMinor marks the secondary display currency.
func (r *CurrencyRegistry) SetMinor(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.currencies[id]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownCurrency, id)
	}
	r.minorID = id
	return nil
}

// Minor returns the secondary display currency, if set.
func (r *CurrencyRegistry) Minor() (domain.Currency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	currency, ok := r.currencies[r.minorID]
	return currency, ok
}

// RemoteRegistry maps remote identifiers to configured remotes, with
// an optional default for currencies that bind none.
type RemoteRegistry struct {
	mu        sync.RWMutex
	remotes   map[string]remote.Remote
	defaultID string
}

// NewRemoteRegistry returns an empty registry.
func NewRemoteRegistry() *RemoteRegistry {
	return &RemoteRegistry{remotes: make(map[string]remote.Remote)}
}

// Register adds a configured remote.
func (r *RemoteRegistry) Register(rem remote.Remote) error {
	if rem.ID() == "" {
		return fmt.Errorf("remote without identifier: %w", domain.ErrUnknownRemote)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.remotes[rem.ID()]; ok {
		return fmt.Errorf("%w: %q", domain.ErrRemoteRegistered, rem.ID())
	}
	r.remotes[rem.ID()] = rem
	return nil
}

// Get looks a remote up by identifier.
func (r *RemoteRegistry) Get(id string) (remote.Remote, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rem, ok := r.remotes[id]
	return rem, ok
}

// SetDefault marks the remote used by currencies without a bound one.
func (r *RemoteRegistry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.remotes[id]; !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownRemote, id)
	}
	r.defaultID = id
	return nil
}

// Default returns the default remote, if set.
func (r *RemoteRegistry) Default() (remote.Remote, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rem, ok := r.remotes[r.defaultID]
	return rem, ok
}

// ForCurrency resolves the effective remote for a currency: its bound
// remote if any, else the default.
func (r *RemoteRegistry) ForCurrency(currency domain.Currency) (remote.Remote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if currency.RemoteID != "" {
		rem, ok := r.remotes[currency.RemoteID]
		if !ok {
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRemote, currency.RemoteID)
		}
		return rem, nil
	}

	rem, ok := r.remotes[r.defaultID]
	if !ok {
		return nil, domain.ErrRemoteNotBound
	}
	return rem, nil
}

// KeepFor returns a predicate accepting the currencies whose balances
// the named remote owns. Remotes filter fetched and stored ledgers
// through it so a multi-remote fan-out never duplicates a currency.
func (r *RemoteRegistry) KeepFor(remoteID string) func(domain.Currency) bool {
	return func(currency domain.Currency) bool {
		r.mu.RLock()
		defer r.mu.RUnlock()
		if currency.RemoteID != "" {
			return currency.RemoteID == remoteID
		}
		return r.defaultID == remoteID
	}
}
