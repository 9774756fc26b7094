package bank

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/playerbank/internal/domain"
	"github.com/iho/playerbank/internal/infrastructure/metrics"
	"github.com/iho/playerbank/internal/remote"
)

// DirectoryConfig tunes the account directory.
type DirectoryConfig struct {
	// Mode drives identity keying and equality throughout the
	// directory's lifetime.
	Mode domain.IdentityMode
	// RemoteTimeout bounds a single remote call during fetch fan-outs
	// and transaction relays.
	RemoteTimeout time.Duration
	// WealthyTTL is how long a wealth ranking stays fresh.
	WealthyTTL time.Duration
	// Limits apply to every account the directory constructs.
	Limits domain.Limits
}

func (c DirectoryConfig) withDefaults() DirectoryConfig {
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = 5 * time.Second
	}
	if c.WealthyTTL <= 0 {
		c.WealthyTTL = 5 * time.Minute
	}
	return c
}

// DirectoryParams wires a directory together.
type DirectoryParams struct {
	Currencies *CurrencyRegistry
	Remotes    *RemoteRegistry
	Config     DirectoryConfig
	Audit      domain.AuditSink
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// fetchEntry is one slot of the directory's state table. A slot is
// Pending until ready closes, Cached afterwards; absence from the
// table is Absent. Keeping cache and in-flight state in one table
// removes the inspection window between separate maps.
type fetchEntry struct {
	ready   chan struct{}
	account *domain.Account // set before ready closes, never nil after
}

type wealthySnapshot struct {
	accounts  []*domain.Account
	fetchedAt time.Time
}

type wealthyFlight struct {
	ready    chan struct{}
	accounts []*domain.Account
	err      error
}

// Directory caches accounts by identity and coalesces concurrent
// retrievals of the same identity into one remote fan-out.
type Directory struct {
	currencies *CurrencyRegistry
	remotes    *RemoteRegistry
	cfg        DirectoryConfig
	audit      domain.AuditSink
	metrics    *metrics.Metrics
	log        zerolog.Logger

	mu      sync.Mutex
	entries map[string]*fetchEntry

	wealthyMu     sync.Mutex
	wealthyCached map[string]*wealthySnapshot
	wealthyFlight map[string]*wealthyFlight
}

// NewDirectory creates a directory.
func NewDirectory(p DirectoryParams) *Directory {
	audit := p.Audit
	if audit == nil {
		audit = domain.NopAuditSink{}
	}
	if p.Metrics != nil {
		audit = auditWithMetrics{next: audit, m: p.Metrics}
	}
	return &Directory{
		currencies:    p.Currencies,
		remotes:       p.Remotes,
		cfg:           p.Config.withDefaults(),
		audit:         audit,
		metrics:       p.Metrics,
		log:           p.Logger,
		entries:       make(map[string]*fetchEntry),
		wealthyCached: make(map[string]*wealthySnapshot),
		wealthyFlight: make(map[string]*wealthyFlight),
	}
}

// Mode returns the identity mode the directory keys by.
func (d *Directory) Mode() domain.IdentityMode { return d.cfg.Mode }

// Currencies returns the currency registry.
func (d *Directory) Currencies() *CurrencyRegistry { return d.currencies }

// RetrieveAccount returns the account for an identity. Cached
// accounts return immediately; otherwise the caller either starts the
// single fetch fan-out or attaches to the one already running. All
// concurrent callers for one identity resolve to the same account.
func (d *Directory) RetrieveAccount(ctx context.Context, identity domain.Identity) (*domain.Account, error) {
	key := identity.Key(d.cfg.Mode)

	d.mu.Lock()
	entry, ok := d.entries[key]
	if ok {
		d.mu.Unlock()
		select {
		case <-entry.ready:
			d.count(func(m *metrics.Metrics) { m.FetchCacheHits.Inc() })
			return entry.account, nil
		default:
			d.count(func(m *metrics.Metrics) { m.FetchCoalesced.Inc() })
		}
		select {
		case <-entry.ready:
			return entry.account, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	entry = &fetchEntry{ready: make(chan struct{})}
	d.entries[key] = entry
	d.mu.Unlock()

	entry.account = d.fetchAccount(ctx, identity)
	close(entry.ready)
	return entry.account, nil
}

// fetchAccount fans the fetch out across every remote a registered
// currency resolves to and merges every ledger that came back. One
// remote failing is logged and skipped; partial data is accepted.
func (d *Directory) fetchAccount(ctx context.Context, identity domain.Identity) *domain.Account {
	d.count(func(m *metrics.Metrics) { m.AccountFetches.Inc() })

	byRemote := make(map[string]remote.Remote)
	for _, currency := range d.currencies.All() {
		rem, err := d.remotes.ForCurrency(currency)
		if err != nil {
			d.log.Warn().Err(err).
				Str("currency", currency.ID).
				Msg("currency resolves to no remote, skipping in fetch")
			continue
		}
		byRemote[rem.ID()] = rem
	}

	account := d.newAccount(identity)

	var wg sync.WaitGroup
	for _, rem := range byRemote {
		wg.Add(1)
		go func(rem remote.Remote) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, d.cfg.RemoteTimeout)
			defer cancel()

			data, err := rem.FetchAccount(fetchCtx, identity)
			if err != nil {
				d.count(func(m *metrics.Metrics) { m.FetchFailures.WithLabelValues(rem.ID()).Inc() })
				d.log.Warn().Err(err).
					Str("identity", identity.String()).
					Str("remote", rem.ID()).
					Msg("account data retrieval failed, continuing without this remote")
				return
			}
			if data != nil {
				account.Data().Join(data)
			}
		}(rem)
	}
	wg.Wait()

	return account
}

// RetrieveWealthyAccounts returns the top accounts for a currency,
// from cache while fresh, otherwise via one shared refresh.
func (d *Directory) RetrieveWealthyAccounts(ctx context.Context, currency domain.Currency) ([]*domain.Account, error) {
	d.wealthyMu.Lock()
	if cached, ok := d.wealthyCached[currency.ID]; ok && time.Since(cached.fetchedAt) < d.cfg.WealthyTTL {
		d.wealthyMu.Unlock()
		d.count(func(m *metrics.Metrics) { m.WealthyCacheHits.Inc() })
		return cached.accounts, nil
	}
	if flight, ok := d.wealthyFlight[currency.ID]; ok {
		d.wealthyMu.Unlock()
		select {
		case <-flight.ready:
			return flight.accounts, flight.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	flight := &wealthyFlight{ready: make(chan struct{})}
	d.wealthyFlight[currency.ID] = flight
	d.wealthyMu.Unlock()

	accounts, err := d.refreshWealthy(ctx, currency)
	flight.accounts, flight.err = accounts, err
	close(flight.ready)

	d.wealthyMu.Lock()
	delete(d.wealthyFlight, currency.ID)
	if err == nil {
		d.wealthyCached[currency.ID] = &wealthySnapshot{accounts: accounts, fetchedAt: time.Now()}
	}
	d.wealthyMu.Unlock()

	return accounts, err
}

func (d *Directory) refreshWealthy(ctx context.Context, currency domain.Currency) ([]*domain.Account, error) {
	d.count(func(m *metrics.Metrics) { m.WealthyRefreshes.Inc() })

	rem, err := d.remotes.ForCurrency(currency)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, d.cfg.RemoteTimeout)
	defer cancel()

	snapshots, err := rem.FetchWealthyAccounts(fetchCtx, currency)
	if err != nil {
		return nil, err
	}

	accounts := make([]*domain.Account, 0, len(snapshots))
	for _, snapshot := range snapshots {
		accounts = append(accounts, d.displayAccount(snapshot))
	}
	return accounts, nil
}

// Invalidate clears the whole account cache. The next retrieval for
// any identity issues a fresh remote fetch. Fetches already running
// complete into orphaned slots and are refetched on next access.
func (d *Directory) Invalidate() {
	d.mu.Lock()
	d.entries = make(map[string]*fetchEntry)
	d.mu.Unlock()
	d.count(func(m *metrics.Metrics) { m.CacheInvalidation.Inc() })
}

// newAccount builds a live account whose transactions relay to the
// remote resolved per currency at call time.
func (d *Directory) newAccount(identity domain.Identity) *domain.Account {
	return domain.NewAccount(domain.AccountParams{
		Identity: identity,
		Handler: domain.Handler{
			Kind: domain.HandlerRelay,
			Resolve: func(currency domain.Currency) (domain.TransactionRemote, error) {
				rem, err := d.remotes.ForCurrency(currency)
				if err != nil {
					return nil, err
				}
				return rem, nil
			},
			Timeout: d.cfg.RemoteTimeout,
		},
		Limits: d.cfg.Limits,
		Audit:  d.audit,
		Logger: d.log,
	})
}

// displayAccount builds a handler-less account from a stored
// snapshot. It shows balances but declines every transaction.
func (d *Directory) displayAccount(snapshot remote.Snapshot) *domain.Account {
	data := domain.DataFromBalances(snapshot.Balances, d.currencies.Resolve, nil)
	return domain.NewAccount(domain.AccountParams{
		Identity: snapshot.Identity,
		Data:     data,
		Handler:  domain.Handler{Kind: domain.HandlerNone},
		Logger:   d.log,
	})
}

func (d *Directory) count(fn func(*metrics.Metrics)) {
	if d.metrics != nil {
		fn(d.metrics)
	}
}

// auditWithMetrics counts transaction outcomes on their way to the
// real sink.
type auditWithMetrics struct {
	next domain.AuditSink
	m    *metrics.Metrics
}

func (a auditWithMetrics) Record(ctx context.Context, rec domain.AuditRecord) {
	a.m.Transactions.WithLabelValues(string(rec.Op), string(rec.Result)).Inc()
	a.next.Record(ctx, rec)
}
