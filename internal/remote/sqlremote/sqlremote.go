// Package sqlremote implements the authoritative backend on
// PostgreSQL. One row per account keyed by both identity halves, the
// ledger stored as a JSONB document of currency-id to balance.
package sqlremote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/playerbank/internal/domain"
	"github.com/iho/playerbank/internal/infrastructure/metrics"
	"github.com/iho/playerbank/internal/remote"
)

// Type is the profile type this package builds.
const Type = "sql"

const (
	defaultWealthyLimit = 20
	storeTimeout        = 10 * time.Second
)

// DB is the slice of pgxpool.Pool the remote uses. Narrowed for
// testability.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Deps are the process-wide collaborators a sql remote needs beyond
// its profile.
type Deps struct {
	Mode    domain.IdentityMode
	Resolve domain.CurrencyResolver
	// KeepFor builds the predicate filtering stored and fetched
	// ledgers down to the currencies a remote owns. Nil keeps all.
	KeepFor func(remoteID string) func(domain.Currency) bool
	// WealthyLimit is the ranking size for profiles that set no
	// wealthy_limit of their own. Zero falls back to the package
	// default.
	WealthyLimit int
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

type params struct {
	URL          string `json:"url"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	PoolSize     int32  `json:"pool_size"`
	TablePrefix  string `json:"table_prefix"`
	WealthyLimit int    `json:"wealthy_limit"`
}

// Remote is the authoritative backend. Transactions mutate the
// account's storage cell under the caller's account lock and persist
// asynchronously; the cell is the source of truth between stores.
type Remote struct {
	deps         Deps
	id           string
	keep         func(domain.Currency) bool
	db           DB
	table        string
	wealthyLimit int
	log          zerolog.Logger
}

// New builds a sql remote from its profile, connecting a pgx pool and
// ensuring the accounts table exists.
func New(ctx context.Context, deps Deps, profile remote.Profile) (*Remote, error) {
	r := &Remote{deps: deps}
	if err := r.Configure(profile); err != nil {
		return nil, err
	}

	var p params
	if len(profile.Parameters) == 0 {
		return nil, fmt.Errorf("sql remote %q: missing connection parameters", profile.ID)
	}
	if err := json.Unmarshal(profile.Parameters, &p); err != nil {
		return nil, fmt.Errorf("sql remote %q parameters: %w", profile.ID, err)
	}

	cfg, err := pgxpool.ParseConfig(p.URL)
	if err != nil {
		return nil, fmt.Errorf("sql remote %q url: %w", profile.ID, err)
	}
	if p.Username != "" {
		cfg.ConnConfig.User = p.Username
	}
	if p.Password != "" {
		cfg.ConnConfig.Password = p.Password
	}
	if p.PoolSize > 0 {
		cfg.MaxConns = p.PoolSize
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sql remote %q pool: %w", profile.ID, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sql remote %q ping: %w", profile.ID, err)
	}
	r.db = pool

	if err := r.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// NewWithDB builds a sql remote over an existing connection. The
// table is not created.
func NewWithDB(deps Deps, profile remote.Profile, db DB) (*Remote, error) {
	r := &Remote{deps: deps}
	if err := r.Configure(profile); err != nil {
		return nil, err
	}
	r.db = db
	return r, nil
}

// NewFactory returns the factory registered for "sql" profiles.
func NewFactory(ctx context.Context, deps Deps) remote.Factory {
	return remote.NewFactory(Type, func(profile remote.Profile) (remote.Remote, error) {
		return New(ctx, deps, profile)
	})
}

// ID returns the profile identifier.
func (r *Remote) ID() string { return r.id }

// Configure applies the profile's identifier, table name and wealthy
// limit. Connection parameters are consumed by New.
func (r *Remote) Configure(profile remote.Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("sql remote without identifier: %w", domain.ErrUnknownRemote)
	}
	r.id = profile.ID
	r.log = r.deps.Logger.With().Str("remote", profile.ID).Logger()
	if r.deps.KeepFor != nil {
		r.keep = r.deps.KeepFor(profile.ID)
	}
	r.table = "playerbank_accounts"
	r.wealthyLimit = defaultWealthyLimit
	if r.deps.WealthyLimit > 0 {
		r.wealthyLimit = r.deps.WealthyLimit
	}

	if len(profile.Parameters) == 0 {
		return nil
	}
	var p params
	if err := json.Unmarshal(profile.Parameters, &p); err != nil {
		return fmt.Errorf("sql remote %q parameters: %w", profile.ID, err)
	}
	if p.TablePrefix != "" {
		r.table = p.TablePrefix + r.table
	}
	if p.WealthyLimit > 0 {
		r.wealthyLimit = p.WealthyLimit
	}
	return nil
}

func (r *Remote) ensureTable(ctx context.Context) error {
	_, err := r.db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			identity_uuid TEXT NOT NULL UNIQUE,
			identity_name TEXT NOT NULL UNIQUE,
			json_data     JSONB NOT NULL
		)`, r.table))
	if err != nil {
		return fmt.Errorf("sql remote %q table: %w", r.id, err)
	}
	return nil
}

// FetchAccount loads the identity's ledger. A row matches on either
// identity half so that accounts survive a name change or a uuid
// migration. nil, nil means no row.
func (r *Remote) FetchAccount(ctx context.Context, identity domain.Identity) (*domain.Data, error) {
	var raw []byte
	err := r.observe(ctx, "fetch_account", func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, fmt.Sprintf(
			`SELECT json_data FROM %s WHERE identity_uuid = $1 OR identity_name = $2 LIMIT 1`, r.table),
			identity.UUID.String(), identity.Name)
		return row.Scan(&raw)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching account %s: %w", identity, err)
	}

	balances := make(map[string]decimal.Decimal)
	if err := json.Unmarshal(raw, &balances); err != nil {
		return nil, fmt.Errorf("account %s ledger document: %w", identity, err)
	}
	return domain.DataFromBalances(balances, r.deps.Resolve, r.keep), nil
}

// StoreAccount upserts the account's ledger, filtered to the
// currencies this remote owns.
func (r *Remote) StoreAccount(ctx context.Context, account *domain.Account) error {
	identity := account.Identity()
	raw, err := json.Marshal(account.Data().Snapshot(r.keep))
	if err != nil {
		return fmt.Errorf("encoding ledger for %s: %w", identity, err)
	}

	conflict := "identity_uuid"
	if r.deps.Mode == domain.IdentityNameMajor {
		conflict = "identity_name"
	}

	err = r.observe(ctx, "store_account", func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (identity_uuid, identity_name, json_data)
			VALUES ($1, $2, $3)
			ON CONFLICT (%s) DO UPDATE SET
				identity_uuid = EXCLUDED.identity_uuid,
				identity_name = EXCLUDED.identity_name,
				json_data     = EXCLUDED.json_data`, r.table, conflict),
			identity.UUID.String(), identity.Name, raw)
		return err
	})
	if err != nil {
		return fmt.Errorf("storing account %s: %w", identity, err)
	}
	return nil
}

// HandleWithdraw authorizes against the storage cell and persists the
// result in the background. The caller holds the account lock.
func (r *Remote) HandleWithdraw(ctx context.Context, account *domain.Account, cell *domain.Storage, amount decimal.Decimal) (bool, error) {
	if !cell.Withdraw(amount) {
		return false, nil
	}
	r.storeAsync(account)
	return true, nil
}

// HandleDeposit authorizes against the storage cell and persists the
// result in the background. The caller holds the account lock.
func (r *Remote) HandleDeposit(ctx context.Context, account *domain.Account, cell *domain.Storage, amount decimal.Decimal) (bool, error) {
	if !cell.Deposit(amount) {
		return false, nil
	}
	r.storeAsync(account)
	return true, nil
}

// storeAsync persists an accepted transaction without holding up the
// caller. A failed store leaves the row one transaction behind; the
// cell remains authoritative until the next successful store.
func (r *Remote) storeAsync(account *domain.Account) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := r.StoreAccount(ctx, account); err != nil {
			r.log.Error().Err(err).
				Str("account", account.Identity().String()).
				Msg("deferred account store failed")
		}
	}()
}

// FetchWealthyAccounts returns account snapshots ordered by the
// currency's balance, highest first.
func (r *Remote) FetchWealthyAccounts(ctx context.Context, currency domain.Currency) ([]remote.Snapshot, error) {
	var snapshots []remote.Snapshot
	err := r.observe(ctx, "fetch_wealthy", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, fmt.Sprintf(`
			SELECT identity_uuid, identity_name, json_data
			FROM %s
			WHERE json_data ? $1
			ORDER BY (json_data->>$1)::numeric DESC
			LIMIT $2`, r.table),
			currency.ID, r.wealthyLimit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var rawUUID, name string
			var raw []byte
			if err := rows.Scan(&rawUUID, &name, &raw); err != nil {
				return err
			}

			id, err := uuid.Parse(rawUUID)
			if err != nil {
				r.log.Warn().Str("uuid", rawUUID).Str("name", name).Msg("skipping row with malformed uuid")
				continue
			}
			balances := make(map[string]decimal.Decimal)
			if err := json.Unmarshal(raw, &balances); err != nil {
				r.log.Warn().Err(err).Str("name", name).Msg("skipping row with malformed ledger document")
				continue
			}

			snapshots = append(snapshots, remote.Snapshot{
				Identity: domain.Identity{UUID: id, Name: name},
				Balances: balances,
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetching wealthy accounts by %s: %w", currency.ID, err)
	}
	return snapshots, nil
}

// observe wraps one database call with remote metrics.
func (r *Remote) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)

	if m := r.deps.Metrics; m != nil {
		m.RemoteCalls.WithLabelValues(r.id, op).Inc()
		m.RemoteDuration.WithLabelValues(r.id, op).Observe(time.Since(start).Seconds())
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			m.RemoteErrors.WithLabelValues(r.id, op).Inc()
		}
	}
	return err
}
