package bank_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/playerbank/internal/bank"
	"github.com/iho/playerbank/internal/domain"
	"github.com/iho/playerbank/internal/remote"
	"github.com/iho/playerbank/internal/remote/mocks"
)

const testRemoteID = "sql-main"

func newTestDirectory(t *testing.T, rem remote.Remote, cfg bank.DirectoryConfig) (*bank.Directory, domain.Currency) {
	t.Helper()

	currency := domain.Currency{
		ID:           "crowns",
		NameSingular: "crown",
		NamePlural:   "crowns",
		RemoteID:     testRemoteID,
	}

	currencies := bank.NewCurrencyRegistry()
	require.NoError(t, currencies.Register(currency))

	remotes := bank.NewRemoteRegistry()
	require.NoError(t, remotes.Register(rem))

	return bank.NewDirectory(bank.DirectoryParams{
		Currencies: currencies,
		Remotes:    remotes,
		Config:     cfg,
		Logger:     zerolog.Nop(),
	}), currency
}

func TestDirectory_SingleFlightFetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	rem := mocks.NewMockRemote(ctrl)
	rem.EXPECT().ID().Return(testRemoteID).AnyTimes()

	identity := domain.Identity{UUID: uuid.New(), Name: "steve"}

	// Exactly one remote round-trip, however many callers race.
	rem.EXPECT().
		FetchAccount(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, domain.Identity) (*domain.Data, error) {
			time.Sleep(50 * time.Millisecond) // widen the race window
			return nil, nil
		}).
		Times(1)

	dir, _ := newTestDirectory(t, rem, bank.DirectoryConfig{})

	const callers = 16
	results := make([]*domain.Account, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := range callers {
		go func() {
			defer wg.Done()
			account, err := dir.RetrieveAccount(context.Background(), identity)
			require.NoError(t, err)
			results[i] = account
		}()
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i], "all callers must resolve to the same account")
	}
}

func TestDirectory_InvalidateForcesRefetch(t *testing.T) {
	ctrl := gomock.NewController(t)
	rem := mocks.NewMockRemote(ctrl)
	rem.EXPECT().ID().Return(testRemoteID).AnyTimes()
	rem.EXPECT().FetchAccount(gomock.Any(), gomock.Any()).Return(nil, nil).Times(2)

	dir, _ := newTestDirectory(t, rem, bank.DirectoryConfig{})
	identity := domain.Identity{UUID: uuid.New(), Name: "alex"}

	first, err := dir.RetrieveAccount(context.Background(), identity)
	require.NoError(t, err)

	// Cached: no extra remote call.
	again, err := dir.RetrieveAccount(context.Background(), identity)
	require.NoError(t, err)
	assert.Same(t, first, again)

	dir.Invalidate()

	fresh, err := dir.RetrieveAccount(context.Background(), identity)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh, "invalidate must force a fresh fetch")
}

func TestDirectory_PartialFanOutFailure(t *testing.T) {
	ctrl := gomock.NewController(t)

	healthy := mocks.NewMockRemote(ctrl)
	healthy.EXPECT().ID().Return("sql-main").AnyTimes()
	healthy.EXPECT().
		FetchAccount(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, domain.Identity) (*domain.Data, error) {
			data := domain.NewData()
			data.Cell(domain.Currency{ID: "crowns"}).Set(decimal.NewFromInt(42))
			return data, nil
		})

	broken := mocks.NewMockRemote(ctrl)
	broken.EXPECT().ID().Return("sql-backup").AnyTimes()
	broken.EXPECT().
		FetchAccount(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection refused"))

	currencies := bank.NewCurrencyRegistry()
	require.NoError(t, currencies.Register(domain.Currency{ID: "crowns", RemoteID: "sql-main"}))
	require.NoError(t, currencies.Register(domain.Currency{ID: "gems", RemoteID: "sql-backup"}))

	remotes := bank.NewRemoteRegistry()
	require.NoError(t, remotes.Register(healthy))
	require.NoError(t, remotes.Register(broken))

	dir := bank.NewDirectory(bank.DirectoryParams{
		Currencies: currencies,
		Remotes:    remotes,
		Logger:     zerolog.Nop(),
	})

	account, err := dir.RetrieveAccount(context.Background(), domain.Identity{UUID: uuid.New(), Name: "steve"})
	require.NoError(t, err, "one remote failing must not fail the retrieval")
	assert.True(t, account.Status(domain.Currency{ID: "crowns"}).Equal(decimal.NewFromInt(42)))
	assert.True(t, account.Status(domain.Currency{ID: "gems"}).IsZero())
}

func TestDirectory_WealthyCache(t *testing.T) {
	snapshot := remote.Snapshot{
		Identity: domain.Identity{UUID: uuid.New(), Name: "rich"},
		Balances: map[string]decimal.Decimal{"crowns": decimal.NewFromInt(900)},
	}

	t.Run("fresh cache answers without second remote call", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		rem := mocks.NewMockRemote(ctrl)
		rem.EXPECT().ID().Return(testRemoteID).AnyTimes()
		rem.EXPECT().
			FetchWealthyAccounts(gomock.Any(), gomock.Any()).
			Return([]remote.Snapshot{snapshot}, nil).
			Times(1)

		dir, currency := newTestDirectory(t, rem, bank.DirectoryConfig{WealthyTTL: time.Hour})

		first, err := dir.RetrieveWealthyAccounts(context.Background(), currency)
		require.NoError(t, err)
		require.Len(t, first, 1)

		second, err := dir.RetrieveWealthyAccounts(context.Background(), currency)
		require.NoError(t, err)
		assert.Equal(t, first[0], second[0], "cached list must be identical")
	})

	t.Run("concurrent expired callers trigger one refresh", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		rem := mocks.NewMockRemote(ctrl)
		rem.EXPECT().ID().Return(testRemoteID).AnyTimes()
		rem.EXPECT().
			FetchWealthyAccounts(gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, domain.Currency) ([]remote.Snapshot, error) {
				time.Sleep(50 * time.Millisecond)
				return []remote.Snapshot{snapshot}, nil
			}).
			Times(1)

		dir, currency := newTestDirectory(t, rem, bank.DirectoryConfig{WealthyTTL: time.Hour})

		var wg sync.WaitGroup
		wg.Add(8)
		for range 8 {
			go func() {
				defer wg.Done()
				accounts, err := dir.RetrieveWealthyAccounts(context.Background(), currency)
				assert.NoError(t, err)
				assert.Len(t, accounts, 1)
			}()
		}
		wg.Wait()
	})

	t.Run("refresh failure is not cached", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		rem := mocks.NewMockRemote(ctrl)
		rem.EXPECT().ID().Return(testRemoteID).AnyTimes()

		gomock.InOrder(
			rem.EXPECT().FetchWealthyAccounts(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout")),
			rem.EXPECT().FetchWealthyAccounts(gomock.Any(), gomock.Any()).Return([]remote.Snapshot{snapshot}, nil),
		)

		dir, currency := newTestDirectory(t, rem, bank.DirectoryConfig{WealthyTTL: time.Hour})

		_, err := dir.RetrieveWealthyAccounts(context.Background(), currency)
		require.Error(t, err)

		accounts, err := dir.RetrieveWealthyAccounts(context.Background(), currency)
		require.NoError(t, err)
		assert.Len(t, accounts, 1)
	})
}

func TestDirectory_WealthyAccountsAreDisplayOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	rem := mocks.NewMockRemote(ctrl)
	rem.EXPECT().ID().Return(testRemoteID).AnyTimes()
	rem.EXPECT().
		FetchWealthyAccounts(gomock.Any(), gomock.Any()).
		Return([]remote.Snapshot{{
			Identity: domain.Identity{UUID: uuid.New(), Name: "rich"},
			Balances: map[string]decimal.Decimal{"crowns": decimal.NewFromInt(900)},
		}}, nil)

	dir, currency := newTestDirectory(t, rem, bank.DirectoryConfig{})

	accounts, err := dir.RetrieveWealthyAccounts(context.Background(), currency)
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	assert.True(t, accounts[0].Status(currency).Equal(decimal.NewFromInt(900)))
	outcome := accounts[0].Withdraw(context.Background(), currency, decimal.NewFromInt(1))
	assert.Equal(t, domain.OutcomeDeclined, outcome, "snapshot accounts must decline transactions")
}

func TestDirectory_NameMajorModeSharesCacheSlot(t *testing.T) {
	ctrl := gomock.NewController(t)
	rem := mocks.NewMockRemote(ctrl)
	rem.EXPECT().ID().Return(testRemoteID).AnyTimes()
	rem.EXPECT().FetchAccount(gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)

	dir, _ := newTestDirectory(t, rem, bank.DirectoryConfig{Mode: domain.IdentityNameMajor})

	first, err := dir.RetrieveAccount(context.Background(), domain.Identity{UUID: uuid.New(), Name: "steve"})
	require.NoError(t, err)

	// Same name, different uuid: one cache slot under name-major mode.
	second, err := dir.RetrieveAccount(context.Background(), domain.Identity{UUID: uuid.New(), Name: "steve"})
	require.NoError(t, err)
	assert.Same(t, first, second)
}
