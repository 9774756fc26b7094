package proxyremote_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/playerbank/internal/domain"
	"github.com/iho/playerbank/internal/proxy"
	"github.com/iho/playerbank/internal/remote"
	"github.com/iho/playerbank/internal/remote/proxyremote"
)

var testCurrency = domain.Currency{
	ID:           "crowns",
	NameSingular: "crown",
	NamePlural:   "crowns",
}

func resolveTest(id string) (domain.Currency, bool) {
	if id == testCurrency.ID {
		return testCurrency, true
	}
	return domain.Currency{}, false
}

// captureSender records outgoing frames so the test can answer them.
type captureSender struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *captureSender) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *captureSender) sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames...)
}

func newTestRemote(t *testing.T, sender *captureSender, rawParams string) *proxyremote.Remote {
	t.Helper()

	profile := remote.Profile{ID: "proxy-main"}
	if rawParams != "" {
		profile.Parameters = json.RawMessage(rawParams)
	}

	rem, err := proxyremote.New(proxyremote.Deps{
		Peers:   sender,
		Mode:    domain.IdentityUUIDMajor,
		Resolve: resolveTest,
		Logger:  zerolog.Nop(),
	}, profile)
	require.NoError(t, err)
	return rem
}

func testAccount(identity domain.Identity) (*domain.Account, *domain.Storage) {
	account := domain.NewAccount(domain.AccountParams{
		Identity: identity,
		Handler:  domain.Handler{Kind: domain.HandlerNone},
		Logger:   zerolog.Nop(),
	})
	return account, account.Data().Cell(testCurrency)
}

func TestRemote_Configure(t *testing.T) {
	t.Run("empty identifier rejected", func(t *testing.T) {
		_, err := proxyremote.New(proxyremote.Deps{Logger: zerolog.Nop()}, remote.Profile{})
		assert.ErrorIs(t, err, domain.ErrUnknownRemote)
	})

	t.Run("malformed timeout rejected", func(t *testing.T) {
		_, err := proxyremote.New(proxyremote.Deps{Logger: zerolog.Nop()}, remote.Profile{
			ID:         "proxy-main",
			Parameters: json.RawMessage(`{"timeout":"soon"}`),
		})
		assert.Error(t, err)
	})

	t.Run("valid profile accepted", func(t *testing.T) {
		rem := newTestRemote(t, &captureSender{}, `{"timeout":"250ms"}`)
		assert.Equal(t, "proxy-main", rem.ID())
	})
}

func TestRemote_FetchAccount(t *testing.T) {
	identity := domain.Identity{UUID: uuid.New(), Name: "steve"}

	t.Run("round trip builds ledger from response", func(t *testing.T) {
		sender := &captureSender{}
		rem := newTestRemote(t, sender, "")

		go func() {
			for len(sender.sent()) == 0 {
				time.Sleep(time.Millisecond)
			}
			frame, err := (proxy.FetchResp{
				Identity: identity,
				Found:    true,
				Balances: map[string]decimal.Decimal{"crowns": decimal.NewFromInt(100)},
			}).Encode()
			if err == nil {
				rem.HandleFrame(frame)
			}
		}()

		data, err := rem.FetchAccount(context.Background(), identity)
		require.NoError(t, err)
		require.NotNil(t, data)
		assert.True(t, data.Amount(testCurrency).Equal(decimal.NewFromInt(100)))

		sent := sender.sent()
		require.Len(t, sent, 1)
		op, _, err := proxy.DecodeFrame(sent[0])
		require.NoError(t, err)
		assert.Equal(t, proxy.OpFetchReq, op)
	})

	t.Run("not found yields nil data", func(t *testing.T) {
		sender := &captureSender{}
		rem := newTestRemote(t, sender, "")

		go func() {
			for len(sender.sent()) == 0 {
				time.Sleep(time.Millisecond)
			}
			frame, err := (proxy.FetchResp{Identity: identity}).Encode()
			if err == nil {
				rem.HandleFrame(frame)
			}
		}()

		data, err := rem.FetchAccount(context.Background(), identity)
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("missing response times out", func(t *testing.T) {
		rem := newTestRemote(t, &captureSender{}, `{"timeout":"50ms"}`)

		_, err := rem.FetchAccount(context.Background(), identity)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("no peer fails immediately", func(t *testing.T) {
		sender := &captureSender{err: proxy.ErrNoPeerAvailable}
		rem := newTestRemote(t, sender, "")

		_, err := rem.FetchAccount(context.Background(), identity)
		assert.ErrorIs(t, err, proxy.ErrNoPeerAvailable)
	})
}

func TestRemote_RelayTransactions(t *testing.T) {
	identity := domain.Identity{UUID: uuid.New(), Name: "steve"}

	answer := func(rem *proxyremote.Remote, sender *captureSender, op proxy.Op, accepted bool, balance float32) {
		go func() {
			for len(sender.sent()) == 0 {
				time.Sleep(time.Millisecond)
			}
			frame, err := (proxy.TxnResp{
				Op:       op,
				Identity: identity,
				Accepted: accepted,
				Balance:  balance,
			}).Encode()
			if err == nil {
				rem.HandleFrame(frame)
			}
		}()
	}

	t.Run("accepted withdraw applies authoritative balance", func(t *testing.T) {
		sender := &captureSender{}
		rem := newTestRemote(t, sender, "")
		account, cell := testAccount(identity)
		cell.Set(decimal.NewFromInt(100))

		answer(rem, sender, proxy.OpWithdrawResp, true, 70)

		accepted, err := rem.HandleWithdraw(context.Background(), account, cell, decimal.NewFromInt(30))
		require.NoError(t, err)
		assert.True(t, accepted)
		assert.True(t, cell.Amount().Equal(decimal.NewFromInt(70)))
	})

	t.Run("declined withdraw still corrects local drift", func(t *testing.T) {
		sender := &captureSender{}
		rem := newTestRemote(t, sender, "")
		account, cell := testAccount(identity)
		cell.Set(decimal.NewFromInt(100))

		answer(rem, sender, proxy.OpWithdrawResp, false, 40)

		accepted, err := rem.HandleWithdraw(context.Background(), account, cell, decimal.NewFromInt(500))
		require.NoError(t, err)
		assert.False(t, accepted)
		assert.True(t, cell.Amount().Equal(decimal.NewFromInt(40)))
	})

	t.Run("accepted deposit applies authoritative balance", func(t *testing.T) {
		sender := &captureSender{}
		rem := newTestRemote(t, sender, "")
		account, cell := testAccount(identity)

		answer(rem, sender, proxy.OpDepositResp, true, 25)

		accepted, err := rem.HandleDeposit(context.Background(), account, cell, decimal.NewFromInt(25))
		require.NoError(t, err)
		assert.True(t, accepted)
		assert.True(t, cell.Amount().Equal(decimal.NewFromInt(25)))
	})

	t.Run("timeout fails closed", func(t *testing.T) {
		rem := newTestRemote(t, &captureSender{}, `{"timeout":"50ms"}`)
		account, cell := testAccount(identity)
		cell.Set(decimal.NewFromInt(100))

		accepted, err := rem.HandleWithdraw(context.Background(), account, cell, decimal.NewFromInt(30))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, accepted)
		assert.True(t, cell.Amount().Equal(decimal.NewFromInt(100)), "timeout must not touch the balance")
	})

	t.Run("late response after timeout is dropped", func(t *testing.T) {
		sender := &captureSender{}
		rem := newTestRemote(t, sender, `{"timeout":"50ms"}`)
		account, cell := testAccount(identity)
		cell.Set(decimal.NewFromInt(100))

		_, err := rem.HandleWithdraw(context.Background(), account, cell, decimal.NewFromInt(30))
		require.Error(t, err)

		frame, err := (proxy.TxnResp{Op: proxy.OpWithdrawResp, Identity: identity, Accepted: true, Balance: 70}).Encode()
		require.NoError(t, err)
		rem.HandleFrame(frame)

		assert.True(t, cell.Amount().Equal(decimal.NewFromInt(100)), "late response must not apply")
	})
}

func TestRemote_FetchWealthySharesOneCall(t *testing.T) {
	sender := &captureSender{}
	rem := newTestRemote(t, sender, "")

	snapshot := remote.Snapshot{
		Identity: domain.Identity{UUID: uuid.New(), Name: "rich"},
		Balances: map[string]decimal.Decimal{"crowns": decimal.NewFromInt(900)},
	}

	go func() {
		for len(sender.sent()) == 0 {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond) // let more callers attach
		frame, err := (proxy.FetchWealthyResp{Snapshots: []remote.Snapshot{snapshot}}).Encode()
		if err == nil {
			rem.HandleFrame(frame)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(4)
	for range 4 {
		go func() {
			defer wg.Done()
			snapshots, err := rem.FetchWealthyAccounts(context.Background(), testCurrency)
			assert.NoError(t, err)
			assert.Len(t, snapshots, 1)
		}()
	}
	wg.Wait()

	assert.Len(t, sender.sent(), 1, "concurrent callers must share one frame")
}

func TestRemote_UnmatchedResponsesAreDropped(t *testing.T) {
	rem := newTestRemote(t, &captureSender{}, "")

	frame, err := (proxy.TxnResp{
		Op:       proxy.OpWithdrawResp,
		Identity: domain.Identity{UUID: uuid.New(), Name: "ghost"},
		Accepted: true,
		Balance:  5,
	}).Encode()
	require.NoError(t, err)

	rem.HandleFrame(frame)
	rem.HandleFrame([]byte{0, 3, 'f', 'o', 'o'})
	rem.HandleFrame(nil)
}

func TestRemote_StoreAccountIsNoOp(t *testing.T) {
	rem := newTestRemote(t, &captureSender{}, "")
	account, _ := testAccount(domain.Identity{UUID: uuid.New(), Name: "steve"})
	assert.NoError(t, rem.StoreAccount(context.Background(), account))
	var _ remote.Remote = rem
}

func TestRemote_FactoryType(t *testing.T) {
	factory := proxyremote.NewFactory(proxyremote.Deps{Peers: &captureSender{}, Logger: zerolog.Nop()})
	assert.Equal(t, proxyremote.Type, factory.Type())

	built, err := factory.Build(remote.Profile{ID: "proxy-main"})
	require.NoError(t, err)
	assert.Equal(t, "proxy-main", built.ID())

	_, err = factory.Build(remote.Profile{})
	assert.Error(t, err)
}

func TestRemote_SendErrorUnwraps(t *testing.T) {
	sender := &captureSender{err: errors.New("socket closed")}
	rem := newTestRemote(t, sender, "")
	account, cell := testAccount(domain.Identity{UUID: uuid.New(), Name: "steve"})

	accepted, err := rem.HandleWithdraw(context.Background(), account, cell, decimal.NewFromInt(1))
	assert.False(t, accepted)
	assert.Error(t, err)
}
