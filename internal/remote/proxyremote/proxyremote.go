// Package proxyremote implements the relay backend: every operation
// is encoded as a protocol frame, sent to the authoritative node
// through a transport peer and matched to its response by the
// identity it names. Relay nodes hold no persistent state.
package proxyremote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/playerbank/internal/domain"
	"github.com/iho/playerbank/internal/infrastructure/metrics"
	"github.com/iho/playerbank/internal/proxy"
	"github.com/iho/playerbank/internal/remote"
)

// Type is the profile type this package builds.
const Type = "proxy"

const defaultTimeout = 5 * time.Second

// Sender carries an encoded frame to the authoritative node.
type Sender interface {
	Send(frame []byte) error
}

// Deps are the process-wide collaborators a proxy remote needs beyond
// its profile.
type Deps struct {
	Peers   Sender
	Mode    domain.IdentityMode
	Resolve domain.CurrencyResolver
	// KeepFor builds the predicate filtering fetched balances down to
	// the currencies a remote owns. Nil keeps all.
	KeepFor func(remoteID string) func(domain.Currency) bool
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

type params struct {
	Timeout string `json:"timeout"`
}

type fetchCall struct {
	ready chan struct{}
	resp  proxy.FetchResp
	err   error
}

type wealthyCall struct {
	ready     chan struct{}
	snapshots []remote.Snapshot
	err       error
}

// Remote relays operations to the authoritative node. Pending calls
// are correlated by the identity the frame names: the per-account
// transaction lock guarantees at most one withdraw and one deposit in
// flight per identity, the directory's coalescing guarantees one
// fetch.
type Remote struct {
	deps    Deps
	id      string
	keep    func(domain.Currency) bool
	timeout time.Duration
	log     zerolog.Logger

	mu       sync.Mutex
	fetch    map[string]*fetchCall
	withdraw map[string]chan proxy.TxnResp
	deposit  map[string]chan proxy.TxnResp
	wealthy  *wealthyCall
}

// New builds a proxy remote from its profile. The only recognized
// parameter is "timeout", a duration string bounding one round-trip.
func New(deps Deps, profile remote.Profile) (*Remote, error) {
	r := &Remote{
		deps:     deps,
		timeout:  defaultTimeout,
		log:      deps.Logger.With().Str("remote", profile.ID).Logger(),
		fetch:    make(map[string]*fetchCall),
		withdraw: make(map[string]chan proxy.TxnResp),
		deposit:  make(map[string]chan proxy.TxnResp),
	}
	if err := r.Configure(profile); err != nil {
		return nil, err
	}
	return r, nil
}

// NewFactory returns the factory registered for "proxy" profiles.
func NewFactory(deps Deps) remote.Factory {
	return remote.NewFactory(Type, func(profile remote.Profile) (remote.Remote, error) {
		return New(deps, profile)
	})
}

// ID returns the profile identifier.
func (r *Remote) ID() string { return r.id }

// Configure applies the profile. An empty identifier is rejected.
func (r *Remote) Configure(profile remote.Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("proxy remote without identifier: %w", domain.ErrUnknownRemote)
	}
	r.id = profile.ID
	if r.deps.KeepFor != nil {
		r.keep = r.deps.KeepFor(profile.ID)
	}

	if len(profile.Parameters) == 0 {
		return nil
	}
	var p params
	if err := json.Unmarshal(profile.Parameters, &p); err != nil {
		return fmt.Errorf("proxy remote %q parameters: %w", profile.ID, err)
	}
	if p.Timeout != "" {
		timeout, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return fmt.Errorf("proxy remote %q timeout: %w", profile.ID, err)
		}
		r.timeout = timeout
	}
	return nil
}

// FetchAccount asks the authoritative node for the identity's
// balances. Concurrent fetches for the same identity share one
// round-trip. A nil, nil return means the node holds no data.
func (r *Remote) FetchAccount(ctx context.Context, identity domain.Identity) (*domain.Data, error) {
	key := identity.Key(r.deps.Mode)

	r.mu.Lock()
	call, pending := r.fetch[key]
	if !pending {
		call = &fetchCall{ready: make(chan struct{})}
		r.fetch[key] = call
	}
	r.mu.Unlock()

	if !pending {
		frame, err := (proxy.FetchReq{Identity: identity}).Encode()
		if err != nil {
			r.finishFetch(key, proxy.FetchResp{}, err)
		} else if err := r.deps.Peers.Send(frame); err != nil {
			r.finishFetch(key, proxy.FetchResp{}, err)
		} else {
			r.countOut(proxy.OpFetchReq)
		}
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	select {
	case <-call.ready:
		if call.err != nil {
			return nil, call.err
		}
		if !call.resp.Found {
			return nil, nil
		}
		return domain.DataFromBalances(call.resp.Balances, r.deps.Resolve, r.keep), nil
	case <-ctx.Done():
		r.abandonFetch(key, call)
		return nil, fmt.Errorf("account fetch for %s: %w", identity, ctx.Err())
	}
}

// HandleWithdraw relays a withdraw request and applies the
// authoritative decision to the local cell.
func (r *Remote) HandleWithdraw(ctx context.Context, account *domain.Account, cell *domain.Storage, amount decimal.Decimal) (bool, error) {
	return r.relayTxn(ctx, proxy.OpWithdrawReq, account, cell, amount)
}

// HandleDeposit relays a deposit request and applies the
// authoritative decision to the local cell.
func (r *Remote) HandleDeposit(ctx context.Context, account *domain.Account, cell *domain.Storage, amount decimal.Decimal) (bool, error) {
	return r.relayTxn(ctx, proxy.OpDepositReq, account, cell, amount)
}

func (r *Remote) relayTxn(ctx context.Context, op proxy.Op, account *domain.Account, cell *domain.Storage, amount decimal.Decimal) (bool, error) {
	identity := account.Identity()
	key := identity.Key(r.deps.Mode)

	result := make(chan proxy.TxnResp, 1)

	r.mu.Lock()
	table := r.txnTable(op)
	if _, busy := table[key]; busy {
		r.mu.Unlock()
		return false, fmt.Errorf("transaction already pending for %s", identity)
	}
	table[key] = result
	r.mu.Unlock()

	frame, err := (proxy.TxnReq{
		Op:         op,
		Identity:   identity,
		CurrencyID: cell.Currency().ID,
		Amount:     float32(amount.InexactFloat64()),
	}).Encode()
	if err != nil {
		r.dropTxn(op, key)
		return false, err
	}
	if err := r.deps.Peers.Send(frame); err != nil {
		r.dropTxn(op, key)
		return false, err
	}
	r.countOut(op)

	ctx, cancel := r.bound(ctx)
	defer cancel()

	select {
	case resp := <-result:
		// The node's balance is authoritative either way; a decline
		// still corrects local drift.
		cell.Set(decimal.NewFromFloat32(resp.Balance))
		return resp.Accepted, nil
	case <-ctx.Done():
		r.dropTxn(op, key)
		r.count(func(m *metrics.Metrics) { m.ProxyTimeouts.Inc() })
		return false, fmt.Errorf("%s for %s: %w", op, identity, ctx.Err())
	}
}

// FetchWealthyAccounts relays a wealth-ranking request. At most one
// ranking round-trip is in flight; concurrent callers share it.
func (r *Remote) FetchWealthyAccounts(ctx context.Context, currency domain.Currency) ([]remote.Snapshot, error) {
	r.mu.Lock()
	call := r.wealthy
	pending := call != nil
	if !pending {
		call = &wealthyCall{ready: make(chan struct{})}
		r.wealthy = call
	}
	r.mu.Unlock()

	if !pending {
		frame, err := (proxy.FetchWealthyReq{CurrencyID: currency.ID}).Encode()
		if err != nil {
			r.finishWealthy(nil, err)
		} else if err := r.deps.Peers.Send(frame); err != nil {
			r.finishWealthy(nil, err)
		} else {
			r.countOut(proxy.OpFetchWealthyReq)
		}
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	select {
	case <-call.ready:
		return call.snapshots, call.err
	case <-ctx.Done():
		r.mu.Lock()
		if r.wealthy == call {
			r.wealthy = nil
		}
		r.mu.Unlock()
		r.count(func(m *metrics.Metrics) { m.ProxyTimeouts.Inc() })
		return nil, fmt.Errorf("wealthy fetch for %s: %w", currency.ID, ctx.Err())
	}
}

// StoreAccount is a no-op: the authoritative node persists after every
// transaction it accepts.
func (r *Remote) StoreAccount(context.Context, *domain.Account) error { return nil }

// HandleFrame consumes one frame read off the transport and completes
// the pending call it answers. Responses nothing waits for are
// dropped.
func (r *Remote) HandleFrame(frame []byte) {
	op, reader, err := proxy.DecodeFrame(frame)
	if err != nil {
		if err != proxy.ErrWrongSubChannel {
			r.log.Warn().Err(err).Msg("dropping malformed frame")
		}
		return
	}
	r.count(func(m *metrics.Metrics) { m.ProxyFramesIn.WithLabelValues(op.String()).Inc() })

	switch op {
	case proxy.OpFetchResp:
		resp, err := proxy.DecodeFetchResp(reader)
		if err != nil {
			r.log.Warn().Err(err).Msg("dropping malformed fetch response")
			return
		}
		r.finishFetch(resp.Identity.Key(r.deps.Mode), resp, nil)

	case proxy.OpWithdrawResp, proxy.OpDepositResp:
		resp, err := proxy.DecodeTxnResp(op, reader)
		if err != nil {
			r.log.Warn().Err(err).Msg("dropping malformed transaction response")
			return
		}
		r.deliverTxn(op, resp)

	case proxy.OpFetchWealthyResp:
		resp, err := proxy.DecodeFetchWealthyResp(reader)
		if err != nil {
			r.log.Warn().Err(err).Msg("dropping malformed wealthy response")
			return
		}
		r.finishWealthy(resp.Snapshots, nil)

	default:
		// Request opcodes are the authoritative node's business.
		r.log.Debug().Str("op", op.String()).Msg("ignoring non-response frame")
	}
}

func (r *Remote) txnTable(op proxy.Op) map[string]chan proxy.TxnResp {
	if op == proxy.OpWithdrawReq || op == proxy.OpWithdrawResp {
		return r.withdraw
	}
	return r.deposit
}

func (r *Remote) dropTxn(op proxy.Op, key string) {
	r.mu.Lock()
	delete(r.txnTable(op), key)
	r.mu.Unlock()
}

func (r *Remote) deliverTxn(op proxy.Op, resp proxy.TxnResp) {
	key := resp.Identity.Key(r.deps.Mode)

	r.mu.Lock()
	table := r.txnTable(op)
	result, ok := table[key]
	if ok {
		delete(table, key)
	}
	r.mu.Unlock()

	if !ok {
		r.count(func(m *metrics.Metrics) { m.ProxyUnmatched.Inc() })
		r.log.Warn().
			Str("op", op.String()).
			Str("identity", resp.Identity.String()).
			Msg("dropping response with no pending transaction")
		return
	}
	result <- resp
}

func (r *Remote) finishFetch(key string, resp proxy.FetchResp, err error) {
	r.mu.Lock()
	call, ok := r.fetch[key]
	if ok {
		delete(r.fetch, key)
	}
	r.mu.Unlock()

	if !ok {
		r.count(func(m *metrics.Metrics) { m.ProxyUnmatched.Inc() })
		r.log.Warn().Str("key", key).Msg("dropping response with no pending fetch")
		return
	}
	call.resp, call.err = resp, err
	close(call.ready)
}

// abandonFetch removes a timed-out call so that a late response is
// dropped instead of completing a future fetch with stale data.
func (r *Remote) abandonFetch(key string, call *fetchCall) {
	r.mu.Lock()
	if r.fetch[key] == call {
		delete(r.fetch, key)
	}
	r.mu.Unlock()
	r.count(func(m *metrics.Metrics) { m.ProxyTimeouts.Inc() })
}

func (r *Remote) finishWealthy(snapshots []remote.Snapshot, err error) {
	r.mu.Lock()
	call := r.wealthy
	r.wealthy = nil
	r.mu.Unlock()

	if call == nil {
		r.count(func(m *metrics.Metrics) { m.ProxyUnmatched.Inc() })
		r.log.Warn().Msg("dropping wealthy response with no pending call")
		return
	}
	call.snapshots, call.err = snapshots, err
	close(call.ready)
}

func (r *Remote) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return ctx, func() {}
}

func (r *Remote) countOut(op proxy.Op) {
	r.count(func(m *metrics.Metrics) { m.ProxyFramesOut.WithLabelValues(op.String()).Inc() })
}

func (r *Remote) count(fn func(*metrics.Metrics)) {
	if r.deps.Metrics != nil {
		fn(r.deps.Metrics)
	}
}
