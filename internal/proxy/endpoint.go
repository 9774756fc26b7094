package proxy

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/playerbank/internal/bank"
	"github.com/iho/playerbank/internal/domain"
	"github.com/iho/playerbank/internal/infrastructure/metrics"
	"github.com/iho/playerbank/internal/remote"
)

// TxnGuard deduplicates transaction frames. The message channel can
// redeliver a frame after a reconnect; Begin claims a frame key and
// reports false when the same frame was already claimed, End releases
// the claim once the response is on the wire.
type TxnGuard interface {
	Begin(ctx context.Context, key string) (bool, error)
	End(ctx context.Context, key string) error
}

// NopTxnGuard accepts every frame. Suitable for single-channel setups
// where the transport cannot redeliver.
type NopTxnGuard struct{}

func (NopTxnGuard) Begin(context.Context, string) (bool, error) { return true, nil }
func (NopTxnGuard) End(context.Context, string) error           { return nil }

// EndpointParams wires an endpoint together.
type EndpointParams struct {
	Directory *bank.Directory
	Guard     TxnGuard
	Peers     *PeerRegistry
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// Endpoint is the authoritative side of the protocol: it accepts
// websocket connections from relay nodes, answers fetches from the
// directory and executes transaction requests against live accounts.
type Endpoint struct {
	dir      *bank.Directory
	guard    TxnGuard
	peers    *PeerRegistry
	metrics  *metrics.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewEndpoint creates an endpoint. Guard may be nil, in which case no
// duplicate-delivery protection is applied.
func NewEndpoint(p EndpointParams) *Endpoint {
	guard := p.Guard
	if guard == nil {
		guard = NopTxnGuard{}
	}
	return &Endpoint{
		dir:     p.Directory,
		guard:   guard,
		peers:   p.Peers,
		metrics: p.Metrics,
		log:     p.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP upgrades the request and pumps protocol frames until the
// relay disconnects.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	peer := NewWebsocketPeer(r.RemoteAddr, conn)
	e.peers.Add(peer)
	defer func() {
		e.peers.Remove(peer.Name())
		conn.Close()
	}()

	ctx := r.Context()
	for {
		kind, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		e.Dispatch(ctx, frame, peer)
	}
}

// Dispatch decodes one frame and executes it, writing any response
// through the peer it arrived on. Frames for foreign sub-channels are
// ignored without logging; malformed frames are logged and dropped.
func (e *Endpoint) Dispatch(ctx context.Context, frame []byte, respond Peer) {
	op, r, err := DecodeFrame(frame)
	if err != nil {
		if err != ErrWrongSubChannel {
			e.log.Warn().Err(err).Msg("dropping malformed frame")
		}
		return
	}
	e.count(func(m *metrics.Metrics) { m.ProxyFramesIn.WithLabelValues(op.String()).Inc() })

	switch op {
	case OpFetchReq:
		e.handleFetch(ctx, r, respond)
	case OpWithdrawReq, OpDepositReq:
		e.handleTxn(ctx, op, r, respond)
	case OpFetchWealthyReq:
		e.handleWealthy(ctx, r, respond)
	default:
		e.log.Debug().Str("op", op.String()).Msg("ignoring non-request frame")
	}
}

func (e *Endpoint) handleFetch(ctx context.Context, r *Reader, respond Peer) {
	req, err := DecodeFetchReq(r)
	if err != nil {
		e.log.Warn().Err(err).Msg("dropping malformed fetch request")
		return
	}

	account, err := e.dir.RetrieveAccount(ctx, req.Identity)
	if err != nil {
		e.log.Error().Err(err).Str("identity", req.Identity.String()).Msg("account retrieval failed")
		return
	}

	balances := account.Data().Snapshot(nil)
	e.send(respond, OpFetchResp, FetchResp{
		Identity: req.Identity,
		Found:    len(balances) > 0,
		Balances: balances,
	})
}

func (e *Endpoint) handleTxn(ctx context.Context, op Op, r *Reader, respond Peer) {
	req, err := DecodeTxnReq(op, r)
	if err != nil {
		e.log.Warn().Err(err).Msg("dropping malformed transaction request")
		return
	}

	respOp := OpWithdrawResp
	if op == OpDepositReq {
		respOp = OpDepositResp
	}

	key := txnKey(e.dir.Mode(), req)
	fresh, err := e.guard.Begin(ctx, key)
	if err != nil {
		// Guard outage must not halt transactions; fall through without
		// duplicate protection.
		e.log.Warn().Err(err).Str("key", key).Msg("duplicate guard unavailable")
	} else if !fresh {
		e.count(func(m *metrics.Metrics) { m.DuplicateFrames.Inc() })
		e.log.Warn().Str("key", key).Msg("dropping duplicate transaction frame")
		return
	}
	defer func() {
		if err := e.guard.End(ctx, key); err != nil {
			e.log.Warn().Err(err).Str("key", key).Msg("duplicate guard release failed")
		}
	}()

	currency, ok := e.dir.Currencies().Get(req.CurrencyID)
	if !ok {
		e.log.Warn().Str("currency", req.CurrencyID).Msg("transaction for unregistered currency declined")
		e.send(respond, respOp, TxnResp{Op: respOp, Identity: req.Identity})
		return
	}

	account, err := e.dir.RetrieveAccount(ctx, req.Identity)
	if err != nil {
		e.log.Error().Err(err).Str("identity", req.Identity.String()).Msg("account retrieval failed")
		return
	}

	amount := decimal.NewFromFloat32(req.Amount)
	start := time.Now()
	var outcome domain.Outcome
	if op == OpWithdrawReq {
		outcome = account.Withdraw(ctx, currency, amount)
	} else {
		outcome = account.Deposit(ctx, currency, amount)
	}
	e.count(func(m *metrics.Metrics) { m.TransactionDuration.Observe(time.Since(start).Seconds()) })

	e.send(respond, respOp, TxnResp{
		Op:       respOp,
		Identity: req.Identity,
		Accepted: outcome.Accepted(),
		Balance:  float32(account.Status(currency).InexactFloat64()),
	})
}

func (e *Endpoint) handleWealthy(ctx context.Context, r *Reader, respond Peer) {
	req, err := DecodeFetchWealthyReq(r)
	if err != nil {
		e.log.Warn().Err(err).Msg("dropping malformed wealthy request")
		return
	}

	currency, ok := e.dir.Currencies().Get(req.CurrencyID)
	if !ok {
		e.log.Warn().Str("currency", req.CurrencyID).Msg("wealthy request for unregistered currency")
		e.send(respond, OpFetchWealthyResp, FetchWealthyResp{})
		return
	}

	accounts, err := e.dir.RetrieveWealthyAccounts(ctx, currency)
	if err != nil {
		// No response: the relay's pending call fails by timeout rather
		// than caching an empty ranking.
		e.log.Error().Err(err).Str("currency", currency.ID).Msg("wealthy retrieval failed")
		return
	}

	snapshots := make([]remote.Snapshot, 0, len(accounts))
	for _, account := range accounts {
		snapshots = append(snapshots, remote.Snapshot{
			Identity: account.Identity(),
			Balances: account.Data().Snapshot(nil),
		})
	}
	e.send(respond, OpFetchWealthyResp, FetchWealthyResp{Snapshots: snapshots})
}

type encoder interface {
	Encode() ([]byte, error)
}

func (e *Endpoint) send(peer Peer, op Op, msg encoder) {
	frame, err := msg.Encode()
	if err != nil {
		e.log.Error().Err(err).Str("op", op.String()).Msg("response encoding failed")
		return
	}
	if err := peer.Send(frame); err != nil {
		e.log.Warn().Err(err).Str("op", op.String()).Msg("response send failed")
		return
	}
	e.count(func(m *metrics.Metrics) { m.ProxyFramesOut.WithLabelValues(op.String()).Inc() })
}

// txnKey identifies one transaction frame for the duplicate guard.
// Identical frames (same op, identity slot, currency and bit-exact
// amount) collide on purpose.
func txnKey(mode domain.IdentityMode, req TxnReq) string {
	return fmt.Sprintf("txn:%s:%s:%s:%08x",
		req.Op, req.Identity.Key(mode), req.CurrencyID, math.Float32bits(req.Amount))
}

func (e *Endpoint) count(fn func(*metrics.Metrics)) {
	if e.metrics != nil {
		fn(e.metrics)
	}
}
