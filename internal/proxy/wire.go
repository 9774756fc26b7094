// Package proxy implements the binary correlation protocol spoken
// between a relay node and the authoritative node, the peer registry
// carrying it, and the authoritative endpoint answering it.
package proxy

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/shopspring/decimal"

	"github.com/iho/playerbank/internal/domain"
	"github.com/iho/playerbank/internal/remote"
)

// SubChannel is the reserved token that opens every frame. Frames
// carrying any other token are silently ignored.
const SubChannel = "playerbank:sync"

// nullBalances is sent in a fetch response when the authoritative
// node holds no data for the identity.
const nullBalances = "null"

// Op identifies a protocol operation.
type Op byte

const (
	OpFetchReq Op = iota
	OpFetchResp
	OpFetchWealthyReq
	OpFetchWealthyResp
	OpWithdrawReq
	OpWithdrawResp
	OpDepositReq
	OpDepositResp
)

func (o Op) String() string {
	switch o {
	case OpFetchReq:
		return "fetch_req"
	case OpFetchResp:
		return "fetch_resp"
	case OpFetchWealthyReq:
		return "fetch_wealthy_req"
	case OpFetchWealthyResp:
		return "fetch_wealthy_resp"
	case OpWithdrawReq:
		return "withdraw_req"
	case OpWithdrawResp:
		return "withdraw_resp"
	case OpDepositReq:
		return "deposit_req"
	case OpDepositResp:
		return "deposit_resp"
	default:
		return fmt.Sprintf("op(%d)", byte(o))
	}
}

var (
	ErrWrongSubChannel = errors.New("frame for foreign sub-channel")
	ErrShortFrame      = errors.New("frame truncated")
	ErrStringTooLong   = errors.New("string exceeds length prefix")
)

// writer accumulates a frame. Strings are length-prefixed with a
// big-endian uint16; scalars are big-endian.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) utf(s string) {
	if len(s) > math.MaxUint16 {
		// The protocol cannot carry it; truncation would corrupt the
		// stream, so cap at encode time.
		s = s[:math.MaxUint16]
	}
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	w.buf.Write(l[:])
	w.buf.WriteString(s)
}

func (w *writer) byte(b byte) {
	w.buf.WriteByte(b)
}

func (w *writer) bool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *writer) float32(v float32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
	w.buf.Write(b[:])
}

func (w *writer) int32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf.Write(b[:])
}

func (w *writer) bytes() []byte {
	return w.buf.Bytes()
}

// Reader decodes a frame payload.
type Reader struct {
	r *bytes.Reader
}

func newReader(b []byte) *Reader {
	return &Reader{r: bytes.NewReader(b)}
}

func (r *Reader) utf() (string, error) {
	var l [2]byte
	if _, err := io.ReadFull(r.r, l[:]); err != nil {
		return "", ErrShortFrame
	}
	n := binary.BigEndian.Uint16(l[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", ErrShortFrame
	}
	return string(buf), nil
}

func (r *Reader) byte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, ErrShortFrame
	}
	return b, nil
}

func (r *Reader) bool() (bool, error) {
	b, err := r.byte()
	return b != 0, err
}

func (r *Reader) float32() (float32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, ErrShortFrame
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b[:])), nil
}

func (r *Reader) int32() (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, ErrShortFrame
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

// frame opens a new frame with the sub-channel token and opcode.
func frame(op Op) *writer {
	w := &writer{}
	w.utf(SubChannel)
	w.byte(byte(op))
	return w
}

// DecodeFrame validates the sub-channel token and returns the opcode
// and a reader positioned at the payload.
func DecodeFrame(b []byte) (Op, *Reader, error) {
	r := newReader(b)
	sub, err := r.utf()
	if err != nil {
		return 0, nil, err
	}
	if sub != SubChannel {
		return 0, nil, ErrWrongSubChannel
	}
	op, err := r.byte()
	if err != nil {
		return 0, nil, err
	}
	return Op(op), r, nil
}

func writeIdentity(w *writer, identity domain.Identity) error {
	raw, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	w.utf(string(raw))
	return nil
}

func (r *Reader) identity() (domain.Identity, error) {
	raw, err := r.utf()
	if err != nil {
		return domain.Identity{}, err
	}
	var identity domain.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return domain.Identity{}, fmt.Errorf("malformed identity: %w", err)
	}
	return identity, nil
}

// FetchReq asks the authoritative node for an account's balances.
type FetchReq struct {
	Identity domain.Identity
}

func (m FetchReq) Encode() ([]byte, error) {
	w := frame(OpFetchReq)
	if err := writeIdentity(w, m.Identity); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

func DecodeFetchReq(r *Reader) (FetchReq, error) {
	identity, err := r.identity()
	if err != nil {
		return FetchReq{}, err
	}
	return FetchReq{Identity: identity}, nil
}

// FetchResp answers a FetchReq. Found is false when the authoritative
// node holds no data for the identity.
type FetchResp struct {
	Identity domain.Identity
	Found    bool
	Balances map[string]decimal.Decimal
}

func (m FetchResp) Encode() ([]byte, error) {
	w := frame(OpFetchResp)
	if err := writeIdentity(w, m.Identity); err != nil {
		return nil, err
	}
	if !m.Found {
		w.utf(nullBalances)
		return w.bytes(), nil
	}
	raw, err := json.Marshal(m.Balances)
	if err != nil {
		return nil, err
	}
	w.utf(string(raw))
	return w.bytes(), nil
}

func DecodeFetchResp(r *Reader) (FetchResp, error) {
	identity, err := r.identity()
	if err != nil {
		return FetchResp{}, err
	}
	raw, err := r.utf()
	if err != nil {
		return FetchResp{}, err
	}
	if raw == "" || raw == nullBalances {
		return FetchResp{Identity: identity}, nil
	}
	balances := make(map[string]decimal.Decimal)
	if err := json.Unmarshal([]byte(raw), &balances); err != nil {
		return FetchResp{}, fmt.Errorf("malformed balances: %w", err)
	}
	return FetchResp{Identity: identity, Found: true, Balances: balances}, nil
}

// FetchWealthyReq asks for the top accounts by a currency's balance.
type FetchWealthyReq struct {
	CurrencyID string
}

func (m FetchWealthyReq) Encode() ([]byte, error) {
	w := frame(OpFetchWealthyReq)
	w.utf(m.CurrencyID)
	return w.bytes(), nil
}

func DecodeFetchWealthyReq(r *Reader) (FetchWealthyReq, error) {
	id, err := r.utf()
	if err != nil {
		return FetchWealthyReq{}, err
	}
	return FetchWealthyReq{CurrencyID: id}, nil
}

// FetchWealthyResp carries account snapshots in descending balance
// order.
type FetchWealthyResp struct {
	Snapshots []remote.Snapshot
}

func (m FetchWealthyResp) Encode() ([]byte, error) {
	w := frame(OpFetchWealthyResp)
	w.int32(int32(len(m.Snapshots)))
	for _, snapshot := range m.Snapshots {
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return nil, err
		}
		w.utf(string(raw))
	}
	return w.bytes(), nil
}

func DecodeFetchWealthyResp(r *Reader) (FetchWealthyResp, error) {
	count, err := r.int32()
	if err != nil {
		return FetchWealthyResp{}, err
	}
	if count < 0 {
		return FetchWealthyResp{}, fmt.Errorf("negative snapshot count %d", count)
	}
	snapshots := make([]remote.Snapshot, 0, count)
	for range count {
		raw, err := r.utf()
		if err != nil {
			return FetchWealthyResp{}, err
		}
		var snapshot remote.Snapshot
		if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
			return FetchWealthyResp{}, fmt.Errorf("malformed snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return FetchWealthyResp{Snapshots: snapshots}, nil
}

// TxnReq requests a withdraw or deposit on the authoritative node.
// The same payload shape serves both opcodes.
type TxnReq struct {
	Op         Op // OpWithdrawReq or OpDepositReq
	Identity   domain.Identity
	CurrencyID string
	Amount     float32
}

func (m TxnReq) Encode() ([]byte, error) {
	w := frame(m.Op)
	if err := writeIdentity(w, m.Identity); err != nil {
		return nil, err
	}
	w.utf(m.CurrencyID)
	w.float32(m.Amount)
	return w.bytes(), nil
}

func DecodeTxnReq(op Op, r *Reader) (TxnReq, error) {
	identity, err := r.identity()
	if err != nil {
		return TxnReq{}, err
	}
	currencyID, err := r.utf()
	if err != nil {
		return TxnReq{}, err
	}
	amount, err := r.float32()
	if err != nil {
		return TxnReq{}, err
	}
	return TxnReq{Op: op, Identity: identity, CurrencyID: currencyID, Amount: amount}, nil
}

// TxnResp answers a TxnReq with the decision and the new balance.
type TxnResp struct {
	Op       Op // OpWithdrawResp or OpDepositResp
	Identity domain.Identity
	Accepted bool
	Balance  float32
}

func (m TxnResp) Encode() ([]byte, error) {
	w := frame(m.Op)
	if err := writeIdentity(w, m.Identity); err != nil {
		return nil, err
	}
	w.bool(m.Accepted)
	w.float32(m.Balance)
	return w.bytes(), nil
}

func DecodeTxnResp(op Op, r *Reader) (TxnResp, error) {
	identity, err := r.identity()
	if err != nil {
		return TxnResp{}, err
	}
	accepted, err := r.bool()
	if err != nil {
		return TxnResp{}, err
	}
	balance, err := r.float32()
	if err != nil {
		return TxnResp{}, err
	}
	return TxnResp{Op: op, Identity: identity, Accepted: accepted, Balance: balance}, nil
}
