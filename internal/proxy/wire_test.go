package proxy

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/playerbank/internal/domain"
	"github.com/iho/playerbank/internal/remote"
)

func wireIdentity() domain.Identity {
	return domain.Identity{UUID: uuid.MustParse("3d1f2c9a-54b1-4f7e-9c80-0a8a1e2b3c4d"), Name: "steve"}
}

func TestWire_TxnReqRoundTrip(t *testing.T) {
	amounts := []float32{20, 0.1, math.Float32frombits(0x3f9d70a4), math.MaxFloat32}

	for _, amount := range amounts {
		req := TxnReq{
			Op:         OpWithdrawReq,
			Identity:   wireIdentity(),
			CurrencyID: "crowns",
			Amount:     amount,
		}

		raw, err := req.Encode()
		require.NoError(t, err)

		op, r, err := DecodeFrame(raw)
		require.NoError(t, err)
		require.Equal(t, OpWithdrawReq, op)

		got, err := DecodeTxnReq(op, r)
		require.NoError(t, err)

		assert.Equal(t, req.Identity, got.Identity)
		assert.Equal(t, req.CurrencyID, got.CurrencyID)
		// Bit-for-bit, not approximately.
		assert.Equal(t, math.Float32bits(amount), math.Float32bits(got.Amount))
	}
}

func TestWire_TxnRespRoundTrip(t *testing.T) {
	resp := TxnResp{
		Op:       OpWithdrawResp,
		Identity: wireIdentity(),
		Accepted: true,
		Balance:  80.5,
	}

	raw, err := resp.Encode()
	require.NoError(t, err)

	op, r, err := DecodeFrame(raw)
	require.NoError(t, err)
	require.Equal(t, OpWithdrawResp, op)

	got, err := DecodeTxnResp(op, r)
	require.NoError(t, err)
	assert.Equal(t, resp, got)
}

func TestWire_FetchRespRoundTrip(t *testing.T) {
	t.Run("with balances", func(t *testing.T) {
		resp := FetchResp{
			Identity: wireIdentity(),
			Found:    true,
			Balances: map[string]decimal.Decimal{
				"crowns": decimal.NewFromInt(120),
				"gems":   decimal.RequireFromString("3.5"),
			},
		}

		raw, err := resp.Encode()
		require.NoError(t, err)

		op, r, err := DecodeFrame(raw)
		require.NoError(t, err)
		require.Equal(t, OpFetchResp, op)

		got, err := DecodeFetchResp(r)
		require.NoError(t, err)
		assert.Equal(t, resp.Identity, got.Identity)
		assert.True(t, got.Found)
		assert.True(t, got.Balances["crowns"].Equal(decimal.NewFromInt(120)))
		assert.True(t, got.Balances["gems"].Equal(decimal.RequireFromString("3.5")))
	})

	t.Run("null marker for missing account", func(t *testing.T) {
		raw, err := FetchResp{Identity: wireIdentity()}.Encode()
		require.NoError(t, err)

		_, r, err := DecodeFrame(raw)
		require.NoError(t, err)

		got, err := DecodeFetchResp(r)
		require.NoError(t, err)
		assert.False(t, got.Found)
		assert.Nil(t, got.Balances)
	})
}

func TestWire_FetchWealthyRoundTrip(t *testing.T) {
	resp := FetchWealthyResp{
		Snapshots: []remote.Snapshot{
			{Identity: wireIdentity(), Balances: map[string]decimal.Decimal{"crowns": decimal.NewFromInt(900)}},
			{Identity: domain.Identity{UUID: uuid.New(), Name: "alex"}, Balances: map[string]decimal.Decimal{"crowns": decimal.NewFromInt(500)}},
		},
	}

	raw, err := resp.Encode()
	require.NoError(t, err)

	op, r, err := DecodeFrame(raw)
	require.NoError(t, err)
	require.Equal(t, OpFetchWealthyResp, op)

	got, err := DecodeFetchWealthyResp(r)
	require.NoError(t, err)
	require.Len(t, got.Snapshots, 2)
	assert.Equal(t, "steve", got.Snapshots[0].Identity.Name)
	assert.True(t, got.Snapshots[0].Balances["crowns"].Equal(decimal.NewFromInt(900)))
}

func TestWire_DecodeFrameRejections(t *testing.T) {
	t.Run("foreign sub-channel", func(t *testing.T) {
		w := &writer{}
		w.utf("some:other")
		w.byte(byte(OpFetchReq))

		_, _, err := DecodeFrame(w.bytes())
		assert.ErrorIs(t, err, ErrWrongSubChannel)
	})

	t.Run("truncated frame", func(t *testing.T) {
		raw, err := FetchReq{Identity: wireIdentity()}.Encode()
		require.NoError(t, err)

		_, r, err := DecodeFrame(raw[:len(raw)-4])
		require.NoError(t, err)
		_, err = DecodeFetchReq(r)
		assert.ErrorIs(t, err, ErrShortFrame)
	})

	t.Run("empty frame", func(t *testing.T) {
		_, _, err := DecodeFrame(nil)
		assert.ErrorIs(t, err, ErrShortFrame)
	})
}
