package domain

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AuditResult classifies the outcome of a single transaction attempt.
type AuditResult string

const (
	AuditSuccess     AuditResult = "SUCCESS"
	AuditFailure     AuditResult = "FAILURE"
	AuditError       AuditResult = "ERROR"
	AuditNotExecuted AuditResult = "NOT_EXECUTED"
)

// AuditResultOf maps a transaction outcome to its audit classification.
func AuditResultOf(o Outcome) AuditResult {
	switch o {
	case OutcomeAccepted:
		return AuditSuccess
	case OutcomeDeclined:
		return AuditFailure
	default:
		return AuditError
	}
}

// AuditOp names the attempted operation.
type AuditOp string

const (
	AuditOpWithdraw AuditOp = "withdraw"
	AuditOpDeposit  AuditOp = "deposit"
	AuditOpPay      AuditOp = "pay"
)

// AuditRecord is one entry of the transaction log book. Every
// withdraw, deposit and pay attempt produces exactly one record,
// whatever its outcome.
type AuditRecord struct {
	ID        string
	Time      time.Time
	Op        AuditOp
	Initiator Identity
	// Receiver is set for pay records only.
	Receiver *Identity
	Currency string
	Amount   decimal.Decimal
	Result   AuditResult
	// WithdrawResult and DepositResult break a pay record down into
	// its two legs.
	WithdrawResult AuditResult
	DepositResult  AuditResult
}

// AuditSink receives audit records. Implementations must not block
// the transaction path on failure; a record that cannot be persisted
// is logged and dropped.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord)
}

// NopAuditSink discards records.
type NopAuditSink struct{}

func (NopAuditSink) Record(context.Context, AuditRecord) {}

// LogAuditSink writes records to the log. Used on nodes that run
// without a database.
type LogAuditSink struct {
	Log zerolog.Logger
}

func (s LogAuditSink) Record(_ context.Context, rec AuditRecord) {
	evt := s.Log.Info().
		Str("id", rec.ID).
		Str("op", string(rec.Op)).
		Str("initiator", rec.Initiator.String()).
		Str("currency", rec.Currency).
		Str("amount", rec.Amount.String()).
		Str("result", string(rec.Result))
	if rec.Receiver != nil {
		evt = evt.Str("receiver", rec.Receiver.String())
	}
	if rec.Op == AuditOpPay {
		evt = evt.
			Str("withdraw_result", string(rec.WithdrawResult)).
			Str("deposit_result", string(rec.DepositResult))
	}
	evt.Msg("transaction recorded")
}
