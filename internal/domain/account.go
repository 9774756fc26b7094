package domain

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Outcome is the tri-state result of a transaction attempt. A decline
// (insufficient balance, amount out of bounds) is a normal business
// result; OutcomeError marks a handler or remote failure.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeDeclined
	OutcomeError
)

// Accepted reports whether the transaction went through.
func (o Outcome) Accepted() bool { return o == OutcomeAccepted }

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDeclined:
		return "declined"
	default:
		return "internal-error"
	}
}

// TransactionRemote is the slice of a balance backend a relay handler
// needs: check-and-mutate the cell, persist asynchronously. The
// caller serializes per-account access; implementations must not add
// their own account locking.
type TransactionRemote interface {
	HandleWithdraw(ctx context.Context, account *Account, cell *Storage, amount decimal.Decimal) (bool, error)
	HandleDeposit(ctx context.Context, account *Account, cell *Storage, amount decimal.Decimal) (bool, error)
}

// RemoteResolver resolves the effective remote for a currency: the
// currency's bound remote if any, else the account's default. It is
// consulted at call time, not captured at account construction.
type RemoteResolver func(currency Currency) (TransactionRemote, error)

// HandlerKind tags how a transaction is authorized.
type HandlerKind int

const (
	// HandlerLocal mutates the local storage cell directly.
	HandlerLocal HandlerKind = iota
	// HandlerRelay delegates to the remote resolved for the currency.
	HandlerRelay
	// HandlerNone declines everything. Display-only accounts, such as
	// wealth-ranking snapshots, carry no handler.
	HandlerNone
)

// Handler decides how deposits and withdrawals against an account are
// authorized.
type Handler struct {
	Kind HandlerKind
	// Resolve is required for HandlerRelay.
	Resolve RemoteResolver
	// Timeout bounds a single remote round-trip.
	Timeout time.Duration
}

// Limits bounds single-transaction values. A zero Max means unbounded.
type Limits struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// allows reports whether a transaction value is inside bounds.
func (l Limits) allows(v decimal.Decimal) bool {
	if v.LessThan(l.Min) {
		return false
	}
	if !l.Max.IsZero() && v.GreaterThan(l.Max) {
		return false
	}
	return true
}

// AccountParams configures a new account.
type AccountParams struct {
	Identity Identity
	// Data is adopted as the account's ledger. Nil means empty.
	Data    *Data
	Handler Handler
	Limits  Limits
	Audit   AuditSink
	Logger  zerolog.Logger
}

// Account owns an identity, its ledger and the transaction handler.
// All transactions on one account are strictly serialized: the
// account lock is held for the full handler invocation, including any
// remote round-trip, so concurrent callers observe a total order of
// attempts.
type Account struct {
	identity Identity
	data     *Data
	handler  Handler
	limits   Limits
	audit    AuditSink
	log      zerolog.Logger

	mu sync.Mutex
}

// NewAccount creates an account.
func NewAccount(p AccountParams) *Account {
	if p.Data == nil {
		p.Data = NewData()
	}
	if p.Audit == nil {
		p.Audit = NopAuditSink{}
	}
	return &Account{
		identity: p.Identity,
		data:     p.Data,
		handler:  p.Handler,
		limits:   p.Limits,
		audit:    p.Audit,
		log:      p.Logger,
	}
}

// Identity returns the account's identity.
func (a *Account) Identity() Identity { return a.identity }

// Data returns the account's ledger.
func (a *Account) Data() *Data { return a.data }

// Status returns the cached balance for a currency, zero if the
// currency was never touched.
func (a *Account) Status(currency Currency) decimal.Decimal {
	return a.data.Amount(currency)
}

// Withdraw removes amount of currency from the account.
func (a *Account) Withdraw(ctx context.Context, currency Currency, amount decimal.Decimal) Outcome {
	outcome := a.transact(ctx, AuditOpWithdraw, currency, amount)

	a.record(ctx, AuditRecord{
		Op:        AuditOpWithdraw,
		Initiator: a.identity,
		Currency:  currency.ID,
		Amount:    amount,
		Result:    AuditResultOf(outcome),
	})
	return outcome
}

// Deposit adds amount of currency to the account.
func (a *Account) Deposit(ctx context.Context, currency Currency, amount decimal.Decimal) Outcome {
	outcome := a.transact(ctx, AuditOpDeposit, currency, amount)

	a.record(ctx, AuditRecord{
		Op:        AuditOpDeposit,
		Initiator: a.identity,
		Currency:  currency.ID,
		Amount:    amount,
		Result:    AuditResultOf(outcome),
	})
	return outcome
}

// Pay withdraws amount from this account and, only if accepted,
// deposits it to the receiver. A deposit leg failing after a
// successful withdraw is not refunded automatically; the audit record
// keeps both leg results so the case can be reconciled.
func (a *Account) Pay(ctx context.Context, receiver *Account, currency Currency, amount decimal.Decimal) Outcome {
	withdrawOutcome := a.transact(ctx, AuditOpWithdraw, currency, amount)

	outcome := OutcomeDeclined
	depositResult := AuditNotExecuted
	if withdrawOutcome.Accepted() {
		depositOutcome := receiver.transact(ctx, AuditOpDeposit, currency, amount)
		depositResult = AuditResultOf(depositOutcome)
		outcome = depositOutcome
	} else {
		outcome = withdrawOutcome
	}

	receiverIdentity := receiver.identity
	a.record(ctx, AuditRecord{
		Op:             AuditOpPay,
		Initiator:      a.identity,
		Receiver:       &receiverIdentity,
		Currency:       currency.ID,
		Amount:         amount,
		Result:         AuditResultOf(outcome),
		WithdrawResult: AuditResultOf(withdrawOutcome),
		DepositResult:  depositResult,
	})
	return outcome
}

// transact runs one handler invocation under the account lock.
func (a *Account) transact(ctx context.Context, op AuditOp, currency Currency, amount decimal.Decimal) Outcome {
	amount = currency.Clamp(amount)
	if amount.IsNegative() || !a.limits.allows(amount) {
		a.log.Info().
			Str("account", a.identity.String()).
			Str("currency", currency.ID).
			Str("amount", amount.String()).
			Str("op", string(op)).
			Msg("transaction amount out of bounds")
		return OutcomeDeclined
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	cell := a.data.Cell(currency)

	accepted, err := a.dispatch(ctx, op, cell, amount)
	if err != nil {
		a.log.Error().Err(err).
			Str("account", a.identity.String()).
			Str("currency", currency.ID).
			Str("op", string(op)).
			Msg("transaction handler failed")
		return OutcomeError
	}

	if accepted {
		a.log.Info().
			Str("account", a.identity.String()).
			Str("amount", currency.FormatAmount(amount)).
			Str("op", string(op)).
			Msg("transaction accepted")
		return OutcomeAccepted
	}

	a.log.Info().
		Str("account", a.identity.String()).
		Str("amount", currency.FormatAmount(amount)).
		Str("op", string(op)).
		Msg("transaction declined")
	return OutcomeDeclined
}

// dispatch routes the transaction by handler kind. Relay errors are
// returned for classification, never propagated as panics.
func (a *Account) dispatch(ctx context.Context, op AuditOp, cell *Storage, amount decimal.Decimal) (bool, error) {
	switch a.handler.Kind {
	case HandlerLocal:
		if op == AuditOpWithdraw {
			return cell.Withdraw(amount), nil
		}
		return cell.Deposit(amount), nil

	case HandlerRelay:
		remote, err := a.handler.Resolve(cell.Currency())
		if err != nil {
			return false, err
		}

		if a.handler.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.handler.Timeout)
			defer cancel()
		}

		if op == AuditOpWithdraw {
			return remote.HandleWithdraw(ctx, a, cell, amount)
		}
		return remote.HandleDeposit(ctx, a, cell, amount)

	default:
		return false, nil
	}
}

func (a *Account) record(ctx context.Context, rec AuditRecord) {
	rec.ID = ulid.Make().String()
	rec.Time = time.Now().UTC()
	a.audit.Record(ctx, rec)
}
