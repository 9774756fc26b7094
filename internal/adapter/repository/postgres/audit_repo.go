// Package postgres holds the PostgreSQL-backed adapters: the
// transaction log book.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/playerbank/internal/domain"
)

// DB is the slice of pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// AuditRepository persists the transaction log book. It implements
// domain.AuditSink: a record that cannot be written is logged and
// dropped, never surfaced to the transaction path.
type AuditRepository struct {
	db  DB
	log zerolog.Logger
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db DB, log zerolog.Logger) *AuditRepository {
	return &AuditRepository{db: db, log: log}
}

// Record inserts one log book entry.
func (r *AuditRepository) Record(ctx context.Context, rec domain.AuditRecord) {
	var receiverUUID, receiverName *string
	if rec.Receiver != nil {
		u, n := rec.Receiver.UUID.String(), rec.Receiver.Name
		receiverUUID, receiverName = &u, &n
	}

	query := `
		INSERT INTO audit_logs (
			id, recorded_at, op,
			initiator_uuid, initiator_name,
			receiver_uuid, receiver_name,
			currency, amount, result, withdraw_result, deposit_result
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(ctx, query,
		rec.ID,
		rec.Time,
		string(rec.Op),
		rec.Initiator.UUID.String(),
		rec.Initiator.Name,
		receiverUUID,
		receiverName,
		rec.Currency,
		rec.Amount,
		string(rec.Result),
		nullableResult(rec.WithdrawResult),
		nullableResult(rec.DepositResult),
	)
	if err != nil {
		r.log.Error().Err(err).
			Str("record", rec.ID).
			Str("op", string(rec.Op)).
			Msg("audit record dropped")
	}
}

// Recent returns the latest log book entries, newest first.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	query := `
		SELECT id, recorded_at, op,
		       initiator_uuid, initiator_name,
		       receiver_uuid, receiver_name,
		       currency, amount, result, withdraw_result, deposit_result
		FROM audit_logs
		ORDER BY recorded_at DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var (
			rec                        domain.AuditRecord
			op, result                 string
			initiatorUUID              string
			receiverUUID, receiverName *string
			withdraw, deposit          *string
			amount                     decimal.Decimal
		)

		err := rows.Scan(
			&rec.ID,
			&rec.Time,
			&op,
			&initiatorUUID,
			&rec.Initiator.Name,
			&receiverUUID,
			&receiverName,
			&rec.Currency,
			&amount,
			&result,
			&withdraw,
			&deposit,
		)
		if err != nil {
			return nil, err
		}

		rec.Op = domain.AuditOp(op)
		rec.Result = domain.AuditResult(result)
		rec.Amount = amount
		if err := rec.Initiator.UUID.UnmarshalText([]byte(initiatorUUID)); err != nil {
			r.log.Warn().Str("record", rec.ID).Msg("skipping record with malformed initiator uuid")
			continue
		}
		if receiverUUID != nil && receiverName != nil {
			var receiver domain.Identity
			if err := receiver.UUID.UnmarshalText([]byte(*receiverUUID)); err == nil {
				receiver.Name = *receiverName
				rec.Receiver = &receiver
			}
		}
		if withdraw != nil {
			rec.WithdrawResult = domain.AuditResult(*withdraw)
		}
		if deposit != nil {
			rec.DepositResult = domain.AuditResult(*deposit)
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

// nullableResult maps the zero value to NULL so single-leg records
// carry no leg columns.
func nullableResult(r domain.AuditResult) *string {
	if r == "" {
		return nil
	}
	s := string(r)
	return &s
}
