package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iho/playerbank/internal/adapter/http/dto"
	"github.com/iho/playerbank/internal/bank"
	"github.com/iho/playerbank/internal/domain"
)

// AuditReader reads back the transaction log book.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]domain.AuditRecord, error)
}

// BankHandler serves the read-side HTTP API over the account
// directory. All transaction traffic stays on the sync protocol; this
// surface exists for dashboards and operators.
type BankHandler struct {
	dir   *bank.Directory
	audit AuditReader
	log   zerolog.Logger
}

// NewBankHandler creates a new BankHandler. audit may be nil.
func NewBankHandler(dir *bank.Directory, audit AuditReader, log zerolog.Logger) *BankHandler {
	return &BankHandler{dir: dir, audit: audit, log: log}
}

// GetAccount returns the balances for a player addressed by uuid or
// name.
func (h *BankHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	identity := parseIdentity(chi.URLParam(r, "player"))

	account, err := h.dir.RetrieveAccount(r.Context(), identity)
	if err != nil {
		writeError(w, mapDomainError(err), "account retrieval failed", err.Error())
		return
	}

	balances := make(map[string]string)
	for id, amount := range account.Data().Snapshot(nil) {
		balances[id] = amount.String()
	}

	resolved := account.Identity()
	writeJSON(w, http.StatusOK, dto.AccountResponse{
		UUID:     resolved.UUID.String(),
		Name:     resolved.Name,
		Balances: balances,
	})
}

// ListCurrencies returns every registered currency.
func (h *BankHandler) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	currencies := h.dir.Currencies().All()

	out := make([]dto.CurrencyResponse, 0, len(currencies))
	for _, c := range currencies {
		out = append(out, dto.CurrencyResponse{
			ID:           c.ID,
			NameSingular: c.NameSingular,
			NamePlural:   c.NamePlural,
			AllowDecimal: c.AllowDecimal,
			Remote:       c.RemoteID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetWealthy returns the wealth ranking for a currency.
func (h *BankHandler) GetWealthy(w http.ResponseWriter, r *http.Request) {
	currencyID := chi.URLParam(r, "currency")
	currency, ok := h.dir.Currencies().Get(currencyID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown currency", currencyID)
		return
	}

	accounts, err := h.dir.RetrieveWealthyAccounts(r.Context(), currency)
	if err != nil {
		writeError(w, mapDomainError(err), "wealth ranking unavailable", err.Error())
		return
	}

	entries := make([]dto.WealthyEntry, 0, len(accounts))
	for i, account := range accounts {
		identity := account.Identity()
		amount := account.Status(currency)
		entries = append(entries, dto.WealthyEntry{
			Rank:      i + 1,
			UUID:      identity.UUID.String(),
			Name:      identity.Name,
			Amount:    amount.String(),
			Formatted: currency.FormatAmount(amount),
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetAuditLog returns the latest transaction log book entries.
func (h *BankHandler) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit log not configured", "")
		return
	}

	limit := parseIntQuery(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	records, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit log unavailable", err.Error())
		return
	}

	entries := make([]dto.AuditEntry, 0, len(records))
	for _, rec := range records {
		entry := dto.AuditEntry{
			ID:             rec.ID,
			Time:           rec.Time.Format(time.RFC3339),
			Op:             string(rec.Op),
			Initiator:      rec.Initiator.String(),
			Currency:       rec.Currency,
			Amount:         rec.Amount,
			Result:         string(rec.Result),
			WithdrawResult: string(rec.WithdrawResult),
			DepositResult:  string(rec.DepositResult),
		}
		if rec.Receiver != nil {
			entry.Receiver = rec.Receiver.String()
		}
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, entries)
}

// InvalidateCache drops every cached account.
func (h *BankHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.dir.Invalidate()
	h.log.Info().Msg("account cache invalidated via http")
	w.WriteHeader(http.StatusNoContent)
}

// parseIdentity reads a path token as a uuid when it parses as one,
// otherwise as a player name.
func parseIdentity(token string) domain.Identity {
	if id, err := uuid.Parse(token); err == nil {
		return domain.Identity{UUID: id}
	}
	return domain.Identity{Name: token}
}
