package dto

import "github.com/shopspring/decimal"

// ErrorResponse is the error envelope for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// AccountResponse is one account's balances.
type AccountResponse struct {
	UUID     string            `json:"uuid"`
	Name     string            `json:"name"`
	Balances map[string]string `json:"balances"`
}

// CurrencyResponse describes one registered currency.
type CurrencyResponse struct {
	ID           string `json:"id"`
	NameSingular string `json:"name_singular"`
	NamePlural   string `json:"name_plural"`
	AllowDecimal bool   `json:"allow_decimal"`
	Remote       string `json:"remote,omitempty"`
}

// WealthyEntry is one row of a wealth ranking.
type WealthyEntry struct {
	Rank      int    `json:"rank"`
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	Amount    string `json:"amount"`
	Formatted string `json:"formatted"`
}

// AuditEntry is one transaction log book record.
type AuditEntry struct {
	ID             string          `json:"id"`
	Time           string          `json:"time"`
	Op             string          `json:"op"`
	Initiator      string          `json:"initiator"`
	Receiver       string          `json:"receiver,omitempty"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	Result         string          `json:"result"`
	WithdrawResult string          `json:"withdraw_result,omitempty"`
	DepositResult  string          `json:"deposit_result,omitempty"`
}
