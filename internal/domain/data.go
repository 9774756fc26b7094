package domain

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Data is an account's ledger: one balance cell per currency. It is
// owned by exactly one Account. Join is locked because multi-remote
// fetch fan-outs can complete concurrently and merge into the same
// instance.
type Data struct {
	mu    sync.Mutex
	cells map[string]*Storage
}

// NewData returns an empty ledger.
func NewData() *Data {
	return &Data{cells: make(map[string]*Storage)}
}

// CurrencyResolver maps a currency identifier to a registered
// currency. Unregistered identifiers are skipped during decode.
type CurrencyResolver func(id string) (Currency, bool)

// DataFromBalances builds a ledger from a currency-id to balance map,
// keeping only currencies accepted by keep. A nil keep keeps all.
func DataFromBalances(balances map[string]decimal.Decimal, resolve CurrencyResolver, keep func(Currency) bool) *Data {
	data := NewData()
	for id, amount := range balances {
		currency, ok := resolve(id)
		if !ok {
			continue
		}
		if keep != nil && !keep(currency) {
			continue
		}
		data.cells[currency.ID] = currency.NewStorage().Set(amount)
	}
	return data
}

// Cell returns the balance cell for a currency, creating an empty one
// on first touch.
func (d *Data) Cell(currency Currency) *Storage {
	d.mu.Lock()
	defer d.mu.Unlock()
	cell, ok := d.cells[currency.ID]
	if !ok {
		cell = currency.NewStorage()
		d.cells[currency.ID] = cell
	}
	return cell
}

// Amount returns the cached balance for a currency, zero if untouched.
func (d *Data) Amount(currency Currency) decimal.Decimal {
	d.mu.Lock()
	cell, ok := d.cells[currency.ID]
	d.mu.Unlock()
	if !ok {
		return decimal.Zero
	}
	return cell.Amount()
}

// Join merges the other ledger's cells into this one and destroys the
// source. Entries already present are overwritten by the source.
func (d *Data) Join(other *Data) {
	if other == nil || other == d {
		return
	}

	other.mu.Lock()
	cells := other.cells
	other.cells = make(map[string]*Storage)
	other.mu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	for id, cell := range cells {
		d.cells[id] = cell
	}
}

// Destroy clears all cells.
func (d *Data) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cells = make(map[string]*Storage)
}

// Snapshot returns the ledger as a currency-id to balance map,
// keeping only currencies accepted by keep. A nil keep keeps all.
func (d *Data) Snapshot(keep func(Currency) bool) map[string]decimal.Decimal {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]decimal.Decimal, len(d.cells))
	for id, cell := range d.cells {
		if keep != nil && !keep(cell.Currency()) {
			continue
		}
		out[id] = cell.Amount()
	}
	return out
}
