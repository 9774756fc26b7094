package domain

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Storage is a single mutable balance cell. The cell itself only
// guards against torn reads and writes; multi-step transactions are
// serialized by the owning Account's lock.
type Storage struct {
	mu       sync.Mutex
	currency Currency
	value    decimal.Decimal
}

// Currency returns the currency this cell holds.
func (s *Storage) Currency() Currency {
	return s.currency
}

// Amount returns the current balance.
func (s *Storage) Amount() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set overwrites the balance and returns the cell.
func (s *Storage) Set(v decimal.Decimal) *Storage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	return s
}

// Deposit adds to the balance. Always succeeds.
func (s *Storage) Deposit(v decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = s.value.Add(v)
	return true
}

// Withdraw subtracts from the balance iff the result stays at or
// above zero. Leaves the cell unchanged otherwise.
func (s *Storage) Withdraw(v decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	modified := s.value.Sub(v)
	if modified.IsNegative() {
		return false
	}
	s.value = modified
	return true
}
