package domain

import "errors"

var (
	// Identity errors
	ErrInvalidIdentityMode = errors.New("invalid identity mode")

	// Currency errors
	ErrUnknownCurrency    = errors.New("unknown currency")
	ErrCurrencyRegistered = errors.New("currency already registered")

	// Remote errors
	ErrUnknownRemote    = errors.New("unknown remote")
	ErrRemoteRegistered = errors.New("remote already registered")
	ErrRemoteNotBound   = errors.New("no remote to relay transaction to")

	// Account errors
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidAmount   = errors.New("amount must not be negative")
)
