package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrLockHeld            = errors.New("lock already held")
	ErrReentrancyDenied    = errors.New("execution already in progress")
	ErrRegistryFull        = errors.New("venue registry full")
	ErrVenueIndex          = errors.New("venue index out of range")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientAllow   = errors.New("insufficient allowance")
	ErrNoPair              = errors.New("pair not listed")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrOutOfGas            = errors.New("out of gas")
	ErrInvalidAmount       = errors.New("invalid amount")
)
