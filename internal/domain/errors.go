package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidOrder        = errors.New("invalid order parameters")
	ErrTransient           = errors.New("transient venue error")
	ErrLockHeld            = errors.New("lock already held")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrOverClose           = errors.New("close quantity exceeds position")
	ErrNoQuote             = errors.New("no quote available")
	ErrMalformedMarket     = errors.New("malformed market record")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidPair         = errors.New("invalid pair")
	ErrRiskLimit           = errors.New("risk limit exceeded")
)
