package services

import "errors"

var (
	ErrMarketNotFound     = errors.New("market not found")
	ErrMarketExists       = errors.New("market already exists")
	ErrMarketNotActive    = errors.New("market is not active")
	ErrMarketNotResolved  = errors.New("market is not resolved")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidTransition  = errors.New("invalid market status transition")
	ErrSettlementNotFound = errors.New("settlement not found")
	ErrConcurrentUpdate   = errors.New("market changed concurrently, retry")
)
