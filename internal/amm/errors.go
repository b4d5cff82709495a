package amm

import "errors"

// Error kinds surfaced by the engine. Callers classify with errors.Is; the
// wrapped message carries the detail.
var (
	// ErrInvalidArgument: non-positive amounts, out-of-range percentages,
	// unknown outcomes. Not retryable without changing the input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientLiquidity: the trade would drain (or over-drain) a
	// reserve, or is too small to produce any output.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrPriceCapExceeded: the resulting pool would price an outcome above
	// the protocol cap.
	ErrPriceCapExceeded = errors.New("price cap exceeded")

	// ErrSolvencyCheckFailed: collateral does not cover winning-side
	// obligations. Fatal for the market's resolution.
	ErrSolvencyCheckFailed = errors.New("solvency check failed")
)
