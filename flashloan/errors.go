package flashloan

import "errors"

// Loan failures surfaced to the initiating caller. Every one of them
// means the ledger was rolled back to its pre-loan state.
var (
	// ErrUnsupportedToken means the token has no fee schedule and is
	// not flash lendable.
	ErrUnsupportedToken = errors.New("flashloan: token not flash lendable")

	// ErrInvalidAmount means the requested amount was nil or negative.
	ErrInvalidAmount = errors.New("flashloan: invalid loan amount")

	// ErrExceedsMaxLoan means the requested amount exceeds the pool's
	// current lendable liquidity.
	ErrExceedsMaxLoan = errors.New("flashloan: amount exceeds max flash loan")

	// ErrReentrantCall means a loan was requested while another loan
	// was still in flight on this pool.
	ErrReentrantCall = errors.New("flashloan: reentrant call")

	// ErrUntrustedCaller means a receiver callback was invoked by
	// someone other than its trusted pool.
	ErrUntrustedCaller = errors.New("flashloan: untrusted caller")

	// ErrInsufficientFunds means the borrower cannot cover principal
	// plus fee and refused the loan rather than default on it.
	ErrInsufficientFunds = errors.New("flashloan: insufficient funds for repayment")

	// ErrRepaymentShortfall means the pool's post-callback collection
	// failed or under-collected.
	ErrRepaymentShortfall = errors.New("flashloan: repayment shortfall")

	// ErrInvariantViolation means the post-loan balance check failed
	// even though every transfer reported success. Unreachable under a
	// correct ledger.
	ErrInvariantViolation = errors.New("flashloan: pool balance invariant violated")
)
