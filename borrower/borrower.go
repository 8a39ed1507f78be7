// Package borrower implements the receiving side of the flash loan
// protocol: it accepts the pool's callback, runs a strategy with the
// borrowed funds, and authorizes repayment before returning control.
package borrower

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/tokentwister/flashpool/flashloan"
)

// ErrAbortRequested is returned when the loan payload carries the abort
// flag, deliberately failing the callback so the pool unwinds the loan.
var ErrAbortRequested = errors.New("borrower: callback failure requested by payload")

// Strategy is the hook executed with the borrowed funds while the loan
// is live. Proceeds must land on the borrower's own ledger account; the
// borrower repays from its balance after the strategy returns.
type Strategy interface {
	Execute(ctx context.Context, token common.Address, amount *big.Int) error
}

// ledger is the slice of the asset ledger the borrower needs.
type ledger interface {
	BalanceOf(holder, token common.Address) *big.Int
	Approve(owner, spender, token common.Address, amount *big.Int) error
}

// Borrower receives flash loans from a single trusted pool.
type Borrower struct {
	address  common.Address
	poolAddr common.Address
	pool     flashloan.Lender
	ledger   ledger
	strategy Strategy
	logger   *zap.Logger
}

// New creates a borrower bound to its trusted pool. A nil strategy
// means the borrowed funds are simply held and repaid.
func New(address common.Address, pool *flashloan.Pool, l ledger, strategy Strategy, logger *zap.Logger) (*Borrower, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Borrower{
		address:  address,
		poolAddr: pool.Address(),
		pool:     pool,
		ledger:   l,
		strategy: strategy,
		logger:   logger,
	}, nil
}

// Address returns the borrower's ledger account.
func (b *Borrower) Address() common.Address {
	return b.address
}

// FlashBorrow initiates a loan against the trusted pool, passing data
// through to the callback unmodified.
func (b *Borrower) FlashBorrow(ctx context.Context, token common.Address, amount *big.Int, data []byte) (*flashloan.CompletionRecord, error) {
	return b.pool.FlashLoan(ctx, b, token, amount, data)
}

// OnFlashLoan is the pool's synchronous callback. It rejects callers
// other than the trusted pool, decodes the payload, runs the strategy,
// and grants the pool an allowance covering principal plus fee. Any
// error returned here propagates to the pool and unwinds the loan.
func (b *Borrower) OnFlashLoan(ctx context.Context, caller, initiator common.Address, token common.Address, amount, fee *big.Int, data []byte) error {
	if caller != b.poolAddr {
		return fmt.Errorf("%w: callback from %s, trusted pool is %s",
			flashloan.ErrUntrustedCaller, caller.Hex(), b.poolAddr.Hex())
	}

	abort, err := DecodePayload(data)
	if err != nil {
		return fmt.Errorf("failed to decode loan payload: %w", err)
	}
	if abort {
		return ErrAbortRequested
	}

	if b.strategy != nil {
		if err := b.strategy.Execute(ctx, token, amount); err != nil {
			return fmt.Errorf("strategy failed: %w", err)
		}
	}

	repaymentDue := new(big.Int).Add(amount, fee)

	// Fail fast on a loan the borrower cannot honor; the pool's own
	// collection check would catch it, but with a less precise error.
	if b.ledger.BalanceOf(b.address, token).Cmp(repaymentDue) < 0 {
		return fmt.Errorf("%w: need %s of %s",
			flashloan.ErrInsufficientFunds, repaymentDue.String(), token.Hex())
	}

	if err := b.ledger.Approve(b.address, b.poolAddr, token, repaymentDue); err != nil {
		return fmt.Errorf("failed to authorize repayment: %w", err)
	}

	b.logger.Debug("repayment authorized",
		zap.String("token", token.Hex()),
		zap.String("initiator", initiator.Hex()),
		zap.String("due", repaymentDue.String()))
	return nil
}
