// Package passthrough provides the no-op borrower strategy: the funds
// are held for the duration of the loan and repaid untouched. Useful
// for rehearsing the loan lifecycle and as a template for real
// strategies.
package passthrough

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Strategy implements borrower.Strategy without touching the funds.
type Strategy struct {
	logger *zap.Logger
}

// New creates a pass-through strategy.
func New(logger *zap.Logger) *Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategy{logger: logger}
}

// Execute holds the borrowed funds and returns immediately, honoring
// context cancellation.
func (s *Strategy) Execute(ctx context.Context, token common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Debug("pass-through strategy executed",
		zap.String("token", token.Hex()),
		zap.String("amount", amount.String()))
	return nil
}
