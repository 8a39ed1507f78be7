package borrower

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tokentwister/flashpool/events"
	"github.com/tokentwister/flashpool/flashloan"
	ledgerpkg "github.com/tokentwister/flashpool/ledger"
)

var (
	poolAddr     = common.HexToAddress("0x0000000000000000000000000000000000000F00")
	borrowerAddr = common.HexToAddress("0x0000000000000000000000000000000000000B01")
	fraxToken    = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	mallory      = common.HexToAddress("0x0000000000000000000000000000000000000BAD")
)

func toDecimals(units int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(units), scale)
}

type stubStrategy struct {
	err   error
	calls int
}

func (s *stubStrategy) Execute(ctx context.Context, token common.Address, amount *big.Int) error {
	s.calls++
	return s.err
}

func newTestStack(t *testing.T, strategy Strategy) (*Borrower, *flashloan.Pool, *ledgerpkg.Ledger) {
	t.Helper()
	log := events.NewLog()
	l := ledgerpkg.New(log, zaptest.NewLogger(t))
	pool, err := flashloan.NewPool(poolAddr, l, log, zaptest.NewLogger(t))
	require.NoError(t, err)
	pool.RegisterToken(flashloan.TokenConfig{Token: fraxToken, FeeBps: 9})
	require.NoError(t, l.Mint(poolAddr, fraxToken, toDecimals(100)))

	b, err := New(borrowerAddr, pool, l, strategy, zaptest.NewLogger(t))
	require.NoError(t, err)
	return b, pool, l
}

func TestFlashBorrow(t *testing.T) {
	strategy := &stubStrategy{}
	b, pool, l := newTestStack(t, strategy)

	amount := toDecimals(100)
	fee, err := pool.FlashFee(fraxToken, amount)
	require.NoError(t, err)
	require.NoError(t, l.Mint(borrowerAddr, fraxToken, fee))

	data, err := EncodePayload(false)
	require.NoError(t, err)

	record, err := b.FlashBorrow(context.Background(), fraxToken, amount, data)
	require.NoError(t, err)
	assert.Equal(t, 1, strategy.calls)
	assert.Equal(t, borrowerAddr, record.Recipient)
	assert.Equal(t, "0", l.BalanceOf(borrowerAddr, fraxToken).String())
}

func TestOnFlashLoanUntrustedCaller(t *testing.T) {
	b, _, _ := newTestStack(t, nil)

	err := b.OnFlashLoan(context.Background(), mallory, borrowerAddr, fraxToken,
		toDecimals(1), big.NewInt(0), nil)
	require.ErrorIs(t, err, flashloan.ErrUntrustedCaller)
}

func TestFlashBorrowAbortPayload(t *testing.T) {
	strategy := &stubStrategy{}
	b, _, l := newTestStack(t, strategy)

	data, err := EncodePayload(true)
	require.NoError(t, err)

	poolBefore := l.BalanceOf(poolAddr, fraxToken)

	_, err = b.FlashBorrow(context.Background(), fraxToken, big.NewInt(0), data)
	require.ErrorIs(t, err, ErrAbortRequested)
	assert.Zero(t, strategy.calls, "strategy must not run on an aborted callback")
	assert.Equal(t, poolBefore.String(), l.BalanceOf(poolAddr, fraxToken).String())
}

func TestFlashBorrowInsufficientFunds(t *testing.T) {
	// The fee is never funded and the strategy earns nothing, so the
	// borrower refuses the loan before the pool's collection attempt.
	b, _, l := newTestStack(t, nil)

	data, err := EncodePayload(false)
	require.NoError(t, err)

	_, err = b.FlashBorrow(context.Background(), fraxToken, toDecimals(100), data)
	require.ErrorIs(t, err, flashloan.ErrInsufficientFunds)
	assert.Equal(t, toDecimals(100).String(), l.BalanceOf(poolAddr, fraxToken).String())
	assert.Equal(t, "0", l.BalanceOf(borrowerAddr, fraxToken).String())
}

func TestFlashBorrowStrategyFailure(t *testing.T) {
	strategyErr := errors.New("arbitrage leg failed")
	strategy := &stubStrategy{err: strategyErr}
	b, _, l := newTestStack(t, strategy)

	data, err := EncodePayload(false)
	require.NoError(t, err)

	_, err = b.FlashBorrow(context.Background(), fraxToken, toDecimals(10), data)
	require.ErrorIs(t, err, strategyErr)
	assert.Equal(t, toDecimals(100).String(), l.BalanceOf(poolAddr, fraxToken).String())
}

func TestOnFlashLoanApprovesExactRepayment(t *testing.T) {
	b, pool, l := newTestStack(t, nil)

	amount := toDecimals(10)
	fee, err := pool.FlashFee(fraxToken, amount)
	require.NoError(t, err)
	require.NoError(t, l.Mint(borrowerAddr, fraxToken, new(big.Int).Add(amount, fee)))

	err = b.OnFlashLoan(context.Background(), poolAddr, borrowerAddr, fraxToken, amount, fee, nil)
	require.NoError(t, err)

	due := new(big.Int).Add(amount, fee)
	assert.Equal(t, due.String(), l.Allowance(borrowerAddr, poolAddr, fraxToken).String())
}

func TestPayloadCodec(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		for _, abort := range []bool{true, false} {
			data, err := EncodePayload(abort)
			require.NoError(t, err)
			require.Len(t, data, 32)

			got, err := DecodePayload(data)
			require.NoError(t, err)
			assert.Equal(t, abort, got)
		}
	})

	t.Run("empty means no abort", func(t *testing.T) {
		got, err := DecodePayload(nil)
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := DecodePayload([]byte{0x01, 0x02, 0x03})
		require.Error(t, err)
	})
}
