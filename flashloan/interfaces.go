package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the asset custody service the pool settles against. The
// pool only moves value through it, never manipulates balances
// directly; snapshots give the pool its all-or-nothing guarantee.
type Ledger interface {
	BalanceOf(holder, token common.Address) *big.Int
	Allowance(owner, spender, token common.Address) *big.Int
	Transfer(from, to, token common.Address, amount *big.Int) error
	TransferFrom(spender, from, to, token common.Address, amount *big.Int) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// Receiver is the borrower side of the loan protocol. OnFlashLoan is
// invoked synchronously by the pool after the principal has been
// transferred; before returning, the receiver must leave the pool able
// to pull amount+fee back via allowance. Any error aborts the loan and
// unwinds every transfer made since initiation.
type Receiver interface {
	Address() common.Address
	OnFlashLoan(ctx context.Context, caller, initiator common.Address, token common.Address, amount, fee *big.Int, data []byte) error
}

// Lender is the read-and-borrow surface borrowers see. *Pool implements it.
type Lender interface {
	MaxFlashLoan(token common.Address) *big.Int
	FlashFee(token common.Address, amount *big.Int) (*big.Int, error)
	FlashLoan(ctx context.Context, receiver Receiver, token common.Address, amount *big.Int, data []byte) (*CompletionRecord, error)
}
