package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenConfig declares a lendable token and its fee schedule.
type TokenConfig struct {
	Token  common.Address
	FeeBps uint16 // In basis points (1 = 0.01%)
}

// LoanTerms are derived per request and never stored beyond the call.
type LoanTerms struct {
	Principal    *big.Int
	Fee          *big.Int
	RepaymentDue *big.Int
}

// CompletionRecord is the durable trace of one successful loan. It
// mirrors the FlashLoan event the pool emits.
type CompletionRecord struct {
	ID        uint64
	Recipient common.Address
	Token     common.Address
	Amount    *big.Int
	Fee       *big.Int
}
