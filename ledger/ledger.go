// Package ledger implements the in-process asset custody service used
// by the flash loan pool and its borrowers. It tracks balances,
// allowances and total supply for any number of fungible tokens, and
// journals every mutation so a caller can snapshot the ledger and
// unwind back to it on failure.
package ledger

import (
	"errors"
	"math/big"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/tokentwister/flashpool/events"
)

var (
	ErrInvalidAmount         = errors.New("ledger: amount must be non-negative")
	ErrInsufficientBalance   = errors.New("ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
)

// Ledger is a multi-token balance and allowance store. All mutations
// are journaled; Snapshot and RevertToSnapshot give callers atomic
// all-or-nothing semantics across a sequence of transfers.
type Ledger struct {
	mu         sync.Mutex
	balances   map[uint64]*big.Int
	allowances map[uint64]*big.Int
	supplies   map[common.Address]*big.Int
	journal    *journal
	log        *events.Log
	logger     *zap.Logger
}

// New creates an empty ledger emitting Transfer events into log.
func New(log *events.Log, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if log == nil {
		log = events.NewLog()
	}
	return &Ledger{
		balances:   make(map[uint64]*big.Int),
		allowances: make(map[uint64]*big.Int),
		supplies:   make(map[common.Address]*big.Int),
		journal:    newJournal(),
		log:        log,
		logger:     logger,
	}
}

// Events returns the event log this ledger appends to.
func (l *Ledger) Events() *events.Log {
	return l.log
}

// balanceKey derives the storage slot for a (token, holder) pair.
func balanceKey(token, holder common.Address) uint64 {
	h := xxhash.New()
	h.Write(token.Bytes())
	h.Write(holder.Bytes())
	return h.Sum64()
}

// allowanceKey derives the storage slot for a (token, owner, spender) triple.
func allowanceKey(token, owner, spender common.Address) uint64 {
	h := xxhash.New()
	h.Write(token.Bytes())
	h.Write(owner.Bytes())
	h.Write(spender.Bytes())
	return h.Sum64()
}

// BalanceOf returns the holder's balance for token. Never nil.
func (l *Ledger) BalanceOf(holder, token common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.balances[balanceKey(token, holder)]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// TotalSupply returns the minted supply of token.
func (l *Ledger) TotalSupply(token common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sup, ok := l.supplies[token]; ok {
		return new(big.Int).Set(sup)
	}
	return new(big.Int)
}

// Allowance returns how much spender may currently pull from owner.
func (l *Ledger) Allowance(owner, spender, token common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.allowances[allowanceKey(token, owner, spender)]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// Mint credits amount of token to the recipient and grows total supply.
// Emits a Transfer from the zero address. Bootstrap and test path only;
// the loan flow never mints.
func (l *Ledger) Mint(to, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setBalance(balanceKey(token, to), new(big.Int).Add(l.balance(token, to), amount))
	l.setSupply(token, new(big.Int).Add(l.supply(token), amount))
	l.emit(events.TransferEvent{
		Token:  token,
		From:   common.Address{},
		To:     to,
		Amount: new(big.Int).Set(amount),
	})

	l.logger.Debug("minted tokens",
		zap.String("token", token.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()))
	return nil
}

// Transfer moves amount of token from one holder to another. Fails with
// ErrInsufficientBalance when the sender cannot cover it.
func (l *Ledger) Transfer(from, to, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(from, to, token, amount)
}

// Approve sets spender's allowance over owner's token balance. The
// allowance is overwritten, not accumulated.
func (l *Ledger) Approve(owner, spender, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.setAllowance(allowanceKey(token, owner, spender), new(big.Int).Set(amount))
	return nil
}

// TransferFrom moves amount of token from `from` to `to` on behalf of
// spender, consuming spender's allowance. Fails with
// ErrInsufficientAllowance before touching any balance.
func (l *Ledger) TransferFrom(spender, from, to, token common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey(token, from, spender)
	allowed := new(big.Int)
	if a, ok := l.allowances[key]; ok {
		allowed.Set(a)
	}
	if allowed.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.transfer(from, to, token, amount); err != nil {
		return err
	}
	l.setAllowance(key, new(big.Int).Sub(allowed, amount))
	return nil
}

// Snapshot marks the current journal position. A later
// RevertToSnapshot with the returned id unwinds every mutation and
// event emitted since.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.journal.length()
}

// RevertToSnapshot unwinds the ledger to a previous Snapshot id.
func (l *Ledger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal.revert(l, id)
}

// transfer applies a balance movement and emits its Transfer event.
// Caller holds the mutex.
func (l *Ledger) transfer(from, to, token common.Address, amount *big.Int) error {
	fromBal := l.balance(token, from)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}

	l.setBalance(balanceKey(token, from), new(big.Int).Sub(fromBal, amount))
	l.setBalance(balanceKey(token, to), new(big.Int).Add(l.balance(token, to), amount))
	l.emit(events.TransferEvent{
		Token:  token,
		From:   from,
		To:     to,
		Amount: new(big.Int).Set(amount),
	})

	l.logger.Debug("transfer",
		zap.String("token", token.Hex()),
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()))
	return nil
}

func (l *Ledger) balance(token, holder common.Address) *big.Int {
	if bal, ok := l.balances[balanceKey(token, holder)]; ok {
		return bal
	}
	return new(big.Int)
}

func (l *Ledger) supply(token common.Address) *big.Int {
	if sup, ok := l.supplies[token]; ok {
		return sup
	}
	return new(big.Int)
}

// setBalance writes a balance slot, journaling the previous value.
func (l *Ledger) setBalance(key uint64, value *big.Int) {
	prev, existed := l.balances[key]
	if existed {
		prev = new(big.Int).Set(prev)
	}
	l.journal.append(balanceChange{key: key, prev: prev, existed: existed})
	l.balances[key] = value
}

// setAllowance writes an allowance slot, journaling the previous value.
func (l *Ledger) setAllowance(key uint64, value *big.Int) {
	prev, existed := l.allowances[key]
	if existed {
		prev = new(big.Int).Set(prev)
	}
	l.journal.append(allowanceChange{key: key, prev: prev, existed: existed})
	l.allowances[key] = value
}

// setSupply writes a token's total supply, journaling the previous value.
func (l *Ledger) setSupply(token common.Address, value *big.Int) {
	prev, existed := l.supplies[token]
	if existed {
		prev = new(big.Int).Set(prev)
	}
	l.journal.append(supplyChange{token: token, prev: prev, existed: existed})
	l.supplies[token] = value
}

// emit appends an event, journaling the log position so rollback can
// truncate it away.
func (l *Ledger) emit(ev events.Event) {
	l.journal.append(eventAppend{priorLen: l.log.Len()})
	l.log.Append(ev)
}
