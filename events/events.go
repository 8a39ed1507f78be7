// Package events provides the typed event log shared by the ledger and
// the flash loan pool. Events are the only durable trace of a completed
// loan, so the log supports truncation: a failed loan must leave no
// events behind.
package events

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a record appended to the log by the ledger or the pool.
type Event interface {
	Name() string
}

// TransferEvent is emitted by the ledger on every balance movement,
// including mints (From is the zero address).
type TransferEvent struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

func (TransferEvent) Name() string { return "Transfer" }

// FlashLoanEvent is emitted by the pool exactly once per successful
// loan, after repayment has been verified.
type FlashLoanEvent struct {
	Recipient common.Address
	Token     common.Address
	Amount    *big.Int
	Fee       *big.Int
}

func (FlashLoanEvent) Name() string { return "FlashLoan" }

// Log is an append-only event sequence with truncation support.
type Log struct {
	mu      sync.RWMutex
	entries []Event
}

// NewLog creates an empty event log.
func NewLog() *Log {
	return &Log{}
}

// Append records an event at the tail of the log.
func (l *Log) Append(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, ev)
}

// Len returns the number of events currently in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// TruncateTo discards every event appended after position n. Used by the
// ledger journal to unwind event emissions on rollback.
func (l *Log) TruncateTo(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n < len(l.entries) {
		l.entries = l.entries[:n]
	}
}

// Entries returns a copy of the current event sequence.
func (l *Log) Entries() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.entries))
	copy(out, l.entries)
	return out
}
