package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// journalEntry knows how to undo a single ledger mutation.
type journalEntry interface {
	undo(l *Ledger)
}

// journal is the ordered undo log backing Snapshot/RevertToSnapshot.
// Entries are replayed in reverse so later writes to the same slot are
// unwound before earlier ones.
type journal struct {
	entries []journalEntry
}

func newJournal() *journal {
	return &journal{}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) length() int {
	return len(j.entries)
}

func (j *journal) revert(l *Ledger, snapshot int) {
	if snapshot < 0 {
		snapshot = 0
	}
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i].undo(l)
	}
	if snapshot < len(j.entries) {
		j.entries = j.entries[:snapshot]
	}
}

type balanceChange struct {
	key     uint64
	prev    *big.Int
	existed bool
}

func (c balanceChange) undo(l *Ledger) {
	if c.existed {
		l.balances[c.key] = c.prev
	} else {
		delete(l.balances, c.key)
	}
}

type allowanceChange struct {
	key     uint64
	prev    *big.Int
	existed bool
}

func (c allowanceChange) undo(l *Ledger) {
	if c.existed {
		l.allowances[c.key] = c.prev
	} else {
		delete(l.allowances, c.key)
	}
}

type supplyChange struct {
	token   common.Address
	prev    *big.Int
	existed bool
}

func (c supplyChange) undo(l *Ledger) {
	if c.existed {
		l.supplies[c.token] = c.prev
	} else {
		delete(l.supplies, c.token)
	}
}

type eventAppend struct {
	priorLen int
}

func (c eventAppend) undo(l *Ledger) {
	l.log.TruncateTo(c.priorLen)
}
