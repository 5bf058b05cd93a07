package store

import (
	"sync"

	"github.com/efreitasn/tradesim/internal/domain"
)

// Ledger is a thread-safe, append-only record of executed transactions in
// execution order.
type Ledger struct {
	mu  sync.RWMutex
	txs []domain.Transaction
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		txs: make([]domain.Transaction, 0),
	}
}

// Append adds transactions to the end of the ledger.
func (l *Ledger) Append(txs ...domain.Transaction) {
	if len(txs) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.txs = append(l.txs, txs...)
}

// History returns a copy of every transaction in execution order.
func (l *Ledger) History() []domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.Transaction, len(l.txs))
	copy(result, l.txs)
	return result
}

// Len returns the number of recorded transactions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.txs)
}
