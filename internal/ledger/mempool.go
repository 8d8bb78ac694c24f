package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// Mempool holds transactions accepted but not yet committed into a block.
// Submission and draining are mutually exclusive: a transaction is either
// pending or drained, never both.
type Mempool struct {
	mu      sync.Mutex
	pending []Transaction
}

func NewMempool() *Mempool {
	return &Mempool{}
}

// Submit validates the transaction, assigns it an id if it has none, and
// appends it to the pool. Returns the transaction id.
func (m *Mempool) Submit(tx Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, tx)
	return tx.ID, nil
}

// DrainAll atomically removes and returns every pending transaction.
func (m *Mempool) DrainAll() []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	drained := m.pending
	m.pending = nil
	return drained
}

// Requeue puts previously drained transactions back at the front of the
// pool, preserving their original order. Used when a mining commit fails so
// no transaction is lost.
func (m *Mempool) Requeue(txs []Transaction) {
	if len(txs) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(append([]Transaction{}, txs...), m.pending...)
}

// RemoveByID drops every pending transaction whose id is in ids. Called
// after consensus adopts a chain that already includes local transactions.
func (m *Mempool) RemoveByID(ids map[string]struct{}) {
	if len(ids) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.pending[:0]
	for _, tx := range m.pending {
		if _, ok := ids[tx.ID]; !ok {
			kept = append(kept, tx)
		}
	}
	m.pending = kept
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Pending returns a snapshot of the pending transactions in FIFO order.
func (m *Mempool) Pending() []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Transaction, len(m.pending))
	copy(out, m.pending)
	return out
}
