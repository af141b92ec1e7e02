package txid

import "sync/atomic"

// Manager allocates transaction ids
type Manager struct {
	// next is the id handed out by the next allocation
	next uint64
}

// NewManager initializes the transaction id manager
func NewManager() *Manager {
	return &Manager{next: uint64(FirstTxID)}
}

// AllocateNewTxID allocates the next transaction id
func (m *Manager) AllocateNewTxID() TxID {
	return TxID(atomic.AddUint64(&m.next, 1) - 1)
}
