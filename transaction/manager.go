/*
Transaction manager.

Begin hands out monotonically increasing ids (the lock manager's wound-wait
policy treats a smaller id as the older transaction) and registers the
transaction as active. Commit and Abort move the transaction to its final
state BEFORE releasing locks: under strict two-phase locking the lock manager
refuses unlock until the state is final, so the ordering here is what makes
strict mode usable at all.

The lock manager is consumed through the LockReleaser interface so this
package stays independent of transaction/lock.
*/
package transaction

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/bufdb/bufdb/transaction/txid"
)

// LockReleaser releases every lock a transaction still holds
// *lock.Manager implements this
type LockReleaser interface {
	ReleaseAll(tx *Tx)
}

// Manager manages the set of active transactions
type Manager struct {
	tm *txid.Manager
	lr LockReleaser
	// active maps id to transaction for every transaction that has begun
	// and not yet committed or aborted
	active *xsync.MapOf[txid.TxID, *Tx]
}

// NewManager initializes the transaction manager
func NewManager(tm *txid.Manager, lr LockReleaser) *Manager {
	return &Manager{
		tm:     tm,
		lr:     lr,
		active: xsync.NewMapOf[txid.TxID, *Tx](),
	}
}

// Begin begins transaction
func (m *Manager) Begin() *Tx {
	tx := NewTransaction(m.tm.AllocateNewTxID())
	m.active.Store(tx.ID(), tx)
	return tx
}

// Get returns the active transaction with the id
func (m *Manager) Get(id txid.TxID) (*Tx, bool) {
	return m.active.Load(id)
}

// ActiveCount returns how many transactions are currently active
func (m *Manager) ActiveCount() int {
	return m.active.Size()
}

// Commit commits transaction
// a wounded transaction cannot commit; it is aborted instead
func (m *Manager) Commit(tx *Tx) bool {
	if tx.State() == StateAborted {
		m.Abort(tx)
		return false
	}
	tx.SetState(StateCommitted)
	m.lr.ReleaseAll(tx)
	m.active.Delete(tx.ID())
	return true
}

// Abort aborts transaction
func (m *Manager) Abort(tx *Tx) {
	tx.SetState(StateAborted)
	m.lr.ReleaseAll(tx)
	m.active.Delete(tx.ID())
}
