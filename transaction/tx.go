package transaction

import (
	"sync"
	"sync/atomic"

	"github.com/bufdb/bufdb/storage/tuple"
	"github.com/bufdb/bufdb/transaction/txid"
)

// Tx is a transaction
//
// the state is atomic because a wound sets ABORTED from the lock manager's
// goroutine while the owner may be inspecting it. the held-lock sets are
// guarded by the transaction's own mutex; the lock manager mutates them while
// holding its table mutex, the owner reads them on commit/abort
type Tx struct {
	id    txid.TxID
	state uint32

	mu sync.Mutex
	// shared holds the record ids this transaction has shared locks on
	shared map[tuple.RID]struct{}
	// exclusive holds the record ids this transaction has exclusive locks on
	exclusive map[tuple.RID]struct{}
}

// NewTransaction initializes transaction in the growing phase
func NewTransaction(id txid.TxID) *Tx {
	return &Tx{
		id:        id,
		state:     uint32(StateGrowing),
		shared:    make(map[tuple.RID]struct{}),
		exclusive: make(map[tuple.RID]struct{}),
	}
}

// ID returns transaction id
func (tx *Tx) ID() txid.TxID {
	return tx.id
}

// State returns transaction state
func (tx *Tx) State() State {
	return State(atomic.LoadUint32(&tx.state))
}

// SetState sets transaction state
func (tx *Tx) SetState(state State) {
	atomic.StoreUint32(&tx.state, uint32(state))
}

// HoldsSharedLock checks whether the transaction holds a shared lock on the record
func (tx *Tx) HoldsSharedLock(rid tuple.RID) bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	_, ok := tx.shared[rid]
	return ok
}

// HoldsExclusiveLock checks whether the transaction holds an exclusive lock on the record
func (tx *Tx) HoldsExclusiveLock(rid tuple.RID) bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	_, ok := tx.exclusive[rid]
	return ok
}

// AddSharedLock records the granted shared lock
func (tx *Tx) AddSharedLock(rid tuple.RID) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.shared[rid] = struct{}{}
}

// AddExclusiveLock records the granted exclusive lock
func (tx *Tx) AddExclusiveLock(rid tuple.RID) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.exclusive[rid] = struct{}{}
}

// RemoveSharedLock forgets the shared lock
func (tx *Tx) RemoveSharedLock(rid tuple.RID) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	delete(tx.shared, rid)
}

// RemoveExclusiveLock forgets the exclusive lock
func (tx *Tx) RemoveExclusiveLock(rid tuple.RID) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	delete(tx.exclusive, rid)
}

// HeldLocks snapshots every record id the transaction holds a lock on
func (tx *Tx) HeldLocks() []tuple.RID {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	rids := make([]tuple.RID, 0, len(tx.shared)+len(tx.exclusive))
	for rid := range tx.shared {
		rids = append(rids, rid)
	}
	for rid := range tx.exclusive {
		rids = append(rids, rid)
	}
	return rids
}
