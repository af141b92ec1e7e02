/*
Lock manager.

Record-level shared/exclusive locks under two-phase locking. Each record id
has a FIFO request queue; granted requests always form a prefix of the queue,
at most one granted exclusive exists at a time, and a granted exclusive never
coexists with a granted shared.

Deadlock is avoided with the wound-wait ordering rather than cycle detection:
every queue remembers its oldest transaction, and an arriving transaction that
would have to wait behind an older one is aborted (wounded) on the spot. Waits
therefore only ever run from older to younger and cannot form a cycle. A
wounded transaction's later requests short-circuit because its state is
already ABORTED.

All queues share one mutex and one broadcast condition variable. The grant
predicates are scoped per record, so a per-record condition variable would
also work; with the coarse variable, every release wakes all waiters and each
re-checks its own queue.

When strict two-phase locking is enabled, unlock is refused (and the
transaction aborted) until the transaction has committed or aborted.
*/
package lock

import (
	"sync"

	"github.com/bufdb/bufdb/storage/tuple"
	"github.com/bufdb/bufdb/transaction"
	"github.com/bufdb/bufdb/transaction/txid"
)

// Mode is the lock mode of a request
type Mode int

const (
	// ModeShared is a read lock. shared requests are compatible with each other
	ModeShared Mode = iota
	// ModeExclusive is a write lock. exclusive requests are compatible with nothing
	ModeExclusive
)

// request is one transaction's position in a record's queue
type request struct {
	txnID   txid.TxID
	mode    Mode
	granted bool
}

// entry is the lock state of one record
type entry struct {
	// queue is FIFO. granted requests form a prefix
	queue []*request
	// exclusiveCount counts granted exclusive requests (0 or 1)
	exclusiveCount int
	// oldest is the smallest transaction id among the queue's requests
	oldest txid.TxID
}

// Manager is the lock manager
type Manager struct {
	mu   sync.Mutex
	cond *sync.Cond
	// strict2PL refuses unlock before commit/abort when enabled
	strict2PL bool
	table     map[tuple.RID]*entry
}

// NewManager initializes the lock manager
func NewManager(strict2PL bool) *Manager {
	m := &Manager{
		strict2PL: strict2PL,
		table:     make(map[tuple.RID]*entry),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// hasExclusive checks whether any exclusive request (granted or waiting) is queued
func (e *entry) hasExclusive() bool {
	for _, r := range e.queue {
		if r.mode == ModeExclusive {
			return true
		}
	}
	return false
}

// find returns the transaction's request in the queue
func (e *entry) find(id txid.TxID) *request {
	for _, r := range e.queue {
		if r.txnID == id {
			return r
		}
	}
	return nil
}

// recomputeOldest recomputes oldest as the minimum id among the queue's requests
func (e *entry) recomputeOldest() {
	e.oldest = e.queue[0].txnID
	for _, r := range e.queue[1:] {
		if r.txnID.IsOlder(e.oldest) {
			e.oldest = r.txnID
		}
	}
}

// enqueue appends the request, creating the entry on first use,
// and applies the wound-wait admission rule.
// returns nil when the transaction was wounded instead of admitted
func (m *Manager) enqueue(tx *transaction.Tx, rid tuple.RID, mode Mode) *request {
	e, ok := m.table[rid]
	if !ok {
		e = &entry{oldest: tx.ID()}
		m.table[rid] = e
	} else {
		// wound-wait: a transaction younger than the queue's oldest would wait
		// behind an older one, so it is wounded. a shared arrival only conflicts
		// when some exclusive request is queued
		conflicting := mode == ModeExclusive || e.hasExclusive()
		if conflicting && e.oldest.IsOlder(tx.ID()) {
			tx.SetState(transaction.StateAborted)
			return nil
		}
		if tx.ID().IsOlder(e.oldest) {
			e.oldest = tx.ID()
		}
	}
	r := &request{txnID: tx.ID(), mode: mode}
	e.queue = append(e.queue, r)
	return r
}

// LockShared acquires a shared lock on the record for the transaction.
// blocks until granted. returns false when the request is refused or the
// transaction is wounded
func (m *Manager) LockShared(tx *transaction.Tx, rid tuple.RID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.State() == transaction.StateAborted {
		return false
	}
	if tx.State() != transaction.StateGrowing {
		return false
	}
	if tx.HoldsSharedLock(rid) || tx.HoldsExclusiveLock(rid) {
		return false
	}

	r := m.enqueue(tx, rid, ModeShared)
	if r == nil {
		return false
	}

	// grant condition: everything ahead of this request is a granted shared request
	e := m.table[rid]
	for !m.sharedGrantable(e, r) {
		m.cond.Wait()
	}
	r.granted = true
	tx.AddSharedLock(rid)
	// other shared requests queued behind this one may now be admissible too
	m.cond.Broadcast()
	return true
}

// sharedGrantable checks whether every request ahead of r is a granted shared request
func (m *Manager) sharedGrantable(e *entry, r *request) bool {
	for _, cur := range e.queue {
		if cur == r {
			return true
		}
		if cur.mode != ModeShared || !cur.granted {
			return false
		}
	}
	return false
}

// LockExclusive acquires an exclusive lock on the record for the transaction.
// blocks until granted. returns false when the request is refused or the
// transaction is wounded
func (m *Manager) LockExclusive(tx *transaction.Tx, rid tuple.RID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.State() == transaction.StateAborted {
		return false
	}
	if tx.State() != transaction.StateGrowing {
		return false
	}
	if tx.HoldsSharedLock(rid) || tx.HoldsExclusiveLock(rid) {
		return false
	}

	r := m.enqueue(tx, rid, ModeExclusive)
	if r == nil {
		return false
	}

	// grant condition: no granted request precedes this one
	e := m.table[rid]
	for !m.exclusiveGrantable(e, r) {
		m.cond.Wait()
	}
	r.granted = true
	e.exclusiveCount++
	tx.AddExclusiveLock(rid)
	// nothing else can be admitted while an exclusive is granted, so no broadcast
	return true
}

// exclusiveGrantable checks whether no granted request precedes r
func (m *Manager) exclusiveGrantable(e *entry, r *request) bool {
	for _, cur := range e.queue {
		if cur == r {
			return true
		}
		if cur.granted {
			return false
		}
	}
	return false
}

// LockUpgrade upgrades the transaction's shared lock on the record to exclusive.
// blocks until the transaction's request is the sole granted one
func (m *Manager) LockUpgrade(tx *transaction.Tx, rid tuple.RID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.State() == transaction.StateAborted {
		return false
	}
	if tx.State() != transaction.StateGrowing {
		return false
	}
	if !tx.HoldsSharedLock(rid) {
		return false
	}

	// grant condition: this request is at the head and nothing else is granted
	e := m.table[rid]
	for !m.upgradable(e, tx.ID()) {
		m.cond.Wait()
	}
	r := e.queue[0]
	r.mode = ModeExclusive
	e.exclusiveCount++
	tx.RemoveSharedLock(rid)
	tx.AddExclusiveLock(rid)
	return true
}

// upgradable checks whether the transaction's request is the queue head and
// no other request is granted
func (m *Manager) upgradable(e *entry, id txid.TxID) bool {
	for i, cur := range e.queue {
		if i == 0 && cur.txnID != id {
			return false
		}
		if i != 0 && cur.granted {
			return false
		}
	}
	return true
}

// Unlock releases the transaction's lock on the record.
// the first successful unlock moves a growing transaction to shrinking.
// under strict two-phase locking, unlocking before commit/abort aborts the
// transaction and the lock stays held
func (m *Manager) Unlock(tx *transaction.Tx, rid tuple.RID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unlock(tx, rid)
}

// unlock is Unlock without the latch. the caller must hold m.mu
func (m *Manager) unlock(tx *transaction.Tx, rid tuple.RID) bool {
	if !tx.HoldsSharedLock(rid) && !tx.HoldsExclusiveLock(rid) {
		return false
	}
	if m.strict2PL && !transaction.IsCompleted(tx.State()) {
		tx.SetState(transaction.StateAborted)
		return false
	}
	if tx.State() == transaction.StateGrowing {
		tx.SetState(transaction.StateShrinking)
	}

	e := m.table[rid]
	for i, r := range e.queue {
		if r.txnID != tx.ID() {
			continue
		}
		if r.mode == ModeShared {
			tx.RemoveSharedLock(rid)
		} else {
			tx.RemoveExclusiveLock(rid)
			if r.granted {
				e.exclusiveCount--
			}
		}
		e.queue = append(e.queue[:i], e.queue[i+1:]...)
		break
	}
	if len(e.queue) == 0 {
		delete(m.table, rid)
	} else {
		e.recomputeOldest()
	}
	m.cond.Broadcast()
	return true
}

// ReleaseAll releases every lock the transaction still holds.
// the transaction manager calls this after the state has reached
// COMMITTED/ABORTED, so strict mode admits the unlocks
func (m *Manager) ReleaseAll(tx *transaction.Tx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rid := range tx.HeldLocks() {
		m.unlock(tx, rid)
	}
}
