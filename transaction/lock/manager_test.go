package lock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"

	"github.com/pkg/errors"

	"github.com/bufdb/bufdb/storage/tuple"
	"github.com/bufdb/bufdb/transaction"
	"github.com/bufdb/bufdb/transaction/txid"
)

// waitSettle gives a competing goroutine time to reach its wait
const waitSettle = 50 * time.Millisecond

func testingRID() tuple.RID {
	return tuple.NewRID(1, 0)
}

func TestLockShared(t *testing.T) {
	t.Run("grants immediately on an empty queue", func(t *testing.T) {
		m := NewManager(false)
		tx := transaction.NewTransaction(1)
		rid := testingRID()

		assert.True(t, m.LockShared(tx, rid))
		assert.True(t, tx.HoldsSharedLock(rid))
	})
	t.Run("shared locks are compatible", func(t *testing.T) {
		m := NewManager(false)
		tx1 := transaction.NewTransaction(1)
		tx2 := transaction.NewTransaction(2)
		rid := testingRID()

		assert.True(t, m.LockShared(tx1, rid))
		assert.True(t, m.LockShared(tx2, rid))
		assert.True(t, tx1.HoldsSharedLock(rid))
		assert.True(t, tx2.HoldsSharedLock(rid))
	})
	t.Run("aborted transaction is refused", func(t *testing.T) {
		m := NewManager(false)
		tx := transaction.NewTransaction(1)
		tx.SetState(transaction.StateAborted)
		assert.False(t, m.LockShared(tx, testingRID()))
	})
	t.Run("shrinking transaction is refused", func(t *testing.T) {
		m := NewManager(false)
		tx := transaction.NewTransaction(1)
		tx.SetState(transaction.StateShrinking)
		assert.False(t, m.LockShared(tx, testingRID()))
	})
	t.Run("re-locking a held record is refused", func(t *testing.T) {
		m := NewManager(false)
		tx := transaction.NewTransaction(1)
		rid := testingRID()
		assert.True(t, m.LockShared(tx, rid))
		assert.False(t, m.LockShared(tx, rid))
	})
}

func TestWoundWait(t *testing.T) {
	t.Run("younger shared arrival behind exclusive is wounded", func(t *testing.T) {
		m := NewManager(false)
		t1 := transaction.NewTransaction(1)
		t2 := transaction.NewTransaction(2)
		rid := testingRID()

		assert.True(t, m.LockExclusive(t1, rid))

		assert.False(t, m.LockShared(t2, rid))
		assert.Equal(t, transaction.StateAborted, t2.State())
		assert.False(t, t2.HoldsSharedLock(rid))
	})
	t.Run("younger exclusive arrival is wounded unconditionally", func(t *testing.T) {
		m := NewManager(false)
		t1 := transaction.NewTransaction(1)
		t2 := transaction.NewTransaction(2)
		rid := testingRID()

		assert.True(t, m.LockShared(t1, rid))

		assert.False(t, m.LockExclusive(t2, rid))
		assert.Equal(t, transaction.StateAborted, t2.State())
	})
	t.Run("shared arrival without queued exclusive is admitted regardless of age", func(t *testing.T) {
		m := NewManager(false)
		t1 := transaction.NewTransaction(1)
		t2 := transaction.NewTransaction(2)
		rid := testingRID()

		assert.True(t, m.LockShared(t1, rid))
		// t2 is younger, but nothing exclusive is queued so no wait could occur
		assert.True(t, m.LockShared(t2, rid))
		assert.Equal(t, transaction.StateGrowing, t2.State())
	})
}

func TestOlderWaits(t *testing.T) {
	m := NewManager(false)
	t1 := transaction.NewTransaction(1)
	t2 := transaction.NewTransaction(2)
	rid := testingRID()

	assert.True(t, m.LockExclusive(t2, rid))

	granted := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		// t1 is older than the holder, so it waits instead of wounding
		if !m.LockShared(t1, rid) {
			return errors.New("older waiter was refused")
		}
		close(granted)
		return nil
	})

	select {
	case <-granted:
		assert.Fail(t, "t1 must block while t2 holds the exclusive lock")
	case <-time.After(waitSettle):
	}

	assert.True(t, m.Unlock(t2, rid))
	assert.Nil(t, g.Wait())
	assert.True(t, t1.HoldsSharedLock(rid))
	assert.Equal(t, transaction.StateGrowing, t1.State())
}

func TestUpgradeBlocksOnReaders(t *testing.T) {
	m := NewManager(false)
	t1 := transaction.NewTransaction(1)
	t2 := transaction.NewTransaction(2)
	rid := testingRID()

	assert.True(t, m.LockShared(t1, rid))
	assert.True(t, m.LockShared(t2, rid))

	upgraded := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		if !m.LockUpgrade(t1, rid) {
			return errors.New("upgrade was refused")
		}
		close(upgraded)
		return nil
	})

	select {
	case <-upgraded:
		assert.Fail(t, "upgrade must block while another shared lock is granted")
	case <-time.After(waitSettle):
	}

	assert.True(t, m.Unlock(t2, rid))
	assert.Nil(t, g.Wait())
	assert.False(t, t1.HoldsSharedLock(rid))
	assert.True(t, t1.HoldsExclusiveLock(rid))
}

func TestUpgradePreconditions(t *testing.T) {
	m := NewManager(false)
	tx := transaction.NewTransaction(1)
	rid := testingRID()

	// upgrade without a shared lock is refused
	assert.False(t, m.LockUpgrade(tx, rid))

	// upgrade of the sole reader succeeds immediately
	assert.True(t, m.LockShared(tx, rid))
	assert.True(t, m.LockUpgrade(tx, rid))
	assert.True(t, tx.HoldsExclusiveLock(rid))
}

func TestUnlock(t *testing.T) {
	t.Run("releasing a non-held record is refused", func(t *testing.T) {
		m := NewManager(false)
		tx := transaction.NewTransaction(1)
		assert.False(t, m.Unlock(tx, testingRID()))
	})
	t.Run("first unlock moves growing to shrinking", func(t *testing.T) {
		m := NewManager(false)
		tx := transaction.NewTransaction(1)
		rid := testingRID()

		assert.True(t, m.LockExclusive(tx, rid))
		assert.True(t, m.Unlock(tx, rid))
		assert.Equal(t, transaction.StateShrinking, tx.State())
		assert.False(t, tx.HoldsExclusiveLock(rid))
	})
	t.Run("unlock of the only holder empties the record's queue", func(t *testing.T) {
		m := NewManager(false)
		tx := transaction.NewTransaction(1)
		rid := testingRID()

		assert.True(t, m.LockExclusive(tx, rid))
		assert.True(t, m.Unlock(tx, rid))
		m.mu.Lock()
		_, ok := m.table[rid]
		m.mu.Unlock()
		assert.False(t, ok)
	})
	t.Run("oldest is recomputed after unlock", func(t *testing.T) {
		m := NewManager(false)
		t1 := transaction.NewTransaction(1)
		t3 := transaction.NewTransaction(3)
		rid := testingRID()

		assert.True(t, m.LockShared(t1, rid))
		assert.True(t, m.LockShared(t3, rid))
		assert.True(t, m.Unlock(t1, rid))

		m.mu.Lock()
		e := m.table[rid]
		oldest := e.oldest
		m.mu.Unlock()
		assert.Equal(t, txid.TxID(3), oldest)
	})
}

func TestStrict2PL(t *testing.T) {
	t.Run("early unlock aborts the transaction", func(t *testing.T) {
		m := NewManager(true)
		tx := transaction.NewTransaction(1)
		rid := testingRID()

		assert.True(t, m.LockExclusive(tx, rid))
		assert.False(t, m.Unlock(tx, rid))
		assert.Equal(t, transaction.StateAborted, tx.State())
		// the lock stays held until release after the final state
		assert.True(t, tx.HoldsExclusiveLock(rid))
	})
	t.Run("unlock after commit succeeds", func(t *testing.T) {
		m := NewManager(true)
		tx := transaction.NewTransaction(1)
		rid := testingRID()

		assert.True(t, m.LockExclusive(tx, rid))
		tx.SetState(transaction.StateCommitted)
		assert.True(t, m.Unlock(tx, rid))
		assert.False(t, tx.HoldsExclusiveLock(rid))
	})
}

func TestGrantedRequestsFormPrefix(t *testing.T) {
	m := NewManager(false)
	t1 := transaction.NewTransaction(1)
	t2 := transaction.NewTransaction(2)
	t3 := transaction.NewTransaction(3)
	rid := testingRID()

	assert.True(t, m.LockShared(t1, rid))
	assert.True(t, m.LockShared(t2, rid))
	assert.True(t, m.LockShared(t3, rid))

	m.mu.Lock()
	e := m.table[rid]
	granted := 0
	for _, r := range e.queue {
		if !r.granted {
			break
		}
		granted++
	}
	assert.Equal(t, len(e.queue), granted)
	assert.Equal(t, 0, e.exclusiveCount)
	assert.Equal(t, txid.TxID(1), e.oldest)
	m.mu.Unlock()
}

func TestExclusiveRoundTripLeavesTableEmpty(t *testing.T) {
	m := NewManager(false)
	tx := transaction.NewTransaction(1)
	rid := testingRID()

	assert.True(t, m.LockExclusive(tx, rid))
	assert.True(t, m.Unlock(tx, rid))

	m.mu.Lock()
	assert.Empty(t, m.table)
	m.mu.Unlock()
}

func TestReleaseAll(t *testing.T) {
	m := NewManager(true)
	tm := transaction.NewManager(txid.NewManager(), m)

	tx := tm.Begin()
	r1 := tuple.NewRID(1, 0)
	r2 := tuple.NewRID(2, 0)
	assert.True(t, m.LockShared(tx, r1))
	assert.True(t, m.LockExclusive(tx, r2))

	// commit reaches the final state first, so strict mode admits the release
	assert.True(t, tm.Commit(tx))
	assert.Empty(t, tx.HeldLocks())

	m.mu.Lock()
	assert.Empty(t, m.table)
	m.mu.Unlock()
}

func TestWoundedTransactionRequestsShortCircuit(t *testing.T) {
	m := NewManager(false)
	t1 := transaction.NewTransaction(1)
	t2 := transaction.NewTransaction(2)
	r1 := tuple.NewRID(1, 0)
	r2 := tuple.NewRID(2, 0)

	assert.True(t, m.LockExclusive(t1, r1))
	assert.False(t, m.LockShared(t2, r1))
	assert.Equal(t, transaction.StateAborted, t2.State())

	// every later request of the wounded transaction fails fast
	assert.False(t, m.LockShared(t2, r2))
	assert.False(t, m.LockExclusive(t2, r2))
	assert.False(t, m.LockUpgrade(t2, r2))
}
