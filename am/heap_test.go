package am

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bufdb/bufdb/transaction"
)

func TestInsertAndFetch(t *testing.T) {
	m, tm, err := TestingNewManager()
	assert.Nil(t, err)

	tx := tm.Begin()
	rid, err := m.Insert(tx, []byte("hello"))
	assert.Nil(t, err)
	// the inserting transaction holds the record's exclusive lock
	assert.True(t, tx.HoldsExclusiveLock(rid))

	// the writer reads its own record through that lock
	data, err := m.Fetch(tx, rid)
	assert.Nil(t, err)
	assert.True(t, bytes.Equal([]byte("hello"), data))
	assert.True(t, tm.Commit(tx))

	// a later transaction reads it under a shared lock
	tx2 := tm.Begin()
	data, err = m.Fetch(tx2, rid)
	assert.Nil(t, err)
	assert.True(t, bytes.Equal([]byte("hello"), data))
	assert.True(t, tx2.HoldsSharedLock(rid))
	assert.True(t, tm.Commit(tx2))
}

func TestDelete(t *testing.T) {
	m, tm, err := TestingNewManager()
	assert.Nil(t, err)

	tx := tm.Begin()
	rid, err := m.Insert(tx, []byte("to be deleted"))
	assert.Nil(t, err)
	assert.True(t, tm.Commit(tx))

	tx2 := tm.Begin()
	assert.Nil(t, m.Delete(tx2, rid))
	assert.True(t, tm.Commit(tx2))

	tx3 := tm.Begin()
	_, err = m.Fetch(tx3, rid)
	assert.NotNil(t, err)
	tm.Abort(tx3)
}

func TestDeleteUpgradesSharedLock(t *testing.T) {
	m, tm, err := TestingNewManager()
	assert.Nil(t, err)

	tx := tm.Begin()
	rid, err := m.Insert(tx, []byte("record"))
	assert.Nil(t, err)
	assert.True(t, tm.Commit(tx))

	// fetch takes the shared lock, delete upgrades it in place
	tx2 := tm.Begin()
	_, err = m.Fetch(tx2, rid)
	assert.Nil(t, err)
	assert.True(t, tx2.HoldsSharedLock(rid))
	assert.Nil(t, m.Delete(tx2, rid))
	assert.True(t, tx2.HoldsExclusiveLock(rid))
	assert.False(t, tx2.HoldsSharedLock(rid))
	assert.True(t, tm.Commit(tx2))
}

func TestHeapGrowsAcrossPages(t *testing.T) {
	m, tm, err := TestingNewManager()
	assert.Nil(t, err)

	tx := tm.Begin()
	// each record is large enough that one page cannot hold them all
	for i := 0; i < 12; i++ {
		data := bytes.Repeat([]byte{byte('a' + i)}, 500)
		rid, err := m.Insert(tx, data)
		assert.Nil(t, err)

		got, err := m.Fetch(tx, rid)
		assert.Nil(t, err)
		assert.True(t, bytes.Equal(data, got))
	}
	assert.Greater(t, m.NumPages(), 1)
	assert.True(t, tm.Commit(tx))
}

func TestRecordEnvelopeRetainsXmin(t *testing.T) {
	_, tm, err := TestingNewManager()
	assert.Nil(t, err)

	tx := tm.Begin()
	item, err := marshalRecord(tx.ID(), []byte("payload"))
	assert.Nil(t, err)
	rec, err := unmarshalRecord(item)
	assert.Nil(t, err)
	assert.Equal(t, uint64(tx.ID()), rec.Xmin)
	assert.True(t, bytes.Equal([]byte("payload"), rec.Data))
	assert.True(t, tm.Commit(tx))
}

func TestWoundedTransactionCannotRead(t *testing.T) {
	m, tm, err := TestingNewManager()
	assert.Nil(t, err)

	// tx1 is older and keeps the record's exclusive lock
	tx1 := tm.Begin()
	rid, err := m.Insert(tx1, []byte("contended"))
	assert.Nil(t, err)

	// the younger tx2 would have to wait behind tx1, so it is wounded
	tx2 := tm.Begin()
	_, err = m.Fetch(tx2, rid)
	assert.ErrorIs(t, err, ErrLockNotGranted)
	assert.Equal(t, transaction.StateAborted, tx2.State())
	tm.Abort(tx2)
	assert.True(t, tm.Commit(tx1))
}

func TestInsertManySmallRecords(t *testing.T) {
	m, tm, err := TestingNewManager()
	assert.Nil(t, err)

	tx := tm.Begin()
	for i := 0; i < 100; i++ {
		data := []byte(fmt.Sprintf("record-%03d", i))
		rid, err := m.Insert(tx, data)
		assert.Nil(t, err)

		got, err := m.Fetch(tx, rid)
		assert.Nil(t, err)
		assert.True(t, bytes.Equal(data, got))
	}
	assert.True(t, tm.Commit(tx))
}
