package am

import (
	"github.com/pkg/errors"

	"github.com/bufdb/bufdb/storage/buffer"
	"github.com/bufdb/bufdb/transaction"
	"github.com/bufdb/bufdb/transaction/lock"
	"github.com/bufdb/bufdb/transaction/txid"
)

// TestingNewManager wires a heap over an in-memory buffer pool together with a
// non-strict lock manager and a transaction manager
func TestingNewManager() (*Manager, *transaction.Manager, error) {
	bm, err := buffer.TestingNewManager()
	if err != nil {
		return nil, nil, errors.Wrap(err, "buffer.TestingNewManager failed")
	}
	lm := lock.NewManager(false)
	tm := transaction.NewManager(txid.NewManager(), lm)
	return NewManager(bm, lm), tm, nil
}
