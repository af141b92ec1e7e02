package txid

// TxID is transaction id
// ids are handed out monotonically, so a smaller id means an older transaction.
// the lock manager's wound-wait policy orders transactions by this id, which is
// why the id is wide enough to never wrap
type TxID uint64

const (
	// InvalidTxID is the zero id no transaction ever gets
	InvalidTxID TxID = 0
	// FirstTxID is the first id allocated by the manager
	FirstTxID TxID = 1
)

// IsValid checks whether the id has been allocated by the manager
func (id TxID) IsValid() bool {
	return id != InvalidTxID
}

// IsOlder checks whether the transaction is older than the compared one
// older means it started earlier, so its id is smaller
func (id TxID) IsOlder(compared TxID) bool {
	return id < compared
}
