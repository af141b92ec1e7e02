package am

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bufdb/bufdb/transaction/txid"
)

// record is the envelope stored as one page item
// xmin is the id of the inserting transaction, retained with the payload
type record struct {
	Xmin uint64 `msgpack:"xmin"`
	Data []byte `msgpack:"data"`
}

// marshalRecord encodes the record envelope
func marshalRecord(xmin txid.TxID, data []byte) ([]byte, error) {
	b, err := msgpack.Marshal(&record{
		Xmin: uint64(xmin),
		Data: data,
	})
	if err != nil {
		return nil, errors.Wrap(err, "msgpack.Marshal failed")
	}
	return b, nil
}

// unmarshalRecord decodes the record envelope
func unmarshalRecord(b []byte) (record, error) {
	var rec record
	if err := msgpack.Unmarshal(b, &rec); err != nil {
		return record{}, errors.Wrap(err, "msgpack.Unmarshal failed")
	}
	return rec, nil
}
