package docstore

import (
	"encoding/binary"

	"github.com/yndnr/docmesh-go/internal/core/domain"
)

const (
	prefixDocument byte = 'd'
	prefixSequence byte = 's'
	prefixRollback byte = 'r'
	prefixLog      byte = 'l'
	prefixMeta     byte = 'm'
)

var termKey = []byte{prefixMeta, 't', 'e', 'r', 'm'}

func targetKey(prefix byte, account domain.AccountID, collection domain.Collection) []byte {
	k := make([]byte, 6, 10)
	k[0] = prefix
	binary.BigEndian.PutUint32(k[1:5], uint32(account))
	k[5] = byte(collection)
	return k
}

func documentKey(account domain.AccountID, collection domain.Collection, id domain.DocumentID) []byte {
	k := targetKey(prefixDocument, account, collection)
	return binary.BigEndian.AppendUint32(k, uint32(id))
}

func documentIDFromKey(k []byte) domain.DocumentID {
	return domain.DocumentID(binary.BigEndian.Uint32(k[6:10]))
}

// targetFromKey decodes a sequence or rollback key.
func targetFromKey(k []byte) (domain.AccountID, domain.Collection, bool) {
	if len(k) != 6 {
		return 0, 0, false
	}
	return domain.AccountID(binary.BigEndian.Uint32(k[1:5])), domain.Collection(k[5]), true
}

func logKey(index uint64) []byte {
	k := make([]byte, 1, 9)
	k[0] = prefixLog
	return binary.BigEndian.AppendUint64(k, index)
}
