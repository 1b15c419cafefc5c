package docstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/docmesh-go/internal/cluster/changes"
	"github.com/yndnr/docmesh-go/internal/core/domain"
)

type opKind uint8

const (
	opInsert opKind = iota + 1
	opUpdate
	opPut
	opTag
	opUntag
	opDelete
)

type batchOp struct {
	kind       opKind
	account    domain.AccountID
	collection domain.Collection
	id         domain.DocumentID
	doc        domain.Document
	tag        string
}

// WriteBatch is a set of document operations applied atomically by
// Store.Write. Operations target the batch's current account, set by
// NewWriteBatch and changed with ForAccount.
//
// Each document operation records a change event. When a log position is
// set, the events are appended to the change log at that position in the
// same transaction.
type WriteBatch struct {
	accountID domain.AccountID
	ops       []batchOp
	logPos    *domain.LogPosition
}

// NewWriteBatch returns an empty batch for account.
func NewWriteBatch(account domain.AccountID) *WriteBatch {
	return &WriteBatch{accountID: account}
}

// AccountID returns the account subsequent operations write to.
func (b *WriteBatch) AccountID() domain.AccountID {
	return b.accountID
}

// ForAccount switches the account of subsequent operations.
func (b *WriteBatch) ForAccount(account domain.AccountID) *WriteBatch {
	b.accountID = account
	return b
}

// InsertDocument stores a new document. Writing the batch fails with
// domain.ErrDocumentExists if the id is already stored; use PutDocument to
// overwrite.
func (b *WriteBatch) InsertDocument(collection domain.Collection, id domain.DocumentID, doc domain.Document) *WriteBatch {
	b.ops = append(b.ops, batchOp{kind: opInsert, account: b.accountID, collection: collection, id: id, doc: doc})
	return b
}

// UpdateDocument replaces the content of an existing document.
func (b *WriteBatch) UpdateDocument(collection domain.Collection, id domain.DocumentID, doc domain.Document) *WriteBatch {
	b.ops = append(b.ops, batchOp{kind: opUpdate, account: b.accountID, collection: collection, id: id, doc: doc})
	return b
}

// PutDocument stores doc, recording an insert or an update depending on
// whether the id exists when the batch is applied.
func (b *WriteBatch) PutDocument(collection domain.Collection, id domain.DocumentID, doc domain.Document) *WriteBatch {
	b.ops = append(b.ops, batchOp{kind: opPut, account: b.accountID, collection: collection, id: id, doc: doc})
	return b
}

// TagDocument adds (set) or removes a tag of an existing document.
func (b *WriteBatch) TagDocument(collection domain.Collection, id domain.DocumentID, tag string, set bool) *WriteBatch {
	kind := opTag
	if !set {
		kind = opUntag
	}
	b.ops = append(b.ops, batchOp{kind: kind, account: b.accountID, collection: collection, id: id, tag: tag})
	return b
}

// DeleteDocument removes a document. Deleting a missing id is a no-op.
func (b *WriteBatch) DeleteDocument(collection domain.Collection, id domain.DocumentID) *WriteBatch {
	b.ops = append(b.ops, batchOp{kind: opDelete, account: b.accountID, collection: collection, id: id})
	return b
}

// AppendLog appends the batch's change events to the log at pos.
func (b *WriteBatch) AppendLog(pos domain.LogPosition) *WriteBatch {
	b.logPos = &pos
	return b
}

// Len returns the number of document operations.
func (b *WriteBatch) Len() int {
	return len(b.ops)
}

// IsEmpty reports whether the batch has nothing to write.
func (b *WriteBatch) IsEmpty() bool {
	return len(b.ops) == 0 && b.logPos == nil
}

// Write applies a batch atomically and returns the recorded change events.
func (s *Store) Write(ctx context.Context, b *WriteBatch) ([]changes.Event, error) {
	if b == nil || b.IsEmpty() {
		return nil, nil
	}

	var events []changes.Event
	err := s.update(ctx, func(txn *badger.Txn) error {
		events = make([]changes.Event, 0, len(b.ops))
		for _, op := range b.ops {
			kind, ok, err := applyOp(txn, op)
			if err != nil {
				return fmt.Errorf("%s %d/%s/%d: %w", opName(op.kind), op.account, op.collection, op.id, err)
			}
			if ok {
				events = append(events, changes.Event{
					AccountID:  op.account,
					Collection: op.collection,
					DocumentID: op.id,
					Kind:       kind,
				})
			}
		}
		if b.logPos != nil {
			return appendLog(txn, *b.logPos, events)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// applyOp applies one operation. Collections that only track changes keep
// no document records, the event is recorded as given.
func applyOp(txn *badger.Txn, op batchOp) (changes.Kind, bool, error) {
	account := op.account
	if op.collection.IsChangeTrackingOnly() {
		switch op.kind {
		case opInsert:
			return changes.KindInsert, true, bumpSequence(txn, account, op.collection, op.id)
		case opDelete:
			return changes.KindDelete, true, nil
		case opTag, opUntag:
			return changes.KindTag, true, nil
		default:
			return changes.KindUpdate, true, nil
		}
	}

	key := documentKey(account, op.collection, op.id)
	current, exists, err := readDocument(txn, account, op.collection, op.id)
	if err != nil {
		return 0, false, err
	}

	switch op.kind {
	case opInsert, opUpdate, opPut:
		kind := changes.KindInsert
		if op.kind == opUpdate || (op.kind == opPut && exists) {
			kind = changes.KindUpdate
		}
		if op.kind == opUpdate && !exists {
			return 0, false, domain.ErrDocumentNotFound
		}
		if op.kind == opInsert && exists {
			return 0, false, domain.ErrDocumentExists
		}
		if err := setDocument(txn, key, op.doc); err != nil {
			return 0, false, err
		}
		if kind == changes.KindInsert {
			if err := bumpSequence(txn, account, op.collection, op.id); err != nil {
				return 0, false, err
			}
		}
		return kind, true, nil

	case opTag, opUntag:
		if !exists {
			return 0, false, domain.ErrDocumentNotFound
		}
		has := current.HasTag(op.tag)
		if op.kind == opTag && has || op.kind == opUntag && !has {
			return 0, false, nil
		}
		if op.kind == opTag {
			current.Tags = append(current.Tags, op.tag)
		} else {
			current.Tags = slices.DeleteFunc(current.Tags, func(t string) bool { return t == op.tag })
		}
		return changes.KindTag, true, setDocument(txn, key, current)

	case opDelete:
		if !exists {
			return 0, false, nil
		}
		return changes.KindDelete, true, txn.Delete(key)
	}

	return 0, false, fmt.Errorf("unknown operation %d", op.kind)
}

func setDocument(txn *badger.Txn, key []byte, doc domain.Document) error {
	v, err := encode(doc)
	if err != nil {
		return err
	}
	return txn.Set(key, v)
}

// bumpSequence keeps the id sequence ahead of ids written by replication.
func bumpSequence(txn *badger.Txn, account domain.AccountID, collection domain.Collection, id domain.DocumentID) error {
	last, err := readSequence(txn, account, collection)
	if err != nil {
		return err
	}
	if id <= last {
		return nil
	}
	return writeSequence(txn, account, collection, id)
}

func opName(k opKind) string {
	switch k {
	case opInsert:
		return "insert"
	case opUpdate:
		return "update"
	case opPut:
		return "put"
	case opTag:
		return "tag"
	case opUntag:
		return "untag"
	case opDelete:
		return "delete"
	default:
		return "unknown"
	}
}
