package docstore

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/docmesh-go/internal/cluster/changes"
	"github.com/yndnr/docmesh-go/internal/core/domain"
)

// RollbackChange is a persisted rollback marker: the changes of a target
// that still have to be reverted to the leader's state.
type RollbackChange struct {
	AccountID  domain.AccountID
	Collection domain.Collection
	Changes    *changes.MergedChanges
}

// Target returns the marker's (account, collection) pair.
func (r RollbackChange) Target() domain.Target {
	return domain.Target{AccountID: r.AccountID, Collection: r.Collection}
}

// NextRollbackChange returns the first pending rollback marker in
// (account, collection) order. The flag is false when none is pending.
func (s *Store) NextRollbackChange(ctx context.Context) (RollbackChange, bool, error) {
	var (
		rc RollbackChange
		ok bool
	)
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixRollback}
		opts.PrefetchSize = 1
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		if !it.Valid() {
			return nil
		}
		item := it.Item()
		account, collection, valid := targetFromKey(item.Key())
		if !valid {
			return domain.ErrStorageCorrupted.WithDetails("rollback key")
		}
		m, err := readChanges(item)
		if err != nil {
			return err
		}
		rc = RollbackChange{AccountID: account, Collection: collection, Changes: m}
		ok = true
		return nil
	})
	return rc, ok, err
}

// SetRollbackChange replaces the rollback marker of a target. An empty
// change-set removes the marker.
func (s *Store) SetRollbackChange(ctx context.Context, account domain.AccountID, collection domain.Collection, m *changes.MergedChanges) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		_, err := writeRollback(txn, account, collection, m)
		return err
	})
}

// RemoveRollbackChange deletes the rollback marker of a target.
func (s *Store) RemoveRollbackChange(ctx context.Context, account domain.AccountID, collection domain.Collection) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(targetKey(prefixRollback, account, collection))
	})
}

// readRollback returns the marker of a target, or an empty change-set.
func readRollback(txn *badger.Txn, account domain.AccountID, collection domain.Collection) (*changes.MergedChanges, bool, error) {
	item, err := txn.Get(targetKey(prefixRollback, account, collection))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return changes.New(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	m, err := readChanges(item)
	return m, err == nil, err
}

func readChanges(item *badger.Item) (*changes.MergedChanges, error) {
	var m *changes.MergedChanges
	err := item.Value(func(v []byte) error {
		var err error
		m, err = changes.Deserialize(v)
		if err != nil {
			return domain.ErrStorageCorrupted.WithDetails("rollback marker").WithCause(err)
		}
		return nil
	})
	return m, err
}

// writeRollback stores m as the target's marker, or deletes the marker when
// m is empty. It reports whether a marker was stored.
func writeRollback(txn *badger.Txn, account domain.AccountID, collection domain.Collection, m *changes.MergedChanges) (bool, error) {
	key := targetKey(prefixRollback, account, collection)
	if m == nil || m.IsEmpty() {
		return false, txn.Delete(key)
	}
	v, err := m.Serialize()
	if err != nil {
		return false, err
	}
	return true, txn.Set(key, v)
}
