package docstore

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/docmesh-go/internal/cluster/changes"
	"github.com/yndnr/docmesh-go/internal/core/domain"
)

// LogEntry is one position of the change log with the events written there.
type LogEntry struct {
	Position domain.LogPosition `codec:"position"`
	Events   []changes.Event    `codec:"events"`
}

func appendLog(txn *badger.Txn, pos domain.LogPosition, events []changes.Event) error {
	if pos.Index == 0 {
		return domain.ErrLogOutOfOrder.WithDetails("index 0 is reserved")
	}
	last, ok, err := lastLog(txn)
	if err != nil {
		return err
	}
	if ok && (pos.Index <= last.Index || pos.Term < last.Term) {
		return domain.ErrLogOutOfOrder.WithDetails(last.String() + " -> " + pos.String())
	}
	v, err := encode(LogEntry{Position: pos, Events: events})
	if err != nil {
		return err
	}
	return txn.Set(logKey(pos.Index), v)
}

func lastLog(txn *badger.Txn) (domain.LogPosition, bool, error) {
	return seekLogBackward(txn, math.MaxUint64)
}

// seekLogBackward returns the position of the last entry at or below index.
func seekLogBackward(txn *badger.Txn, index uint64) (domain.LogPosition, bool, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = []byte{prefixLog}
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Seek(logKey(index))
	if !it.ValidForPrefix(opts.Prefix) {
		return domain.LogPosition{}, false, nil
	}
	entry, err := readLogEntry(it.Item())
	if err != nil {
		return domain.LogPosition{}, false, err
	}
	return entry.Position, true, nil
}

func readLogEntry(item *badger.Item) (LogEntry, error) {
	var entry LogEntry
	err := item.Value(func(v []byte) error {
		return decode(v, &entry)
	})
	if err == nil && len(item.Key()) == 9 && binary.BigEndian.Uint64(item.Key()[1:]) != entry.Position.Index {
		err = domain.ErrStorageCorrupted.WithDetails("log entry index mismatch")
	}
	return entry, err
}

// GetLastLog returns the position of the newest log entry.
// The flag is false when the log is empty.
func (s *Store) GetLastLog(ctx context.Context) (domain.LogPosition, bool, error) {
	var (
		pos domain.LogPosition
		ok  bool
	)
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		pos, ok, err = lastLog(txn)
		return err
	})
	return pos, ok, err
}

// HasLogPosition reports whether the log holds an entry at pos with the
// same term. The zero position, the start of every log, always matches.
func (s *Store) HasLogPosition(ctx context.Context, pos domain.LogPosition) (bool, error) {
	if pos.IsZero() {
		return true, nil
	}
	var found bool
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(logKey(pos.Index))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		entry, err := readLogEntry(item)
		if err != nil {
			return err
		}
		found = entry.Position == pos
		return nil
	})
	return found, err
}

// LogPositionBefore returns the newest position with an index below index.
// The flag is false when there is none.
func (s *Store) LogPositionBefore(ctx context.Context, index uint64) (domain.LogPosition, bool, error) {
	if index <= 1 {
		return domain.LogPosition{}, false, nil
	}
	var (
		pos domain.LogPosition
		ok  bool
	)
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		pos, ok, err = seekLogBackward(txn, index-1)
		return err
	})
	return pos, ok, err
}

// LogEntriesAfter returns up to limit entries with an index above after.Index,
// oldest first. A limit of zero or less returns every entry.
func (s *Store) LogEntriesAfter(ctx context.Context, after domain.LogPosition, limit int) ([]LogEntry, error) {
	var entries []LogEntry
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		entries, err = scanLog(txn, after.Index, limit)
		return err
	})
	return entries, err
}

func scanLog(txn *badger.Txn, afterIndex uint64, limit int) ([]LogEntry, error) {
	if afterIndex == math.MaxUint64 {
		return nil, nil
	}
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte{prefixLog}
	it := txn.NewIterator(opts)
	defer it.Close()

	var entries []LogEntry
	for it.Seek(logKey(afterIndex + 1)); it.ValidForPrefix(opts.Prefix); it.Next() {
		if limit > 0 && len(entries) == limit {
			break
		}
		entry, err := readLogEntry(it.Item())
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Diverge truncates every log entry with an index above keep.Index. The
// change events of the removed entries are compacted per target and merged
// into the targets' rollback markers in the same transaction, so a crash
// leaves either the old log or the truncated log with its markers.
//
// It returns the targets that hold a rollback marker afterwards.
func (s *Store) Diverge(ctx context.Context, keep domain.LogPosition) ([]domain.Target, error) {
	var targets []domain.Target
	err := s.update(ctx, func(txn *badger.Txn) error {
		targets = targets[:0]

		entries, err := scanLog(txn, keep.Index, 0)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		var events []changes.Event
		for _, e := range entries {
			events = append(events, e.Events...)
			if err := txn.Delete(logKey(e.Position.Index)); err != nil {
				return err
			}
		}

		for target, tail := range changes.Compact(events) {
			marker, _, err := readRollback(txn, target.AccountID, target.Collection)
			if err != nil {
				return err
			}
			marker.Merge(tail)
			wrote, err := writeRollback(txn, target.AccountID, target.Collection, marker)
			if err != nil {
				return err
			}
			if wrote {
				targets = append(targets, target)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(targets, func(a, b domain.Target) int {
		if c := cmp.Compare(a.AccountID, b.AccountID); c != 0 {
			return c
		}
		return cmp.Compare(a.Collection, b.Collection)
	})
	return targets, nil
}
