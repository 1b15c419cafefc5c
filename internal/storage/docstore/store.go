package docstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/docmesh-go/internal/core/domain"
)

var msgpackHandle = &codec.MsgpackHandle{}

// Store is a Badger-backed document store.
//
// Reads run in Badger read transactions and may proceed concurrently.
// Writes are serialized so that log entries are appended in order.
type Store struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger

	writeMu sync.Mutex
	closed  atomic.Bool

	lastGCTime atomic.Int64 // Unix milliseconds
	gcRuns     atomic.Uint64
	gcRewrites atomic.Uint64

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens (or creates) a store.
func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("docstore: dir is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "docstore")

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts.Logger = &badgerLogger{logger: logger}

	badgerCfg := cfg.Badger
	if badgerCfg.CacheSize > 0 {
		opts.BlockCacheSize = badgerCfg.CacheSize
	}
	if badgerCfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = badgerCfg.ValueLogFileSize
	}
	if badgerCfg.NumMemtables > 0 {
		opts.NumMemtables = badgerCfg.NumMemtables
	}
	opts.SyncWrites = badgerCfg.SyncWrites
	opts.DetectConflicts = badgerCfg.DetectConflicts

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("docstore: open db: %w", err)
	}

	s := &Store{
		db:     db,
		cfg:    badgerCfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if cfg.InMemory {
		close(s.doneCh)
	} else {
		go s.gcLoop()
	}

	logger.Info("document store opened",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"gc_interval", badgerCfg.GCInterval)

	return s, nil
}

// Close stops background GC and closes the database.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(s.stopCh)
	<-s.doneCh

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("docstore: close db: %w", err)
	}
	s.logger.Info("document store closed")
	return nil
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return domain.ErrStorageClosed
	}
	return nil
}

// view runs fn in a read transaction.
func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// update runs fn in a write transaction, serialized with other writers.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Update(fn)
}

// AssignDocumentID reserves the next document id of a target.
func (s *Store) AssignDocumentID(ctx context.Context, account domain.AccountID, collection domain.Collection) (domain.DocumentID, error) {
	var id domain.DocumentID
	err := s.update(ctx, func(txn *badger.Txn) error {
		last, err := readSequence(txn, account, collection)
		if err != nil {
			return err
		}
		if last == ^domain.DocumentID(0) {
			return fmt.Errorf("docstore: document ids exhausted for %d/%s", account, collection)
		}
		id = last + 1
		return writeSequence(txn, account, collection, id)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func readSequence(txn *badger.Txn, account domain.AccountID, collection domain.Collection) (domain.DocumentID, error) {
	item, err := txn.Get(targetKey(prefixSequence, account, collection))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var id domain.DocumentID
	err = item.Value(func(v []byte) error {
		if len(v) != 4 {
			return domain.ErrStorageCorrupted.WithDetails("id sequence")
		}
		id = domain.DocumentID(binary.BigEndian.Uint32(v))
		return nil
	})
	return id, err
}

func writeSequence(txn *badger.Txn, account domain.AccountID, collection domain.Collection, id domain.DocumentID) error {
	return txn.Set(targetKey(prefixSequence, account, collection), binary.BigEndian.AppendUint32(nil, uint32(id)))
}

// GetDocument returns a stored document or domain.ErrDocumentNotFound.
func (s *Store) GetDocument(ctx context.Context, account domain.AccountID, collection domain.Collection, id domain.DocumentID) (domain.Document, error) {
	var doc domain.Document
	err := s.view(ctx, func(txn *badger.Txn) error {
		d, ok, err := readDocument(txn, account, collection, id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrDocumentNotFound
		}
		doc = d
		return nil
	})
	return doc, err
}

// DocumentIDs lists the ids stored for a target in ascending order.
func (s *Store) DocumentIDs(ctx context.Context, account domain.AccountID, collection domain.Collection) ([]domain.DocumentID, error) {
	var ids []domain.DocumentID
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = targetKey(prefixDocument, account, collection)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, documentIDFromKey(it.Item().Key()))
		}
		return nil
	})
	return ids, err
}

func readDocument(txn *badger.Txn, account domain.AccountID, collection domain.Collection, id domain.DocumentID) (domain.Document, bool, error) {
	var doc domain.Document
	item, err := txn.Get(documentKey(account, collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return doc, false, nil
	}
	if err != nil {
		return doc, false, err
	}
	err = item.Value(func(v []byte) error {
		return decode(v, &doc)
	})
	return doc, err == nil, err
}

// CurrentTerm returns the persisted term, zero if none.
func (s *Store) CurrentTerm(ctx context.Context) (uint64, error) {
	var term uint64
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(termKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			if len(v) != 8 {
				return domain.ErrStorageCorrupted.WithDetails("term")
			}
			term = binary.BigEndian.Uint64(v)
			return nil
		})
	})
	return term, err
}

// SetTerm persists the current term.
func (s *Store) SetTerm(ctx context.Context, term uint64) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(termKey, binary.BigEndian.AppendUint64(nil, term))
	})
}

func encode(v any) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, msgpackHandle).Encode(v); err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	return b, nil
}

func decode(b []byte, v any) error {
	if err := codec.NewDecoderBytes(b, msgpackHandle).Decode(v); err != nil {
		return domain.ErrStorageCorrupted.WithCause(err)
	}
	return nil
}

// GC runs value log garbage collection until nothing more can be rewritten
// and returns the number of value log files rewritten.
func (s *Store) GC(ctx context.Context) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	startTime := time.Now()

	var rewrites uint64
	defer func() {
		s.gcRuns.Add(1)
		s.gcRewrites.Add(rewrites)
		s.lastGCTime.Store(time.Now().UnixMilli())
	}()
	for ctx.Err() == nil {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
				break
			}
			return rewrites, fmt.Errorf("docstore: gc: %w", err)
		}
		rewrites++
	}

	s.logger.Info("gc completed",
		"rewrites", rewrites,
		"elapsed", time.Since(startTime))

	return rewrites, nil
}

// Stats contains storage statistics.
type Stats struct {
	LSMSize      uint64
	ValueLogSize uint64
	LastGCTime   int64 // Unix milliseconds
	GCRuns       uint64
	GCRewrites   uint64
}

// Stats returns storage statistics.
func (s *Store) Stats() Stats {
	lsm, vlog := s.db.Size()
	return Stats{
		LSMSize:      uint64(lsm),
		ValueLogSize: uint64(vlog),
		LastGCTime:   s.lastGCTime.Load(),
		GCRuns:       s.gcRuns.Load(),
		GCRewrites:   s.gcRewrites.Load(),
	}
}

// RegisterMetrics registers Badger size and GC gauges with registry.
// Returns the store for method chaining.
func (s *Store) RegisterMetrics(registry prometheus.Registerer) *Store {
	registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "docmesh",
			Subsystem: "badger",
			Name:      "lsm_size_bytes",
			Help:      "Badger LSM tree size in bytes",
		}, func() float64 { return float64(s.Stats().LSMSize) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "docmesh",
			Subsystem: "badger",
			Name:      "value_log_size_bytes",
			Help:      "Badger value log size in bytes",
		}, func() float64 { return float64(s.Stats().ValueLogSize) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "docmesh",
			Subsystem: "badger",
			Name:      "last_gc_timestamp_seconds",
			Help:      "Unix timestamp of the last Badger GC run",
		}, func() float64 { return float64(s.lastGCTime.Load()) / 1000.0 }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "docmesh",
			Subsystem: "badger",
			Name:      "gc_runs_total",
			Help:      "Badger value log garbage collection runs",
		}, func() float64 { return float64(s.gcRuns.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "docmesh",
			Subsystem: "badger",
			Name:      "gc_rewrites_total",
			Help:      "Value log files rewritten by Badger garbage collection",
		}, func() float64 { return float64(s.gcRewrites.Load()) }),
	)
	return s
}

func (s *Store) gcLoop() {
	defer close(s.doneCh)

	interval, err := time.ParseDuration(s.cfg.GCInterval)
	if err != nil || interval <= 0 {
		s.logger.Error("invalid gc_interval, using default 10m", "value", s.cfg.GCInterval)
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := s.GC(ctx); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
