package docstore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/docmesh-go/internal/cluster/changes"
	"github.com/yndnr/docmesh-go/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true, Badger: DefaultBadgerConfig(), Logger: slog.Default()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func doc(content string, tags ...string) domain.Document {
	return domain.Document{Content: []byte(content), Tags: tags}
}

func TestOpen_RequiresDir(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("expected error without dir")
	}
}

func TestStore_AssignDocumentID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for want := domain.DocumentID(1); want <= 3; want++ {
		got, err := s.AssignDocumentID(ctx, 7, domain.CollectionMail)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("AssignDocumentID() = %d, want %d", got, want)
		}
	}

	t.Run("targets are independent", func(t *testing.T) {
		got, err := s.AssignDocumentID(ctx, 7, domain.CollectionMailbox)
		if err != nil {
			t.Fatal(err)
		}
		if got != 1 {
			t.Errorf("AssignDocumentID() = %d, want 1", got)
		}
	})

	t.Run("replicated inserts advance the sequence", func(t *testing.T) {
		b := NewWriteBatch(7).InsertDocument(domain.CollectionMail, 50, doc("x"))
		if _, err := s.Write(ctx, b); err != nil {
			t.Fatal(err)
		}
		got, err := s.AssignDocumentID(ctx, 7, domain.CollectionMail)
		if err != nil {
			t.Fatal(err)
		}
		if got != 51 {
			t.Errorf("AssignDocumentID() = %d, want 51", got)
		}
	})
}

func TestStore_Write(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mail := domain.CollectionMail

	events, err := s.Write(ctx, NewWriteBatch(7).
		InsertDocument(mail, 1, doc("one")).
		InsertDocument(mail, 2, doc("two")))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Kind != changes.KindInsert || events[1].DocumentID != 2 {
		t.Fatalf("unexpected events %+v", events)
	}

	tests := []struct {
		name     string
		batch    *WriteBatch
		wantKind []changes.Kind
	}{
		{
			name:     "put existing records update",
			batch:    NewWriteBatch(7).PutDocument(mail, 1, doc("one v2")),
			wantKind: []changes.Kind{changes.KindUpdate},
		},
		{
			name:     "put missing records insert",
			batch:    NewWriteBatch(7).PutDocument(mail, 3, doc("three")),
			wantKind: []changes.Kind{changes.KindInsert},
		},
		{
			name:     "tag and repeated tag",
			batch:    NewWriteBatch(7).TagDocument(mail, 2, "$seen", true).TagDocument(mail, 2, "$seen", true),
			wantKind: []changes.Kind{changes.KindTag},
		},
		{
			name:     "delete missing is a no-op",
			batch:    NewWriteBatch(7).DeleteDocument(mail, 99),
			wantKind: []changes.Kind{},
		},
		{
			name:     "delete then insert in one batch",
			batch:    NewWriteBatch(7).DeleteDocument(mail, 3).InsertDocument(mail, 3, doc("three v2")),
			wantKind: []changes.Kind{changes.KindDelete, changes.KindInsert},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := s.Write(ctx, tt.batch)
			if err != nil {
				t.Fatal(err)
			}
			if len(events) != len(tt.wantKind) {
				t.Fatalf("got %d events, want %d", len(events), len(tt.wantKind))
			}
			for i, e := range events {
				if e.Kind != tt.wantKind[i] {
					t.Errorf("event %d kind = %s, want %s", i, e.Kind, tt.wantKind[i])
				}
			}
		})
	}

	got, err := s.GetDocument(ctx, 7, mail, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Content, []byte("one v2")) {
		t.Errorf("content = %q", got.Content)
	}
	got, err = s.GetDocument(ctx, 7, mail, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasTag("$seen") || len(got.Tags) != 1 {
		t.Errorf("tags = %v", got.Tags)
	}

	ids, err := s.DocumentIDs(ctx, 7, mail)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Errorf("DocumentIDs() = %v", ids)
	}
}

func TestStore_WriteIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Write(ctx, NewWriteBatch(1).
		InsertDocument(domain.CollectionMail, 1, doc("a")).
		UpdateDocument(domain.CollectionMail, 2, doc("b")))
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("Write() error = %v, want ErrDocumentNotFound", err)
	}
	if _, err := s.GetDocument(ctx, 1, domain.CollectionMail, 1); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("insert of a failed batch is visible: %v", err)
	}

	_, err = s.Write(ctx, NewWriteBatch(1).TagDocument(domain.CollectionMail, 5, "x", true))
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("tagging a missing document: %v", err)
	}
}

func TestStore_InsertExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mail := domain.CollectionMail
	if _, err := s.Write(ctx, NewWriteBatch(1).InsertDocument(mail, 1, doc("original"))); err != nil {
		t.Fatal(err)
	}

	_, err := s.Write(ctx, NewWriteBatch(1).
		InsertDocument(mail, 2, doc("new")).
		InsertDocument(mail, 1, doc("overwrite")).
		AppendLog(domain.LogPosition{Term: 1, Index: 1}))
	if !errors.Is(err, domain.ErrDocumentExists) {
		t.Fatalf("Write() error = %v, want ErrDocumentExists", err)
	}

	got, err := s.GetDocument(ctx, 1, mail, 1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Content) != "original" {
		t.Errorf("content = %q, existing document was overwritten", got.Content)
	}
	if _, err := s.GetDocument(ctx, 1, mail, 2); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("insert of a failed batch is visible: %v", err)
	}
	if _, found, err := s.GetLastLog(ctx); err != nil || found {
		t.Errorf("log entry of a failed batch: found=%v err=%v", found, err)
	}
}

func TestStore_ChangeTrackingOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	events, err := s.Write(ctx, NewWriteBatch(3).
		InsertDocument(domain.CollectionThread, 10, domain.Document{}).
		DeleteDocument(domain.CollectionThread, 11))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Kind != changes.KindInsert || events[1].Kind != changes.KindDelete {
		t.Fatalf("events = %+v", events)
	}
	if _, err := s.GetDocument(ctx, 3, domain.CollectionThread, 10); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("thread records must not be stored: %v", err)
	}
}

func TestStore_Log(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetLastLog(ctx); err != nil || ok {
		t.Fatalf("empty log: ok=%v err=%v", ok, err)
	}

	positions := []domain.LogPosition{{Term: 1, Index: 1}, {Term: 1, Index: 2}, {Term: 2, Index: 5}}
	for i, pos := range positions {
		b := NewWriteBatch(7).InsertDocument(domain.CollectionMail, domain.DocumentID(i+1), doc("x")).AppendLog(pos)
		if _, err := s.Write(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	last, ok, err := s.GetLastLog(ctx)
	if err != nil || !ok || last != positions[2] {
		t.Fatalf("GetLastLog() = %v, %v, %v", last, ok, err)
	}

	t.Run("out of order append", func(t *testing.T) {
		tests := []domain.LogPosition{{Term: 2, Index: 5}, {Term: 2, Index: 3}, {Term: 1, Index: 6}, {Term: 3, Index: 0}}
		for _, pos := range tests {
			_, err := s.Write(ctx, NewWriteBatch(7).AppendLog(pos))
			if !errors.Is(err, domain.ErrLogOutOfOrder) {
				t.Errorf("append %s: err = %v, want ErrLogOutOfOrder", pos, err)
			}
		}
	})

	t.Run("HasLogPosition", func(t *testing.T) {
		tests := []struct {
			pos  domain.LogPosition
			want bool
		}{
			{domain.LogPosition{}, true},
			{domain.LogPosition{Term: 1, Index: 2}, true},
			{domain.LogPosition{Term: 2, Index: 2}, false},
			{domain.LogPosition{Term: 1, Index: 3}, false},
		}
		for _, tt := range tests {
			got, err := s.HasLogPosition(ctx, tt.pos)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("HasLogPosition(%s) = %v, want %v", tt.pos, got, tt.want)
			}
		}
	})

	t.Run("LogPositionBefore", func(t *testing.T) {
		tests := []struct {
			index  uint64
			want   domain.LogPosition
			wantOK bool
		}{
			{1, domain.LogPosition{}, false},
			{2, domain.LogPosition{Term: 1, Index: 1}, true},
			{5, domain.LogPosition{Term: 1, Index: 2}, true},
			{100, domain.LogPosition{Term: 2, Index: 5}, true},
		}
		for _, tt := range tests {
			got, ok, err := s.LogPositionBefore(ctx, tt.index)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("LogPositionBefore(%d) = %s, %v; want %s, %v", tt.index, got, ok, tt.want, tt.wantOK)
			}
		}
	})

	t.Run("LogEntriesAfter", func(t *testing.T) {
		entries, err := s.LogEntriesAfter(ctx, domain.LogPosition{Term: 1, Index: 1}, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 2 || entries[0].Position != positions[1] || entries[1].Position != positions[2] {
			t.Fatalf("entries = %+v", entries)
		}
		if len(entries[1].Events) != 1 || entries[1].Events[0].DocumentID != 3 {
			t.Errorf("events = %+v", entries[1].Events)
		}

		limited, err := s.LogEntriesAfter(ctx, domain.LogPosition{}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(limited) != 2 || limited[0].Position != positions[0] {
			t.Errorf("limited entries = %+v", limited)
		}
	})
}

func TestStore_Diverge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mail := domain.CollectionMail

	writes := []*WriteBatch{
		NewWriteBatch(7).InsertDocument(mail, 1, doc("a")).InsertDocument(mail, 2, doc("b")).AppendLog(domain.LogPosition{Term: 1, Index: 1}),
		NewWriteBatch(7).InsertDocument(mail, 101, doc("c")).UpdateDocument(mail, 1, doc("a2")).AppendLog(domain.LogPosition{Term: 2, Index: 2}),
		NewWriteBatch(7).InsertDocument(mail, 102, doc("d")).DeleteDocument(mail, 2).AppendLog(domain.LogPosition{Term: 2, Index: 3}),
		NewWriteBatch(7).InsertDocument(domain.CollectionThread, 9, domain.Document{}).AppendLog(domain.LogPosition{Term: 2, Index: 4}),
	}
	for _, b := range writes {
		if _, err := s.Write(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	// An older marker for the same target merges in front of the tail.
	older := changes.New()
	older.AddUpdate(5)
	if err := s.SetRollbackChange(ctx, 7, mail, older); err != nil {
		t.Fatal(err)
	}

	targets, err := s.Diverge(ctx, domain.LogPosition{Term: 1, Index: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.Target{{AccountID: 7, Collection: mail}, {AccountID: 7, Collection: domain.CollectionThread}}
	if len(targets) != len(want) || targets[0] != want[0] || targets[1] != want[1] {
		t.Fatalf("Diverge() targets = %v, want %v", targets, want)
	}

	last, _, err := s.GetLastLog(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last != (domain.LogPosition{Term: 1, Index: 1}) {
		t.Errorf("last log after diverge = %s", last)
	}

	rc, ok, err := s.NextRollbackChange(ctx)
	if err != nil || !ok {
		t.Fatalf("NextRollbackChange() ok=%v err=%v", ok, err)
	}
	if rc.Target() != want[0] {
		t.Errorf("first marker target = %s", rc.Target())
	}
	expected := &changes.MergedChanges{
		Inserts: changes.SetOf(101, 102),
		Updates: changes.SetOf(1, 5),
		Deletes: changes.SetOf(2),
	}
	if !rc.Changes.Equal(expected) {
		t.Errorf("marker = %+v, want %+v", rc.Changes, expected)
	}

	t.Run("nothing past keep", func(t *testing.T) {
		targets, err := s.Diverge(ctx, domain.LogPosition{Term: 1, Index: 1})
		if err != nil {
			t.Fatal(err)
		}
		if len(targets) != 0 {
			t.Errorf("targets = %v", targets)
		}
	})
}

func TestStore_RollbackMarkers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.NextRollbackChange(ctx); err != nil || ok {
		t.Fatalf("no markers: ok=%v err=%v", ok, err)
	}

	m := changes.New()
	m.AddInsert(3)
	if err := s.SetRollbackChange(ctx, 9, domain.CollectionMailbox, m); err != nil {
		t.Fatal(err)
	}
	if err := s.SetRollbackChange(ctx, 2, domain.CollectionIdentity, m); err != nil {
		t.Fatal(err)
	}

	rc, ok, err := s.NextRollbackChange(ctx)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if rc.AccountID != 2 || rc.Collection != domain.CollectionIdentity {
		t.Errorf("markers must come in account order, got %s", rc.Target())
	}

	if err := s.RemoveRollbackChange(ctx, 2, domain.CollectionIdentity); err != nil {
		t.Fatal(err)
	}
	if err := s.SetRollbackChange(ctx, 9, domain.CollectionMailbox, changes.New()); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.NextRollbackChange(ctx); err != nil || ok {
		t.Errorf("markers left: ok=%v err=%v", ok, err)
	}
}

func TestStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := DefaultConfig(dir)
	cfg.Badger.GCInterval = "1h"
	cfg.Badger.SyncWrites = false

	s, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	m := changes.New()
	m.AddDelete(4)
	if err := s.SetRollbackChange(ctx, 1, domain.CollectionMail, m); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTerm(ctx, 6); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	rc, ok, err := s.NextRollbackChange(ctx)
	if err != nil || !ok || !rc.Changes.Deletes.Contains(4) {
		t.Errorf("marker lost across reopen: %+v ok=%v err=%v", rc, ok, err)
	}
	term, err := s.CurrentTerm(ctx)
	if err != nil || term != 6 {
		t.Errorf("CurrentTerm() = %d, %v", term, err)
	}
}

func TestStore_Closed(t *testing.T) {
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	ctx := context.Background()
	if _, err := s.GetDocument(ctx, 1, domain.CollectionMail, 1); !errors.Is(err, domain.ErrStorageClosed) {
		t.Errorf("GetDocument() = %v", err)
	}
	if _, err := s.Write(ctx, NewWriteBatch(1).DeleteDocument(domain.CollectionMail, 1)); !errors.Is(err, domain.ErrStorageClosed) {
		t.Errorf("Write() = %v", err)
	}
}

func TestStore_RegisterMetrics(t *testing.T) {
	s := newTestStore(t)
	registry := prometheus.NewRegistry()
	s.RegisterMetrics(registry)

	rewrites, err := s.GC(context.Background())
	if err != nil || rewrites != 0 {
		t.Fatalf("GC() = %d, %v; in-memory stores have no value log to rewrite", rewrites, err)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	got := make(map[string]float64, len(families))
	for _, mf := range families {
		m := mf.GetMetric()[0]
		switch {
		case m.GetCounter() != nil:
			got[mf.GetName()] = m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			got[mf.GetName()] = m.GetGauge().GetValue()
		}
	}
	if len(got) != 5 {
		t.Errorf("gathered %d metric families, want 5: %v", len(got), got)
	}
	if got["docmesh_badger_gc_runs_total"] != 1 {
		t.Errorf("gc runs = %v, want 1", got["docmesh_badger_gc_runs_total"])
	}
	if got["docmesh_badger_gc_rewrites_total"] != 0 {
		t.Errorf("gc rewrites = %v, want 0", got["docmesh_badger_gc_rewrites_total"])
	}
	if st := s.Stats(); st.GCRuns != 1 || st.LastGCTime == 0 {
		t.Errorf("Stats() = %+v", st)
	}
}
