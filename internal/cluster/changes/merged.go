package changes

import (
	"slices"

	"github.com/yndnr/docmesh-go/internal/core/domain"
)

// Kind is the kind of a change event.
type Kind uint8

const (
	// KindInsert records the creation of a document.
	KindInsert Kind = iota + 1
	// KindUpdate records a content change of an existing document.
	KindUpdate
	// KindTag records a tag mutation of an existing document.
	KindTag
	// KindDelete records the removal of a document.
	KindDelete
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindTag:
		return "tag"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one raw change of one document.
type Event struct {
	AccountID  domain.AccountID  `codec:"account"`
	Collection domain.Collection `codec:"collection"`
	DocumentID domain.DocumentID `codec:"document"`
	Kind       Kind              `codec:"kind"`
}

// Target returns the (account, collection) pair the event belongs to.
func (e Event) Target() domain.Target {
	return domain.Target{AccountID: e.AccountID, Collection: e.Collection}
}

// DocumentSet is a set of document ids.
type DocumentSet map[domain.DocumentID]struct{}

// Contains reports whether id is in the set.
func (s DocumentSet) Contains(id domain.DocumentID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order.
func (s DocumentSet) Sorted() []domain.DocumentID {
	ids := make([]domain.DocumentID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clear removes every id.
func (s DocumentSet) Clear() {
	clear(s)
}

// SetOf builds a DocumentSet from ids.
func SetOf(ids ...domain.DocumentID) DocumentSet {
	s := make(DocumentSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// MergedChanges is the compacted change-set of one target.
//
// An id is in at most one of Inserts, Updates and Deletes. The zero value
// is not usable; call New.
type MergedChanges struct {
	Inserts DocumentSet
	Updates DocumentSet
	Deletes DocumentSet

	// dropped holds ids whose insert was cancelled by a delete. A repeated
	// delete of such an id is a no-op. Not part of the wire form.
	dropped DocumentSet
}

// New returns an empty change-set.
func New() *MergedChanges {
	return &MergedChanges{
		Inserts: make(DocumentSet),
		Updates: make(DocumentSet),
		Deletes: make(DocumentSet),
		dropped: make(DocumentSet),
	}
}

// AddInsert records the creation of id. A previously deleted id becomes
// an insert.
func (m *MergedChanges) AddInsert(id domain.DocumentID) {
	delete(m.Updates, id)
	delete(m.Deletes, id)
	delete(m.dropped, id)
	m.Inserts[id] = struct{}{}
}

// AddUpdate records a change of id. An id inserted in this change-set stays
// an insert.
func (m *MergedChanges) AddUpdate(id domain.DocumentID) {
	if m.Inserts.Contains(id) || m.dropped.Contains(id) {
		return
	}
	delete(m.Deletes, id)
	m.Updates[id] = struct{}{}
}

// AddTag records a tag mutation of id; it merges like an update.
func (m *MergedChanges) AddTag(id domain.DocumentID) {
	m.AddUpdate(id)
}

// AddDelete records the removal of id. Deleting an id inserted in this
// change-set cancels both events.
func (m *MergedChanges) AddDelete(id domain.DocumentID) {
	if m.Inserts.Contains(id) {
		delete(m.Inserts, id)
		m.dropped[id] = struct{}{}
		return
	}
	if m.dropped.Contains(id) {
		return
	}
	delete(m.Updates, id)
	m.Deletes[id] = struct{}{}
}

// Add records one event.
func (m *MergedChanges) Add(kind Kind, id domain.DocumentID) {
	switch kind {
	case KindInsert:
		m.AddInsert(id)
	case KindUpdate:
		m.AddUpdate(id)
	case KindTag:
		m.AddTag(id)
	case KindDelete:
		m.AddDelete(id)
	}
}

// Merge folds a later change-set into m using the same precedence as
// single events.
func (m *MergedChanges) Merge(later *MergedChanges) {
	if later == nil {
		return
	}
	for id := range later.Inserts {
		m.AddInsert(id)
	}
	for id := range later.Updates {
		m.AddUpdate(id)
	}
	for id := range later.Deletes {
		m.AddDelete(id)
	}
	for id := range later.dropped {
		m.AddInsert(id)
		m.AddDelete(id)
	}
}

// IsEmpty reports whether the change-set carries no work.
func (m *MergedChanges) IsEmpty() bool {
	return len(m.Inserts) == 0 && len(m.Updates) == 0 && len(m.Deletes) == 0
}

// Len returns the total number of ids in the three sets.
func (m *MergedChanges) Len() int {
	return len(m.Inserts) + len(m.Updates) + len(m.Deletes)
}

// Clear empties the three sets.
func (m *MergedChanges) Clear() {
	m.Inserts.Clear()
	m.Updates.Clear()
	m.Deletes.Clear()
	m.dropped.Clear()
}

// TakeInserts moves the insert set out of m.
func (m *MergedChanges) TakeInserts() DocumentSet {
	inserts := m.Inserts
	m.Inserts = make(DocumentSet)
	return inserts
}

// Clone returns a deep copy.
func (m *MergedChanges) Clone() *MergedChanges {
	c := New()
	for id := range m.Inserts {
		c.Inserts[id] = struct{}{}
	}
	for id := range m.Updates {
		c.Updates[id] = struct{}{}
	}
	for id := range m.Deletes {
		c.Deletes[id] = struct{}{}
	}
	for id := range m.dropped {
		c.dropped[id] = struct{}{}
	}
	return c
}

// Equal compares the three sets of m and o.
func (m *MergedChanges) Equal(o *MergedChanges) bool {
	return setsEqual(m.Inserts, o.Inserts) &&
		setsEqual(m.Updates, o.Updates) &&
		setsEqual(m.Deletes, o.Deletes)
}

func setsEqual(a, b DocumentSet) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b.Contains(id) {
			return false
		}
	}
	return true
}

// Compact groups events by target and compacts each group in order.
// Targets whose events cancel out are omitted.
func Compact(events []Event) map[domain.Target]*MergedChanges {
	out := make(map[domain.Target]*MergedChanges)
	for _, e := range events {
		t := e.Target()
		m, ok := out[t]
		if !ok {
			m = New()
			out[t] = m
		}
		m.Add(e.Kind, e.DocumentID)
	}
	for t, m := range out {
		if m.IsEmpty() {
			delete(out, t)
		}
	}
	return out
}
