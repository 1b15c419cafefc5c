// Package changes compacts per-document change events into change-sets.
//
// A change-set (MergedChanges) summarises the net effect of any number of
// insert, update, tag and delete events on one (account, collection)
// target as three disjoint document id sets. Change-sets travel between
// peers in a compact binary form:
//
//	format(1) | set(inserts) | set(updates) | set(deletes)
//	set      = uvarint(count) uvarint(first id) uvarint(delta)...
//
// Ids inside a set are sorted, so every delta is positive and the
// encoding of a given change-set is deterministic.
package changes
