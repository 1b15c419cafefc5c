// Package docstore provides the Badger-backed document store of a docmesh node.
//
// The store keeps four kinds of records in one Badger keyspace:
//
//   - Documents, msgpack encoded, keyed by account, collection and id
//   - Per-target id sequences used to assign new document ids
//   - The replicated change log: one entry per log position holding the
//     change events written at that position
//   - Rollback markers: the serialized change-set still to be rolled back
//     for a target
//
// Every WriteBatch is applied in a single Badger transaction, so documents,
// change events and the log entry of a batch become visible together.
//
// Key layout (all integers big-endian):
//
//	'd' account(4) collection(1) document(4)  -> Document
//	's' account(4) collection(1)              -> last assigned id
//	'r' account(4) collection(1)              -> serialized change-set
//	'l' index(8)                              -> LogEntry
//	'm' "term"                                -> current term
package docstore
