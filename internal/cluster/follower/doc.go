// Package follower implements the follower side of document replication.
//
// A follower answers the leader's AppendEntries requests. Forward
// replication appends the leader's log entries. When the local log holds
// entries the leader never committed, the follower compacts them into
// per-target rollback markers and runs rollback rounds:
//
//	Synchronize ──► Update{ids} ──► RollbackUpdates{records} ──► Match
//	                    ▲                      │
//	                    └──── Continue ◄───────┘ (partial apply)
//
// Speculative inserts are deleted locally. Updated and deleted documents
// are restored from the leader's authoritative records. Markers are
// checkpointed before every response, so a restarted follower resumes
// where it stopped.
package follower
