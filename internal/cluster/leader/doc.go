// Package leader implements the leader side of document replication.
//
// A Replicator writes local changes into the replicated log at the
// current term and brings each follower in line with it: forward
// replication of missing entries, and rollback of entries the follower
// holds beyond the leader's log.
package leader
