// Command docmesh-server runs one docmesh node.
//
// A leader writes the replicated log and keeps every configured follower
// in line with it. A follower serves the peer RPC endpoint, applies the
// leader's log and rolls back entries the leader never committed.
//
// Usage:
//
//	docmesh-server --config /etc/docmesh/docmesh.yaml [run]
//	docmesh-server --config /etc/docmesh/docmesh.yaml check
//	docmesh-server version
package main
