// Package rpc provides the peer transport of a docmesh cluster.
//
// Messages are tagged unions: a Request or Response carries a Kind and the
// payload for that kind. Protocol wraps either one, and a Frame stamps it
// with the correlation id that pairs a response with its request.
//
// A Peer owns the outbound queue to one cluster member. Many goroutines may
// call SendRequest and DispatchRequest concurrently; a single worker (Run)
// drains the queue and writes frames to the Wire in queue order, while a
// reader routes responses back to the waiting callers by correlation id.
// A request whose peer goes away resolves to the none response, never to an
// error.
//
// Frames travel over a connect bidirectional stream (DialWire, Server) using
// the msgpack codec, or over an in-memory pipe (NewPipe).
package rpc
