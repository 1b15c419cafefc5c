package rpc

import (
	"github.com/yndnr/docmesh-go/internal/core/domain"
)

// RequestKind selects the payload of a Request.
type RequestKind uint8

const (
	// RequestNone is the zero Request.
	RequestNone RequestKind = iota
	RequestAppendEntries
	RequestPing
)

// String returns the kind name used in logs and metrics.
func (k RequestKind) String() string {
	switch k {
	case RequestAppendEntries:
		return "append_entries"
	case RequestPing:
		return "ping"
	default:
		return "none"
	}
}

// Request is a message sent to a peer.
type Request struct {
	Kind          RequestKind           `codec:"kind"`
	AppendEntries *AppendEntriesRequest `codec:"append_entries,omitempty"`
	Ping          *Ping                 `codec:"ping,omitempty"`
}

// IsNone reports whether the request carries nothing.
func (r Request) IsNone() bool {
	switch r.Kind {
	case RequestAppendEntries:
		return r.AppendEntries == nil
	case RequestPing:
		return r.Ping == nil
	default:
		return true
	}
}

// ResponseKind selects the payload of a Response.
type ResponseKind uint8

const (
	// ResponseNone means no answer: the peer was unreachable, abstained or
	// replied with something else.
	ResponseNone ResponseKind = iota
	ResponseAppendEntries
	ResponsePong
)

// String returns the kind name used in logs and metrics.
func (k ResponseKind) String() string {
	switch k {
	case ResponseAppendEntries:
		return "append_entries"
	case ResponsePong:
		return "pong"
	default:
		return "none"
	}
}

// Response is a message answering a Request.
type Response struct {
	Kind          ResponseKind           `codec:"kind"`
	AppendEntries *AppendEntriesResponse `codec:"append_entries,omitempty"`
	Pong          *Pong                  `codec:"pong,omitempty"`
}

// IsNone reports whether the response carries nothing.
func (r Response) IsNone() bool {
	switch r.Kind {
	case ResponseAppendEntries:
		return r.AppendEntries == nil
	case ResponsePong:
		return r.Pong == nil
	default:
		return true
	}
}

// UnwrapAppendEntries returns the AppendEntries payload. The flag is false
// for any other kind.
func (r Response) UnwrapAppendEntries() (AppendEntriesResponse, bool) {
	if r.Kind != ResponseAppendEntries || r.AppendEntries == nil {
		return AppendEntriesResponse{}, false
	}
	return *r.AppendEntries, true
}

// Protocol wraps either a Request or a Response.
type Protocol struct {
	Request  *Request  `codec:"request"`
	Response *Response `codec:"response"`
}

// UnwrapRequest returns the wrapped request, or the none request when the
// message is a response.
func (p Protocol) UnwrapRequest() Request {
	if p.Request == nil {
		return Request{}
	}
	return *p.Request
}

// UnwrapResponse returns the wrapped response, or the none response when
// the message is a request.
func (p Protocol) UnwrapResponse() Response {
	if p.Response == nil {
		return Response{}
	}
	return *p.Response
}

// Frame is the unit written to a Wire. ID 0 marks a request that expects
// no reply.
type Frame struct {
	ID       uint64   `codec:"id"`
	Protocol Protocol `codec:"protocol"`
}

// Ping asks a peer to identify itself.
type Ping struct {
	NodeID string `codec:"node_id"`
}

// Pong answers a Ping.
type Pong struct {
	NodeID string `codec:"node_id"`
}

// AppendEntriesKind selects the payload of an AppendEntriesRequest.
type AppendEntriesKind uint8

const (
	// AppendSynchronize announces the leader's last log position.
	AppendSynchronize AppendEntriesKind = iota + 1
	// AppendLogEntries carries log entries for forward replication.
	AppendLogEntries
	// AppendRollbackUpdates carries the leader's state for ids under rollback.
	AppendRollbackUpdates
)

// String returns the kind name.
func (k AppendEntriesKind) String() string {
	switch k {
	case AppendSynchronize:
		return "synchronize"
	case AppendLogEntries:
		return "entries"
	case AppendRollbackUpdates:
		return "rollback_updates"
	default:
		return "unknown"
	}
}

// AppendEntriesRequest is sent by the leader to a follower.
type AppendEntriesRequest struct {
	Kind AppendEntriesKind `codec:"kind"`
	Term uint64            `codec:"term"`

	// Synchronize
	LastLog domain.LogPosition `codec:"last_log"`

	// Entries
	Entries []LogUpdates `codec:"entries,omitempty"`

	// RollbackUpdates
	AccountID  domain.AccountID  `codec:"account_id"`
	Collection domain.Collection `codec:"collection"`
	Updates    []Update          `codec:"updates,omitempty"`
}

// LogUpdates is one log entry with the authoritative state of every
// document it touched.
type LogUpdates struct {
	Position domain.LogPosition `codec:"position"`
	Updates  []Update           `codec:"updates"`
}

// UpdateKind selects what an Update does.
type UpdateKind uint8

const (
	// UpdatePut writes the carried document.
	UpdatePut UpdateKind = iota + 1
	// UpdateRemove deletes the document id.
	UpdateRemove
)

// Update restores one document to a given state.
type Update struct {
	Kind       UpdateKind        `codec:"kind"`
	AccountID  domain.AccountID  `codec:"account_id"`
	Collection domain.Collection `codec:"collection"`
	DocumentID domain.DocumentID `codec:"document_id"`
	Document   domain.Document   `codec:"document"`
}

// AppendEntriesResponseKind selects the payload of an AppendEntriesResponse.
type AppendEntriesResponseKind uint8

const (
	// AppendContinue asks for another round without a state change.
	AppendContinue AppendEntriesResponseKind = iota + 1
	// AppendUpdate carries a serialized change-set.
	AppendUpdate
	// AppendMatch reports the follower's last applied log position.
	AppendMatch
)

// String returns the kind name.
func (k AppendEntriesResponseKind) String() string {
	switch k {
	case AppendContinue:
		return "continue"
	case AppendUpdate:
		return "update"
	case AppendMatch:
		return "match"
	default:
		return "unknown"
	}
}

// AppendEntriesResponse is sent by a follower to the leader.
type AppendEntriesResponse struct {
	Kind AppendEntriesResponseKind `codec:"kind"`

	// Update
	AccountID  domain.AccountID  `codec:"account_id"`
	Collection domain.Collection `codec:"collection"`
	Changes    []byte            `codec:"changes,omitempty"`
	IsRollback bool              `codec:"is_rollback"`

	// Match
	MatchLog domain.LogPosition `codec:"match_log"`
}

// NewSynchronize builds a Synchronize request.
func NewSynchronize(term uint64, lastLog domain.LogPosition) Request {
	return appendEntriesRequest(AppendEntriesRequest{Kind: AppendSynchronize, Term: term, LastLog: lastLog})
}

// NewEntries builds an Entries request.
func NewEntries(term uint64, entries []LogUpdates) Request {
	return appendEntriesRequest(AppendEntriesRequest{Kind: AppendLogEntries, Term: term, Entries: entries})
}

// NewRollbackUpdates builds a RollbackUpdates request.
func NewRollbackUpdates(term uint64, account domain.AccountID, collection domain.Collection, updates []Update) Request {
	return appendEntriesRequest(AppendEntriesRequest{
		Kind:       AppendRollbackUpdates,
		Term:       term,
		AccountID:  account,
		Collection: collection,
		Updates:    updates,
	})
}

func appendEntriesRequest(r AppendEntriesRequest) Request {
	return Request{Kind: RequestAppendEntries, AppendEntries: &r}
}

// NewPing builds a Ping request.
func NewPing(nodeID string) Request {
	return Request{Kind: RequestPing, Ping: &Ping{NodeID: nodeID}}
}

// NewPong builds a Pong response.
func NewPong(nodeID string) Response {
	return Response{Kind: ResponsePong, Pong: &Pong{NodeID: nodeID}}
}

// ContinueResponse builds a Continue response.
func ContinueResponse() Response {
	return appendEntriesResponse(AppendEntriesResponse{Kind: AppendContinue})
}

// UpdateResponse builds an Update response.
func UpdateResponse(account domain.AccountID, collection domain.Collection, changes []byte, isRollback bool) Response {
	return appendEntriesResponse(AppendEntriesResponse{
		Kind:       AppendUpdate,
		AccountID:  account,
		Collection: collection,
		Changes:    changes,
		IsRollback: isRollback,
	})
}

// MatchResponse builds a Match response.
func MatchResponse(matchLog domain.LogPosition) Response {
	return appendEntriesResponse(AppendEntriesResponse{Kind: AppendMatch, MatchLog: matchLog})
}

func appendEntriesResponse(r AppendEntriesResponse) Response {
	return Response{Kind: ResponseAppendEntries, AppendEntries: &r}
}
