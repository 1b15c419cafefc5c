package rpc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/docmesh-go/internal/telemetry/metric"
)

// ErrPeerClosed is returned by Run after Close.
var ErrPeerClosed = errors.New("rpc: peer closed")

// DefaultQueueSize is the outbound queue length of a peer.
const DefaultQueueSize = 128

// event is one queued outbound request. A nil reply slot marks a
// fire-and-forget request.
type event struct {
	req     Request
	reply   chan Response
	created time.Time
}

// Peer is the outbound side of one cluster member.
type Peer struct {
	id      string
	events  chan event
	done    chan struct{}
	once    sync.Once
	logger  *slog.Logger
	metrics *metric.Registry
}

// PeerOption configures a Peer.
type PeerOption func(*Peer)

// WithQueueSize sets the outbound queue length.
func WithQueueSize(n int) PeerOption {
	return func(p *Peer) {
		if n > 0 {
			p.events = make(chan event, n)
		}
	}
}

// WithLogger sets the peer logger.
func WithLogger(logger *slog.Logger) PeerOption {
	return func(p *Peer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records request metrics into m.
func WithMetrics(m *metric.Registry) PeerOption {
	return func(p *Peer) {
		p.metrics = m
	}
}

// NewPeer creates the outbound side of peer id. Requests are queued until
// Run drains them onto a wire.
func NewPeer(id string, opts ...PeerOption) *Peer {
	p := &Peer{
		id:     id,
		events: make(chan event, DefaultQueueSize),
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("peer", id)
	return p
}

// ID returns the peer id.
func (p *Peer) ID() string {
	return p.id
}

// Close tears the peer down. Queued and in-flight requests resolve to the
// none response.
func (p *Peer) Close() {
	p.once.Do(func() { close(p.done) })
}

// SendRequest sends req and waits for its response. It returns the none
// response when the peer is closed, the connection carrying the request
// fails, or ctx ends first.
func (p *Peer) SendRequest(ctx context.Context, req Request) Response {
	kind := req.Kind.String()
	p.metrics.RecordRequest(kind, "send")

	ev := event{req: req, reply: make(chan Response, 1), created: time.Now()}
	select {
	case p.events <- ev:
	case <-p.done:
		return p.none(kind, "peer closed")
	case <-ctx.Done():
		return p.none(kind, "context done before send")
	}

	select {
	case resp := <-ev.reply:
		p.metrics.ObserveRequestDuration(kind, time.Since(ev.created).Seconds())
		if resp.IsNone() {
			p.metrics.IncNoResponse()
		}
		return resp
	case <-p.done:
	case <-ctx.Done():
	}

	// A reply may have landed together with the shutdown signal.
	select {
	case resp := <-ev.reply:
		return resp
	default:
		return p.none(kind, "no reply")
	}
}

func (p *Peer) none(kind, reason string) Response {
	p.metrics.IncNoResponse()
	p.logger.Debug("request resolved without response", "kind", kind, "reason", reason)
	return Response{}
}

// DispatchRequest queues req without waiting for a reply. It never blocks:
// when the queue is full or the peer is closed the request is dropped and
// logged.
func (p *Peer) DispatchRequest(req Request) {
	kind := req.Kind.String()
	p.metrics.RecordRequest(kind, "dispatch")

	select {
	case <-p.done:
		p.logger.Warn("dispatch to closed peer dropped", "kind", kind)
		return
	default:
	}
	select {
	case p.events <- event{req: req, created: time.Now()}:
	default:
		p.logger.Warn("peer queue full, dispatch dropped", "kind", kind)
	}
}

// Run drains the outbound queue onto wire until the wire fails, ctx ends
// or the peer is closed. It is the single writer of wire and assigns each
// request that expects a reply a correlation id. Responses are routed back
// by a reader goroutine, so they may arrive in any order.
//
// When Run returns, wire is closed and every request still waiting on it
// resolves to the none response. Requests still queued stay queued for the
// next Run.
func (p *Peer) Run(ctx context.Context, wire Wire) error {
	var (
		mu      sync.Mutex
		pending = make(map[uint64]chan Response)
		nextID  uint64
	)

	readErr := make(chan error, 1)
	go func() {
		readErr <- p.readLoop(wire, &mu, pending)
	}()

	readerDone := false
	defer func() {
		wire.Close()
		if !readerDone {
			<-readErr
		}
		mu.Lock()
		for id, slot := range pending {
			slot <- Response{}
			delete(pending, id)
		}
		mu.Unlock()
	}()

	for {
		select {
		case ev := <-p.events:
			var id uint64
			if ev.reply != nil {
				nextID++
				id = nextID
				mu.Lock()
				pending[id] = ev.reply
				mu.Unlock()
			}
			req := ev.req
			if err := wire.Send(Frame{ID: id, Protocol: Protocol{Request: &req}}); err != nil {
				p.logger.Warn("peer send failed", "kind", req.Kind.String(), "error", err)
				return err
			}

		case err := <-readErr:
			readerDone = true
			return err

		case <-ctx.Done():
			return ctx.Err()

		case <-p.done:
			return ErrPeerClosed
		}
	}
}

// readLoop routes response frames to their reply slots.
func (p *Peer) readLoop(wire Wire, mu *sync.Mutex, pending map[uint64]chan Response) error {
	for {
		f, err := wire.Recv()
		if err != nil {
			return err
		}
		if f.Protocol.Response == nil {
			p.logger.Warn("unexpected request frame from peer", "id", f.ID)
			continue
		}

		mu.Lock()
		slot, ok := pending[f.ID]
		delete(pending, f.ID)
		mu.Unlock()

		if !ok {
			p.logger.Debug("response for unknown request", "id", f.ID)
			continue
		}
		slot <- f.Protocol.UnwrapResponse()
	}
}

// Connect runs the peer against wires obtained from dial until ctx ends or
// the peer is closed, redialing after failures with a fixed backoff.
func (p *Peer) Connect(ctx context.Context, dial func(context.Context) (Wire, error), backoff time.Duration) {
	for {
		wire, err := dial(ctx)
		if err != nil {
			p.logger.Warn("peer dial failed", "error", err)
		} else {
			err = p.Run(ctx, wire)
			if errors.Is(err, ErrPeerClosed) || ctx.Err() != nil {
				return
			}
			p.logger.Info("peer connection lost", "error", err)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		case <-p.done:
			return
		}
	}
}
