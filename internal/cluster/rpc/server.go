package rpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"

	"connectrpc.com/connect"

	"github.com/yndnr/docmesh-go/internal/telemetry/logger"
)

// Handler answers requests received from a peer. Returning the none
// Response means abstaining; the caller observes no answer.
type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) Response

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Server serves peer exchange streams.
type Server struct {
	nodeID  string
	handler Handler
	logger  *slog.Logger
}

// NewServer creates a server answering pings as nodeID and passing every
// other request to handler.
func NewServer(nodeID string, handler Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		nodeID:  nodeID,
		handler: handler,
		logger:  logger.With("component", "rpc-server"),
	}
}

// Handler returns the connect route for the exchange procedure.
func (s *Server) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	return ExchangeProcedure, connect.NewBidiStreamHandler(ExchangeProcedure, s.exchange, opts...)
}

func (s *Server) exchange(ctx context.Context, stream *connect.BidiStream[Frame, Frame]) error {
	err := s.Serve(ctx, &handlerWire{stream: stream})
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Serve reads requests from wire until it fails, handling each one on its
// own goroutine and writing responses back in completion order. It returns
// after every started request finished.
func (s *Server) Serve(ctx context.Context, wire Wire) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		sendMu sync.Mutex
		wg     sync.WaitGroup
	)
	defer wg.Wait()

	for {
		f, err := wire.Recv()
		if err != nil {
			if errors.Is(err, ErrWireClosed) {
				return nil
			}
			return err
		}
		if f.Protocol.Request == nil {
			s.logger.Warn("unexpected response frame", "id", f.ID)
			continue
		}

		wg.Add(1)
		go func(f Frame) {
			defer wg.Done()

			reqCtx := logger.WithRequestID(ctx, logger.NewRequestID())
			resp := s.handle(reqCtx, f.Protocol.UnwrapRequest())
			if f.ID == 0 {
				return
			}

			sendMu.Lock()
			err := wire.Send(Frame{ID: f.ID, Protocol: Protocol{Response: &resp}})
			sendMu.Unlock()
			if err != nil {
				logger.L(reqCtx, s.logger).Warn("response send failed", "id", f.ID, "error", err)
			}
		}(f)
	}
}

// handle dispatches req. A panicking handler yields the none response.
func (s *Server) handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			logger.L(ctx, s.logger).Error("request handler panic recovered",
				"kind", req.Kind.String(),
				"panic", r,
				"stack", string(debug.Stack()))
			resp = Response{}
		}
	}()
	return s.dispatch(ctx, req)
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Kind {
	case RequestPing:
		return NewPong(s.nodeID)
	case RequestAppendEntries:
		if req.AppendEntries == nil {
			return Response{}
		}
		return s.handler.Handle(ctx, req)
	default:
		logger.L(ctx, s.logger).Debug("ignoring request", "kind", req.Kind.String())
		return Response{}
	}
}

// handlerWire adapts the server side of a connect bidi stream to Wire.
type handlerWire struct {
	stream *connect.BidiStream[Frame, Frame]
}

func (w *handlerWire) Send(f Frame) error {
	return w.stream.Send(&f)
}

func (w *handlerWire) Recv() (Frame, error) {
	f, err := w.stream.Receive()
	if err != nil {
		return Frame{}, err
	}
	return *f, nil
}

// Close is a no-op: the stream ends when the handler returns.
func (w *handlerWire) Close() error {
	return nil
}
