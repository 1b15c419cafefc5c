package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/yndnr/docmesh-go/internal/telemetry/logger"
)

// LoggingInterceptor logs peer streams and unary calls.
type LoggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor creates a new logging interceptor.
func NewLoggingInterceptor(l *slog.Logger) *LoggingInterceptor {
	if l == nil {
		l = slog.Default()
	}
	return &LoggingInterceptor{logger: l}
}

// WrapUnary implements connect.Interceptor.
func (i *LoggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		if err != nil {
			i.logger.Error("cluster rpc error",
				"method", req.Spec().Procedure,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err)
		} else {
			i.logger.Debug("cluster rpc completed",
				"method", req.Spec().Procedure,
				"duration_ms", time.Since(start).Milliseconds())
		}
		return resp, err
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *LoggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		i.logger.Debug("cluster rpc stream opening", "method", spec.Procedure)
		return next(ctx, spec)
	}
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *LoggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		streamID := logger.NewRequestID()

		i.logger.Info("cluster rpc stream started",
			"method", conn.Spec().Procedure,
			"peer", conn.Peer().Addr,
			"stream_id", streamID)

		err := next(ctx, conn)

		duration := time.Since(start)
		if err != nil {
			i.logger.Error("cluster rpc stream error",
				"method", conn.Spec().Procedure,
				"stream_id", streamID,
				"duration_ms", duration.Milliseconds(),
				"error", err)
		} else {
			i.logger.Info("cluster rpc stream completed",
				"method", conn.Spec().Procedure,
				"stream_id", streamID,
				"duration_ms", duration.Milliseconds())
		}

		return err
	}
}

// RecoveryInterceptor turns panics on the stream goroutine into internal
// errors. Requests handled by Server.Serve run on their own goroutines and
// are recovered there.
type RecoveryInterceptor struct {
	logger *slog.Logger
}

// NewRecoveryInterceptor creates a new recovery interceptor.
func NewRecoveryInterceptor(l *slog.Logger) *RecoveryInterceptor {
	if l == nil {
		l = slog.Default()
	}
	return &RecoveryInterceptor{logger: l}
}

// WrapUnary implements connect.Interceptor.
func (i *RecoveryInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, err error) {
		defer func() {
			if r := recover(); r != nil {
				i.logger.Error("cluster rpc panic recovered",
					"method", req.Spec().Procedure,
					"panic", r)
				err = connect.NewError(connect.CodeInternal, fmt.Errorf("internal server error: panic recovered"))
			}
		}()
		return next(ctx, req)
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *RecoveryInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *RecoveryInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) (err error) {
		defer func() {
			if r := recover(); r != nil {
				i.logger.Error("cluster rpc stream panic recovered",
					"method", conn.Spec().Procedure,
					"panic", r)
				err = connect.NewError(connect.CodeInternal, fmt.Errorf("internal server error: panic recovered"))
			}
		}()
		return next(ctx, conn)
	}
}

// DefaultInterceptors returns the interceptors installed on peer streams.
func DefaultInterceptors(l *slog.Logger) []connect.Interceptor {
	return []connect.Interceptor{
		NewRecoveryInterceptor(l),
		NewLoggingInterceptor(l),
	}
}
