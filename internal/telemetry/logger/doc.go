// Package logger builds the node's *slog.Logger.
//
// Records go through log/slog's JSON or text handler, or through zap when
// the zap backend is configured. Every logger shares one level that can be
// changed at runtime with SetLevel. Secret-keyed values and URL
// credentials are masked on output.
//
// Request ids travel in the context: WithRequestID stores one and L tags a
// component logger with it, so the log lines of one peer request or one
// sync round can be correlated.
package logger
