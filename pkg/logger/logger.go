// Package logger defines the logging interface used by the bindings and the
// client implementations, with log/slog and zerolog backends.
package logger

import (
	"io"
	"log/slog"
)

// Logger is the minimal leveled, key-value logger the module writes to.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

type SlogHandler struct {
	logger *slog.Logger
}

// New returns a Logger writing through the given slog handler.
func New(h slog.Handler) *SlogHandler {
	return &SlogHandler{logger: slog.New(h)}
}

func (handler *SlogHandler) Error(msg string, args ...any) {
	handler.logger.Error(msg, args...)
}

func (handler *SlogHandler) Warn(msg string, args ...any) {
	handler.logger.Warn(msg, args...)
}

func (handler *SlogHandler) Info(msg string, args ...any) {
	handler.logger.Info(msg, args...)
}

func (handler *SlogHandler) Debug(msg string, args ...any) {
	handler.logger.Debug(msg, args...)
}

// With returns a Logger that adds args to every record.
func (handler *SlogHandler) With(args ...any) *SlogHandler {
	return &SlogHandler{logger: handler.logger.With(args...)}
}

type nop struct{}

func (nop) Error(string, ...any) {}
func (nop) Warn(string, ...any)  {}
func (nop) Info(string, ...any)  {}
func (nop) Debug(string, ...any) {}

// Nop discards everything.
var Nop Logger = nop{}

// Discard is a slog-backed logger writing to io.Discard, useful in tests that
// still want handler formatting to run.
func Discard() *SlogHandler {
	return New(slog.NewTextHandler(io.Discard, nil))
}

// OrNop returns l, or Nop when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop
	}
	return l
}
