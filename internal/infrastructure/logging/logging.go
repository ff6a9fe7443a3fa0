// Package logging provides the slog-backed implementation of
// domain/service.Logger, rebuilt in the shape the teacher's main.go
// imports it in (infrastructure/logging), pruned from the retrieval pack.
package logging

import (
	"log/slog"
	"os"

	"github.com/interhealth/syncengine/internal/domain/service"
)

// SlogLogger adapts a *slog.Logger to the domain/service.Logger interface.
type SlogLogger struct {
	l *slog.Logger
}

// New builds a JSON-handler SlogLogger writing to stderr at the given
// level ("debug", "info", "warn", "error"; defaults to "info").
func New(level string) *SlogLogger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return &SlogLogger{l: slog.New(h)}
}

func (s *SlogLogger) Debug(msg string, kv ...interface{}) { s.l.Debug(msg, kv...) }
func (s *SlogLogger) Info(msg string, kv ...interface{})  { s.l.Info(msg, kv...) }
func (s *SlogLogger) Warn(msg string, kv ...interface{})  { s.l.Warn(msg, kv...) }
func (s *SlogLogger) Error(msg string, kv ...interface{}) { s.l.Error(msg, kv...) }

func (s *SlogLogger) With(kv ...interface{}) service.Logger {
	return &SlogLogger{l: s.l.With(kv...)}
}
