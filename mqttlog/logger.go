// Package mqttlog provides the logging surface of the session engine:
// a small Logger interface over log/slog plus the attribute
// constructors the engine's packages share, so packet ids, connection
// ids, and client ids render under the same keys on every log line.
package mqttlog

import (
	"io"
	"log/slog"
	"os"

	"github.com/axmq/mqttsession/packet"
)

// Logger is what every engine component logs through, rather than
// *slog.Logger directly, so tests can substitute a no-op or recording
// implementation.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a Logger whose every entry carries args, used to
	// scope a logger to one connection or session up front.
	With(args ...any) Logger
}

// Attribute keys shared by every engine log line.
const (
	KeyPacketID     = "packet_id"
	KeyPacketType   = "packet_type"
	KeyConnectionID = "connection_id"
	KeyClientID     = "client_id"
	KeyError        = "err"
)

// PacketID tags a log entry with an MQTT packet identifier.
func PacketID(id uint16) slog.Attr { return slog.Int(KeyPacketID, int(id)) }

// PacketType tags a log entry with the control packet kind involved.
func PacketType(t packet.Type) slog.Attr { return slog.String(KeyPacketType, t.String()) }

// ConnectionID tags a log entry with the transport-level connection id.
func ConnectionID(id string) slog.Attr { return slog.String(KeyConnectionID, id) }

// ClientID tags a log entry with the MQTT client identifier.
func ClientID(id string) slog.Attr { return slog.String(KeyClientID, id) }

// Err tags a log entry with the failure being reported.
func Err(err error) slog.Attr { return slog.Any(KeyError, err) }

type slogLogger struct{ l *slog.Logger }

// New returns a Logger writing slog text lines to w at or above
// minLevel. A nil writer defaults to os.Stdout.
func New(minLevel slog.Level, w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return Wrap(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: minLevel})))
}

// Wrap adapts an existing *slog.Logger, for applications that already
// carry one.
func Wrap(l *slog.Logger) Logger { return &slogLogger{l: l} }

// Noop returns a Logger that discards everything, the default in
// session.Settings.
func Noop() Logger { return &slogLogger{l: slog.New(slog.NewTextHandler(io.Discard, nil))} }

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any) { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any) { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s *slogLogger) With(args ...any) Logger { return &slogLogger{l: s.l.With(args...)} }
