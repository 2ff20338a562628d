package mqttlog

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/axmq/mqttsession/packet"
)

func TestLoggerWritesAtOrAboveMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.LevelInfo, &buf)

	log.Debug("hidden")
	log.Info("shown", "key", "value")
	log.Error("also shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "also shown")
}

func TestDomainAttrsRenderUnderSharedKeys(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.LevelDebug, &buf)

	log.Warn("route miss", PacketID(7), PacketType(packet.PUBACK), ClientID("c1"), Err(assert.AnError))

	out := buf.String()
	assert.Contains(t, out, "packet_id=7")
	assert.Contains(t, out, "packet_type=PUBACK")
	assert.Contains(t, out, "client_id=c1")
	assert.Contains(t, out, "err=")
}

func TestWithScopesEveryEntry(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.LevelDebug, &buf).With(ConnectionID("conn-9"))

	log.Info("first")
	log.Info("second")

	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("connection_id=conn-9")))
	assert.Contains(t, buf.String(), "first")
	assert.Contains(t, buf.String(), "second")
}

func TestNoopDiscards(t *testing.T) {
	log := Noop()
	assert.NotPanics(t, func() {
		log.Debug("a")
		log.Info("b")
		log.Warn("c")
		log.Error("d")
		log.With("k", "v").Info("e")
	})
}
