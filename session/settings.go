package session

import (
	"time"

	"github.com/axmq/mqttsession/connector"
	"github.com/axmq/mqttsession/exchange"
	"github.com/axmq/mqttsession/mqttlog"
)

// Settings gathers every tunable the engine exposes into one
// zero-value-safe struct; DefaultSettings supplies the stock values
// and withDefaults fills any field left at its zero value.
type Settings struct {
	// MaxPacketSize caps the fixed header's remaining-length field, the
	// limit codec.NewFramer takes. Client and Server do not read it:
	// their HandleFrame methods receive packets that are already decoded.
	MaxPacketSize uint32

	// ClientSendBufferSize/ServerSendBufferSize bound the outbound byte
	// queue per connection.
	ClientSendBufferSize int
	ServerSendBufferSize int

	// CommandParallelism bounds concurrent in-flight Submit calls; must
	// be >= 2. EventParallelism is defaulted but not read by Client or
	// Server; event delivery is not bounded by it.
	CommandParallelism int
	EventParallelism   int

	// AskTimeout is defaulted but not read by Client or Server.
	AskTimeout time.Duration

	// Exchange timeouts.
	ProducerPubAckRecTimeout time.Duration
	ProducerPubCompTimeout   time.Duration
	ConsumerPubAckRecTimeout time.Duration
	ConsumerPubRelTimeout    time.Duration
	ConsumerPubCompTimeout   time.Duration
	SubscribeAckTimeout      time.Duration
	UnsubscribeAckTimeout    time.Duration

	// ReceiveConnAckTimeout bounds the client's wait for CONNACK.
	// ReceiveConnectTimeout is defaulted but not read: the server puts no
	// deadline on a connection that has not yet sent CONNECT.
	ReceiveConnectTimeout time.Duration
	ReceiveConnAckTimeout time.Duration

	// ClientTerminationWatcherBufferSize bounds the server's
	// watchClientSessions broadcast; overflow drops the
	// newest notice.
	ClientTerminationWatcherBufferSize int

	// SessionExpiryInterval is defaulted but not read by Client, Server
	// or Manager; the Manager's idle sweep of clean_session=false
	// records uses ManagerConfig.IdleTimeout.
	SessionExpiryInterval time.Duration

	Logger mqttlog.Logger
}

// DefaultSettings returns the stock configuration.
func DefaultSettings() Settings {
	return Settings{
		MaxPacketSize:                      256 * 1024 * 1024,
		ClientSendBufferSize:               64,
		ServerSendBufferSize:               64,
		CommandParallelism:                 8,
		EventParallelism:                   8,
		AskTimeout:                         10 * time.Second,
		ProducerPubAckRecTimeout:           20 * time.Second,
		ProducerPubCompTimeout:             20 * time.Second,
		ConsumerPubAckRecTimeout:           20 * time.Second,
		ConsumerPubRelTimeout:              20 * time.Second,
		ConsumerPubCompTimeout:             20 * time.Second,
		SubscribeAckTimeout:                20 * time.Second,
		UnsubscribeAckTimeout:              20 * time.Second,
		ReceiveConnectTimeout:              20 * time.Second,
		ReceiveConnAckTimeout:              20 * time.Second,
		ClientTerminationWatcherBufferSize: 64,
		SessionExpiryInterval:              1 * time.Hour,
		Logger:                             mqttlog.Noop(),
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxPacketSize == 0 {
		s.MaxPacketSize = d.MaxPacketSize
	}
	if s.ClientSendBufferSize <= 0 {
		s.ClientSendBufferSize = d.ClientSendBufferSize
	}
	if s.ServerSendBufferSize <= 0 {
		s.ServerSendBufferSize = d.ServerSendBufferSize
	}
	if s.CommandParallelism < 2 {
		s.CommandParallelism = d.CommandParallelism
	}
	if s.EventParallelism <= 0 {
		s.EventParallelism = d.EventParallelism
	}
	if s.AskTimeout <= 0 {
		s.AskTimeout = d.AskTimeout
	}
	if s.ProducerPubAckRecTimeout <= 0 {
		s.ProducerPubAckRecTimeout = d.ProducerPubAckRecTimeout
	}
	if s.ProducerPubCompTimeout <= 0 {
		s.ProducerPubCompTimeout = d.ProducerPubCompTimeout
	}
	if s.ConsumerPubAckRecTimeout <= 0 {
		s.ConsumerPubAckRecTimeout = d.ConsumerPubAckRecTimeout
	}
	if s.ConsumerPubRelTimeout <= 0 {
		s.ConsumerPubRelTimeout = d.ConsumerPubRelTimeout
	}
	if s.ConsumerPubCompTimeout <= 0 {
		s.ConsumerPubCompTimeout = d.ConsumerPubCompTimeout
	}
	if s.SubscribeAckTimeout <= 0 {
		s.SubscribeAckTimeout = d.SubscribeAckTimeout
	}
	if s.UnsubscribeAckTimeout <= 0 {
		s.UnsubscribeAckTimeout = d.UnsubscribeAckTimeout
	}
	if s.ReceiveConnectTimeout <= 0 {
		s.ReceiveConnectTimeout = d.ReceiveConnectTimeout
	}
	if s.ReceiveConnAckTimeout <= 0 {
		s.ReceiveConnAckTimeout = d.ReceiveConnAckTimeout
	}
	if s.ClientTerminationWatcherBufferSize <= 0 {
		s.ClientTerminationWatcherBufferSize = d.ClientTerminationWatcherBufferSize
	}
	if s.SessionExpiryInterval <= 0 {
		s.SessionExpiryInterval = d.SessionExpiryInterval
	}
	if s.Logger == nil {
		s.Logger = d.Logger
	}
	return s
}

func (s Settings) producerConfig() exchange.Config {
	return exchange.Config{AckTimeout: s.ProducerPubAckRecTimeout, MaxAttempts: exchange.DefaultConfig().MaxAttempts}
}

func (s Settings) clientConnectorConfig() connector.ClientConnectorConfig {
	return connector.ClientConnectorConfig{ConnAckTimeout: s.ReceiveConnAckTimeout}
}
