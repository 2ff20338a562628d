package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/axmq/mqttsession/mqttlog"
)

// WillPublisher is an optional collaborator notified of every will
// message due for delivery, for brokers that route wills outside the
// event flow. The primary surfacing is the WillEvent a Server emits on
// the dying connection's EventFlow.
type WillPublisher interface {
	PublishWill(ctx context.Context, will *WillMessage, clientID string) error
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// IdleTimeout expires a clean_session=false record that has stayed
	// disconnected this long without a resuming CONNECT, a behavior
	// MQTT 3.1.1 leaves to the implementation.
	IdleTimeout         time.Duration
	ExpiryCheckInterval time.Duration
	WillPublisher       WillPublisher
	AssignedIDPrefix    string
	Logger              mqttlog.Logger
}

// Manager owns the set of session Records across all connections on a
// server: creation, lookup, takeover, clean/idle expiry, and will
// delivery. It holds no live connector, router, or exchange state —
// those live in the runtime per-connection Session built on top of it.
type Manager struct {
	mu               sync.RWMutex
	store            Store
	active           map[string]*Record
	idleTimeout      time.Duration
	ticker           *time.Ticker
	stopCh           chan struct{}
	wg               sync.WaitGroup
	willPublisher    WillPublisher
	assignedIDPrefix string
	log              mqttlog.Logger
}

// NewManager starts a manager backed by store.
func NewManager(store Store, cfg ManagerConfig) *Manager {
	if cfg.ExpiryCheckInterval <= 0 {
		cfg.ExpiryCheckInterval = 30 * time.Second
	}
	if cfg.AssignedIDPrefix == "" {
		cfg.AssignedIDPrefix = "auto-"
	}
	if cfg.Logger == nil {
		cfg.Logger = mqttlog.Noop()
	}

	m := &Manager{
		store:            store,
		active:           make(map[string]*Record),
		idleTimeout:      cfg.IdleTimeout,
		ticker:           time.NewTicker(cfg.ExpiryCheckInterval),
		stopCh:           make(chan struct{}),
		willPublisher:    cfg.WillPublisher,
		assignedIDPrefix: cfg.AssignedIDPrefix,
		log:              cfg.Logger,
	}

	m.wg.Add(1)
	go m.expiryLoop()

	return m
}

// CreateOrResume returns the Record for clientID, creating one if
// absent. When cleanSession is true any prior record is discarded and
// sessionPresent is false; otherwise a prior non-expired record is
// resumed and sessionPresent is true.
func (m *Manager) CreateOrResume(ctx context.Context, clientID string, cleanSession bool) (rec *Record, sessionPresent bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prior, err := m.store.Load(ctx, clientID)
	if err != nil && err != ErrSessionNotFound {
		return nil, false, err
	}

	if prior != nil && prior.State != StateExpired {
		if cleanSession {
			prior.Subscriptions = nil
			prior.Will = nil
			prior.CleanSession = true
			prior.State = StateActive
			prior.Touch()
			m.active[clientID] = prior
			return prior, false, m.store.Save(ctx, clientID, prior)
		}
		prior.State = StateActive
		prior.Touch()
		m.active[clientID] = prior
		return prior, true, m.store.Save(ctx, clientID, prior)
	}

	rec = &Record{ClientID: clientID, CleanSession: cleanSession, State: StateActive, LastSeen: time.Now()}
	m.active[clientID] = rec
	if err := m.store.Save(ctx, clientID, rec); err != nil {
		delete(m.active, clientID)
		return nil, false, err
	}
	return rec, false, nil
}

// Get returns the Record for clientID, active or persisted.
func (m *Manager) Get(ctx context.Context, clientID string) (*Record, error) {
	m.mu.RLock()
	if rec, ok := m.active[clientID]; ok {
		m.mu.RUnlock()
		return rec, nil
	}
	m.mu.RUnlock()
	return m.store.Load(ctx, clientID)
}

// Disconnect marks clientID's record disconnected and discards it
// entirely when CleanSession is true. It returns the will message due
// for delivery: nil on a graceful DISCONNECT (sendWill false) or when
// none was stored. The caller surfaces the will as a WillEvent; any
// configured WillPublisher is notified here as well. A will fires at
// most once.
func (m *Manager) Disconnect(ctx context.Context, clientID string, sendWill bool) (*WillMessage, error) {
	rec, err := m.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}

	rec.State = StateDisconnected
	rec.Touch()

	var will *WillMessage
	if sendWill && rec.Will != nil {
		will = rec.Will
		if m.willPublisher != nil {
			if err := m.willPublisher.PublishWill(ctx, will, clientID); err != nil {
				m.log.Warn("will publish failed", mqttlog.ClientID(clientID), mqttlog.Err(err))
			}
		}
	}
	rec.Will = nil

	m.mu.Lock()
	delete(m.active, clientID)
	m.mu.Unlock()

	if rec.CleanSession {
		return will, m.store.Delete(ctx, clientID)
	}
	return will, m.store.Save(ctx, clientID, rec)
}

// Takeover clears the will message of the record being displaced by a
// new CONNECT for the same client id, so no will fires for a
// connection the client itself is replacing.
func (m *Manager) Takeover(ctx context.Context, clientID string) error {
	rec, err := m.Get(ctx, clientID)
	if err != nil {
		if err == ErrSessionNotFound {
			return nil
		}
		return err
	}
	rec.Will = nil
	return nil
}

// GenerateClientID assigns a random client id for a CONNECT with an
// empty ClientID field.
func (m *Manager) GenerateClientID(ctx context.Context) (string, error) {
	for i := 0; i < 10; i++ {
		b := make([]byte, 16)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		id := m.assignedIDPrefix + hex.EncodeToString(b)

		exists, err := m.store.Exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", ErrSessionAlreadyExists
}

func (m *Manager) expiryLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ticker.C:
			m.sweepIdle()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) sweepIdle() {
	if m.idleTimeout <= 0 {
		return
	}
	ctx := context.Background()

	ids, err := m.store.List(ctx)
	if err != nil {
		return
	}

	for _, clientID := range ids {
		rec, err := m.store.Load(ctx, clientID)
		if err != nil {
			continue
		}
		if rec.State != StateDisconnected {
			continue
		}
		if time.Since(rec.LastSeen) < m.idleTimeout {
			continue
		}
		rec.State = StateExpired
		_ = m.store.Delete(ctx, clientID)
		m.log.Info("session expired", mqttlog.ClientID(clientID))
	}
}

// Close stops the expiry sweep and closes the underlying store.
func (m *Manager) Close() error {
	close(m.stopCh)
	m.ticker.Stop()
	m.wg.Wait()
	return m.store.Close()
}

// ActiveCount returns the number of sessions currently attached to a
// live connection.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}
