package session

import (
	"time"

	"github.com/axmq/mqttsession/packet"
	"github.com/axmq/mqttsession/store"
)

// State is the persistence state of a session record.
type State int

const (
	StateActive State = iota
	StateDisconnected
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Record is the persisted state of one client session: the subscription list, the will message, and
// enough bookkeeping to decide whether a subsequent CONNECT resumes or
// replaces it. It holds no live exchanges or packet-id allocations —
// those belong to the runtime Session and are discarded whenever
// CleanSession is true.
type Record struct {
	ClientID      string
	CleanSession  bool
	Subscriptions []packet.TopicFilter
	Will          *WillMessage
	State         State
	ConnectionID  string
	LastSeen      time.Time
}

// Touch marks the record as seen just now.
func (r *Record) Touch() { r.LastSeen = time.Now() }

// Store persists session Records, keyed by client id. It is an
// instantiation of the generic store.Store[T] rather than a bespoke
// interface, so any backend implementing that interface can hold
// sessions.
type Store = store.Store[*Record]

// NewMemoryStore returns the in-memory Store used by default.
func NewMemoryStore() Store { return store.NewMemoryStore[*Record]() }
