package session

import (
	"errors"
	"time"

	"github.com/rickgao/fixrouter/internal/connection"
)

// ReasonSuperseded is the Logout text sent to a connection replaced by a
// newer one under the same identity.
const ReasonSuperseded = "A new connection has been established"

// NewIdentity is the handshake value that requests a fresh identity.
const NewIdentity = -1

// Errors
var (
	ErrBadHandshake = errors.New("handshake is not an integer")
	ErrNotStarted   = errors.New("listener not started")
)

// Config holds configuration for the Listener.
type Config struct {
	BrokerAddr string // Default: ":5000"
	MarketAddr string // Default: ":5001"

	HandshakeTimeout time.Duration // Default: 30s
	ReplayDelay      time.Duration // Default: 1s

	Conn connection.Config
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BrokerAddr:       ":5000",
		MarketAddr:       ":5001",
		HandshakeTimeout: 30 * time.Second,
		ReplayDelay:      time.Second,
		Conn:             connection.DefaultConfig(),
	}
}

// Kind classifies a session lifecycle event.
type Kind string

const (
	KindNew             Kind = "new"
	KindReconnect       Kind = "reconnect"
	KindReplayed        Kind = "replayed"
	KindClosed          Kind = "closed"
	KindHandshakeFailed Kind = "handshake_failed"
)

// Event reports a session lifecycle change.
type Event struct {
	Time       time.Time       `json:"time"`
	Role       connection.Role `json:"role"`
	ID         int             `json:"id,omitempty"`
	Kind       Kind            `json:"kind"`
	RemoteAddr string          `json:"remote_addr"`
	Replayed   int             `json:"replayed,omitempty"`
}

// Observer receives session lifecycle events. SessionEvent must not block.
type Observer interface {
	SessionEvent(Event)
}
