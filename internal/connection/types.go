package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrAlreadyClosed = errors.New("already closed")
	ErrLineTooLong   = errors.New("line exceeds max length")
)

// Role is the population a connection belongs to.
type Role string

const (
	RoleBroker  Role = "broker"
	RoleMarket  Role = "market"
	RoleUnknown Role = "unknown"
)

// Peer returns the role a connection of role r is allowed to address.
func (r Role) Peer() Role {
	switch r {
	case RoleBroker:
		return RoleMarket
	case RoleMarket:
		return RoleBroker
	}
	return RoleUnknown
}

// Config configures a Conn.
type Config struct {
	WriteTimeout time.Duration // Write deadline for each Send (0 = none)
	MaxLineBytes int           // Longest accepted inbound line
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		MaxLineBytes: 64 * 1024,
	}
}
