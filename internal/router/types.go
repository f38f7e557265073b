package router

import (
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/fixrouter/internal/connection"
	"github.com/rickgao/fixrouter/internal/fix"
)

// Reject reasons sent back to the source in tag 58.
const (
	ReasonInvalidChecksum    = "Invalid checksum"
	ReasonBrokerToMarketOnly = "Broker can send messages only to the market"
	ReasonMarketToBrokerOnly = "Market can send messages only to the broker"
	ReasonDestinationUnknown = "Destination not found"
	ReasonBrokerUnavailable  = "Broker not available"
	ReasonMarketUnavailable  = "Market not available"
	ReasonSenderMismatch     = "SenderCompID does not match session"
	ReasonSessionSuperseded  = "Session is no longer registered"
)

// Config holds configuration for the Pipeline.
type Config struct {
	// StrictSender rejects messages whose tag 49 differs from the identity
	// bound to the connection. When false the mismatch is only logged.
	StrictSender bool
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{}
}

// Outcome is the result of a stage, or of a whole pipeline run.
type Outcome int

const (
	Continue Outcome = iota
	Delivered
	Rejected
	Queued
	// Replayed is only reported in events, for backlog delivered on reconnect.
	Replayed
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Delivered:
		return "delivered"
	case Rejected:
		return "rejected"
	case Queued:
		return "queued"
	case Replayed:
		return "replayed"
	}
	return "unknown"
}

// Context carries one inbound message through the stages. Stages fill in
// the destination as they go.
type Context struct {
	MsgID      uuid.UUID
	ReceivedAt time.Time

	Source     *connection.Conn
	SourceID   int
	SourceRole connection.Role

	Dest     *connection.Conn
	DestID   int
	DestRole connection.Role

	Raw    string
	Fields fix.Fields

	// Reason is set by the stage that rejects or queues the message.
	Reason string
}

// Stage is one step of the pipeline. Process returns Continue to hand the
// message to the next stage; any other outcome is terminal.
type Stage interface {
	Name() string
	Process(ctx *Context) Outcome
}

// Event describes what happened to one message.
type Event struct {
	MsgID    uuid.UUID     `json:"msg_id"`
	Time     time.Time     `json:"time"`
	SourceID int           `json:"source_id"`
	DestID   int           `json:"dest_id"`
	MsgType  string        `json:"msg_type"`
	ClOrdID  string        `json:"cl_ord_id,omitempty"`
	Outcome  Outcome       `json:"-"`
	Result   string        `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	Stage    string        `json:"stage,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Raw      string        `json:"raw"`
}

// Observer receives an Event for every terminal outcome and every replayed
// message. Observe is called on the connection's goroutine and must not
// block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) { f(ev) }
