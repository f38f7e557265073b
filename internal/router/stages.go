package router

import (
	"log/slog"
	"strconv"

	"github.com/rickgao/fixrouter/internal/connection"
	"github.com/rickgao/fixrouter/internal/fix"
	"github.com/rickgao/fixrouter/internal/registry"
)

// validateStage checks the checksum and, optionally, the claimed sender.
type validateStage struct {
	cfg    Config
	logger *slog.Logger
}

func (s *validateStage) Name() string { return "validate" }

func (s *validateStage) Process(ctx *Context) Outcome {
	if !fix.ValidChecksum(ctx.Raw) {
		ctx.Reason = ReasonInvalidChecksum
		return Rejected
	}

	claimed, ok := ctx.Fields.Get(fix.TagSenderCompID)
	if ok && ctx.SourceID != 0 && claimed != strconv.Itoa(ctx.SourceID) {
		s.logger.Warn("sender does not match session",
			"claimed", claimed,
			"session_id", ctx.SourceID,
			"role", ctx.SourceRole,
		)
		if s.cfg.StrictSender {
			ctx.Reason = ReasonSenderMismatch
			return Rejected
		}
	}
	return Continue
}

// routeStage resolves tag 56 and enforces the broker/market direction rule.
// On success ctx.Dest holds the destination connection.
type routeStage struct {
	reg *registry.Registry
}

func (s *routeStage) Name() string { return "route" }

func (s *routeStage) Process(ctx *Context) Outcome {
	if ctx.SourceRole == connection.RoleUnknown {
		ctx.Reason = ReasonSessionSuperseded
		return Rejected
	}

	destID, err := ctx.Fields.Int(fix.TagTargetCompID)
	if err != nil {
		ctx.Reason = ReasonDestinationUnknown
		return Rejected
	}
	ctx.DestID = destID

	destRole := s.reg.RoleOfID(destID)
	if destRole == connection.RoleUnknown {
		ctx.Reason = ReasonDestinationUnknown
		return Rejected
	}
	if destRole != ctx.SourceRole.Peer() {
		if ctx.SourceRole == connection.RoleBroker {
			ctx.Reason = ReasonBrokerToMarketOnly
		} else {
			ctx.Reason = ReasonMarketToBrokerOnly
		}
		return Rejected
	}

	dest, ok := s.reg.Lookup(destRole, destID)
	if !ok {
		ctx.Reason = ReasonDestinationUnknown
		return Rejected
	}
	ctx.Dest = dest
	ctx.DestRole = destRole
	return Continue
}

// forwardStage writes the message verbatim to the destination. Messages for
// an identity that is replaying its backlog, or whose connection is gone,
// are queued under the destination identity.
type forwardStage struct {
	reg    *registry.Registry
	logger *slog.Logger
}

func (s *forwardStage) Name() string { return "forward" }

func (s *forwardStage) Process(ctx *Context) Outcome {
	if s.reg.QueueIfReplaying(ctx.DestID, ctx.Raw) {
		return Queued
	}

	if err := ctx.Dest.Send(ctx.Raw); err != nil {
		s.logger.Info("destination unavailable, queueing",
			"dest_id", ctx.DestID,
			"dest_role", ctx.DestRole,
			"error", err,
		)
		s.reg.EnqueuePending(ctx.DestID, ctx.Raw)
		if ctx.DestRole == connection.RoleBroker {
			ctx.Reason = ReasonBrokerUnavailable
		} else {
			ctx.Reason = ReasonMarketUnavailable
		}
		return Queued
	}
	return Delivered
}
