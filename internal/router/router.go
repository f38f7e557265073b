// Package router implements the message pipeline: validate, route and
// forward, run in order for every inbound line.
package router

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/fixrouter/internal/connection"
	"github.com/rickgao/fixrouter/internal/fix"
	"github.com/rickgao/fixrouter/internal/registry"
)

// Pipeline runs an ordered list of stages over each message. It holds no
// per-message state and is safe for concurrent use by every connection.
type Pipeline struct {
	reg       *registry.Registry
	cfg       Config
	logger    *slog.Logger
	stages    []Stage
	observers []Observer
}

// New composes the validate, route and forward stages.
func New(reg *registry.Registry, cfg Config, logger *slog.Logger, observers ...Observer) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pipeline")

	return &Pipeline{
		reg:    reg,
		cfg:    cfg,
		logger: logger,
		stages: []Stage{
			&validateStage{cfg: cfg, logger: logger},
			&routeStage{reg: reg},
			&forwardStage{reg: reg, logger: logger},
		},
		observers: observers,
	}
}

// Stages returns the stages in execution order.
func (p *Pipeline) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Handle runs raw, received on src, through the stages. A rejected message,
// or one queued because its destination could not be written, is answered
// with a Reject to src.
func (p *Pipeline) Handle(src *connection.Conn, raw string) Outcome {
	role, id := p.reg.RoleOf(src)
	ctx := &Context{
		MsgID:      uuid.New(),
		ReceivedAt: time.Now(),
		Source:     src,
		SourceID:   id,
		SourceRole: role,
		Raw:        raw,
		Fields:     fix.Parse(raw),
	}

	outcome := Continue
	var last Stage
	for _, stage := range p.stages {
		last = stage
		outcome = stage.Process(ctx)
		if outcome != Continue {
			break
		}
	}
	if outcome == Continue {
		// Every stage passed without delivering; treat as delivered.
		outcome = Delivered
	}

	if ctx.Reason != "" && (outcome == Rejected || outcome == Queued) {
		p.reject(ctx)
	}

	p.logger.Debug("message handled",
		"msg_id", ctx.MsgID,
		"source_id", ctx.SourceID,
		"dest_id", ctx.DestID,
		"outcome", outcome,
		"reason", ctx.Reason,
		"stage", last.Name(),
	)

	p.publish(Event{
		MsgID:    ctx.MsgID,
		Time:     ctx.ReceivedAt,
		SourceID: ctx.SourceID,
		DestID:   ctx.DestID,
		MsgType:  ctx.Fields.MsgType(),
		ClOrdID:  ctx.Fields[fix.TagClOrdID],
		Outcome:  outcome,
		Reason:   ctx.Reason,
		Stage:    last.Name(),
		Duration: time.Since(ctx.ReceivedAt),
		Raw:      raw,
	})
	return outcome
}

// RecordReplay publishes an event for a backlog message delivered to destID
// after it reconnected.
func (p *Pipeline) RecordReplay(destID int, raw string) {
	fields := fix.Parse(raw)
	sourceID, _ := fields.Int(fix.TagSenderCompID)
	p.publish(Event{
		MsgID:    uuid.New(),
		Time:     time.Now(),
		SourceID: sourceID,
		DestID:   destID,
		MsgType:  fields.MsgType(),
		ClOrdID:  fields[fix.TagClOrdID],
		Outcome:  Replayed,
		Raw:      raw,
	})
}

func (p *Pipeline) reject(ctx *Context) {
	if err := ctx.Source.Send(fix.Reject(ctx.Raw, ctx.Reason)); err != nil {
		p.logger.Debug("reject not delivered",
			"source_id", ctx.SourceID,
			"reason", ctx.Reason,
			"error", err,
		)
	}
}

func (p *Pipeline) publish(ev Event) {
	ev.Result = ev.Outcome.String()
	for _, o := range p.observers {
		o.Observe(ev)
	}
}
