// Package session accepts broker and market connections, performs the
// identity handshake and feeds each connection's lines to the pipeline.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/fixrouter/internal/connection"
	"github.com/rickgao/fixrouter/internal/fix"
	"github.com/rickgao/fixrouter/internal/registry"
	"github.com/rickgao/fixrouter/internal/router"
)

// replayRetryInterval is how long a replay waits for a superseded
// connection to hand back the batch it holds.
const replayRetryInterval = 10 * time.Millisecond

// Listener runs one accept loop per role.
type Listener struct {
	cfg       Config
	reg       *registry.Registry
	pipeline  *router.Pipeline
	logger    *slog.Logger
	observers []Observer

	mu        sync.Mutex
	listeners map[connection.Role]net.Listener

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // accept loops
}

// NewListener creates a Listener. Nothing is bound until Start.
func NewListener(cfg Config, reg *registry.Registry, pipeline *router.Pipeline, logger *slog.Logger, observers ...Observer) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		cfg:       cfg,
		reg:       reg,
		pipeline:  pipeline,
		logger:    logger.With("component", "session"),
		observers: observers,
		listeners: make(map[connection.Role]net.Listener),
	}
}

// Start binds both endpoints and begins accepting. A bind failure is
// returned and leaves nothing listening.
func (l *Listener) Start(ctx context.Context) error {
	brokerLn, err := net.Listen("tcp", l.cfg.BrokerAddr)
	if err != nil {
		return fmt.Errorf("listen broker %s: %w", l.cfg.BrokerAddr, err)
	}
	marketLn, err := net.Listen("tcp", l.cfg.MarketAddr)
	if err != nil {
		brokerLn.Close()
		return fmt.Errorf("listen market %s: %w", l.cfg.MarketAddr, err)
	}

	l.ctx, l.cancel = context.WithCancel(ctx)

	l.mu.Lock()
	l.listeners[connection.RoleBroker] = brokerLn
	l.listeners[connection.RoleMarket] = marketLn
	l.mu.Unlock()

	l.wg.Add(2)
	go l.acceptLoop(connection.RoleBroker, brokerLn)
	go l.acceptLoop(connection.RoleMarket, marketLn)

	l.logger.Info("session listener started",
		"broker_addr", brokerLn.Addr().String(),
		"market_addr", marketLn.Addr().String(),
	)
	return nil
}

// Stop closes both listeners. Established connections keep running until
// their peers disconnect or the registry is closed.
func (l *Listener) Stop(ctx context.Context) error {
	if l.cancel == nil {
		return ErrNotStarted
	}
	l.logger.Info("stopping session listener")
	l.cancel()

	l.mu.Lock()
	for _, ln := range l.listeners {
		ln.Close()
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("session listener stopped")
	case <-ctx.Done():
		l.logger.Warn("session listener stop timed out")
		return ctx.Err()
	}
	return nil
}

// Addr returns the bound address for role, or nil before Start.
func (l *Listener) Addr(role connection.Role) net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()

	ln, ok := l.listeners[role]
	if !ok {
		return nil
	}
	return ln.Addr()
}

func (l *Listener) acceptLoop(role connection.Role, ln net.Listener) {
	defer l.wg.Done()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if l.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("accept failed", "role", role, "error", err)
			select {
			case <-l.ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		go l.serve(role, nc)
	}
}

// serve runs the handshake and then the read loop for one connection.
func (l *Listener) serve(role connection.Role, nc net.Conn) {
	c := connection.New(nc, l.cfg.Conn)
	logger := l.logger.With("role", role, "remote_addr", c.RemoteAddr(), "session", c.ID())

	requested, err := l.readHandshake(c)
	if err != nil {
		logger.Warn("handshake failed", "error", err)
		l.notify(Event{Role: role, Kind: KindHandshakeFailed, RemoteAddr: c.RemoteAddr()})
		c.Close()
		return
	}

	id, reconnect, err := l.bind(role, requested, c)
	if err != nil {
		logger.Error("register failed", "error", err)
		c.Close()
		return
	}
	logger = logger.With("id", id)

	kind := KindNew
	if reconnect {
		kind = KindReconnect
	}
	logger.Info("session established", "kind", kind, "requested", requested)
	l.notify(Event{Role: role, ID: id, Kind: kind, RemoteAddr: c.RemoteAddr()})

	if reconnect {
		go l.replay(role, id, c, logger)
	}

	l.readLoop(c, logger)
	l.notify(Event{Role: role, ID: id, Kind: KindClosed, RemoteAddr: c.RemoteAddr()})
}

func (l *Listener) readHandshake(c *connection.Conn) (int, error) {
	if l.cfg.HandshakeTimeout > 0 {
		c.SetReadDeadline(time.Now().Add(l.cfg.HandshakeTimeout))
		defer c.SetReadDeadline(time.Time{})
	}

	line, err := c.ReadLine()
	if err != nil {
		return 0, fmt.Errorf("read handshake: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("%q: %w", line, ErrBadHandshake)
	}
	return n, nil
}

// bind registers c for role and answers the handshake. A requested identity
// already held in role's table is taken over: the old connection is logged
// out and closed, and the identity is marked replaying before c becomes
// reachable so that its backlog is delivered ahead of new traffic.
func (l *Listener) bind(role connection.Role, requested int, c *connection.Conn) (int, bool, error) {
	id := requested
	_, reconnect := l.reg.Lookup(role, requested)
	if requested == NewIdentity || !reconnect {
		id = l.reg.NextID()
		reconnect = false
	}

	if reconnect {
		l.reg.BeginReplay(id, c)
	}

	prev, err := l.reg.Register(role, id, c)
	if err != nil {
		if reconnect {
			l.reg.EndReplay(id, c)
		}
		return 0, false, err
	}

	if prev != nil {
		if err := prev.Send(fix.Logout(id, ReasonSuperseded)); err != nil {
			l.logger.Debug("logout not delivered", "id", id, "error", err)
		}
		prev.Close()
	}

	if err := c.Send(strconv.Itoa(id)); err != nil {
		l.logger.Debug("handshake reply not delivered", "id", id, "error", err)
	}
	return id, reconnect, nil
}

// replay waits ReplayDelay and then drains id's backlog to c until the
// queue is empty, at which point the replay mark is cleared. On a write
// failure the unsent messages go back to the head of the queue. A replay
// superseded by a newer connection stops and leaves the mark to it.
func (l *Listener) replay(role connection.Role, id int, c *connection.Conn, logger *slog.Logger) {
	if l.cfg.ReplayDelay > 0 {
		select {
		case <-l.ctx.Done():
			l.reg.EndReplay(id, c)
			return
		case <-time.After(l.cfg.ReplayDelay):
		}
	}

	sent := 0
	for {
		batch, more := l.reg.NextReplayBatch(id, c)
		if !more {
			break
		}
		if batch == nil {
			// A superseded connection still holds part of the backlog.
			select {
			case <-l.ctx.Done():
				l.reg.EndReplay(id, c)
				return
			case <-time.After(replayRetryInterval):
			}
			continue
		}
		for i, raw := range batch {
			if err := c.Send(raw); err != nil {
				l.reg.ReturnBatch(id, c, batch[i:])
				l.reg.EndReplay(id, c)
				logger.Warn("replay interrupted",
					"sent", sent,
					"requeued", len(batch)-i,
					"error", err,
				)
				return
			}
			sent++
			l.pipeline.RecordReplay(id, raw)
		}
		l.reg.ReturnBatch(id, c, nil)
	}

	if sent > 0 {
		logger.Info("replayed pending messages", "count", sent)
		l.notify(Event{Role: role, ID: id, Kind: KindReplayed, RemoteAddr: c.RemoteAddr(), Replayed: sent})
	}
}

func (l *Listener) readLoop(c *connection.Conn, logger *slog.Logger) {
	defer c.Close()

	for {
		line, err := c.ReadLine()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), c.Closed():
				logger.Info("session closed")
			default:
				logger.Warn("read failed", "error", err)
			}
			return
		}

		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		l.pipeline.Handle(c, line)
	}
}

func (l *Listener) notify(ev Event) {
	ev.Time = time.Now()
	for _, o := range l.observers {
		o.SessionEvent(ev)
	}
}
