package router

import (
	"bufio"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/fixrouter/internal/connection"
	"github.com/rickgao/fixrouter/internal/fix"
	"github.com/rickgao/fixrouter/internal/registry"
)

// peer is the remote end of a registered connection.
type peer struct {
	conn  *connection.Conn
	lines chan string
}

func newPeer(t *testing.T) *peer {
	t.Helper()
	server, client := net.Pipe()
	p := &peer{
		conn:  connection.New(server, connection.Config{WriteTimeout: time.Second, MaxLineBytes: 4096}),
		lines: make(chan string, 16),
	}
	go func() {
		sc := bufio.NewScanner(client)
		for sc.Scan() {
			p.lines <- sc.Text()
		}
	}()
	t.Cleanup(func() {
		p.conn.Close()
		client.Close()
	})
	return p
}

func (p *peer) next(t *testing.T) string {
	t.Helper()
	select {
	case line := <-p.lines:
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
		return ""
	}
}

func (p *peer) none(t *testing.T) {
	t.Helper()
	select {
	case line := <-p.lines:
		t.Fatalf("unexpected line %q", fix.Pretty(line))
	case <-time.After(50 * time.Millisecond):
	}
}

func register(t *testing.T, reg *registry.Registry, role connection.Role, id int) *peer {
	t.Helper()
	p := newPeer(t)
	_, err := reg.Register(role, id, p.conn)
	require.NoError(t, err)
	return p
}

func order(sender, target int) string {
	return fix.NewOrder(fix.Order{
		Sender:  sender,
		Target:  target,
		ClOrdID: "ord-1",
		Side:    fix.SideBuy,
		Symbol:  "AAPL",
		Qty:     decimal.NewFromInt(10),
		Price:   decimal.RequireFromString("187.25"),
	})
}

func requireReject(t *testing.T, line, reason string) fix.Fields {
	t.Helper()
	require.True(t, fix.ValidChecksum(line), "reject carries a valid checksum")
	f := fix.Parse(line)
	assert.Equal(t, fix.MsgTypeReject, f.MsgType())
	assert.Equal(t, reason, f[fix.TagText])
	return f
}

func TestPipeline_Stages(t *testing.T) {
	p := New(registry.New(registry.DefaultSeed), DefaultConfig(), nil)

	var names []string
	for _, s := range p.Stages() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"validate", "route", "forward"}, names)
}

func TestHandle_BrokerToMarketForwardedVerbatim(t *testing.T) {
	reg := registry.New(registry.DefaultSeed)
	broker := register(t, reg, connection.RoleBroker, 100001)
	market := register(t, reg, connection.RoleMarket, 100002)
	p := New(reg, DefaultConfig(), nil)

	raw := order(100001, 100002)
	assert.Equal(t, Delivered, p.Handle(broker.conn, raw))
	assert.Equal(t, raw, market.next(t))
	broker.none(t)
}

func TestHandle_MarketToBroker(t *testing.T) {
	reg := registry.New(registry.DefaultSeed)
	broker := register(t, reg, connection.RoleBroker, 100001)
	market := register(t, reg, connection.RoleMarket, 100002)
	p := New(reg, DefaultConfig(), nil)

	raw := fix.ExecutionReport(fix.Execution{
		Sender:    100002,
		Target:    100001,
		ClOrdID:   "ord-1",
		Symbol:    "AAPL",
		Side:      fix.SideBuy,
		Qty:       decimal.NewFromInt(10),
		Price:     decimal.NewFromInt(187),
		LeavesQty: decimal.Zero,
		Status:    fix.OrdStatusFilled,
	})
	assert.Equal(t, Delivered, p.Handle(market.conn, raw))
	assert.Equal(t, raw, broker.next(t))
}

func TestHandle_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		fromMarket bool
		raw        func() string
		reason     string
	}{
		{
			name: "corrupted checksum",
			raw: func() string {
				raw := order(100001, 100002)
				return raw[:len(raw)-4] + "999" + string(fix.SOH)
			},
			reason: ReasonInvalidChecksum,
		},
		{
			name:   "broker to broker",
			raw:    func() string { return order(100001, 100003) },
			reason: ReasonBrokerToMarketOnly,
		},
		{
			name:   "broker to self",
			raw:    func() string { return order(100001, 100001) },
			reason: ReasonBrokerToMarketOnly,
		},
		{
			name:       "market to market",
			fromMarket: true,
			raw:        func() string { return order(100002, 100004) },
			reason:     ReasonMarketToBrokerOnly,
		},
		{
			name:   "unknown destination",
			raw:    func() string { return order(100001, 424242) },
			reason: ReasonDestinationUnknown,
		},
		{
			name: "missing target",
			raw: func() string {
				return fix.Build(fix.MsgTypeNewOrderSingle,
					fix.F(fix.TagSenderCompID, "100001"),
					fix.F(fix.TagClOrdID, "ord-1"),
				)
			},
			reason: ReasonDestinationUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := registry.New(registry.DefaultSeed)
			broker := register(t, reg, connection.RoleBroker, 100001)
			market := register(t, reg, connection.RoleMarket, 100002)
			register(t, reg, connection.RoleBroker, 100003)
			register(t, reg, connection.RoleMarket, 100004)
			p := New(reg, DefaultConfig(), nil)

			src, other := broker, market
			if tt.fromMarket {
				src, other = market, broker
			}

			raw := tt.raw()
			assert.Equal(t, Rejected, p.Handle(src.conn, raw))
			requireReject(t, src.next(t), tt.reason)
			other.none(t)
			assert.Zero(t, reg.PendingTotal())
		})
	}
}

func TestHandle_RejectSwapsIdentities(t *testing.T) {
	reg := registry.New(registry.DefaultSeed)
	broker := register(t, reg, connection.RoleBroker, 100001)
	p := New(reg, DefaultConfig(), nil)

	p.Handle(broker.conn, order(100001, 555))

	f := requireReject(t, broker.next(t), ReasonDestinationUnknown)
	assert.Equal(t, "555", f[fix.TagSenderCompID])
	assert.Equal(t, "100001", f[fix.TagTargetCompID])
	assert.Equal(t, "ord-1", f[fix.TagRefSeqNum])
}

func TestHandle_ForwardFailureQueuesUnderDestination(t *testing.T) {
	reg := registry.New(registry.DefaultSeed)
	broker := register(t, reg, connection.RoleBroker, 100001)
	market := register(t, reg, connection.RoleMarket, 200001)
	p := New(reg, DefaultConfig(), nil)

	market.conn.Close()

	raw := order(100001, 200001)
	assert.Equal(t, Queued, p.Handle(broker.conn, raw))
	requireReject(t, broker.next(t), ReasonMarketUnavailable)

	assert.Equal(t, 1, reg.PendingLen(200001))
	assert.Zero(t, reg.PendingLen(100001), "must not queue under the sender")
	assert.Equal(t, []string{raw}, reg.DrainPending(200001))
}

func TestHandle_BrokerUnavailable(t *testing.T) {
	reg := registry.New(registry.DefaultSeed)
	broker := register(t, reg, connection.RoleBroker, 100001)
	market := register(t, reg, connection.RoleMarket, 100002)
	p := New(reg, DefaultConfig(), nil)

	broker.conn.Close()

	assert.Equal(t, Queued, p.Handle(market.conn, order(100002, 100001)))
	requireReject(t, market.next(t), ReasonBrokerUnavailable)
	assert.Equal(t, 1, reg.PendingLen(100001))
}

func TestHandle_ReplayingDestinationQueuesWithoutReject(t *testing.T) {
	reg := registry.New(registry.DefaultSeed)
	broker := register(t, reg, connection.RoleBroker, 100001)
	market := register(t, reg, connection.RoleMarket, 200001)
	p := New(reg, DefaultConfig(), nil)

	reg.EnqueuePending(200001, "backlog")
	reg.BeginReplay(200001, market.conn)

	raw := order(100001, 200001)
	assert.Equal(t, Queued, p.Handle(broker.conn, raw))
	broker.none(t)
	market.none(t)
	batch, more := reg.NextReplayBatch(200001, market.conn)
	assert.True(t, more)
	assert.Equal(t, []string{"backlog", raw}, batch)
}

func TestHandle_SenderMismatch(t *testing.T) {
	for _, strict := range []bool{false, true} {
		t.Run("strict="+strconv.FormatBool(strict), func(t *testing.T) {
			reg := registry.New(registry.DefaultSeed)
			broker := register(t, reg, connection.RoleBroker, 100001)
			market := register(t, reg, connection.RoleMarket, 100002)
			p := New(reg, Config{StrictSender: strict}, nil)

			raw := order(999999, 100002)
			got := p.Handle(broker.conn, raw)

			if strict {
				assert.Equal(t, Rejected, got)
				requireReject(t, broker.next(t), ReasonSenderMismatch)
				market.none(t)
			} else {
				assert.Equal(t, Delivered, got)
				assert.Equal(t, raw, market.next(t))
			}
		})
	}
}

func TestHandle_SupersededSource(t *testing.T) {
	reg := registry.New(registry.DefaultSeed)
	old := register(t, reg, connection.RoleBroker, 100001)
	register(t, reg, connection.RoleBroker, 100001)
	market := register(t, reg, connection.RoleMarket, 100002)
	p := New(reg, DefaultConfig(), nil)

	assert.Equal(t, Rejected, p.Handle(old.conn, order(100001, 100002)))
	requireReject(t, old.next(t), ReasonSessionSuperseded)
	market.none(t)
}

func TestHandle_PublishesEvents(t *testing.T) {
	reg := registry.New(registry.DefaultSeed)
	broker := register(t, reg, connection.RoleBroker, 100001)
	market := register(t, reg, connection.RoleMarket, 100002)

	var mu sync.Mutex
	var events []Event
	obs := ObserverFunc(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	p := New(reg, DefaultConfig(), nil, obs)

	p.Handle(broker.conn, order(100001, 100002))
	market.next(t)
	p.Handle(broker.conn, order(100001, 1))
	broker.next(t)
	p.RecordReplay(100002, order(100001, 100002))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)

	assert.Equal(t, Delivered, events[0].Outcome)
	assert.Equal(t, "delivered", events[0].Result)
	assert.Equal(t, "forward", events[0].Stage)
	assert.Equal(t, 100001, events[0].SourceID)
	assert.Equal(t, 100002, events[0].DestID)
	assert.Equal(t, fix.MsgTypeNewOrderSingle, events[0].MsgType)
	assert.Equal(t, "ord-1", events[0].ClOrdID)

	assert.Equal(t, Rejected, events[1].Outcome)
	assert.Equal(t, "route", events[1].Stage)
	assert.Equal(t, ReasonDestinationUnknown, events[1].Reason)

	assert.Equal(t, Replayed, events[2].Outcome)
	assert.Equal(t, 100001, events[2].SourceID)
	assert.NotEqual(t, events[0].MsgID, events[2].MsgID)
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		o    Outcome
		want string
	}{
		{Continue, "continue"},
		{Delivered, "delivered"},
		{Rejected, "rejected"},
		{Queued, "queued"},
		{Replayed, "replayed"},
		{Outcome(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.o.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tt.o, got, tt.want)
		}
	}
}
