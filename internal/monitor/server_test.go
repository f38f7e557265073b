package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/fixrouter/internal/connection"
	"github.com/rickgao/fixrouter/internal/metrics"
	"github.com/rickgao/fixrouter/internal/registry"
	"github.com/rickgao/fixrouter/internal/router"
	"github.com/rickgao/fixrouter/internal/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry, *Hub) {
	t.Helper()

	reg := registry.New(registry.DefaultSeed)
	for _, r := range []struct {
		role connection.Role
		id   int
	}{
		{connection.RoleBroker, 100001},
		{connection.RoleMarket, 100002},
	} {
		a, b := net.Pipe()
		t.Cleanup(func() { a.Close(); b.Close() })
		_, err := reg.Register(r.role, r.id, connection.New(a, connection.DefaultConfig()))
		require.NoError(t, err)
	}
	reg.EnqueuePending(100002, "queued")

	hub := NewHub(nil)
	m := metrics.New()
	srv := NewServer(Config{InstanceID: "test"}, reg, m.Registry, hub, nil)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return ts, reg, hub
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	status, body := get(t, ts.URL+"/health")
	require.Equal(t, http.StatusOK, status)

	var resp healthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Instance)
	assert.Equal(t, 1, resp.Brokers)
	assert.Equal(t, 1, resp.Markets)
	assert.Equal(t, 1, resp.Pending)
}

func TestDebugRoutes(t *testing.T) {
	ts, _, _ := newTestServer(t)

	status, body := get(t, ts.URL+"/debug/routes")
	require.Equal(t, http.StatusOK, status)

	var snap registry.Snapshot
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	require.Len(t, snap.Routes, 2)
	assert.Equal(t, 100001, snap.Routes[0].ID)
	assert.Equal(t, connection.RoleBroker, snap.Routes[0].Role)
	assert.Equal(t, 1, snap.Routes[1].Pending)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	status, body := get(t, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "go_goroutines")
}

func TestUnknownRoute(t *testing.T) {
	ts, _, _ := newTestServer(t)

	status, _ := get(t, ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestEventStream(t *testing.T) {
	ts, _, hub := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	hub.Observe(router.Event{SourceID: 100001, DestID: 100002, Outcome: router.Delivered, Result: "delivered"})
	hub.SessionEvent(session.Event{Role: connection.RoleMarket, ID: 100002, Kind: session.KindReconnect})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "message", first["type"])
	msg := first["message"].(map[string]any)
	assert.Equal(t, "delivered", msg["outcome"])
	assert.EqualValues(t, 100002, msg["dest_id"])

	var second map[string]any
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "session", second["type"])
	assert.Equal(t, "reconnect", second["session"].(map[string]any)["kind"])
}

func TestHub_CloseDisconnectsSubscribers(t *testing.T) {
	ts, _, hub := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, hub.Len())
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth_JournalDown(t *testing.T) {
	reg := registry.New(registry.DefaultSeed)
	srv := NewServer(Config{}, reg, nil, nil, nil)
	srv.SetDatabase(pingerFunc(func(context.Context) error { return errors.New("connection refused") }))

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "error", resp.Journal)
	assert.Equal(t, "connection refused", resp.JournalError)
}

func TestHealth_JournalUp(t *testing.T) {
	reg := registry.New(registry.DefaultSeed)
	srv := NewServer(Config{}, reg, nil, nil, nil)
	srv.SetDatabase(pingerFunc(func(context.Context) error { return nil }))

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Journal)
	assert.Empty(t, resp.JournalError)
	assert.NotEqual(t, "degraded", resp.Status)
}

func TestServer_StartStop(t *testing.T) {
	reg := registry.New(registry.DefaultSeed)
	srv := NewServer(Config{Addr: "127.0.0.1:0"}, reg, nil, NewHub(nil), nil)
	require.NoError(t, srv.Start(context.Background()))

	status, _ := get(t, "http://"+srv.Addr().String()+"/health")
	assert.Equal(t, http.StatusOK, status)

	status, _ = get(t, "http://"+srv.Addr().String()+"/metrics")
	assert.Equal(t, http.StatusNotFound, status, "no gatherer, no metrics route")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.NoError(t, srv.Wait())
}
