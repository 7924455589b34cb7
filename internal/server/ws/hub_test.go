package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/store/memory"
)

type gauge struct{ n int }

func (g *gauge) IncrementConnections(context.Context) { g.n++ }
func (g *gauge) DecrementConnections(context.Context) { g.n-- }

func startHub(t *testing.T, bus domain.SignalBus) (*Hub, string) {
	t.Helper()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil))).WithMetrics(&gauge{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, hello, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(hello), `"hello"`)
	return conn
}

func TestHub_FiltersByMarket(t *testing.T) {
	bus := memory.NewBus()
	_, url := startHub(t, bus)
	conn := dial(t, url+"?market=0xAAAA")

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, domain.ChannelEvents, []byte(`{"type":"event","market":"0xBBBB"}`)))
	require.NoError(t, bus.Publish(ctx, domain.ChannelEvents, []byte(`{"type":"event","market":"0xaaaa"}`)))

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"event","market":"0xaaaa"}`, string(msg))
}

func TestHub_UnfilteredClientGetsEverything(t *testing.T) {
	bus := memory.NewBus()
	_, url := startHub(t, bus)
	conn := dial(t, url)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, domain.ChannelEvents, []byte(`{"type":"halted","market":"0x01"}`)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "halted")
}

func TestHub_Replay(t *testing.T) {
	bus := memory.NewBus()
	ctx := context.Background()
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamEvents, []byte(`{"type":"event","market":"0x01","n":1}`)))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamEvents, []byte(`{"type":"event","market":"0x02","n":2}`)))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamEvents, []byte(`{"type":"event","market":"0x01","n":3}`)))

	_, url := startHub(t, bus)
	conn := dial(t, url+"?since=0&market=0x01")

	for _, want := range []string{`"n":1`, `"n":3`} {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(msg), want)
	}
}

func TestMarketOf(t *testing.T) {
	assert.Equal(t, "0xabcd", marketOf([]byte(`{"market":"0xABCD"}`)))
	assert.Equal(t, "", marketOf([]byte(`not json`)))
}

func stoppedHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(memory.NewBus(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, hub.Run(ctx), context.Canceled)
	return hub
}

func TestHub_RefusesConnectionsAfterStop(t *testing.T) {
	hub := stoppedHub(t)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHub_JoinAndLeaveDoNotBlockAfterStop(t *testing.T) {
	hub := stoppedHub(t)
	c := &client{hub: hub, send: make(chan []byte, 1), markets: map[string]bool{}}

	done := make(chan bool, 1)
	go func() {
		joined := hub.join(c)
		hub.leave(c)
		done <- joined
	}()
	select {
	case joined := <-done:
		assert.False(t, joined)
	case <-time.After(2 * time.Second):
		t.Fatal("join or leave blocked on a stopped hub")
	}
}

func TestHub_ClientDisconnectsWhenHubStops(t *testing.T) {
	bus := memory.NewBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	cancel()
	<-stopped

	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "the hub closes the connection on shutdown")
	assert.Zero(t, hub.clientCount())
}
