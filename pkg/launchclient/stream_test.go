package launchclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/server/ws"
	"github.com/alanyoungcy/launchpad/internal/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStream_FollowsFilteredFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewBus()
	hub := ws.NewHub(bus, quietLogger())
	go hub.Run(ctx)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.HandleWS)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	want := common.HexToAddress("0xAAAA")
	msgs := make(chan Message, 8)
	s, err := NewStream(StreamConfig{BaseURL: ts.URL, Markets: []common.Address{want}},
		func(_ context.Context, m Message) { msgs <- m }, quietLogger())
	require.NoError(t, err)
	go s.Run(ctx)
	defer s.Close()

	select {
	case m := <-msgs:
		require.Equal(t, "hello", m.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no hello frame")
	}

	other := common.HexToAddress("0xBBBB")
	require.NoError(t, bus.Publish(ctx, domain.ChannelEvents, []byte(`{"type":"event","market":"`+other.Hex()+`"}`)))
	require.NoError(t, bus.Publish(ctx, domain.ChannelEvents, []byte(`{"type":"halted","market":"`+want.Hex()+`","reason":"reserve mismatch"}`)))

	select {
	case m := <-msgs:
		assert.Equal(t, "halted", m.Type)
		assert.Equal(t, want.Hex(), m.Market)
		assert.Equal(t, "reserve mismatch", m.Reason)
	case <-time.After(5 * time.Second):
		t.Fatal("no event frame")
	}
}

func TestStream_ReconnectsAfterDrop(t *testing.T) {
	var dials atomic.Int32
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		if n == 1 {
			assert.Equal(t, "7", r.URL.Query().Get("since"))
		} else {
			assert.Empty(t, r.URL.Query().Get("since"), "replay is only requested once")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"event","market":"0x01"}`))
		conn.Close()
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var events atomic.Int32
	s, err := NewStream(StreamConfig{BaseURL: ts.URL, Since: "7", SkipHello: true},
		func(_ context.Context, m Message) {
			assert.Equal(t, "event", m.Type)
			events.Add(1)
		}, quietLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return events.Load() >= 2 }, 8*time.Second, 50*time.Millisecond)
	assert.GreaterOrEqual(t, dials.Load(), int32(2))

	s.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestNewStream_RejectsUnknownScheme(t *testing.T) {
	_, err := NewStream(StreamConfig{BaseURL: "ftp://example.com"}, nil, quietLogger())
	assert.Error(t, err)
}
