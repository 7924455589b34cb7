package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

type recordingSender struct {
	mu     sync.Mutex
	name   string
	fail   error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.fail
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFilter(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventHalt}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventLaunch, "launched", ""))
	require.NoError(t, n.Notify(context.Background(), EventHalt, "halted", ""))
	assert.Equal(t, []string{"halted"}, s.titles)

	all := NewNotifier([]Sender{s}, nil, discardLogger())
	assert.True(t, all.Enabled(EventArchive))

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled(EventHalt))
	assert.NoError(t, nilNotifier.Notify(context.Background(), EventHalt, "x", "y"))
}

func TestNotifierContinuesAfterFailure(t *testing.T) {
	bad := &recordingSender{name: "bad", fail: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), EventLaunch, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.titles, 1)
}

func TestDiscordSender(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "Market halted", "reason"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Market halted", got.Embeds[0].Title)
	assert.Equal(t, "reason", got.Embeds[0].Description)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer failing.Close()
	err := NewDiscordSender(failing.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestTelegramSender(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "-100").WithBaseURL(srv.URL + "/")
	require.NoError(t, s.Send(context.Background(), "a<b", "x & y"))
	assert.Equal(t, "-100", body["chat_id"])
	assert.Equal(t, "HTML", body["parse_mode"])
	assert.Equal(t, "<b>a&lt;b</b>\nx &amp; y", body["text"])
}

func TestLaunchMessage(t *testing.T) {
	m := domain.Market{Address: common.HexToAddress("0x3a4b"), Name: "Sloth", Symbol: "SLTH"}
	ev := domain.Event{
		Recipient:    common.HexToAddress("0x9001"),
		NativeAmount: big.NewInt(1_980_000_000_000_000_000),
		TokenAmount:  new(big.Int).Mul(big.NewInt(200_000_000), domain.WAD),
		Fee:          big.NewInt(20_000_000_000_000_000),
	}
	title, body := LaunchMessage(m, ev)
	assert.Equal(t, "Sloth (SLTH) launched", title)
	assert.True(t, strings.Contains(body, "reserve handed over: 1.98"))
	assert.True(t, strings.Contains(body, "tokens handed over: 200000000"))
	assert.True(t, strings.Contains(body, "listing fee: 0.02"))
}
