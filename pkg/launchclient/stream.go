package launchclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/launchpad/internal/service"
)

const (
	streamDialTimeout = 15 * time.Second
	streamPongWait    = 60 * time.Second
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// Message is one frame of the market event feed. Hello frames carry only
// Type; event and halted frames carry Market and At.
type Message = service.BusMessage

// MessageHandler is called for every frame received on the feed.
type MessageHandler func(ctx context.Context, msg Message)

// StreamConfig configures a Stream.
type StreamConfig struct {
	// BaseURL is the server's HTTP base URL; the scheme is switched to ws(s).
	BaseURL string
	// Markets narrows the feed. Empty means every market.
	Markets []common.Address
	// Since replays stream entries after this ID on the first connection.
	Since string
	// SkipHello drops the hello frame sent on every connect.
	SkipHello bool
}

// Stream follows the market event feed and reconnects with backoff when
// the connection drops.
type Stream struct {
	url       string
	since     string
	skipHello bool
	onMsg     MessageHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewStream creates a Stream that calls onMsg for each frame.
func NewStream(cfg StreamConfig, onMsg MessageHandler, logger *slog.Logger) (*Stream, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/ws")
	if err != nil {
		return nil, fmt.Errorf("launchclient: stream url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("launchclient: unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	for _, m := range cfg.Markets {
		q.Add("market", strings.ToLower(m.Hex()))
	}
	u.RawQuery = q.Encode()

	return &Stream{
		url:       u.String(),
		since:     cfg.Since,
		skipHello: cfg.SkipHello,
		onMsg:     onMsg,
		logger:    logger.With(slog.String("component", "launch_stream")),
		done:      make(chan struct{}),
	}, nil
}

// Run follows the feed until ctx is cancelled or Close is called.
func (s *Stream) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		connected, err := s.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = reconnectDelay
		}
		s.logger.Warn("event stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// runConnection reads one connection until it fails. connected reports
// whether the dial succeeded, which resets the backoff.
func (s *Stream) runConnection(ctx context.Context) (connected bool, err error) {
	target := s.url
	if s.since != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + "since=" + url.QueryEscape(s.since)
	}

	dialCtx, cancel := context.WithTimeout(ctx, streamDialTimeout)
	dialer := websocket.Dialer{HandshakeTimeout: streamDialTimeout}
	conn, _, err := dialer.DialContext(dialCtx, target, nil)
	cancel()
	if err != nil {
		return false, fmt.Errorf("launchclient: dial %s: %w", s.url, err)
	}
	// Replay only once; later reconnects follow the live feed.
	s.since = ""

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		case <-stop:
			return
		}
		conn.Close()
	}()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
	})
	s.logger.Info("event stream connected", slog.String("url", s.url))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return true, nil
			default:
			}
			return true, err
		}
		conn.SetReadDeadline(time.Now().Add(streamPongWait))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("event stream: bad frame", slog.String("error", err.Error()))
			continue
		}
		if msg.Type == "hello" && s.skipHello {
			continue
		}
		if s.onMsg != nil {
			s.onMsg(ctx, msg)
		}
	}
}

// Close stops the stream.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
