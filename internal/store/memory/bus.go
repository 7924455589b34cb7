package memory

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

const (
	subscriberBuffer = 256
	streamCap        = 50_000
)

// Bus is an in-process domain.SignalBus for single-node deployments. Channel
// subscriptions accept glob patterns. Slow subscribers drop messages rather
// than block publishers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	streams map[string][]domain.StreamMessage
	seq     uint64
}

type subscription struct {
	pattern string
	ch      chan []byte
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[*subscription]struct{}),
		streams: make(map[string][]domain.StreamMessage),
	}
}

func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok && s.pattern != channel {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe delivers messages until ctx is cancelled, then closes the channel.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, fmt.Errorf("memory: subscribe %q: %w", channel, err)
	}
	s := &subscription{pattern: channel, ch: make(chan []byte, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(s.ch)
	}()
	return s.ch, nil
}

func (b *Bus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatUint(b.seq, 10) + "-0",
		Payload: append([]byte(nil), payload...),
	})
	if len(msgs) > streamCap {
		msgs = msgs[len(msgs)-streamCap:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count entries after lastID. "0" or "" reads from
// the start. It never blocks.
func (b *Bus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after := uint64(0)
	if lastID != "" && lastID != "0" {
		n, err := parseStreamID(lastID)
		if err != nil {
			return nil, fmt.Errorf("memory: stream read %q: %w", lastID, err)
		}
		after = n
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		n, _ := parseStreamID(m.ID)
		if n <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

func parseStreamID(id string) (uint64, error) {
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			id = id[:i]
			break
		}
	}
	return strconv.ParseUint(id, 10, 64)
}

var _ domain.SignalBus = (*Bus)(nil)
