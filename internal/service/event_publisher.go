package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/launchpad/internal/domain"
	"github.com/alanyoungcy/launchpad/internal/notify"
)

// LaunchMetrics counts launches.
type LaunchMetrics interface {
	RecordLaunch(ctx context.Context)
}

// BusMessage is the envelope published on the signal bus and forwarded to
// websocket clients.
type BusMessage struct {
	Type   string            `json:"type"`
	Market string            `json:"market"`
	Event  *domain.EventJSON `json:"event,omitempty"`
	Reason string            `json:"reason,omitempty"`
	At     time.Time         `json:"at"`
}

// EventPublisher fans committed executions out to the signal bus, the market
// cache, price history, operator alerts and the audit log. Every step is
// best effort: failures are logged and never reach the relayer.
type EventPublisher struct {
	bus      domain.SignalBus
	cache    domain.MarketCache
	prices   domain.PriceHistory
	notifier *notify.Notifier
	audit    domain.AuditStore
	metrics  LaunchMetrics
	logger   *slog.Logger
}

// PublisherDeps lists the optional collaborators of an EventPublisher. Nil
// fields are skipped.
type PublisherDeps struct {
	Bus      domain.SignalBus
	Cache    domain.MarketCache
	Prices   domain.PriceHistory
	Notifier *notify.Notifier
	Audit    domain.AuditStore
	Metrics  LaunchMetrics
}

// NewEventPublisher creates an EventPublisher.
func NewEventPublisher(deps PublisherDeps, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		bus:      deps.Bus,
		cache:    deps.Cache,
		prices:   deps.Prices,
		notifier: deps.Notifier,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		logger:   logger.With(slog.String("component", "publisher")),
	}
}

// Publish distributes the events of one committed execution. market is the
// state after commit.
func (p *EventPublisher) Publish(ctx context.Context, market domain.Market, events []domain.Event) {
	if p.cache != nil {
		if err := p.cache.Set(ctx, market); err != nil {
			p.warn(ctx, "cache refresh failed", market.Address, err)
		}
	}

	for _, ev := range events {
		wire := ev.JSON()
		p.broadcast(ctx, ev.Market, BusMessage{
			Type:   "event",
			Market: ev.Market.Hex(),
			Event:  &wire,
			At:     ev.CreatedAt,
		})

		if p.prices != nil && ev.Price != nil {
			if err := p.prices.Record(ctx, ev.Market, ev.Price, ev.CreatedAt); err != nil {
				p.warn(ctx, "price record failed", ev.Market, err)
			}
		}

		if ev.Kind == domain.EventLaunch {
			p.launched(ctx, market, ev)
		}
	}
}

// MarketHalted reports a market frozen after a failed reserve check.
func (p *EventPublisher) MarketHalted(ctx context.Context, market common.Address, cause error) {
	if p.cache != nil {
		if err := p.cache.Invalidate(ctx, market); err != nil {
			p.warn(ctx, "cache invalidate failed", market, err)
		}
	}
	p.broadcast(ctx, market, BusMessage{
		Type:   "halted",
		Market: market.Hex(),
		Reason: cause.Error(),
		At:     time.Now().UTC(),
	})

	if p.notifier != nil {
		title, body := notify.HaltMessage(market, cause)
		if err := p.notifier.Notify(ctx, notify.EventHalt, title, body); err != nil {
			p.warn(ctx, "halt alert failed", market, err)
		}
	}
	p.auditLog(ctx, "market.halted", map[string]any{
		"market": market.Hex(),
		"reason": cause.Error(),
	})
}

func (p *EventPublisher) launched(ctx context.Context, market domain.Market, ev domain.Event) {
	if p.metrics != nil {
		p.metrics.RecordLaunch(ctx)
	}
	if p.notifier != nil {
		title, body := notify.LaunchMessage(market, ev)
		if err := p.notifier.Notify(ctx, notify.EventLaunch, title, body); err != nil {
			p.warn(ctx, "launch alert failed", ev.Market, err)
		}
	}
	p.auditLog(ctx, "market.launched", map[string]any{
		"market":         ev.Market.Hex(),
		"venue":          ev.Recipient.Hex(),
		"reserve_amount": domain.IntString(ev.NativeAmount),
		"token_amount":   domain.IntString(ev.TokenAmount),
		"listing_fee":    domain.IntString(ev.Fee),
	})
}

func (p *EventPublisher) broadcast(ctx context.Context, market common.Address, msg BusMessage) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		p.warn(ctx, "marshal bus message failed", market, err)
		return
	}
	if err := p.bus.Publish(ctx, domain.ChannelEvents, payload); err != nil {
		p.warn(ctx, "publish failed", market, err)
	}
	if err := p.bus.Publish(ctx, domain.ChannelMarketPrefix+market.Hex(), payload); err != nil {
		p.warn(ctx, "publish failed", market, err)
	}
	if err := p.bus.StreamAppend(ctx, domain.StreamEvents, payload); err != nil {
		p.warn(ctx, "stream append failed", market, err)
	}
}

func (p *EventPublisher) auditLog(ctx context.Context, event string, detail map[string]any) {
	if p.audit == nil {
		return
	}
	if err := p.audit.Log(ctx, event, detail); err != nil {
		p.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (p *EventPublisher) warn(ctx context.Context, msg string, market common.Address, err error) {
	p.logger.WarnContext(ctx, msg,
		slog.String("market", market.Hex()),
		slog.String("error", err.Error()),
	)
}
