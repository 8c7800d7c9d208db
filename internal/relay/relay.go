// Package relay forwards inbound messages between channels according to
// configured routes.
package relay

import (
	"context"
	"log/slog"

	"relaybot/internal/bus"
	"relaybot/internal/config"
	"relaybot/internal/domain"
	"relaybot/internal/metrics"
)

// Relay consumes the inbound side of the message bus and fans messages out
// along its routes.
type Relay struct {
	routes []config.Route
	bus    domain.MessageBus
	events *bus.EventBus
	logger *slog.Logger
}

type Config struct {
	Routes []config.Route
	Bus    domain.MessageBus
	Events *bus.EventBus
	Logger *slog.Logger
}

func New(cfg Config) *Relay {
	return &Relay{
		routes: cfg.Routes,
		bus:    cfg.Bus,
		events: cfg.Events,
		logger: cfg.Logger,
	}
}

// Run blocks until the context is cancelled or the bus is closed.
func (r *Relay) Run(ctx context.Context) {
	received := metrics.Collector.Counter("relaybot_messages_received_total", "Inbound messages seen by the relay loop")
	relayed := metrics.Collector.Counter("relaybot_messages_relayed_total", "Messages forwarded along a route")
	unrouted := metrics.Collector.Counter("relaybot_messages_unrouted_total", "Inbound messages with no matching route")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay loop stopping")
			return
		case msg, ok := <-r.bus.Subscribe():
			if !ok {
				r.logger.Info("message bus closed, relay loop exiting")
				return
			}
			received.Inc()

			outs := Match(r.routes, msg)
			if len(outs) == 0 {
				unrouted.Inc()
				r.logger.Debug("no route for message", "channel", msg.Channel, "chat", msg.ChatID)
				continue
			}

			for _, out := range outs {
				r.logger.Info("relaying message",
					"from", msg.Channel, "from_chat", msg.ChatID,
					"to", out.Channel, "to_chat", out.ChatID,
				)
				r.bus.SendOutbound(out)
				relayed.Inc()
				if r.events != nil {
					r.events.Emit(bus.Event{
						Type:   bus.EventMessageRelayed,
						Source: "relay",
						Payload: map[string]any{
							"from": msg.Channel,
							"to":   out.Channel,
						},
					})
				}
			}
		}
	}
}
