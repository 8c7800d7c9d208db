package channel

import (
	"context"
	"log/slog"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/metrics"
	"relaybot/internal/wweb"
)

const listenerRetryDelay = 5 * time.Second

// WhatsApp implements domain.Channel for the WhatsApp Web session.
// Outbound messages go through the dispatch subsystem, which reuses the
// gateway listener's session while it is registered and falls back to
// ephemeral per-request connections otherwise.
type WhatsApp struct {
	dispatcher *wweb.Dispatcher
	registry   *wweb.Registry
	factory    wweb.SocketFactory
	pairWait   time.Duration
	logger     *slog.Logger
}

type WhatsAppChannelConfig struct {
	Dispatcher  *wweb.Dispatcher
	Registry    *wweb.Registry
	Factory     wweb.SocketFactory
	PairTimeout time.Duration
	Logger      *slog.Logger
}

func NewWhatsApp(cfg WhatsAppChannelConfig) *WhatsApp {
	if cfg.PairTimeout <= 0 {
		cfg.PairTimeout = 30 * time.Second
	}
	return &WhatsApp{
		dispatcher: cfg.Dispatcher,
		registry:   cfg.Registry,
		factory:    cfg.Factory,
		pairWait:   cfg.PairTimeout,
		logger:     cfg.Logger,
	}
}

func (w *WhatsApp) Name() string { return "whatsapp" }

// Start registers the outbound handler and keeps a long-lived listener
// session alive for inbound traffic, reconnecting with a fixed delay when
// the connection drops.
func (w *WhatsApp) Start(ctx context.Context, bus domain.MessageBus) error {
	bus.OnOutbound("whatsapp", func(msg domain.OutboundMessage) {
		metrics.DispatchesTotal.Inc()
		_, err := w.dispatcher.Send(ctx, wweb.OutboundRequest{
			To:       msg.ChatID,
			Body:     msg.Content,
			MediaURL: msg.MediaURL,
		})
		if err != nil {
			metrics.DispatchFailures.Inc()
			w.logger.Error("whatsapp send failed", "err", err, "chat", msg.ChatID)
		}
	})

	for {
		if err := w.runListener(ctx, bus); err != nil {
			w.logger.Warn("web session listener ended", "err", err)
		}
		select {
		case <-ctx.Done():
			w.logger.Info("whatsapp channel stopping")
			return nil
		case <-time.After(listenerRetryDelay):
		}
	}
}

func (w *WhatsApp) runListener(ctx context.Context, bus domain.MessageBus) error {
	conn, err := w.factory(ctx, false)
	if err != nil {
		return err
	}

	ec, ok := conn.(wweb.EventConn)
	if !ok {
		// Transport cannot listen; ephemeral sends still work.
		conn.Close()
		w.logger.Warn("transport does not surface inbound events, running outbound-only")
		<-ctx.Done()
		return nil
	}

	listener := wweb.NewListener(wweb.ListenerConfig{
		Conn:     ec,
		Registry: w.registry,
		Bus:      bus,
		Logger:   w.logger,
	})

	if err := listener.WaitPaired(ctx, w.pairWait); err != nil {
		conn.Close()
		return err
	}

	metrics.ActiveWebSession.Set(1)
	defer metrics.ActiveWebSession.Set(0)
	return listener.Run(ctx)
}

func (w *WhatsApp) Stop() error { return nil }

func (w *WhatsApp) Send(ctx context.Context, chatID string, content string) error {
	_, err := w.dispatcher.Send(ctx, wweb.OutboundRequest{To: chatID, Body: content})
	return err
}
