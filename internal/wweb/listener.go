package wweb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"relaybot/internal/domain"
)

// Listener is the long-lived web session used by the gateway. It registers
// itself as the process's active session so that outbound dispatches reuse
// its connection instead of creating ephemeral ones, and it publishes
// inbound traffic to the message bus.
type Listener struct {
	conn     EventConn
	registry *Registry
	bus      domain.MessageBus
	logger   *slog.Logger
}

type ListenerConfig struct {
	Conn     EventConn
	Registry *Registry
	Bus      domain.MessageBus
	Logger   *slog.Logger
}

func NewListener(cfg ListenerConfig) *Listener {
	return &Listener{
		conn:     cfg.Conn,
		registry: cfg.Registry,
		bus:      cfg.Bus,
		logger:   cfg.Logger,
	}
}

// Run registers the listener as the active session and pumps inbound
// events onto the bus until the context is cancelled or the connection
// drops. The slot is cleared and the connection closed on the way out.
func (l *Listener) Run(ctx context.Context) error {
	l.registry.SetActive(l)
	l.logger.Info("web session active, reusing for outbound sends")

	defer func() {
		l.registry.SetActive(nil)
		if err := l.conn.Close(); err != nil {
			l.logger.Debug("listener close failed", "err", err)
		}
		l.logger.Info("web session deactivated")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-l.conn.Events():
			if !ok {
				return fmt.Errorf("%w: event stream closed", ErrConnect)
			}
			l.bus.Publish(domain.InboundMessage{
				Channel:   "whatsapp",
				ChatID:    ev.From,
				SenderID:  ev.From,
				Content:   ev.Text,
				Timestamp: ev.Timestamp,
			})
		}
	}
}

// SendMessage implements domain.ActiveSession over the live connection.
func (l *Listener) SendMessage(ctx context.Context, to, text string, media []byte, mediaType string) (domain.SendReceipt, error) {
	jid, err := ToJID(to)
	if err != nil {
		return domain.SendReceipt{}, err
	}

	var artifact *Artifact
	if len(media) > 0 {
		a := Classify(media, mediaType, "")
		artifact = &a
	}

	resp, err := l.conn.SendMessage(ctx, jid, BuildPayload(text, artifact))
	if err != nil {
		return domain.SendReceipt{}, err
	}
	return domain.SendReceipt{MessageID: resp.ID}, nil
}

// SendComposingTo implements domain.ActiveSession.
func (l *Listener) SendComposingTo(ctx context.Context, to string) error {
	jid, err := ToJID(to)
	if err != nil {
		return err
	}
	return l.conn.SendPresence(ctx, jid, "composing")
}

// Close implements domain.SessionCloser.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// WaitPaired blocks until the connection is ready, giving the gateway a
// clear signal that pairing credentials are still valid.
func (l *Listener) WaitPaired(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err, ok := <-l.conn.Ready():
		if !ok {
			return fmt.Errorf("%w: connection closed during handshake", ErrConnect)
		}
		return err
	case <-timer.C:
		return fmt.Errorf("%w: no ready signal within %s", ErrConnectTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
