package wweb

import (
	"context"
	"fmt"
	"log/slog"

	"relaybot/internal/domain"

	"github.com/google/uuid"
)

// UnknownMessageID is returned when a successful send carries no
// identifier. A missing id is not an error.
const UnknownMessageID = "unknown"

// OutboundRequest is one send request against the web-session channel.
// Immutable once constructed.
type OutboundRequest struct {
	To       string
	Body     string
	MediaURL string // optional media reference (URL or path)
	Verbose  bool
}

// DispatchResult reports the outcome of a successful dispatch.
type DispatchResult struct {
	MessageID string
	ToJID     string
}

// Dispatcher routes one outbound request through either the registered
// active session or a per-request ephemeral connection.
type Dispatcher struct {
	registry *Registry
	manager  *Manager
	media    *Resolver
	logger   *slog.Logger
}

type DispatcherConfig struct {
	Registry *Registry
	Manager  *Manager
	Media    *Resolver
	Logger   *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		registry: cfg.Registry,
		manager:  cfg.Manager,
		media:    cfg.Media,
		logger:   cfg.Logger,
	}
}

// Send dispatches one message. When an active session is registered it is
// reused; otherwise an ephemeral connection is created for this request
// and closed before Send returns, whatever the outcome.
func (d *Dispatcher) Send(ctx context.Context, req OutboundRequest) (DispatchResult, error) {
	correlationID := uuid.NewString()
	logger := d.logger.With("module", "web-outbound", "correlation_id", correlationID, "to", req.To)

	// The slot is read exactly once; a concurrent overwrite during this
	// request is last-writer-wins and does not affect us.
	active := d.registry.Active()
	usingActive := active != nil

	var conn Conn
	if !usingActive {
		c, err := d.manager.Connect(ctx, false)
		if err != nil {
			return DispatchResult{}, err
		}
		conn = c
		defer d.manager.CloseQuietly(conn, logger)
	}

	jid, err := ToJID(req.To)
	if err != nil {
		return DispatchResult{}, err
	}

	if !usingActive {
		logger.Info("connecting to web session")
		if err := d.manager.WaitReady(ctx, conn); err != nil {
			return DispatchResult{}, err
		}
		d.manager.Composing(ctx, conn, jid, logger)
	}

	var artifact *Artifact
	if req.MediaURL != "" {
		a, err := d.media.Resolve(ctx, req.MediaURL)
		if err != nil {
			return DispatchResult{}, err
		}
		artifact = &a
		if req.Verbose {
			logger.Info("media resolved", "kind", artifact.Kind.String(), "content_type", artifact.ContentType, "bytes", len(artifact.Data))
		}
	}

	logger.Info("sending message", "jid", jid, "has_media", artifact != nil)

	var messageID string
	if usingActive {
		messageID, err = d.sendViaActive(ctx, active, req, artifact, logger)
	} else {
		messageID, err = d.sendViaConn(ctx, conn, jid, req.Body, artifact)
	}
	if err != nil {
		return DispatchResult{}, err
	}

	logger.Info("sent message", "jid", jid, "message_id", messageID)
	return DispatchResult{MessageID: messageID, ToJID: jid}, nil
}

// sendViaActive reuses the registered long-lived session: composing
// indicator first (best-effort), then the message with raw media bytes.
func (d *Dispatcher) sendViaActive(ctx context.Context, active domain.ActiveSession, req OutboundRequest, artifact *Artifact, logger *slog.Logger) (string, error) {
	var mediaData []byte
	var mediaType string
	if artifact != nil {
		mediaData = artifact.Data
		mediaType = artifact.ContentType
	}

	if err := active.SendComposingTo(ctx, req.To); err != nil {
		logger.Debug("presence update skipped", "err", err)
	}

	receipt, err := active.SendMessage(ctx, req.To, req.Body, mediaData, mediaType)
	if err != nil {
		return "", fmt.Errorf("send via active session: %w", err)
	}
	if receipt.MessageID == "" {
		return UnknownMessageID, nil
	}
	return receipt.MessageID, nil
}

// sendViaConn sends the constructed payload over the ephemeral connection.
func (d *Dispatcher) sendViaConn(ctx context.Context, conn Conn, jid, body string, artifact *Artifact) (string, error) {
	payload := BuildPayload(body, artifact)
	resp, err := conn.SendMessage(ctx, jid, payload)
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	if resp.ID == "" {
		return UnknownMessageID, nil
	}
	return resp.ID, nil
}
